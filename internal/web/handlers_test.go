package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/keepsake/internal/clock"
	"github.com/hpungsan/keepsake/internal/config"
	"github.com/hpungsan/keepsake/internal/db"
	"github.com/hpungsan/keepsake/internal/ops"
)

var t0 = time.Unix(4_000_000_000, 0).UTC()

type testEnv struct {
	handler http.Handler
	clk     *clock.Manual
	cfg     *config.Config
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := db.Init(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cfg := config.DefaultConfig()
	clk := clock.NewManual(t0)
	svc := ops.New(store, cfg, ops.WithClock(clk))
	return &testEnv{
		handler: NewHandler(svc, store, cfg, zerolog.Nop(), "test"),
		clk:     clk,
		cfg:     cfg,
	}
}

func (e *testEnv) do(t *testing.T, method, path, user, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if user != "" {
		req.Header.Set(UserHeader, user)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type errResp struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Status  int            `json:"status"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func (e *testEnv) create(t *testing.T, body string) map[string]any {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/v1/capsules", "alice", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[map[string]any](t, rec)
}

func (e *testEnv) plainBody(unlockIn int64) string {
	return `{"recipient_id":"bob","title":"hi","body":"**bold** words","unlocks_at":` +
		itoa(e.clk.Now().Unix()+unlockIn) + `}`
}

func itoa(v int64) string { return strconv.FormatInt(v, 10) }

func TestHealth(t *testing.T) {
	env := setupTestEnv(t)
	rec := env.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestAPI_RequiresUser(t *testing.T) {
	env := setupTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/v1/capsules", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", decode[errResp](t, rec).Error.Code)
}

func TestCapsuleLifecycle(t *testing.T) {
	env := setupTestEnv(t)
	c := env.create(t, env.plainBody(3600))
	id := c["id"].(string)
	assert.Equal(t, "sealed", c["status"])
	assert.Contains(t, c["body_html"], "<strong>bold</strong>")

	// Recipient sees it without body.
	rec := env.do(t, http.MethodGet, "/api/v1/capsules/"+id, "bob", "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[map[string]any](t, rec)
	assert.NotContains(t, got, "body")
	assert.NotContains(t, got, "body_html")

	rec = env.do(t, http.MethodPost, "/api/v1/capsules/"+id+"/open", "bob", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "NOT_READY", decode[errResp](t, rec).Error.Code)

	env.clk.Advance(time.Hour)
	rec = env.do(t, http.MethodPost, "/api/v1/capsules/"+id+"/open", "bob", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got = decode[map[string]any](t, rec)
	assert.Equal(t, "opened", got["status"])
	assert.Equal(t, "**bold** words", got["body"])

	rec = env.do(t, http.MethodPost, "/api/v1/capsules/"+id+"/open", "bob", "")
	assert.Equal(t, "ALREADY_OPENED", decode[errResp](t, rec).Error.Code)

	rec = env.do(t, http.MethodDelete, "/api/v1/capsules/"+id, "alice", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreate_RejectsUnknownField(t *testing.T) {
	env := setupTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/v1/capsules", "alice",
		`{"recipient_id":"bob","body":"x","unlocks_at":`+itoa(t0.Unix()+60)+`,"status":"opened"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION", decode[errResp](t, rec).Error.Code)
}

func TestUpdate(t *testing.T) {
	env := setupTestEnv(t)
	id := env.create(t, env.plainBody(3600))["id"].(string)

	rec := env.do(t, http.MethodPatch, "/api/v1/capsules/"+id, "alice", `{"title":"renamed","theme":"spring"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[map[string]any](t, rec)
	assert.Equal(t, "renamed", got["title"])
	assert.Equal(t, "spring", got["theme"])

	rec = env.do(t, http.MethodPatch, "/api/v1/capsules/"+id, "alice", `{"theme":null}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, decode[map[string]any](t, rec), "theme")

	rec = env.do(t, http.MethodPatch, "/api/v1/capsules/"+id, "alice", `{"title":"x","openedAt":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	e := decode[errResp](t, rec)
	assert.Contains(t, e.Error.Message, "lifecycle")
	assert.Equal(t, "opened_at", e.Error.Details["field"])

	rec = env.do(t, http.MethodPatch, "/api/v1/capsules/"+id, "alice", `{"title":5}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListAndWithdraw(t *testing.T) {
	env := setupTestEnv(t)
	id := env.create(t, env.plainBody(3600))["id"].(string)

	rec := env.do(t, http.MethodGet, "/api/v1/capsules?box=inbox", "bob", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[ops.ListOutput](t, rec)
	require.Len(t, list.Items, 1)

	rec = env.do(t, http.MethodDelete, "/api/v1/capsules/"+id, "alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[ops.WithdrawOutput](t, rec).Withdrawn)

	rec = env.do(t, http.MethodGet, "/api/v1/capsules?box=inbox", "bob", "")
	assert.Empty(t, decode[ops.ListOutput](t, rec).Items)

	rec = env.do(t, http.MethodGet, "/api/v1/capsules/"+id, "bob", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/capsules?box=outbox&include_withdrawn=true", "alice", "")
	assert.Len(t, decode[ops.ListOutput](t, rec).Items, 1)
}

func TestAnonymousHintFlow(t *testing.T) {
	env := setupTestEnv(t)
	env.do(t, http.MethodPut, "/api/v1/connections/bob", "alice", "")
	rec := env.do(t, http.MethodPut, "/api/v1/connections/alice", "bob", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[ops.ConnectOutput](t, rec).Mutual)

	id := env.create(t, `{"recipient_id":"bob","body":"guess","unlocks_at":`+itoa(t0.Unix()+60)+
		`,"is_anonymous":true,"reveal_delay_seconds":100,"hints":["tall"]}`)["id"].(string)

	env.clk.Advance(time.Minute)
	rec = env.do(t, http.MethodPost, "/api/v1/capsules/"+id+"/open", "bob", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "anonymous", decode[map[string]any](t, rec)["sender_id"])

	env.clk.Advance(50 * time.Second)
	rec = env.do(t, http.MethodGet, "/api/v1/capsules/"+id+"/hint", "bob", "")
	require.Equal(t, http.StatusOK, rec.Code)
	hint := decode[ops.HintOutput](t, rec)
	require.NotNil(t, hint.Hint)
	assert.Equal(t, "tall", hint.Hint.Text)

	env.clk.Advance(50 * time.Second)
	rec = env.do(t, http.MethodGet, "/api/v1/capsules/"+id+"/hint", "bob", "")
	hint = decode[ops.HintOutput](t, rec)
	assert.True(t, hint.Revealed)
	assert.Nil(t, hint.Hint)
	assert.Equal(t, "alice", hint.SenderID)
}

func TestShareFlow(t *testing.T) {
	env := setupTestEnv(t)
	id := env.create(t, env.plainBody(90))["id"].(string)

	rec := env.do(t, http.MethodPost, "/api/v1/capsules/"+id+"/shares", "alice", "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sh := decode[ops.ShareView](t, rec)
	assert.Equal(t, "link", sh.ShareKind)
	assert.True(t, strings.HasSuffix(sh.URL, "/s/"+sh.Token))

	rec = env.do(t, http.MethodGet, "/s/"+sh.Token, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "public, max-age=30", rec.Header().Get("Cache-Control"))
	p := decode[map[string]any](t, rec)
	assert.Equal(t, false, p["is_unlocked"])
	assert.Equal(t, float64(1), p["minutes"])
	assert.NotContains(t, p, "body")
	assert.NotContains(t, p, "sender_id")
	assert.NotContains(t, p, "recipient_id")

	// Cache lifetime never runs past the unlock instant.
	env.clk.Advance(80 * time.Second)
	rec = env.do(t, http.MethodGet, "/s/"+sh.Token, "", "")
	assert.Equal(t, "public, max-age=10", rec.Header().Get("Cache-Control"))

	rec = env.do(t, http.MethodGet, "/api/v1/capsules/"+id+"/shares", "alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[ops.ShareListOutput](t, rec).Items, 1)

	rec = env.do(t, http.MethodDelete, "/api/v1/shares/"+sh.ID, "alice", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/s/"+sh.Token, "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "share not found", decode[errResp](t, rec).Error.Message)

	rec = env.do(t, http.MethodGet, "/s/garbage", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "share not found", decode[errResp](t, rec).Error.Message)
}

func TestShareResolve_RateLimited(t *testing.T) {
	env := setupTestEnv(t)
	env.cfg.PublicRateRPS = 0.001
	env.cfg.PublicRateBurst = 2
	// Rebuild with the tightened limits.
	store, err := db.Init(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	h := NewHandler(ops.New(store, env.cfg), store, env.cfg, zerolog.Nop(), "test")

	codes := make([]int, 0, 3)
	for range 3 {
		req := httptest.NewRequest(http.MethodGet, "/s/garbage", nil)
		req.RemoteAddr = "203.0.113.7:5555"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{404, 404, 429}, codes)

	// A different client has its own bucket.
	req := httptest.NewRequest(http.MethodGet, "/s/garbage", nil)
	req.RemoteAddr = "198.51.100.1:1"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUnknownRoute(t *testing.T) {
	env := setupTestEnv(t)
	rec := env.do(t, http.MethodGet, "/nope", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/v1/capsules", "alice", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRequestID(t *testing.T) {
	env := setupTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, "abc", rec.Header().Get("X-Request-ID"))

	rec = env.do(t, http.MethodGet, "/healthz", "", "")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRenderMarkdown_OmitsRawHTML(t *testing.T) {
	out := string(renderMarkdown("hi <script>alert(1)</script>"))
	assert.NotContains(t, out, "<script>")
}
