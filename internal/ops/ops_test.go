package ops

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/keepsake/internal/capsule"
	"github.com/hpungsan/keepsake/internal/clock"
	"github.com/hpungsan/keepsake/internal/config"
	"github.com/hpungsan/keepsake/internal/db"
	"github.com/hpungsan/keepsake/internal/errors"
)

var t0 = time.Unix(4_000_000_000, 0).UTC()

const (
	alice = "alice"
	bob   = "bob"
	carol = "carol"
)

func ptr[T any](v T) *T { return &v }

// recordingNotifier captures notifications for assertions.
type recordingNotifier struct {
	mu       sync.Mutex
	ready    []string
	revealed []string
}

func (n *recordingNotifier) CapsuleReady(_ context.Context, c *capsule.Capsule) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ready = append(n.ready, c.ID)
}

func (n *recordingNotifier) SenderRevealed(_ context.Context, c *capsule.Capsule) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.revealed = append(n.revealed, c.ID)
}

func (n *recordingNotifier) counts() (ready, revealed int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.ready), len(n.revealed)
}

type fixture struct {
	svc   *Service
	store *db.Store
	clk   *clock.Manual
	note  *recordingNotifier
	cfg   *config.Config
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	store, err := db.Init(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	f := &fixture{
		store: store,
		clk:   clock.NewManual(t0),
		note:  &recordingNotifier{},
		cfg:   config.DefaultConfig(),
	}
	all := append([]Option{WithClock(f.clk), WithNotifier(f.note)}, opts...)
	f.svc = New(store, f.cfg, all...)
	return f
}

func (f *fixture) now() int64 { return f.clk.Now().Unix() }

// seal creates a plain capsule from alice to bob unlocking in d.
func (f *fixture) seal(t *testing.T, d time.Duration) *CapsuleView {
	t.Helper()
	v, err := f.svc.Create(context.Background(), CreateInput{
		CallerID:    alice,
		RecipientID: bob,
		Title:       "for later",
		Body:        "hello from the past",
		UnlocksAt:   f.now() + int64(d/time.Second),
	})
	require.NoError(t, err)
	return v
}

// sealAnon creates an anonymous capsule from alice to bob after connecting
// them both ways.
func (f *fixture) sealAnon(t *testing.T, d time.Duration, delay int64, hints ...string) *CapsuleView {
	t.Helper()
	f.connect(t, alice, bob)
	v, err := f.svc.Create(context.Background(), CreateInput{
		CallerID:           alice,
		RecipientID:        bob,
		Title:              "guess who",
		Body:               "it was me all along",
		UnlocksAt:          f.now() + int64(d/time.Second),
		IsAnonymous:        true,
		RevealDelaySeconds: &delay,
		Hints:              hints,
	})
	require.NoError(t, err)
	return v
}

func (f *fixture) connect(t *testing.T, a, b string) {
	t.Helper()
	ctx := context.Background()
	_, err := f.svc.Connect(ctx, ConnectInput{CallerID: a, OtherID: b})
	require.NoError(t, err)
	_, err = f.svc.Connect(ctx, ConnectInput{CallerID: b, OtherID: a})
	require.NoError(t, err)
}

// openAfter advances past the unlock time and opens as bob.
func (f *fixture) openAfter(t *testing.T, v *CapsuleView) *CapsuleView {
	t.Helper()
	if f.now() < v.UnlocksAt {
		f.clk.Set(time.Unix(v.UnlocksAt, 0))
	}
	opened, err := f.svc.Open(context.Background(), OpenInput{CallerID: bob, ID: v.ID})
	require.NoError(t, err)
	return opened
}

func wantCode(t *testing.T, err error, code errors.ErrorCode) {
	t.Helper()
	require.Error(t, err)
	kErr, ok := errors.As(err)
	require.True(t, ok, "expected KeepsakeError, got %T: %v", err, err)
	require.Equal(t, code, kErr.Code, kErr.Message)
}

func TestClampPage(t *testing.T) {
	cases := []struct {
		limit, offset         int
		wantLimit, wantOffset int
	}{
		{0, 0, DefaultListLimit, 0},
		{-5, -1, DefaultListLimit, 0},
		{500, 10, MaxListLimit, 10},
		{7, 3, 7, 3},
	}
	for _, c := range cases {
		l, o := clampPage(c.limit, c.offset)
		if l != c.wantLimit || o != c.wantOffset {
			t.Errorf("clampPage(%d, %d) = (%d, %d), want (%d, %d)",
				c.limit, c.offset, l, o, c.wantLimit, c.wantOffset)
		}
	}
}

func TestFormatPurgeMessage(t *testing.T) {
	if got := formatPurgeMessage(0, nil); got != "No withdrawn capsules to purge" {
		t.Errorf("got %q", got)
	}
	if got := formatPurgeMessage(1, nil); got != "Permanently deleted 1 withdrawn capsule" {
		t.Errorf("got %q", got)
	}
	if got := formatPurgeMessage(3, ptr(7)); got != "Permanently deleted 3 withdrawn capsules (withdrawn more than 7 days ago)" {
		t.Errorf("got %q", got)
	}
}
