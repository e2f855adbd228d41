package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/hpungsan/keepsake/internal/config"
	"github.com/hpungsan/keepsake/internal/errors"
	"github.com/hpungsan/keepsake/internal/ops"
)

// Handlers contains HTTP route handlers.
type Handlers struct {
	svc     *ops.Service
	store   Pinger
	cfg     *config.Config
	log     zerolog.Logger
	version string
	public  *limiterPool
}

// capsuleResponse adds the rendered body to a capsule view.
type capsuleResponse struct {
	ops.CapsuleView
	BodyHTML string `json:"body_html,omitempty"`
}

func withHTML(v *ops.CapsuleView) capsuleResponse {
	resp := capsuleResponse{CapsuleView: *v}
	if v.Body != nil {
		resp.BodyHTML = string(renderMarkdown(*v.Body))
	}
	return resp
}

// HandleHealth handles GET /healthz.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		h.log.Warn().Err(err).Msg("health check failed")
		renderJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "version": h.version})
		return
	}
	renderJSON(w, http.StatusOK, map[string]any{"status": "ok", "version": h.version})
}

type createRequest struct {
	RecipientID        string   `json:"recipient_id"`
	Title              string   `json:"title"`
	Body               string   `json:"body"`
	Theme              *string  `json:"theme"`
	UnlocksAt          int64    `json:"unlocks_at"`
	IsAnonymous        bool     `json:"is_anonymous"`
	RevealDelaySeconds *int64   `json:"reveal_delay_seconds"`
	Hints              []string `json:"hints"`
}

// HandleCreate handles POST /api/v1/capsules.
func (h *Handlers) HandleCreate(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(r)
	if err != nil {
		renderError(w, err)
		return
	}
	var req createRequest
	if err := decodeStrict(data, &req); err != nil {
		renderError(w, err)
		return
	}

	v, err := h.svc.Create(r.Context(), ops.CreateInput{
		CallerID:           callerID(r),
		RecipientID:        req.RecipientID,
		Title:              req.Title,
		Body:               req.Body,
		Theme:              req.Theme,
		UnlocksAt:          req.UnlocksAt,
		IsAnonymous:        req.IsAnonymous,
		RevealDelaySeconds: req.RevealDelaySeconds,
		Hints:              req.Hints,
	})
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusCreated, withHTML(v))
}

// HandleList handles GET /api/v1/capsules.
func (h *Handlers) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	out, err := h.svc.List(r.Context(), ops.ListInput{
		CallerID:         callerID(r),
		Box:              ops.Box(q.Get("box")),
		Status:           q.Get("status"),
		Limit:            parseIntParam(r, "limit", ops.DefaultListLimit),
		Offset:           parseIntParam(r, "offset", 0),
		IncludeWithdrawn: parseBoolParam(r, "include_withdrawn"),
	})
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// HandleFetch handles GET /api/v1/capsules/{id}.
func (h *Handlers) HandleFetch(w http.ResponseWriter, r *http.Request) {
	v, err := h.svc.Fetch(r.Context(), ops.FetchInput{CallerID: callerID(r), ID: mux.Vars(r)["id"]})
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, withHTML(v))
}

// HandleUpdate handles PATCH /api/v1/capsules/{id}. Every submitted key is
// forwarded so lifecycle fields are rejected by name.
func (h *Handlers) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(r)
	if err != nil {
		renderError(w, err)
		return
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		renderError(w, errors.NewValidation("invalid JSON: "+err.Error()))
		return
	}

	input := ops.UpdateInput{CallerID: callerID(r), ID: mux.Vars(r)["id"]}
	for k := range raw {
		input.Fields = append(input.Fields, k)
	}
	sort.Strings(input.Fields)

	for key, dst := range map[string]**string{"title": &input.Title, "body": &input.Body, "theme": &input.Theme} {
		msg, ok := raw[key]
		if !ok {
			continue
		}
		if string(msg) == "null" {
			if key != "theme" {
				renderError(w, errors.NewValidationField(key, "must not be null"))
				return
			}
			empty := ""
			*dst = &empty
			continue
		}
		var s string
		if err := json.Unmarshal(msg, &s); err != nil {
			renderError(w, errors.NewValidationField(key, "must be a string"))
			return
		}
		*dst = &s
	}

	v, err := h.svc.Update(r.Context(), input)
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, withHTML(v))
}

// HandleWithdraw handles DELETE /api/v1/capsules/{id}.
func (h *Handlers) HandleWithdraw(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.Withdraw(r.Context(), ops.WithdrawInput{CallerID: callerID(r), ID: mux.Vars(r)["id"]})
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// HandleOpen handles POST /api/v1/capsules/{id}/open.
func (h *Handlers) HandleOpen(w http.ResponseWriter, r *http.Request) {
	v, err := h.svc.Open(r.Context(), ops.OpenInput{CallerID: callerID(r), ID: mux.Vars(r)["id"]})
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, withHTML(v))
}

// HandleHint handles GET /api/v1/capsules/{id}/hint.
func (h *Handlers) HandleHint(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.Hint(r.Context(), ops.HintInput{CallerID: callerID(r), ID: mux.Vars(r)["id"]})
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

type shareCreateRequest struct {
	ShareKind string `json:"share_kind"`
	ExpiresAt *int64 `json:"expires_at"`
}

// HandleShareCreate handles POST /api/v1/capsules/{id}/shares.
func (h *Handlers) HandleShareCreate(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(r)
	if err != nil {
		renderError(w, err)
		return
	}
	req := shareCreateRequest{ShareKind: "link"}
	if len(data) > 0 {
		if err := decodeStrict(data, &req); err != nil {
			renderError(w, err)
			return
		}
	}

	v, err := h.svc.ShareCreate(r.Context(), ops.ShareCreateInput{
		CallerID:  callerID(r),
		CapsuleID: mux.Vars(r)["id"],
		ShareKind: req.ShareKind,
		ExpiresAt: req.ExpiresAt,
	})
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusCreated, v)
}

// HandleShareList handles GET /api/v1/capsules/{id}/shares.
func (h *Handlers) HandleShareList(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.ShareList(r.Context(), ops.ShareListInput{CallerID: callerID(r), CapsuleID: mux.Vars(r)["id"]})
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// HandleShareRevoke handles DELETE /api/v1/shares/{id}.
func (h *Handlers) HandleShareRevoke(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.ShareRevoke(r.Context(), ops.ShareRevokeInput{CallerID: callerID(r), ShareID: mux.Vars(r)["id"]})
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// HandleConnect handles PUT /api/v1/connections/{other}.
func (h *Handlers) HandleConnect(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.Connect(r.Context(), ops.ConnectInput{CallerID: callerID(r), OtherID: mux.Vars(r)["other"]})
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// HandleDisconnect handles DELETE /api/v1/connections/{other}.
func (h *Handlers) HandleDisconnect(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.Disconnect(r.Context(), ops.ConnectInput{CallerID: callerID(r), OtherID: mux.Vars(r)["other"]})
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// HandleShareResolve handles GET /s/{token}, the public countdown. Every
// failure is the same 404 and is never cached.
func (h *Handlers) HandleShareResolve(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.ShareResolve(r.Context(), mux.Vars(r)["token"])
	if err != nil {
		w.Header().Set("Cache-Control", "no-store")
		renderError(w, err)
		return
	}
	if secs := h.cfg.ShareCacheSeconds; secs > 0 && !p.IsUnlocked {
		// Never cache past the unlock instant.
		secs = int(min(int64(secs), p.SecondsRemaining))
		w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", secs))
	} else {
		w.Header().Set("Cache-Control", "no-cache")
	}
	renderJSON(w, http.StatusOK, p)
}
