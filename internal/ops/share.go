package ops

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/hpungsan/keepsake/internal/capsule"
	"github.com/hpungsan/keepsake/internal/db"
	"github.com/hpungsan/keepsake/internal/errors"
	"github.com/hpungsan/keepsake/internal/metrics"
	"github.com/hpungsan/keepsake/internal/share"
)

const (
	// shareWindowSeconds is the rolling window for the per-owner quota.
	shareWindowSeconds = 24 * 60 * 60
	shareWindowLabel   = "24h"

	// maxTokenAttempts bounds regeneration after a token collision.
	maxTokenAttempts = 5
)

// ShareView is a share token as its owner sees it.
type ShareView struct {
	ID        string `json:"id"`
	CapsuleID string `json:"capsule_id"`
	Token     string `json:"token"`
	URL       string `json:"url"`
	ShareKind string `json:"share_kind"`
	State     string `json:"state"` // active, revoked, expired
	CreatedAt int64  `json:"created_at"`
	ExpiresAt *int64 `json:"expires_at,omitempty"`
	RevokedAt *int64 `json:"revoked_at,omitempty"`
	OpenAt    int64  `json:"open_at"`
}

func (s *Service) shareView(t *share.Token, now int64) ShareView {
	state := "active"
	switch {
	case t.Revoked():
		state = "revoked"
	case t.Expired(now):
		state = "expired"
	}
	return ShareView{
		ID:        t.ID,
		CapsuleID: t.LetterID,
		Token:     t.Token,
		URL:       s.ShareURL(t.Token),
		ShareKind: t.ShareKind,
		State:     state,
		CreatedAt: t.CreatedAt,
		ExpiresAt: t.ExpiresAt,
		RevokedAt: t.RevokedAt,
		OpenAt:    t.OpenAt,
	}
}

// ShareURL returns the public countdown URL for token.
func (s *Service) ShareURL(token string) string {
	return s.cfg.BaseURL() + "/s/" + token
}

// ShareCreateInput contains parameters for the ShareCreate operation.
type ShareCreateInput struct {
	CallerID  string
	CapsuleID string
	ShareKind string // lowercase letters, digits, '-' or '_'
	ExpiresAt *int64 // optional, must be in the future
}

// ShareCreate issues a public countdown token for a sealed capsule owned by
// the caller. The capsule state and the owner's quota are re-checked inside
// the insert itself.
func (s *Service) ShareCreate(ctx context.Context, input ShareCreateInput) (_ *ShareView, err error) {
	defer s.observe("share_create", &err)

	capsuleID := strings.TrimSpace(input.CapsuleID)
	if capsuleID == "" {
		return nil, errors.NewValidationField("capsule_id", "is required")
	}
	kind, err := share.NormalizeKind(input.ShareKind)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if input.ExpiresAt != nil && *input.ExpiresAt <= now {
		return nil, errors.NewValidationField("expires_at", "must be in the future")
	}

	c, err := s.get(ctx, capsuleID)
	if err != nil {
		return nil, err
	}
	if err := capsule.CheckSealedForSender(c, input.CallerID, now); err != nil {
		return nil, err
	}

	issue := db.ShareIssue{
		Now:         now,
		WindowStart: now - shareWindowSeconds,
		Quota:       s.cfg.ShareQuotaPerDay,
	}

	for attempt := 0; attempt < maxTokenAttempts; attempt++ {
		tok, err := share.GenerateToken()
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		t := &share.Token{
			ID:        uuid.NewString(),
			LetterID:  capsuleID,
			OwnerID:   input.CallerID,
			Token:     tok,
			ShareKind: kind,
			CreatedAt: now,
			ExpiresAt: input.ExpiresAt,
			OpenAt:    c.UnlocksAt,
		}

		sctx, cancel := s.storeCtx(ctx)
		ok, err := s.store.InsertShareConditional(sctx, t, issue)
		cancel()
		if err == db.ErrTokenCollision {
			s.log.Warn().Int("attempt", attempt+1).Msg("share token collision")
			continue
		}
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, s.shareRejected(ctx, capsuleID, input.CallerID, issue)
		}

		metrics.SharesIssued.Inc()
		v := s.shareView(t, now)
		return &v, nil
	}
	return nil, errors.NewConflict("could not generate a unique share token; retry")
}

// shareRejected explains a conditional insert that matched nothing: either
// the quota filled up or the capsule left sealed since it was read.
func (s *Service) shareRejected(ctx context.Context, capsuleID, callerID string, p db.ShareIssue) error {
	sctx, cancel := s.storeCtx(ctx)
	n, err := s.store.CountSharesSince(sctx, callerID, p.WindowStart)
	cancel()
	if err != nil {
		return err
	}
	if n >= p.Quota {
		return errors.NewQuotaExceeded(p.Quota, shareWindowLabel)
	}

	c, err := s.get(ctx, capsuleID)
	if err != nil {
		return err
	}
	if err := capsule.CheckSealedForSender(c, callerID, p.Now); err != nil {
		return err
	}
	return errors.NewNotSealed(capsule.EffectiveStatus(c, p.Now).String())
}

// ShareListInput contains parameters for the ShareList operation.
type ShareListInput struct {
	CallerID  string
	CapsuleID string
}

// ShareListOutput contains the result of the ShareList operation.
type ShareListOutput struct {
	Items []ShareView `json:"items"`
}

// ShareList returns every token the caller issued for a capsule, newest first.
func (s *Service) ShareList(ctx context.Context, input ShareListInput) (_ *ShareListOutput, err error) {
	defer s.observe("share_list", &err)

	capsuleID := strings.TrimSpace(input.CapsuleID)
	if capsuleID == "" {
		return nil, errors.NewValidationField("capsule_id", "is required")
	}

	c, err := s.get(ctx, capsuleID)
	if err != nil {
		return nil, err
	}
	if c.SenderID != input.CallerID {
		return nil, errors.NewForbidden("only the sender can list shares")
	}

	sctx, cancel := s.storeCtx(ctx)
	tokens, err := s.store.ListShares(sctx, capsuleID, input.CallerID)
	cancel()
	if err != nil {
		return nil, err
	}

	now := s.now()
	items := make([]ShareView, 0, len(tokens))
	for _, t := range tokens {
		items = append(items, s.shareView(t, now))
	}
	return &ShareListOutput{Items: items}, nil
}

// ShareRevokeInput contains parameters for the ShareRevoke operation.
type ShareRevokeInput struct {
	CallerID string
	ShareID  string
}

// ShareRevokeOutput contains the result of the ShareRevoke operation.
type ShareRevokeOutput struct {
	ID        string `json:"id"`
	RevokedAt int64  `json:"revoked_at"`
	Already   bool   `json:"already_revoked,omitempty"`
}

// ShareRevoke disables a token. Revoking twice keeps the first revocation time.
func (s *Service) ShareRevoke(ctx context.Context, input ShareRevokeInput) (_ *ShareRevokeOutput, err error) {
	defer s.observe("share_revoke", &err)

	id := strings.TrimSpace(input.ShareID)
	if id == "" {
		return nil, errors.NewValidationField("share_id", "is required")
	}

	t, err := s.getShare(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.OwnerID != input.CallerID {
		return nil, errors.NewForbidden("only the issuer can revoke this share")
	}
	if t.Revoked() {
		return &ShareRevokeOutput{ID: id, RevokedAt: *t.RevokedAt, Already: true}, nil
	}

	now := s.now()
	sctx, cancel := s.storeCtx(ctx)
	ok, err := s.store.RevokeShareCAS(sctx, id, input.CallerID, now)
	cancel()
	if err != nil {
		return nil, err
	}
	if ok {
		return &ShareRevokeOutput{ID: id, RevokedAt: now}, nil
	}

	t, err = s.getShare(ctx, id)
	if err != nil {
		return nil, err
	}
	if !t.Revoked() {
		return nil, errors.NewConflict("share changed concurrently; retry")
	}
	return &ShareRevokeOutput{ID: id, RevokedAt: *t.RevokedAt, Already: true}, nil
}

func (s *Service) getShare(ctx context.Context, id string) (*share.Token, error) {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	return s.store.GetShareByID(sctx, id)
}

// ShareResolve is the public, unauthenticated lookup behind a share URL.
// Unknown, malformed, revoked and expired tokens, and tokens of withdrawn
// capsules, all produce the same SHARE_NOT_FOUND.
func (s *Service) ShareResolve(ctx context.Context, token string) (_ *share.Projection, err error) {
	defer s.observe("share_resolve", &err)
	defer func() {
		result := "ok"
		if err != nil {
			result = "not_found"
			if !errors.Is(err, errors.ErrNotFound) {
				result = "error"
			}
		}
		metrics.ShareResolves.WithLabelValues(result).Inc()
	}()

	if !share.WellFormed(token) {
		return nil, errors.NewShareNotFound()
	}

	now := s.now()

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	t, err := s.store.GetShareByToken(sctx, token)
	if err != nil {
		return nil, err
	}
	if !t.Active(now) {
		return nil, errors.NewShareNotFound()
	}

	c, err := s.store.GetCapsule(sctx, t.LetterID, false)
	if errors.Is(err, errors.ErrNotFound) {
		return nil, errors.NewShareNotFound()
	}
	if err != nil {
		return nil, err
	}

	p := share.Project(t, c.Title, c.Theme, now)
	return &p, nil
}
