package ops

import (
	"context"
	"strings"

	"github.com/hpungsan/keepsake/internal/capsule"
	"github.com/hpungsan/keepsake/internal/errors"
	"github.com/hpungsan/keepsake/internal/metrics"
)

// WithdrawInput contains parameters for the Withdraw operation.
type WithdrawInput struct {
	CallerID string
	ID       string
}

// WithdrawOutput contains the result of the Withdraw operation.
type WithdrawOutput struct {
	ID          string `json:"id"`
	Withdrawn   bool   `json:"withdrawn"`
	WithdrawnAt int64  `json:"withdrawn_at"`
	Already     bool   `json:"already_withdrawn,omitempty"`
}

// Withdraw retracts an unopened capsule. Withdrawing twice is a no-op that
// reports the original withdrawal time.
func (s *Service) Withdraw(ctx context.Context, input WithdrawInput) (_ *WithdrawOutput, err error) {
	defer s.observe("withdraw", &err)

	id := strings.TrimSpace(input.ID)
	if id == "" {
		return nil, errors.NewValidationField("id", "is required")
	}

	now := s.now()

	c, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := capsule.CheckWithdraw(c, input.CallerID); err != nil {
		return nil, err
	}
	if c.Withdrawn() {
		return withdrawn(c, true), nil
	}

	sctx, cancel := s.storeCtx(ctx)
	ok, err := s.store.WithdrawCAS(sctx, id, input.CallerID, now)
	cancel()
	if err != nil {
		return nil, err
	}
	if ok {
		metrics.Transitions.WithLabelValues("withdraw", "request").Inc()
		s.log.Debug().Str("capsule_id", id).Msg("capsule withdrawn")
		return &WithdrawOutput{ID: id, Withdrawn: true, WithdrawnAt: now}, nil
	}

	metrics.CASLost.WithLabelValues("withdraw").Inc()
	c, err = s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := capsule.CheckWithdraw(c, input.CallerID); err != nil {
		return nil, err
	}
	if c.Withdrawn() {
		return withdrawn(c, true), nil
	}
	return nil, errors.NewConflict("capsule changed concurrently; retry")
}

func withdrawn(c *capsule.Capsule, already bool) *WithdrawOutput {
	return &WithdrawOutput{ID: c.ID, Withdrawn: true, WithdrawnAt: *c.DeletedAt, Already: already}
}
