package ops

import (
	"context"
	"fmt"

	"github.com/hpungsan/keepsake/internal/errors"
	"github.com/hpungsan/keepsake/internal/metrics"
)

// PurgeInput contains parameters for the Purge operation.
type PurgeInput struct {
	OlderThanDays *int // optional, only purge if withdrawn more than N days ago
}

// PurgeOutput contains the result of the Purge operation.
type PurgeOutput struct {
	Purged  int    `json:"purged"`
	Message string `json:"message"`
}

// Purge permanently deletes withdrawn capsules along with their hints and
// share tokens. Without OlderThanDays every withdrawn capsule goes.
func (s *Service) Purge(ctx context.Context, input PurgeInput) (_ *PurgeOutput, err error) {
	defer s.observe("purge", &err)

	now := s.now()
	before := now + 1
	if input.OlderThanDays != nil {
		if *input.OlderThanDays < 0 {
			return nil, errors.NewValidationField("older_than_days", "must not be negative")
		}
		before = now - int64(*input.OlderThanDays)*86400
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	count, err := s.store.PurgeWithdrawn(sctx, before)
	if err != nil {
		return nil, err
	}
	metrics.Purged.Add(float64(count))

	return &PurgeOutput{
		Purged:  count,
		Message: formatPurgeMessage(count, input.OlderThanDays),
	}, nil
}

// formatPurgeMessage creates a human-readable message for the purge result.
func formatPurgeMessage(count int, olderThanDays *int) string {
	if count == 0 {
		return "No withdrawn capsules to purge"
	}

	capsuleWord := "capsule"
	if count > 1 {
		capsuleWord = "capsules"
	}

	msg := fmt.Sprintf("Permanently deleted %d withdrawn %s", count, capsuleWord)

	if olderThanDays != nil {
		msg += fmt.Sprintf(" (withdrawn more than %d days ago)", *olderThanDays)
	}

	return msg
}
