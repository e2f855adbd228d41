package ops

import (
	"context"
	"strings"

	"github.com/hpungsan/keepsake/internal/capsule"
	"github.com/hpungsan/keepsake/internal/db"
	"github.com/hpungsan/keepsake/internal/errors"
)

// Box selects which side of the caller's capsules to list.
type Box string

const (
	BoxInbox  Box = "inbox"  // addressed to the caller
	BoxOutbox Box = "outbox" // sent by the caller
)

// ListInput contains parameters for the List operation.
type ListInput struct {
	CallerID         string
	Box              Box    // default: inbox
	Status           string // optional: sealed, ready, opened, expired
	Limit            int    // default: 20, max: 100
	Offset           int    // default: 0
	IncludeWithdrawn bool   // outbox only
}

// ListOutput contains the result of the List operation.
type ListOutput struct {
	Items      []CapsuleView `json:"items"`
	Pagination Pagination    `json:"pagination"`
	Box        Box           `json:"box"`
	Sort       string        `json:"sort"`
}

// List returns one page of the caller's inbox or outbox, newest first.
// Withdrawn capsules never appear in an inbox.
func (s *Service) List(ctx context.Context, input ListInput) (_ *ListOutput, err error) {
	defer s.observe("list", &err)

	caller := strings.TrimSpace(input.CallerID)
	if caller == "" {
		return nil, errors.NewValidationField("caller_id", "is required")
	}

	box := input.Box
	if box == "" {
		box = BoxInbox
	}

	now := s.now()
	limit, offset := clampPage(input.Limit, input.Offset)

	filter := db.ListFilter{Now: now, Limit: limit, Offset: offset}
	switch box {
	case BoxInbox:
		filter.RecipientID = caller
	case BoxOutbox:
		filter.SenderID = caller
		filter.IncludeWithdrawn = input.IncludeWithdrawn
	default:
		return nil, errors.NewValidationField("box", "must be one of: inbox, outbox")
	}

	if st := capsule.Normalize(input.Status); st != "" {
		parsed, err := capsule.ParseStatus(st)
		if err != nil {
			return nil, errors.NewValidationField("status",
				"must be one of: "+strings.Join(capsule.StatusNames(), ", "))
		}
		if parsed == capsule.Expired && box == BoxInbox {
			return emptyList(box, limit, offset), nil
		}
		if parsed == capsule.Expired {
			filter.IncludeWithdrawn = true
		}
		filter.Status = parsed
	}

	sctx, cancel := s.storeCtx(ctx)
	items, total, err := s.store.ListCapsules(sctx, filter)
	cancel()
	if err != nil {
		return nil, err
	}

	views := make([]CapsuleView, 0, len(items))
	for _, c := range items {
		if box == BoxInbox {
			s.revealIfDue(ctx, c, now)
			views = append(views, recipientView(c, nil, now))
			continue
		}
		views = append(views, senderView(c, nil, now))
	}

	return &ListOutput{
		Items: views,
		Pagination: Pagination{
			Limit:   limit,
			Offset:  offset,
			HasMore: offset+len(views) < total,
			Total:   total,
		},
		Box:  box,
		Sort: "created_at_desc",
	}, nil
}

func emptyList(box Box, limit, offset int) *ListOutput {
	return &ListOutput{
		Items:      []CapsuleView{},
		Pagination: Pagination{Limit: limit, Offset: offset},
		Box:        box,
		Sort:       "created_at_desc",
	}
}
