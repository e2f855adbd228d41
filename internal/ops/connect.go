package ops

import (
	"context"
	"strings"

	"github.com/hpungsan/keepsake/internal/errors"
)

// ConnectInput contains parameters for the Connect and Disconnect operations.
type ConnectInput struct {
	CallerID string
	OtherID  string
}

// ConnectOutput reports the connection state after the change.
type ConnectOutput struct {
	UserID  string `json:"user_id"`
	OtherID string `json:"other_id"`
	Mutual  bool   `json:"mutual"`
}

// Connect records that the caller accepts a connection with OtherID. The
// pair is mutual once both sides have connected.
func (s *Service) Connect(ctx context.Context, input ConnectInput) (_ *ConnectOutput, err error) {
	defer s.observe("connect", &err)

	a, b, err := connectPair(input)
	if err != nil {
		return nil, err
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.store.AddConnection(sctx, a, b, s.now()); err != nil {
		return nil, err
	}
	mutual, err := s.store.AreMutuallyConnected(sctx, a, b)
	if err != nil {
		return nil, err
	}
	return &ConnectOutput{UserID: a, OtherID: b, Mutual: mutual}, nil
}

// Disconnect removes the caller's side of a connection. Existing anonymous
// capsules are unaffected; only new ones are checked.
func (s *Service) Disconnect(ctx context.Context, input ConnectInput) (_ *ConnectOutput, err error) {
	defer s.observe("disconnect", &err)

	a, b, err := connectPair(input)
	if err != nil {
		return nil, err
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.store.RemoveConnection(sctx, a, b); err != nil {
		return nil, err
	}
	return &ConnectOutput{UserID: a, OtherID: b, Mutual: false}, nil
}

func connectPair(input ConnectInput) (string, string, error) {
	a := strings.TrimSpace(input.CallerID)
	b := strings.TrimSpace(input.OtherID)
	if a == "" {
		return "", "", errors.NewValidationField("caller_id", "is required")
	}
	if b == "" {
		return "", "", errors.NewValidationField("other_id", "is required")
	}
	if a == b {
		return "", "", errors.NewValidationField("other_id", "cannot connect to yourself")
	}
	return a, b, nil
}
