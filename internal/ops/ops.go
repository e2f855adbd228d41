package ops

import (
	"context"
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/hpungsan/keepsake/internal/capsule"
	"github.com/hpungsan/keepsake/internal/clock"
	"github.com/hpungsan/keepsake/internal/config"
	"github.com/hpungsan/keepsake/internal/db"
	"github.com/hpungsan/keepsake/internal/errors"
	"github.com/hpungsan/keepsake/internal/metrics"
)

// Pagination limits
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Pagination contains pagination metadata for list operations.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
	Total   int  `json:"total"`
}

// Connections is the connection-graph collaborator consulted before an
// anonymous capsule is created.
type Connections interface {
	AreMutuallyConnected(ctx context.Context, a, b string) (bool, error)
}

// Service executes capsule and share operations against the store.
// It is safe for concurrent use; it holds no mutable state of its own.
type Service struct {
	store    *db.Store
	cfg      *config.Config
	clock    clock.Clock
	conns    Connections
	notifier Notifier
	log      zerolog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source. Every eligibility comparison in an
// operation uses one reading of this clock.
func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithConnections overrides the connection collaborator. The default is the
// store's connections table.
func WithConnections(c Connections) Option {
	return func(s *Service) { s.conns = c }
}

// WithNotifier sets the notification sink for transition winners.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.log = l }
}

// New returns a Service over store. A nil cfg means defaults.
func New(store *db.Store, cfg *config.Config, opts ...Option) *Service {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	s := &Service{
		store: store,
		cfg:   cfg,
		clock: clock.Real{},
		conns: store,
		log:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.notifier == nil {
		s.notifier = LogNotifier{Log: s.log}
	}
	return s
}

// Config returns the service configuration.
func (s *Service) Config() *config.Config { return s.cfg }

// Now reads the service clock.
func (s *Service) Now() time.Time { return s.clock.Now() }

func (s *Service) now() int64 {
	return s.clock.Now().Unix()
}

// storeCtx bounds a store round-trip. A call that runs past it surfaces as
// UNKNOWN_OUTCOME.
func (s *Service) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if d := s.cfg.StoreTimeout(); d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}

func (s *Service) limits() capsule.Limits {
	return capsule.Limits{
		MaxTitleChars: s.cfg.MaxTitleChars,
		MaxBodyChars:  s.cfg.MaxBodyChars,
	}
}

// observe records a failed operation by error code. Use with a named error
// return: defer s.observe("open", &err).
func (s *Service) observe(op string, errp *error) {
	if errp == nil || *errp == nil {
		return
	}
	code := string(errors.ErrInternal)
	if kErr, ok := errors.As(*errp); ok {
		code = string(kErr.Code)
	}
	metrics.OpErrors.WithLabelValues(op, code).Inc()
	if code == string(errors.ErrInternal) || code == string(errors.ErrUnknownOutcome) {
		s.log.Error().Err(*errp).Str("op", op).Msg("operation failed")
	}
}

// clampPage applies list limit defaults and bounds.
func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	return limit, max(offset, 0)
}

// generateULID generates a new ULID stamped with t.
func generateULID(t time.Time) (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(t), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
