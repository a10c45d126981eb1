package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"flowq/internal/config"
	"flowq/internal/flow"
	"flowq/internal/logging"
	"flowq/internal/queue"
)

// Service owns queue lifecycle, enqueue, claim and completion.
type Service struct {
	cfg    *config.Config
	store  *queue.Store
	mirror flow.Mirror
	clock  queue.Clock
	logger *slog.Logger
}

// Option customizes a Service.
type Option func(*Service)

// WithClock replaces the wall clock, mostly for tests.
func WithClock(clock queue.Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithMirror replaces the SQL mirror.
func WithMirror(mirror flow.Mirror) Option {
	return func(s *Service) {
		if mirror != nil {
			s.mirror = mirror
		}
	}
}

// New constructs a queue service over store.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger, opts ...Option) (*Service, error) {
	if cfg == nil || store == nil {
		return nil, errors.New("scheduler requires config and store")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Service{
		cfg:    cfg,
		store:  store,
		mirror: flow.NewSQLMirror(),
		clock:  queue.SystemClock{},
		logger: logging.NewComponentLogger(logger, "scheduler"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Store exposes the underlying store for read-only callers.
func (s *Service) Store() *queue.Store {
	return s.store
}

func (s *Service) now() time.Time {
	return s.clock.Now().UTC()
}

func (s *Service) log(ctx context.Context) *slog.Logger {
	return logging.WithContext(ctx, s.logger)
}
