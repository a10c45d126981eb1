package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"flowq/internal/config"
	"flowq/internal/flow"
	"flowq/internal/logging"
	"flowq/internal/queue"
	"flowq/internal/telemetry"
)

const deadLetterReason = "retry limit reached"

// Service runs maintenance against the queue store.
type Service struct {
	store           *queue.Store
	mirror          *flow.SQLMirror
	clock           queue.Clock
	logger          *slog.Logger
	interval        time.Duration
	retention       time.Duration
	deadLetterAfter int
	staleAfter      time.Duration
}

// Option customizes a Service.
type Option func(*Service)

// WithClock replaces the wall clock.
func WithClock(clock queue.Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// New builds a cleanup service from the [cleanup] and [supervisor] config sections.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger, opts ...Option) (*Service, error) {
	if cfg == nil || store == nil {
		return nil, errors.New("cleanup requires config and store")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Service{
		store:           store,
		mirror:          flow.NewSQLMirror(),
		clock:           queue.SystemClock{},
		logger:          logging.NewComponentLogger(logger, "cleanup"),
		interval:        cfg.CleanupInterval(),
		retention:       cfg.Retention(),
		deadLetterAfter: cfg.Cleanup.DeadLetterAfter,
		staleAfter:      cfg.ProcessingTimeout(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ClearCompletedItems deletes completed and cancelled items of a queue that
// finished more than olderThan ago. Entity mirrors keep their last state.
func (s *Service) ClearCompletedItems(ctx context.Context, queueID int64, olderThan time.Duration) (int64, error) {
	if olderThan < 0 {
		return 0, fmt.Errorf("%w: age must not be negative", queue.ErrInvalidArgument)
	}
	if _, err := s.store.GetQueue(ctx, queueID); err != nil {
		return 0, err
	}
	removed, err := s.store.PurgeFinished(ctx, queueID, s.clock.Now().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		telemetry.ItemsPurged.Add(float64(removed))
		s.log(ctx).Info("finished items cleared",
			logging.Int64(logging.FieldQueueID, queueID),
			logging.Int64("removed", removed),
		)
	}
	return removed, nil
}

// ResetQueue returns every in_progress item of a queue to queued without
// counting a retry. Items keep their original place in the queue.
func (s *Service) ResetQueue(ctx context.Context, queueID int64) (int, error) {
	reset := 0
	err := s.store.WithTx(ctx, func(tx *queue.Tx) error {
		reset = 0
		if _, err := tx.GetQueue(ctx, queueID); err != nil {
			return err
		}
		running, err := tx.ListItems(ctx, queueID, queue.StatusInProgress)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		for _, item := range running {
			ok, err := tx.ReleaseItem(ctx, item.ID, nil, false, now)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			released, err := tx.GetItem(ctx, item.ID)
			if err != nil {
				return err
			}
			if err := flow.Sync(ctx, tx, s.mirror, released, true); err != nil {
				return err
			}
			reset++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if reset > 0 {
		logging.WarnWithContext(s.log(ctx), "queue reset", "queue_reset",
			logging.Int64(logging.FieldQueueID, queueID),
			logging.Int("items", reset),
			logging.String(logging.FieldImpact, "agents holding these items lost their claim"),
		)
	}
	return reset, nil
}

// MoveFailedToDeadLetter flags failed items whose retry count reached
// cleanup.dead_letter_after. A zero queueID covers every queue.
func (s *Service) MoveFailedToDeadLetter(ctx context.Context, queueID int64) (int64, error) {
	if queueID != 0 {
		if _, err := s.store.GetQueue(ctx, queueID); err != nil {
			return 0, err
		}
	}
	moved, err := s.store.MarkDeadLettered(ctx, queueID, s.deadLetterAfter, deadLetterReason, s.clock.Now())
	if err != nil {
		return 0, err
	}
	if moved > 0 {
		telemetry.ItemsDeadLettered.Add(float64(moved))
		logging.WarnWithContext(s.log(ctx), "failed items dead-lettered", "dead_letter",
			logging.Int64(logging.FieldQueueID, queueID),
			logging.Int64("items", moved),
			logging.Int("threshold", s.deadLetterAfter),
			logging.String(logging.FieldErrorHint, "inspect the items and requeue them once the cause is fixed"),
		)
	}
	return moved, nil
}

// RunOnce performs one maintenance pass: retention purge, dead-letter
// demotion and reconciliation.
func (s *Service) RunOnce(ctx context.Context) error {
	var errs []error
	if s.retention > 0 {
		purged, err := s.store.PurgeFinished(ctx, 0, s.clock.Now().Add(-s.retention))
		if err != nil {
			errs = append(errs, err)
		} else if purged > 0 {
			telemetry.ItemsPurged.Add(float64(purged))
			s.log(ctx).Info("retention purge removed items", logging.Int64("removed", purged))
		}
	}
	if s.deadLetterAfter > 0 {
		if _, err := s.MoveFailedToDeadLetter(ctx, 0); err != nil {
			errs = append(errs, err)
		}
	}
	if _, err := s.Reconcile(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Run performs a maintenance pass every cleanup.interval until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	if s.interval <= 0 {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			passCtx := logging.WithCorrelationID(ctx, uuid.NewString())
			if err := s.RunOnce(passCtx); err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				logging.ErrorWithContext(s.log(passCtx), "cleanup pass failed", "cleanup_failed", logging.Error(err))
			}
		}
	}
}

func (s *Service) log(ctx context.Context) *slog.Logger {
	return logging.WithContext(ctx, s.logger)
}
