// Package supervisor recovers in_progress items whose agent stopped reporting.
package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"flowq/internal/config"
	"flowq/internal/flow"
	"flowq/internal/logging"
	"flowq/internal/queue"
	"flowq/internal/telemetry"
)

// Supervisor sweeps queues for items that exceeded their processing timeout.
type Supervisor struct {
	store      *queue.Store
	mirror     flow.Mirror
	clock      queue.Clock
	logger     *slog.Logger
	interval   time.Duration
	timeout    time.Duration
	maxRetries int
}

// Option customizes a Supervisor.
type Option func(*Supervisor)

// WithClock replaces the wall clock.
func WithClock(clock queue.Clock) Option {
	return func(s *Supervisor) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithMirror replaces the SQL mirror.
func WithMirror(mirror flow.Mirror) Option {
	return func(s *Supervisor) {
		if mirror != nil {
			s.mirror = mirror
		}
	}
}

// New builds a supervisor from the [supervisor] config section.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger, opts ...Option) (*Supervisor, error) {
	if cfg == nil || store == nil {
		return nil, errors.New("supervisor requires config and store")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Supervisor{
		store:      store,
		mirror:     flow.NewSQLMirror(),
		clock:      queue.SystemClock{},
		logger:     logging.NewComponentLogger(logger, "supervisor"),
		interval:   cfg.SupervisorInterval(),
		timeout:    cfg.ProcessingTimeout(),
		maxRetries: cfg.Supervisor.MaxRetries,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SweepResult summarizes one sweep.
type SweepResult struct {
	Scanned  int
	Retried  int
	TimedOut int
	// Skipped counts items that finished or were reclaimed between the scan
	// and the update.
	Skipped int
}

// Sweep retries or fails every in_progress item older than its queue's
// processing timeout. An item is only touched while it still carries the
// started_at observed by the scan, so a completion that lands first wins.
func (s *Supervisor) Sweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	queues, err := s.store.ListQueues(ctx)
	if err != nil {
		return result, err
	}
	logger := logging.WithContext(ctx, s.logger)
	now := s.clock.Now().UTC()

	var errs []error
	for _, q := range queues {
		timeout := q.ProcessingTimeout
		if timeout <= 0 {
			timeout = s.timeout
		}
		if timeout <= 0 {
			continue
		}
		stale, err := s.store.ListStartedBefore(ctx, q.ID, now.Add(-timeout))
		if err != nil {
			logging.WarnWithContext(logger, "stale item scan failed", "supervisor_scan_failed",
				logging.Int64(logging.FieldQueueID, q.ID),
				logging.Error(err),
			)
			errs = append(errs, err)
			continue
		}
		for _, item := range stale {
			result.Scanned++
			outcome, err := s.recover(ctx, item, now)
			if err != nil {
				logging.WarnWithContext(logger, "timed out item recovery failed", "supervisor_recover_failed",
					logging.Int64(logging.FieldQueueID, item.QueueID),
					logging.Int64(logging.FieldItemID, item.ID),
					logging.Error(err),
				)
				errs = append(errs, err)
				continue
			}
			itemLogger := logger.With(
				logging.Int64(logging.FieldQueueID, item.QueueID),
				logging.Int64(logging.FieldItemID, item.ID),
				logging.String(logging.FieldAgentID, item.AgentID),
				logging.Duration("timeout", timeout),
			)
			switch outcome {
			case outcomeRetried:
				result.Retried++
				telemetry.ItemsRetried.Inc()
				itemLogger.Info("timed out item requeued", logging.Int("retry_count", item.RetryCount+1))
			case outcomeFailed:
				result.TimedOut++
				telemetry.ItemsTimedOut.Inc()
				logging.WarnWithContext(itemLogger, "timed out item failed", "item_timeout",
					logging.Error(&queue.TimeoutError{ItemID: item.ID, Timeout: timeout}),
					logging.Int("retry_count", item.RetryCount),
					logging.String(logging.FieldImpact, "item will not be retried automatically"),
				)
			default:
				result.Skipped++
			}
		}
	}
	return result, errors.Join(errs...)
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeRetried
	outcomeFailed
)

func (s *Supervisor) recover(ctx context.Context, stale *queue.Item, now time.Time) (outcome, error) {
	if stale.StartedAt == nil {
		return outcomeSkipped, nil
	}
	result := outcomeSkipped
	err := s.store.WithTx(ctx, func(tx *queue.Tx) error {
		result = outcomeSkipped
		var (
			ok  bool
			err error
		)
		retry := stale.RetryCount < s.maxRetries
		if retry {
			ok, err = tx.ReleaseItem(ctx, stale.ID, stale.StartedAt, true, now)
		} else {
			ok, err = tx.FailTimedOut(ctx, stale.ID, *stale.StartedAt, now)
		}
		if err != nil || !ok {
			return err
		}
		item, err := tx.GetItem(ctx, stale.ID)
		if err != nil {
			return err
		}
		if err := flow.Sync(ctx, tx, s.mirror, item, retry); err != nil {
			return err
		}
		if retry {
			result = outcomeRetried
		} else {
			result = outcomeFailed
		}
		return nil
	})
	return result, err
}

// Run sweeps every interval until ctx is cancelled. Sweep errors are logged
// and the next tick tries again.
func (s *Supervisor) Run(ctx context.Context) {
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
			sweepCtx := logging.WithCorrelationID(ctx, uuid.NewString())
			result, err := s.Sweep(sweepCtx)
			logger := logging.WithContext(sweepCtx, s.logger)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					logger.Info("supervisor shutting down, sweep cancelled")
					return
				}
				logging.ErrorWithContext(logger, "supervisor sweep failed", "supervisor_sweep_failed", logging.Error(err))
				continue
			}
			if result.Retried > 0 || result.TimedOut > 0 {
				logger.Info("supervisor sweep recovered items",
					logging.Int("retried", result.Retried),
					logging.Int("timed_out", result.TimedOut),
					logging.Int("skipped", result.Skipped),
				)
			}
		}
	}
}
