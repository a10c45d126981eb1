package scheduler

import (
	"context"
	"fmt"
	"strings"

	"flowq/internal/flow"
	"flowq/internal/logging"
	"flowq/internal/queue"
	"flowq/internal/telemetry"
)

// GetNextItem claims the head of a queue for agentID. It returns nil without
// an error when the queue is paused, already runs max_parallel_items items,
// or has nothing queued.
func (s *Service) GetNextItem(ctx context.Context, queueID int64, agentID string) (*queue.Item, error) {
	agentID = strings.TrimSpace(agentID)
	if agentID == "" {
		return nil, fmt.Errorf("%w: agent id is required", queue.ErrInvalidArgument)
	}
	attempts := s.cfg.Queue.ClaimRetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	var (
		claimed   *queue.Item
		conflicts int
	)
	err := s.store.WithTx(ctx, func(tx *queue.Tx) error {
		claimed, conflicts = nil, 0
		q, err := tx.GetQueue(ctx, queueID)
		if err != nil {
			return err
		}
		if !q.IsActive {
			return nil
		}
		running, err := tx.CountByStatus(ctx, queueID, queue.StatusInProgress)
		if err != nil {
			return err
		}
		if running >= q.MaxParallelItems {
			return nil
		}

		now := s.now()
		for attempt := 0; attempt < attempts; attempt++ {
			head, err := tx.NextQueued(ctx, queueID)
			if err != nil {
				return err
			}
			if head == nil {
				return nil
			}
			ok, err := tx.ClaimItem(ctx, head.ID, agentID, now)
			if err != nil {
				return err
			}
			if !ok {
				conflicts++
				continue
			}
			item, err := tx.GetItem(ctx, head.ID)
			if err != nil {
				return err
			}
			if err := flow.Sync(ctx, tx, s.mirror, item, false); err != nil {
				return err
			}
			claimed = item
			return nil
		}
		return nil
	})
	if conflicts > 0 {
		telemetry.ClaimConflicts.Add(float64(conflicts))
	}
	if err != nil {
		return nil, err
	}
	logger := s.log(ctx).With(logging.Int64(logging.FieldQueueID, queueID), logging.String(logging.FieldAgentID, agentID))
	if claimed == nil {
		if conflicts >= attempts {
			logging.WarnWithContext(logger, "claim retries exhausted", "claim_conflict",
				logging.Int("attempts", attempts),
				logging.String(logging.FieldErrorHint, "raise queue.claim_retry_attempts if agents contend heavily"),
			)
		}
		return nil, nil
	}
	telemetry.ItemsClaimed.Inc()
	logger.Info("item claimed",
		logging.Int64(logging.FieldItemID, claimed.ID),
		logging.String("ref", claimed.Ref().String()),
		logging.Int("priority", claimed.Priority),
	)
	return claimed, nil
}

// Result is an agent's report for a claimed item.
type Result struct {
	Success bool
	Output  string
	Error   string
	// AgentID, when set, must match the agent holding the item.
	AgentID string
}

// CompleteItem finishes an in_progress item as completed or failed.
func (s *Service) CompleteItem(ctx context.Context, itemID int64, result Result) (*queue.Item, error) {
	done := queue.Completion{
		Status:  queue.StatusCompleted,
		Output:  result.Output,
		AgentID: strings.TrimSpace(result.AgentID),
	}
	if !result.Success {
		done.Status = queue.StatusFailed
		done.ErrorMessage = strings.TrimSpace(result.Error)
		if done.ErrorMessage == "" {
			done.ErrorMessage = "failed without error message"
		}
	}

	var finished *queue.Item
	err := s.store.WithTx(ctx, func(tx *queue.Tx) error {
		current, err := tx.GetItem(ctx, itemID)
		if err != nil {
			return err
		}
		ok, err := tx.FinishItem(ctx, itemID, done, s.now())
		if err != nil {
			return err
		}
		if !ok {
			if current.Status == queue.StatusInProgress && done.AgentID != "" {
				return fmt.Errorf("%w: item %d is held by agent %q", queue.ErrInvalidStateTransition, itemID, current.AgentID)
			}
			if current.Status == queue.StatusFailed && current.ErrorMessage == queue.TimeoutMessage {
				return &queue.TimeoutError{ItemID: itemID}
			}
			return fmt.Errorf("%w: item %d is %s, not in_progress", queue.ErrInvalidStateTransition, itemID, current.Status)
		}
		if finished, err = tx.GetItem(ctx, itemID); err != nil {
			return err
		}
		return flow.Sync(ctx, tx, s.mirror, finished, false)
	})
	if err != nil {
		return nil, err
	}

	logger := s.log(ctx).With(
		logging.Int64(logging.FieldQueueID, finished.QueueID),
		logging.Int64(logging.FieldItemID, finished.ID),
		logging.String(logging.FieldAgentID, finished.AgentID),
	)
	if result.Success {
		telemetry.ItemsCompleted.Inc()
		logger.Info("item completed", logging.Duration("processing_time", finished.ActualProcessingTime))
	} else {
		telemetry.ItemsFailed.Inc()
		logging.WarnWithContext(logger, "item failed", "item_failed",
			logging.String("error_message", finished.ErrorMessage),
			logging.Int("retry_count", finished.RetryCount),
		)
	}
	return finished, nil
}

// CancelItem cancels a queued or in_progress item.
func (s *Service) CancelItem(ctx context.Context, itemID int64) (*queue.Item, error) {
	var cancelled *queue.Item
	err := s.store.WithTx(ctx, func(tx *queue.Tx) error {
		current, err := tx.GetItem(ctx, itemID)
		if err != nil {
			return err
		}
		ok, err := tx.CancelItem(ctx, itemID, s.now())
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: item %d is %s", queue.ErrInvalidStateTransition, itemID, current.Status)
		}
		if cancelled, err = tx.GetItem(ctx, itemID); err != nil {
			return err
		}
		return flow.Sync(ctx, tx, s.mirror, cancelled, false)
	})
	if err != nil {
		return nil, err
	}
	telemetry.ItemsCancelled.Inc()
	s.log(ctx).Info("item cancelled",
		logging.Int64(logging.FieldQueueID, cancelled.QueueID),
		logging.Int64(logging.FieldItemID, cancelled.ID),
	)
	return cancelled, nil
}
