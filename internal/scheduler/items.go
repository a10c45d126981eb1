package scheduler

import (
	"context"
	"fmt"

	"flowq/internal/flow"
	"flowq/internal/logging"
	"flowq/internal/queue"
	"flowq/internal/telemetry"
)

// GetItem returns an item or queue.ErrNotFound.
func (s *Service) GetItem(ctx context.Context, id int64) (*queue.Item, error) {
	return s.store.GetItem(ctx, id)
}

// ListItems returns a queue's items in service order, optionally filtered by status.
func (s *Service) ListItems(ctx context.Context, queueID int64, statuses ...queue.Status) ([]*queue.Item, error) {
	if _, err := s.store.GetQueue(ctx, queueID); err != nil {
		return nil, err
	}
	return s.store.ListItems(ctx, queueID, statuses...)
}

// RemoveItem deletes an item in any status. The entity mirror falls back to
// the entity's previous item in the same queue, or is cleared when none is left.
func (s *Service) RemoveItem(ctx context.Context, id int64) error {
	var removed *queue.Item
	err := s.store.WithTx(ctx, func(tx *queue.Tx) error {
		item, err := tx.GetItem(ctx, id)
		if err != nil {
			return err
		}
		if _, err := tx.DeleteItem(ctx, id); err != nil {
			return err
		}
		removed = item
		return flow.Resync(ctx, tx, s.mirror, item.QueueID, item.Ref())
	})
	if err != nil {
		return err
	}
	s.log(ctx).Info("item removed",
		logging.Int64(logging.FieldQueueID, removed.QueueID),
		logging.Int64(logging.FieldItemID, removed.ID),
		logging.String("status", string(removed.Status)),
	)
	return nil
}

// MoveItem moves the entity's queued item to targetQueueID, keeping its
// title, description, priority and estimate. The moved item joins the end of
// its priority band in the target. A zero targetQueueID takes the entity out
// of every queue. Moving a ticket never moves its tasks.
func (s *Service) MoveItem(ctx context.Context, ref queue.ItemRef, targetQueueID int64) (*queue.Item, error) {
	itemType, ok := queue.ParseItemType(string(ref.Type))
	if !ok {
		return nil, fmt.Errorf("%w: unknown item type %q", queue.ErrInvalidArgument, ref.Type)
	}
	ref.Type = itemType

	var moved *queue.Item
	err := s.store.WithTx(ctx, func(tx *queue.Tx) error {
		moved = nil
		active, err := tx.ActiveItemsForRef(ctx, ref)
		if err != nil {
			return err
		}
		var queued []*queue.Item
		for _, item := range active {
			if item.Status == queue.StatusQueued {
				queued = append(queued, item)
			}
		}
		if len(queued) == 0 {
			return fmt.Errorf("%w: %s has no queued item to move", queue.ErrInvalidStateTransition, ref)
		}
		var target *queue.Queue
		if targetQueueID != 0 {
			if target, err = tx.GetQueue(ctx, targetQueueID); err != nil {
				return err
			}
			if len(queued) == 1 && queued[0].QueueID == targetQueueID {
				moved = queued[0]
				return nil
			}
		}

		template := queued[0]
		sources := make(map[int64]struct{}, len(queued))
		ids := make([]int64, 0, len(queued))
		for _, item := range queued {
			ids = append(ids, item.ID)
			sources[item.QueueID] = struct{}{}
		}
		if _, err := tx.DeleteItems(ctx, ids...); err != nil {
			return err
		}

		if target == nil {
			if err := s.mirror.OnClear(ctx, tx.DB(), ref, 0); err != nil {
				return err
			}
		} else {
			now := s.now()
			moved = &queue.Item{
				QueueID:                 target.ID,
				ItemType:                ref.Type,
				ItemID:                  ref.ID,
				Title:                   template.Title,
				Description:             template.Description,
				Priority:                template.Priority,
				Status:                  queue.StatusQueued,
				EstimatedProcessingTime: template.EstimatedProcessingTime,
				RetryCount:              template.RetryCount,
				CreatedAt:               now,
				UpdatedAt:               now,
			}
			if err := tx.InsertItem(ctx, moved); err != nil {
				return err
			}
			if err := flow.Sync(ctx, tx, s.mirror, moved, false); err != nil {
				return err
			}
			delete(sources, target.ID)
		}
		for queueID := range sources {
			if err := s.mirror.Renumber(ctx, tx.DB(), queueID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger := s.log(ctx).With(logging.String("ref", ref.String()))
	if moved == nil {
		logger.Info("item removed from queue")
	} else {
		logger.Info("item moved",
			logging.Int64(logging.FieldQueueID, moved.QueueID),
			logging.Int64(logging.FieldItemID, moved.ID),
		)
	}
	return moved, nil
}

// RequeueItem returns a failed, dead-lettered or cancelled item to queued and
// counts the retry. It is rejected while the entity has another queued or
// in_progress item.
func (s *Service) RequeueItem(ctx context.Context, id int64) (*queue.Item, error) {
	var requeued *queue.Item
	err := s.store.WithTx(ctx, func(tx *queue.Tx) error {
		current, err := tx.GetItem(ctx, id)
		if err != nil {
			return err
		}
		if current.Status != queue.StatusFailed && current.Status != queue.StatusCancelled {
			return fmt.Errorf("%w: item %d is %s", queue.ErrInvalidStateTransition, id, current.Status)
		}
		active, err := tx.ActiveItemsForRef(ctx, current.Ref())
		if err != nil {
			return err
		}
		if len(active) > 0 {
			return fmt.Errorf("%w: %s already has %s item %d", queue.ErrInvalidStateTransition, current.Ref(), active[0].Status, active[0].ID)
		}
		ok, err := tx.RequeueItem(ctx, id, s.now())
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: item %d changed concurrently", queue.ErrInvalidStateTransition, id)
		}
		if requeued, err = tx.GetItem(ctx, id); err != nil {
			return err
		}
		return flow.Sync(ctx, tx, s.mirror, requeued, true)
	})
	if err != nil {
		return nil, err
	}
	telemetry.ItemsRetried.Inc()
	s.log(ctx).Info("item requeued",
		logging.Int64(logging.FieldQueueID, requeued.QueueID),
		logging.Int64(logging.FieldItemID, requeued.ID),
		logging.Int("retry_count", requeued.RetryCount),
	)
	return requeued, nil
}
