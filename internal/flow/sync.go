package flow

import (
	"context"

	"flowq/internal/queue"
)

// Sync projects item through m according to its current status and renumbers
// the queue it belongs to. requeued selects OnRequeue over OnEnqueue for
// queued items that returned from a terminal or in_progress state.
func Sync(ctx context.Context, tx *queue.Tx, m Mirror, item *queue.Item, requeued bool) error {
	db := tx.DB()
	var err error
	switch item.Status {
	case queue.StatusQueued:
		position, perr := tx.QueuePosition(ctx, item)
		if perr != nil {
			return perr
		}
		if requeued {
			err = m.OnRequeue(ctx, db, item, position)
		} else {
			err = m.OnEnqueue(ctx, db, item, position)
		}
	case queue.StatusInProgress:
		err = m.OnClaim(ctx, db, item)
	case queue.StatusCompleted:
		err = m.OnComplete(ctx, db, item)
	case queue.StatusFailed:
		err = m.OnFail(ctx, db, item)
	case queue.StatusCancelled:
		err = m.OnCancel(ctx, db, item)
	}
	if err != nil {
		return err
	}
	return m.Renumber(ctx, db, item.QueueID)
}

// Resync re-projects the most recent item for ref in queueID, or detaches the
// entity from that queue when no item is left. Entities pointing at another
// queue are left alone.
func Resync(ctx context.Context, tx *queue.Tx, m Mirror, queueID int64, ref queue.ItemRef) error {
	state, ok, err := NewEntities(tx.DB()).State(ctx, ref)
	if err != nil {
		return err
	}
	if ok && state.InQueue() && state.QueueID != queueID {
		return m.Renumber(ctx, tx.DB(), queueID)
	}
	latest, err := tx.LatestItemForRef(ctx, queueID, ref)
	if err != nil {
		return err
	}
	if latest == nil {
		if err := m.OnClear(ctx, tx.DB(), ref, queueID); err != nil {
			return err
		}
		return m.Renumber(ctx, tx.DB(), queueID)
	}
	return Sync(ctx, tx, m, latest, latest.RetryCount > 0)
}
