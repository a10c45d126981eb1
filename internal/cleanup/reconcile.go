package cleanup

import (
	"context"
	"fmt"

	"flowq/internal/flow"
	"flowq/internal/logging"
	"flowq/internal/queue"
)

// ReconcileResult summarizes one reconciliation pass.
type ReconcileResult struct {
	Checked     int
	Violations  int
	Reprojected int
	Cleared     int
	Pruned      int
}

// Reconcile compares ticket and task mirrors with queue items and repairs
// mismatches: mirrors are re-projected from the item that owns them or
// cleared when no item backs them. Queued and finished items whose entity row
// is gone are deleted; in_progress items are left for their agent. Each
// mismatch is logged as a consistency violation rather than returned.
func (s *Service) Reconcile(ctx context.Context) (ReconcileResult, error) {
	var (
		result     ReconcileResult
		violations []error
	)
	err := s.store.WithTx(ctx, func(tx *queue.Tx) error {
		result, violations = ReconcileResult{}, nil
		violate := func(format string, args ...any) {
			result.Violations++
			violations = append(violations, fmt.Errorf("%w: "+format, append([]any{queue.ErrConsistencyViolation}, args...)...))
		}
		entities := flow.NewEntities(tx.DB())
		touched := make(map[int64]struct{})

		projected, err := s.mirror.ListProjected(ctx, tx.DB())
		if err != nil {
			return err
		}
		for _, p := range projected {
			result.Checked++
			latest, err := tx.LatestItemForRef(ctx, p.State.QueueID, p.Ref)
			if err != nil {
				return err
			}
			if latest == nil {
				violate("%s points at queue %d without an item", p.Ref, p.State.QueueID)
				if err := s.mirror.OnClear(ctx, tx.DB(), p.Ref, p.State.QueueID); err != nil {
					return err
				}
				result.Cleared++
				touched[p.State.QueueID] = struct{}{}
				continue
			}
			if latest.Status != p.State.Status || latest.AgentID != p.State.AgentID {
				violate("%s mirrors %s but item %d is %s", p.Ref, p.State.Status, latest.ID, latest.Status)
				if err := flow.Sync(ctx, tx, s.mirror, latest, latest.RetryCount > 0); err != nil {
					return err
				}
				result.Reprojected++
			}
		}

		var prune []int64
		for _, itemType := range []queue.ItemType{queue.ItemTypeTicket, queue.ItemTypeTask} {
			items, err := tx.ListItemsByType(ctx, itemType)
			if err != nil {
				return err
			}
			for _, item := range items {
				state, exists, err := entities.State(ctx, item.Ref())
				if err != nil {
					return err
				}
				if !exists {
					if item.Status != queue.StatusInProgress {
						prune = append(prune, item.ID)
						touched[item.QueueID] = struct{}{}
					}
					continue
				}
				if item.Status != queue.StatusQueued && item.Status != queue.StatusInProgress {
					continue
				}
				if state.QueueID != item.QueueID || state.Status != item.Status {
					violate("%s has %s item %d in queue %d but mirrors queue %d", item.Ref(), item.Status, item.ID, item.QueueID, state.QueueID)
					if err := flow.Sync(ctx, tx, s.mirror, item, item.RetryCount > 0); err != nil {
						return err
					}
					result.Reprojected++
				}
			}
		}
		if len(prune) > 0 {
			removed, err := tx.DeleteItems(ctx, prune...)
			if err != nil {
				return err
			}
			result.Pruned = int(removed)
		}
		for queueID := range touched {
			if err := s.mirror.Renumber(ctx, tx.DB(), queueID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return ReconcileResult{}, err
	}

	logger := s.log(ctx)
	for _, v := range violations {
		logging.WarnWithContext(logger, "queue mirror inconsistency repaired", "consistency_violation",
			logging.Error(v),
			logging.String(logging.FieldErrorHint, "a writer bypassed the queue service; check for manual database edits"),
		)
	}
	if result.Pruned > 0 {
		logger.Info("dangling items pruned", logging.Int("items", result.Pruned))
	}
	return result, nil
}
