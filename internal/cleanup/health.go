package cleanup

import (
	"context"
	"fmt"
	"time"

	"flowq/internal/queue"
)

// QueueHealth is a diagnostic snapshot of one queue.
type QueueHealth struct {
	QueueID         int64
	IsActive        bool
	Queued          int
	InProgress      int
	Failed          int
	DeadLettered    int
	Stale           int
	OldestQueuedAt  *time.Time
	OldestStartedAt *time.Time
	Issues          []string
}

// Healthy reports whether no issue was found.
func (h QueueHealth) Healthy() bool {
	return len(h.Issues) == 0
}

// GetQueueHealth counts a queue's items, finds in_progress items past their
// processing timeout and lists anything an operator should look at.
func (s *Service) GetQueueHealth(ctx context.Context, queueID int64) (QueueHealth, error) {
	q, err := s.store.GetQueue(ctx, queueID)
	if err != nil {
		return QueueHealth{}, err
	}
	counts, err := s.store.QueueStats(ctx, queueID)
	if err != nil {
		return QueueHealth{}, err
	}
	health := QueueHealth{
		QueueID:      queueID,
		IsActive:     q.IsActive,
		Queued:       counts.Queued,
		InProgress:   counts.InProgress,
		Failed:       counts.Failed,
		DeadLettered: counts.DeadLettered,
	}

	timeout := q.ProcessingTimeout
	if timeout <= 0 {
		timeout = s.staleAfter
	}
	now := s.clock.Now()
	if timeout > 0 {
		if health.Stale, err = s.store.CountStartedBefore(ctx, queueID, now.Add(-timeout)); err != nil {
			return QueueHealth{}, err
		}
	}
	if health.OldestQueuedAt, err = s.store.OldestTimestamp(ctx, queueID, queue.StatusQueued); err != nil {
		return QueueHealth{}, err
	}
	if health.OldestStartedAt, err = s.store.OldestTimestamp(ctx, queueID, queue.StatusInProgress); err != nil {
		return QueueHealth{}, err
	}

	if !q.IsActive && health.Queued > 0 {
		health.Issues = append(health.Issues, fmt.Sprintf("queue is paused with %d queued items", health.Queued))
	}
	if health.Stale > 0 {
		health.Issues = append(health.Issues, fmt.Sprintf("%d in-progress items exceeded the %s processing timeout", health.Stale, timeout))
	}
	if health.Failed > 0 {
		health.Issues = append(health.Issues, fmt.Sprintf("%d failed items can be requeued", health.Failed))
	}
	if health.DeadLettered > 0 {
		health.Issues = append(health.Issues, fmt.Sprintf("%d items are dead-lettered", health.DeadLettered))
	}
	if health.OldestQueuedAt != nil && timeout > 0 && health.InProgress == 0 && q.IsActive && now.Sub(*health.OldestQueuedAt) > timeout {
		health.Issues = append(health.Issues, fmt.Sprintf("oldest queued item has waited %s with no agent claiming", now.Sub(*health.OldestQueuedAt).Round(time.Second)))
	}
	return health, nil
}
