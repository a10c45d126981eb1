package api

import (
	"time"

	"flowq/internal/cleanup"
	"flowq/internal/queue"
)

// FromQueue converts a queue record to its API representation.
func FromQueue(q *queue.Queue) Queue {
	if q == nil {
		return Queue{}
	}
	return Queue{
		ID:                       q.ID,
		ProjectID:                q.ProjectID,
		Name:                     q.Name,
		Description:              q.Description,
		MaxParallelItems:         q.MaxParallelItems,
		IsActive:                 q.IsActive,
		ProcessingTimeoutSeconds: int64(q.ProcessingTimeout / time.Second),
		CreatedAt:                formatTime(q.CreatedAt),
		UpdatedAt:                formatTime(q.UpdatedAt),
	}
}

// FromQueues converts a list of queues.
func FromQueues(queues []*queue.Queue) []Queue {
	out := make([]Queue, 0, len(queues))
	for _, q := range queues {
		out = append(out, FromQueue(q))
	}
	return out
}

// FromQueueItem converts a queue item record to its API representation.
func FromQueueItem(item *queue.Item) QueueItem {
	if item == nil {
		return QueueItem{}
	}
	return QueueItem{
		ID:                 item.ID,
		QueueID:            item.QueueID,
		ItemType:           string(item.ItemType),
		ItemID:             item.ItemID,
		Title:              item.Title,
		Description:        item.Description,
		Priority:           item.Priority,
		Status:             string(item.Status),
		AgentID:            item.AgentID,
		ErrorMessage:       item.ErrorMessage,
		Output:             item.Output,
		EstimatedSeconds:   int64(item.EstimatedProcessingTime / time.Second),
		ActualMilliseconds: item.ActualProcessingTime.Milliseconds(),
		RetryCount:         item.RetryCount,
		DeadLettered:       item.DeadLettered,
		DeadLetteredAt:     formatTimePtr(item.DeadLetteredAt),
		DeadLetterReason:   item.DeadLetterReason,
		StartedAt:          formatTimePtr(item.StartedAt),
		CompletedAt:        formatTimePtr(item.CompletedAt),
		CreatedAt:          formatTime(item.CreatedAt),
		UpdatedAt:          formatTime(item.UpdatedAt),
	}
}

// FromQueueItems converts a list of items.
func FromQueueItems(items []*queue.Item) []QueueItem {
	out := make([]QueueItem, 0, len(items))
	for _, item := range items {
		out = append(out, FromQueueItem(item))
	}
	return out
}

// FromStatusCounts converts per-status counts.
func FromStatusCounts(c queue.StatusCounts) QueueStats {
	return QueueStats{
		Total:        c.Total,
		Queued:       c.Queued,
		InProgress:   c.InProgress,
		Completed:    c.Completed,
		Failed:       c.Failed,
		Cancelled:    c.Cancelled,
		DeadLettered: c.DeadLettered,
	}
}

// FromQueueHealth converts a cleanup health snapshot.
func FromQueueHealth(h cleanup.QueueHealth) QueueHealth {
	issues := h.Issues
	if issues == nil {
		issues = []string{}
	}
	return QueueHealth{
		QueueID:         h.QueueID,
		Healthy:         h.Healthy(),
		IsActive:        h.IsActive,
		Queued:          h.Queued,
		InProgress:      h.InProgress,
		Failed:          h.Failed,
		DeadLettered:    h.DeadLettered,
		Stale:           h.Stale,
		OldestQueuedAt:  formatTimePtr(h.OldestQueuedAt),
		OldestStartedAt: formatTimePtr(h.OldestStartedAt),
		Issues:          issues,
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}
