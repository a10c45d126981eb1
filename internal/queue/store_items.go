package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// InsertItem persists a new item and assigns its ID.
func (q *queries) InsertItem(ctx context.Context, item *Item) error {
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO queue_items (
			queue_id, item_type, item_id, title, description, priority, status, agent_id,
			error_message, output, estimated_processing_ms, actual_processing_ms, retry_count,
			started_at, completed_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.QueueID,
		string(item.ItemType),
		item.ItemID,
		item.Title,
		nullableString(item.Description),
		item.Priority,
		string(item.Status),
		nullableString(item.AgentID),
		nullableString(item.ErrorMessage),
		nullableString(item.Output),
		nullableMillis(item.EstimatedProcessingTime),
		nullableMillis(item.ActualProcessingTime),
		item.RetryCount,
		nullableTime(item.StartedAt),
		nullableTime(item.CompletedAt),
		FormatTime(item.CreatedAt),
		FormatTime(item.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert item: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("item id: %w", err)
	}
	item.ID = id
	return nil
}

// GetItem fetches an item by id, returning ErrNotFound when absent.
func (q *queries) GetItem(ctx context.Context, id int64) (*Item, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM queue_items WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: item %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// ListItems returns a queue's items in service order, optionally filtered by status.
func (q *queries) ListItems(ctx context.Context, queueID int64, statuses ...Status) ([]*Item, error) {
	query := `SELECT ` + itemColumns + ` FROM queue_items WHERE queue_id = ?`
	args := []any{queueID}
	if len(statuses) > 0 {
		query += ` AND status IN (` + makePlaceholders(len(statuses)) + `)`
		args = append(args, statusArgs(statuses)...)
	}
	query += ` ORDER BY ` + itemOrder
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return collectItems(rows)
}

// NextQueued returns the head of the queue, or nil when nothing is queued.
func (q *queries) NextQueued(ctx context.Context, queueID int64) (*Item, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM queue_items WHERE queue_id = ? AND status = ? ORDER BY `+itemOrder+` LIMIT 1`,
		queueID, string(StatusQueued),
	)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next queued item: %w", err)
	}
	return item, nil
}

// QueuePosition returns the 1-based service position of a queued item.
func (q *queries) QueuePosition(ctx context.Context, item *Item) (int, error) {
	var ahead int
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM queue_items
		 WHERE queue_id = ? AND status = ?
		   AND (priority < ?
		        OR (priority = ? AND created_at < ?)
		        OR (priority = ? AND created_at = ? AND id < ?))`,
		item.QueueID, string(StatusQueued),
		item.Priority,
		item.Priority, FormatTime(item.CreatedAt),
		item.Priority, FormatTime(item.CreatedAt), item.ID,
	).Scan(&ahead)
	if err != nil {
		return 0, fmt.Errorf("queue position: %w", err)
	}
	return ahead + 1, nil
}

// CountByStatus counts a queue's items in the given status.
func (q *queries) CountByStatus(ctx context.Context, queueID int64, status Status) (int, error) {
	var count int
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM queue_items WHERE queue_id = ? AND status = ?`,
		queueID, string(status),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count %s items: %w", status, err)
	}
	return count, nil
}

// ActiveItemsForRef returns the queued or in_progress items referencing ref across all queues.
func (q *queries) ActiveItemsForRef(ctx context.Context, ref ItemRef) ([]*Item, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM queue_items
		 WHERE item_type = ? AND item_id = ? AND status IN (?, ?)
		 ORDER BY id`,
		string(ref.Type), ref.ID, string(StatusQueued), string(StatusInProgress),
	)
	if err != nil {
		return nil, fmt.Errorf("active items for %s: %w", ref, err)
	}
	return collectItems(rows)
}

// LatestItemForRef returns the item that owns ref's mirror in a queue, or nil:
// a queued or in_progress item when one exists, otherwise the most recently
// finished one. Dead-letter marking does not count as finishing.
func (q *queries) LatestItemForRef(ctx context.Context, queueID int64, ref ItemRef) (*Item, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM queue_items
		 WHERE queue_id = ? AND item_type = ? AND item_id = ?
		 ORDER BY CASE WHEN status IN (?, ?) THEN 0 ELSE 1 END,
		          COALESCE(completed_at, created_at) DESC, id DESC
		 LIMIT 1`,
		queueID, string(ref.Type), ref.ID, string(StatusQueued), string(StatusInProgress),
	)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest item for %s: %w", ref, err)
	}
	return item, nil
}

// ListItemsByType returns every item of one type, oldest first.
func (q *queries) ListItemsByType(ctx context.Context, itemType ItemType) ([]*Item, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM queue_items WHERE item_type = ? ORDER BY id`,
		string(itemType),
	)
	if err != nil {
		return nil, fmt.Errorf("list %s items: %w", itemType, err)
	}
	return collectItems(rows)
}

// ListStartedBefore returns a queue's in_progress items whose started_at precedes cutoff.
func (q *queries) ListStartedBefore(ctx context.Context, queueID int64, cutoff time.Time) ([]*Item, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM queue_items
		 WHERE queue_id = ? AND status = ? AND started_at IS NOT NULL AND started_at < ?
		 ORDER BY started_at, id`,
		queueID, string(StatusInProgress), FormatTime(cutoff),
	)
	if err != nil {
		return nil, fmt.Errorf("list stale items: %w", err)
	}
	return collectItems(rows)
}

// ClaimItem moves a queued item to in_progress for agentID. It reports false
// when another claimant changed the row first.
func (q *queries) ClaimItem(ctx context.Context, id int64, agentID string, now time.Time) (bool, error) {
	ts := FormatTime(now)
	res, err := q.db.ExecContext(ctx,
		`UPDATE queue_items
		 SET status = ?, agent_id = ?, started_at = ?, completed_at = NULL, error_message = NULL, updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(StatusInProgress), agentID, ts, ts, id, string(StatusQueued),
	)
	if err != nil {
		return false, fmt.Errorf("claim item: %w", err)
	}
	return rowsAffected(res)
}

// Completion carries the outcome of an in_progress item.
type Completion struct {
	Status       Status // StatusCompleted or StatusFailed
	Output       string
	ErrorMessage string
	// AgentID, when set, must match the claimant.
	AgentID string
}

// FinishItem moves an in_progress item to a completed or failed status,
// recording the elapsed processing time. It reports false when the item was
// not in_progress (or not held by Completion.AgentID).
func (q *queries) FinishItem(ctx context.Context, id int64, done Completion, now time.Time) (bool, error) {
	if done.Status != StatusCompleted && done.Status != StatusFailed {
		return false, fmt.Errorf("%w: finish with status %q", ErrInvalidArgument, done.Status)
	}
	ts := FormatTime(now)
	query := `UPDATE queue_items
		 SET status = ?, output = ?, error_message = ?, completed_at = ?, updated_at = ?,
		     actual_processing_ms = CAST(ROUND((julianday(?) - julianday(started_at)) * 86400000) AS INTEGER)
		 WHERE id = ? AND status = ?`
	args := []any{
		string(done.Status),
		nullableString(done.Output),
		nullableString(done.ErrorMessage),
		ts, ts, ts,
		id, string(StatusInProgress),
	}
	if done.AgentID != "" {
		query += ` AND agent_id = ?`
		args = append(args, done.AgentID)
	}
	res, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("finish item: %w", err)
	}
	return rowsAffected(res)
}

// CancelItem moves a queued or in_progress item to cancelled.
func (q *queries) CancelItem(ctx context.Context, id int64, now time.Time) (bool, error) {
	ts := FormatTime(now)
	res, err := q.db.ExecContext(ctx,
		`UPDATE queue_items
		 SET status = ?, agent_id = NULL, completed_at = ?, updated_at = ?
		 WHERE id = ? AND status IN (?, ?)`,
		string(StatusCancelled), ts, ts, id, string(StatusQueued), string(StatusInProgress),
	)
	if err != nil {
		return false, fmt.Errorf("cancel item: %w", err)
	}
	return rowsAffected(res)
}

// RequeueItem returns a failed or cancelled item to queued, counting the retry
// and clearing any dead-letter flag.
func (q *queries) RequeueItem(ctx context.Context, id int64, now time.Time) (bool, error) {
	res, err := q.db.ExecContext(ctx,
		`UPDATE queue_items
		 SET status = ?, agent_id = NULL, error_message = NULL, output = NULL, started_at = NULL,
		     completed_at = NULL, actual_processing_ms = NULL, retry_count = retry_count + 1,
		     dead_lettered = 0, dead_lettered_at = NULL, dead_letter_reason = NULL, updated_at = ?
		 WHERE id = ? AND status IN (?, ?)`,
		string(StatusQueued), FormatTime(now), id, string(StatusFailed), string(StatusCancelled),
	)
	if err != nil {
		return false, fmt.Errorf("requeue item: %w", err)
	}
	return rowsAffected(res)
}

// ReleaseItem returns an in_progress item to queued, keeping its priority and
// created_at so it regains its original place. When startedAt is non-nil the
// update only applies if the item still carries that start time. countRetry
// increments retry_count.
func (q *queries) ReleaseItem(ctx context.Context, id int64, startedAt *time.Time, countRetry bool, now time.Time) (bool, error) {
	query := `UPDATE queue_items
		 SET status = ?, agent_id = NULL, started_at = NULL, updated_at = ?, retry_count = retry_count + ?
		 WHERE id = ? AND status = ?`
	args := []any{string(StatusQueued), FormatTime(now), boolToInt(countRetry), id, string(StatusInProgress)}
	if startedAt != nil {
		query += ` AND started_at = ?`
		args = append(args, FormatTime(*startedAt))
	}
	res, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("release item: %w", err)
	}
	return rowsAffected(res)
}

// FailTimedOut fails an in_progress item that still carries startedAt.
func (q *queries) FailTimedOut(ctx context.Context, id int64, startedAt time.Time, now time.Time) (bool, error) {
	ts := FormatTime(now)
	res, err := q.db.ExecContext(ctx,
		`UPDATE queue_items
		 SET status = ?, error_message = ?, completed_at = ?, updated_at = ?
		 WHERE id = ? AND status = ? AND started_at = ?`,
		string(StatusFailed), TimeoutMessage, ts, ts, id, string(StatusInProgress), FormatTime(startedAt),
	)
	if err != nil {
		return false, fmt.Errorf("fail timed out item: %w", err)
	}
	return rowsAffected(res)
}

// SetItemPriority changes the priority of a queued item.
func (q *queries) SetItemPriority(ctx context.Context, id int64, priority int, now time.Time) (bool, error) {
	res, err := q.db.ExecContext(ctx,
		`UPDATE queue_items SET priority = ?, updated_at = ? WHERE id = ? AND status = ?`,
		priority, FormatTime(now), id, string(StatusQueued),
	)
	if err != nil {
		return false, fmt.Errorf("set item priority: %w", err)
	}
	return rowsAffected(res)
}

// DeleteItem removes an item regardless of status.
func (q *queries) DeleteItem(ctx context.Context, id int64) (bool, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM queue_items WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete item: %w", err)
	}
	return rowsAffected(res)
}

// DeleteItems removes the given items and returns how many rows went away.
func (q *queries) DeleteItems(ctx context.Context, ids ...int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	res, err := q.db.ExecContext(ctx, `DELETE FROM queue_items WHERE id IN (`+makePlaceholders(len(ids))+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("delete items: %w", err)
	}
	return res.RowsAffected()
}
