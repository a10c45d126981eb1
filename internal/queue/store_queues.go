package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// InsertQueue persists q and assigns its ID.
func (q *queries) InsertQueue(ctx context.Context, queue *Queue) error {
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO queues (project_id, name, description, max_parallel_items, is_active, processing_timeout_seconds, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		queue.ProjectID,
		queue.Name,
		nullableString(queue.Description),
		queue.MaxParallelItems,
		boolToInt(queue.IsActive),
		int64(queue.ProcessingTimeout/time.Second),
		FormatTime(queue.CreatedAt),
		FormatTime(queue.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert queue: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("queue id: %w", err)
	}
	queue.ID = id
	return nil
}

// GetQueue fetches a queue by id, returning ErrNotFound when absent.
func (q *queries) GetQueue(ctx context.Context, id int64) (*Queue, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+queueColumns+` FROM queues WHERE id = ?`, id)
	queue, err := scanQueue(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: queue %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get queue: %w", err)
	}
	return queue, nil
}

// ListQueuesByProject returns a project's queues ordered by creation.
func (q *queries) ListQueuesByProject(ctx context.Context, projectID string) ([]*Queue, error) {
	return q.listQueues(ctx, `SELECT `+queueColumns+` FROM queues WHERE project_id = ? ORDER BY created_at, id`, projectID)
}

// ListQueues returns every queue.
func (q *queries) ListQueues(ctx context.Context) ([]*Queue, error) {
	return q.listQueues(ctx, `SELECT `+queueColumns+` FROM queues ORDER BY project_id, created_at, id`)
}

func (q *queries) listQueues(ctx context.Context, query string, args ...any) ([]*Queue, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list queues: %w", err)
	}
	defer rows.Close()

	var queues []*Queue
	for rows.Next() {
		queue, err := scanQueue(rows)
		if err != nil {
			return nil, fmt.Errorf("scan queue: %w", err)
		}
		queues = append(queues, queue)
	}
	return queues, rows.Err()
}

// UpdateQueue writes the mutable queue columns.
func (q *queries) UpdateQueue(ctx context.Context, queue *Queue) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE queues
		 SET name = ?, description = ?, max_parallel_items = ?, is_active = ?, processing_timeout_seconds = ?, updated_at = ?
		 WHERE id = ?`,
		queue.Name,
		nullableString(queue.Description),
		queue.MaxParallelItems,
		boolToInt(queue.IsActive),
		int64(queue.ProcessingTimeout/time.Second),
		FormatTime(queue.UpdatedAt),
		queue.ID,
	)
	if err != nil {
		return fmt.Errorf("update queue: %w", err)
	}
	ok, err := rowsAffected(res)
	if err != nil {
		return fmt.Errorf("update queue: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: queue %d", ErrNotFound, queue.ID)
	}
	return nil
}

// DeleteQueue removes a queue; its items go with it through the foreign key cascade.
func (q *queries) DeleteQueue(ctx context.Context, id int64) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM queues WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete queue: %w", err)
	}
	ok, err := rowsAffected(res)
	if err != nil {
		return fmt.Errorf("delete queue: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: queue %d", ErrNotFound, id)
	}
	return nil
}
