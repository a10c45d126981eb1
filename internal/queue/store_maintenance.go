package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// QueueStats counts a queue's items by status. Dead-lettered items are
// reported separately and excluded from Failed.
func (q *queries) QueueStats(ctx context.Context, queueID int64) (StatusCounts, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT status, dead_lettered, COUNT(1) FROM queue_items WHERE queue_id = ? GROUP BY status, dead_lettered`,
		queueID,
	)
	if err != nil {
		return StatusCounts{}, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	var counts StatusCounts
	for rows.Next() {
		var (
			status       Status
			deadLettered int
			count        int
		)
		if err := rows.Scan(&status, &deadLettered, &count); err != nil {
			return StatusCounts{}, err
		}
		counts.Total += count
		switch status {
		case StatusQueued:
			counts.Queued += count
		case StatusInProgress:
			counts.InProgress += count
		case StatusCompleted:
			counts.Completed += count
		case StatusCancelled:
			counts.Cancelled += count
		case StatusFailed:
			if deadLettered != 0 {
				counts.DeadLettered += count
			} else {
				counts.Failed += count
			}
		}
	}
	return counts, rows.Err()
}

// OldestTimestamp returns the earliest created_at of queued items or started_at
// of in_progress items in a queue, or nil when none exist.
func (q *queries) OldestTimestamp(ctx context.Context, queueID int64, status Status) (*time.Time, error) {
	column := "created_at"
	if status == StatusInProgress {
		column = "started_at"
	}
	var raw sql.NullString
	err := q.db.QueryRowContext(ctx,
		`SELECT MIN(`+column+`) FROM queue_items WHERE queue_id = ? AND status = ?`,
		queueID, string(status),
	).Scan(&raw)
	if err != nil {
		return nil, fmt.Errorf("oldest %s item: %w", status, err)
	}
	return parseNullableTime(raw), nil
}

// CountStartedBefore counts a queue's in_progress items started before cutoff.
func (q *queries) CountStartedBefore(ctx context.Context, queueID int64, cutoff time.Time) (int, error) {
	var count int
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM queue_items WHERE queue_id = ? AND status = ? AND started_at < ?`,
		queueID, string(StatusInProgress), FormatTime(cutoff),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count stale items: %w", err)
	}
	return count, nil
}

// PurgeFinished deletes completed and cancelled items whose completed_at is
// older than cutoff. A zero queueID purges every queue.
func (q *queries) PurgeFinished(ctx context.Context, queueID int64, cutoff time.Time) (int64, error) {
	query := `DELETE FROM queue_items WHERE status IN (?, ?) AND completed_at IS NOT NULL AND completed_at < ?`
	args := []any{string(StatusCompleted), string(StatusCancelled), FormatTime(cutoff)}
	if queueID != 0 {
		query += ` AND queue_id = ?`
		args = append(args, queueID)
	}
	res, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("purge finished items: %w", err)
	}
	return res.RowsAffected()
}

// MarkDeadLettered flags failed items whose retry_count reached threshold.
// Status stays failed. A zero queueID applies to every queue.
func (q *queries) MarkDeadLettered(ctx context.Context, queueID int64, threshold int, reason string, now time.Time) (int64, error) {
	query := `UPDATE queue_items
		 SET dead_lettered = 1, dead_lettered_at = ?, dead_letter_reason = ?, updated_at = ?
		 WHERE status = ? AND dead_lettered = 0 AND retry_count >= ?`
	ts := FormatTime(now)
	args := []any{ts, reason, ts, string(StatusFailed), threshold}
	if queueID != 0 {
		query += ` AND queue_id = ?`
		args = append(args, queueID)
	}
	res, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("mark dead-lettered: %w", err)
	}
	return res.RowsAffected()
}

// Stats returns a count of items grouped by status across all queues.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM queue_items GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Health aggregates item state across every queue for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch status {
		case StatusQueued:
			health.Queued += count
		case StatusInProgress:
			health.InProgress += count
		case StatusFailed:
			health.Failed += count
		case StatusCompleted:
			health.Completed += count
		case StatusCancelled:
			health.Cancelled += count
		}
	}
	return health, nil
}

// CheckHealth returns diagnostic information about the queue database.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{DBPath: s.path}

	if s.path == "" {
		return health, errors.New("queue database path is unknown")
	}

	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			health.DatabaseExists = false
			return health, nil
		}
		return health, fmt.Errorf("stat queue database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("queue database path %q is a directory", s.path)
	}
	health.DatabaseExists = true

	if free, err := freeDiskBytes(filepath.Dir(s.path)); err == nil {
		health.FreeBytes = free
	}

	if s.db == nil {
		return health, errors.New("queue database connection unavailable")
	}

	connCtx, cancel := context.WithTimeout(ensureContext(ctx), 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping queue database: %w", err)
	}
	health.DatabaseReadable = true

	rows, err := s.db.QueryContext(connCtx, "SELECT name FROM sqlite_master WHERE type = 'table'")
	if err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("list tables: %w", err)
	}
	present := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			health.Error = err.Error()
			return health, fmt.Errorf("scan table name: %w", err)
		}
		present[name] = struct{}{}
	}
	rows.Close()
	for _, table := range managedTables {
		if _, ok := present[table]; ok {
			health.TablesPresent = append(health.TablesPresent, table)
		} else {
			health.MissingTables = append(health.MissingTables, table)
		}
	}

	if _, ok := present["schema_version"]; ok {
		if version, err := s.schemaVersion(connCtx); err == nil {
			health.SchemaVersion = version
		}
	}
	if _, ok := present["queues"]; ok {
		if err := s.db.QueryRowContext(connCtx, "SELECT COUNT(*) FROM queues").Scan(&health.TotalQueues); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("count queues: %w", err)
		}
	}
	if _, ok := present["queue_items"]; ok {
		if err := s.db.QueryRowContext(connCtx, "SELECT COUNT(*) FROM queue_items").Scan(&health.TotalItems); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("count queue items: %w", err)
		}
	}

	var integrityResult string
	if err := s.db.QueryRowContext(connCtx, "PRAGMA integrity_check").Scan(&integrityResult); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("integrity check: %w", err)
	}
	health.IntegrityCheck = strings.EqualFold(integrityResult, "ok")

	return health, nil
}
