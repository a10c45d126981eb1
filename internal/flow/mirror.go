package flow

import (
	"context"
	"fmt"
	"time"

	"flowq/internal/queue"
)

// Mirror projects queue item state onto the entity the item references. Every
// call receives the handle of the transaction that changed the item so the
// item row and the entity row commit together. Entities without a table
// (chat, prompt) and entity rows that no longer exist are ignored.
type Mirror interface {
	OnEnqueue(ctx context.Context, db queue.DBTX, item *queue.Item, position int) error
	OnClaim(ctx context.Context, db queue.DBTX, item *queue.Item) error
	OnComplete(ctx context.Context, db queue.DBTX, item *queue.Item) error
	OnFail(ctx context.Context, db queue.DBTX, item *queue.Item) error
	OnCancel(ctx context.Context, db queue.DBTX, item *queue.Item) error
	OnRequeue(ctx context.Context, db queue.DBTX, item *queue.Item, position int) error
	// OnClear detaches the entity from queueID. A zero queueID detaches it
	// from whatever queue it points at.
	OnClear(ctx context.Context, db queue.DBTX, ref queue.ItemRef, queueID int64) error
	// ClearQueue detaches every entity pointing at queueID.
	ClearQueue(ctx context.Context, db queue.DBTX, queueID int64) error
	// Renumber rewrites queue_position for every entity queued in queueID.
	Renumber(ctx context.Context, db queue.DBTX, queueID int64) error
}

// entityTables dispatches item types to the table carrying their queue_* columns.
var entityTables = map[queue.ItemType]string{
	queue.ItemTypeTicket: "tickets",
	queue.ItemTypeTask:   "tasks",
}

// HasEntity reports whether items of type t mirror onto an entity table.
func HasEntity(t queue.ItemType) bool {
	_, ok := entityTables[t]
	return ok
}

// SQLMirror is the Mirror backed by the tickets and tasks tables.
type SQLMirror struct{}

// NewSQLMirror returns the SQL-backed mirror.
func NewSQLMirror() *SQLMirror {
	return &SQLMirror{}
}

var _ Mirror = (*SQLMirror)(nil)

func (m *SQLMirror) OnEnqueue(ctx context.Context, db queue.DBTX, item *queue.Item, position int) error {
	return m.Project(ctx, db, item, position)
}

func (m *SQLMirror) OnClaim(ctx context.Context, db queue.DBTX, item *queue.Item) error {
	return m.Project(ctx, db, item, 0)
}

func (m *SQLMirror) OnComplete(ctx context.Context, db queue.DBTX, item *queue.Item) error {
	return m.Project(ctx, db, item, 0)
}

func (m *SQLMirror) OnFail(ctx context.Context, db queue.DBTX, item *queue.Item) error {
	return m.Project(ctx, db, item, 0)
}

func (m *SQLMirror) OnCancel(ctx context.Context, db queue.DBTX, item *queue.Item) error {
	return m.Project(ctx, db, item, 0)
}

func (m *SQLMirror) OnRequeue(ctx context.Context, db queue.DBTX, item *queue.Item, position int) error {
	return m.Project(ctx, db, item, position)
}

// Project writes the item's state onto its entity. Position is stored only
// while the item is queued.
func (m *SQLMirror) Project(ctx context.Context, db queue.DBTX, item *queue.Item, position int) error {
	table, ok := entityTables[item.ItemType]
	if !ok {
		return nil
	}
	var pos any
	if item.Status == queue.StatusQueued && position > 0 {
		pos = position
	}
	queuedAt := item.CreatedAt
	_, err := db.ExecContext(ctx,
		`UPDATE `+table+`
		 SET queue_id = ?, queue_position = ?, queue_status = ?, queue_priority = ?, queued_at = ?,
		     queue_started_at = ?, queue_completed_at = ?, queue_agent_id = ?, queue_error_message = ?,
		     estimated_processing_ms = COALESCE(?, estimated_processing_ms),
		     actual_processing_ms = ?, updated_at = ?
		 WHERE id = ?`,
		item.QueueID,
		pos,
		string(item.Status),
		item.Priority,
		queue.NullableTime(&queuedAt),
		queue.NullableTime(item.StartedAt),
		queue.NullableTime(item.CompletedAt),
		nullString(item.AgentID),
		nullString(item.ErrorMessage),
		millis(item.EstimatedProcessingTime),
		millis(item.ActualProcessingTime),
		queue.FormatTime(item.UpdatedAt),
		item.ItemID,
	)
	if err != nil {
		return fmt.Errorf("project %s onto %s: %w", item.Ref(), table, err)
	}
	return nil
}

func (m *SQLMirror) OnClear(ctx context.Context, db queue.DBTX, ref queue.ItemRef, queueID int64) error {
	table, ok := entityTables[ref.Type]
	if !ok {
		return nil
	}
	query := `UPDATE ` + table + ` SET ` + clearAssignments + ` WHERE id = ?`
	args := []any{ref.ID}
	if queueID != 0 {
		query += ` AND queue_id = ?`
		args = append(args, queueID)
	}
	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("clear %s: %w", ref, err)
	}
	return nil
}

func (m *SQLMirror) ClearQueue(ctx context.Context, db queue.DBTX, queueID int64) error {
	for _, table := range []string{"tickets", "tasks"} {
		if _, err := db.ExecContext(ctx, `UPDATE `+table+` SET `+clearAssignments+` WHERE queue_id = ?`, queueID); err != nil {
			return fmt.Errorf("clear %s for queue %d: %w", table, queueID, err)
		}
	}
	return nil
}

func (m *SQLMirror) Renumber(ctx context.Context, db queue.DBTX, queueID int64) error {
	for itemType, table := range entityTables {
		_, err := db.ExecContext(ctx,
			`UPDATE `+table+`
			 SET queue_position = (
			     SELECT r.pos FROM (
			         SELECT item_type, item_id, ROW_NUMBER() OVER (ORDER BY priority ASC, created_at ASC, id ASC) AS pos
			         FROM queue_items WHERE queue_id = ? AND status = ?
			     ) r
			     WHERE r.item_type = ? AND r.item_id = `+table+`.id
			     LIMIT 1)
			 WHERE queue_id = ? AND queue_status = ?`,
			queueID, string(queue.StatusQueued), string(itemType),
			queueID, string(queue.StatusQueued),
		)
		if err != nil {
			return fmt.Errorf("renumber %s in queue %d: %w", table, queueID, err)
		}
	}
	return nil
}

// Projected is one entity currently pointing at a queue.
type Projected struct {
	Ref   queue.ItemRef
	State QueueState
}

// ListProjected returns every ticket and task whose mirror points at a queue.
func (m *SQLMirror) ListProjected(ctx context.Context, db queue.DBTX) ([]Projected, error) {
	var out []Projected
	for _, itemType := range []queue.ItemType{queue.ItemTypeTicket, queue.ItemTypeTask} {
		table := entityTables[itemType]
		rows, err := db.QueryContext(ctx, `SELECT id, `+queueStateColumns+` FROM `+table+` WHERE queue_id IS NOT NULL ORDER BY id`)
		if err != nil {
			return nil, fmt.Errorf("list projected %s: %w", table, err)
		}
		for rows.Next() {
			var (
				id    int64
				state stateColumns
			)
			if err := rows.Scan(append([]any{&id}, state.dest()...)...); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan projected %s: %w", table, err)
			}
			out = append(out, Projected{Ref: queue.ItemRef{Type: itemType, ID: id}, State: state.state()})
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

const clearAssignments = `queue_id = NULL, queue_position = NULL, queue_status = NULL, queue_priority = NULL,
	queued_at = NULL, queue_started_at = NULL, queue_completed_at = NULL, queue_agent_id = NULL,
	queue_error_message = NULL`

func millis(d time.Duration) any {
	if ms := d.Milliseconds(); ms > 0 {
		return ms
	}
	return nil
}
