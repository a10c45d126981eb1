package flow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"flowq/internal/queue"
)

// TicketStatus is the workflow status of a ticket, independent of its queue state.
type TicketStatus string

const (
	TicketOpen       TicketStatus = "open"
	TicketInProgress TicketStatus = "in_progress"
	TicketClosed     TicketStatus = "closed"
)

// TaskStatus is the workflow status of a task, independent of its queue state.
type TaskStatus string

const (
	TaskTodo       TaskStatus = "todo"
	TaskInProgress TaskStatus = "in_progress"
	TaskDone       TaskStatus = "done"
	TaskCancelled  TaskStatus = "cancelled"
)

// IsTerminal reports whether the task no longer needs processing.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskDone || s == TaskCancelled
}

// QueueState is the denormalized queue projection carried by tickets and tasks.
// QueueID is zero when the entity is not in any queue.
type QueueState struct {
	QueueID                 int64
	Position                int
	Status                  queue.Status
	Priority                int
	QueuedAt                *time.Time
	StartedAt               *time.Time
	CompletedAt             *time.Time
	AgentID                 string
	ErrorMessage            string
	EstimatedProcessingTime time.Duration
	ActualProcessingTime    time.Duration
}

// InQueue reports whether the entity currently points at a queue.
func (s QueueState) InQueue() bool {
	return s.QueueID != 0
}

// Ticket is a flow-enabled work entity owned by a project.
type Ticket struct {
	ID          int64
	ProjectID   string
	Title       string
	Description string
	Status      TicketStatus
	Queue       QueueState
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Ref returns the queue reference for the ticket.
func (t Ticket) Ref() queue.ItemRef {
	return queue.ItemRef{Type: queue.ItemTypeTicket, ID: t.ID}
}

// Task is a flow-enabled unit of work belonging to a ticket.
type Task struct {
	ID          int64
	TicketID    int64
	Title       string
	Description string
	Status      TaskStatus
	Queue       QueueState
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Ref returns the queue reference for the task.
func (t Task) Ref() queue.ItemRef {
	return queue.ItemRef{Type: queue.ItemTypeTask, ID: t.ID}
}

// Entities reads and writes ticket and task rows through db, which may be a
// pooled handle or an open transaction.
type Entities struct {
	db queue.DBTX
}

// NewEntities binds an entity repository to db.
func NewEntities(db queue.DBTX) *Entities {
	return &Entities{db: db}
}

const queueStateColumns = "queue_id, queue_position, queue_status, queue_priority, queued_at, queue_started_at, queue_completed_at, queue_agent_id, queue_error_message, estimated_processing_ms, actual_processing_ms"

const ticketColumns = "id, project_id, title, description, status, " + queueStateColumns + ", created_at, updated_at"

const taskColumns = "id, ticket_id, title, description, status, " + queueStateColumns + ", created_at, updated_at"

// CreateTicket inserts a ticket and assigns its ID.
func (e *Entities) CreateTicket(ctx context.Context, ticket *Ticket, now time.Time) error {
	if strings.TrimSpace(ticket.Title) == "" {
		return fmt.Errorf("%w: ticket title is required", queue.ErrInvalidArgument)
	}
	if ticket.Status == "" {
		ticket.Status = TicketOpen
	}
	ticket.CreatedAt, ticket.UpdatedAt = now, now
	res, err := e.db.ExecContext(ctx,
		`INSERT INTO tickets (project_id, title, description, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		ticket.ProjectID, ticket.Title, nullString(ticket.Description), string(ticket.Status),
		queue.FormatTime(now), queue.FormatTime(now),
	)
	if err != nil {
		return fmt.Errorf("insert ticket: %w", err)
	}
	if ticket.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("ticket id: %w", err)
	}
	return nil
}

// CreateTask inserts a task under an existing ticket and assigns its ID.
func (e *Entities) CreateTask(ctx context.Context, task *Task, now time.Time) error {
	if strings.TrimSpace(task.Title) == "" {
		return fmt.Errorf("%w: task title is required", queue.ErrInvalidArgument)
	}
	if _, err := e.GetTicket(ctx, task.TicketID); err != nil {
		return err
	}
	if task.Status == "" {
		task.Status = TaskTodo
	}
	task.CreatedAt, task.UpdatedAt = now, now
	res, err := e.db.ExecContext(ctx,
		`INSERT INTO tasks (ticket_id, title, description, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		task.TicketID, task.Title, nullString(task.Description), string(task.Status),
		queue.FormatTime(now), queue.FormatTime(now),
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	if task.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("task id: %w", err)
	}
	return nil
}

// GetTicket fetches a ticket, returning queue.ErrNotFound when absent.
func (e *Entities) GetTicket(ctx context.Context, id int64) (*Ticket, error) {
	row := e.db.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = ?`, id)
	ticket, err := scanTicket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: ticket %d", queue.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get ticket: %w", err)
	}
	return ticket, nil
}

// GetTask fetches a task, returning queue.ErrNotFound when absent.
func (e *Entities) GetTask(ctx context.Context, id int64) (*Task, error) {
	row := e.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: task %d", queue.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

// ListTasks returns a ticket's tasks in creation order.
func (e *Entities) ListTasks(ctx context.Context, ticketID int64) ([]*Task, error) {
	rows, err := e.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE ticket_id = ? ORDER BY id`, ticketID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// ListOpenTasks returns a ticket's tasks that still need processing.
func (e *Entities) ListOpenTasks(ctx context.Context, ticketID int64) ([]*Task, error) {
	tasks, err := e.ListTasks(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	open := tasks[:0]
	for _, task := range tasks {
		if !task.Status.IsTerminal() {
			open = append(open, task)
		}
	}
	return open, nil
}

// ListTickets returns a project's tickets in creation order.
func (e *Entities) ListTickets(ctx context.Context, projectID string) ([]*Ticket, error) {
	rows, err := e.db.QueryContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE project_id = ? ORDER BY id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	defer rows.Close()

	var tickets []*Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ticket: %w", err)
		}
		tickets = append(tickets, ticket)
	}
	return tickets, rows.Err()
}

// SetTaskStatus changes a task's workflow status.
func (e *Entities) SetTaskStatus(ctx context.Context, id int64, status TaskStatus, now time.Time) error {
	switch status {
	case TaskTodo, TaskInProgress, TaskDone, TaskCancelled:
	default:
		return fmt.Errorf("%w: unknown task status %q", queue.ErrInvalidArgument, status)
	}
	res, err := e.db.ExecContext(ctx, `UPDATE tasks SET status = ?, updated_at = ? WHERE id = ?`, string(status), queue.FormatTime(now), id)
	if err != nil {
		return fmt.Errorf("set task status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: task %d", queue.ErrNotFound, id)
	}
	return nil
}

// DeleteTicket removes a ticket and, through the foreign key, its tasks.
// Queue items referencing them are left for reconciliation to prune.
func (e *Entities) DeleteTicket(ctx context.Context, id int64) error {
	return e.deleteRow(ctx, "tickets", id)
}

// DeleteTask removes a task.
func (e *Entities) DeleteTask(ctx context.Context, id int64) error {
	return e.deleteRow(ctx, "tasks", id)
}

func (e *Entities) deleteRow(ctx context.Context, table string, id int64) error {
	res, err := e.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete from %s: %w", table, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s %d", queue.ErrNotFound, strings.TrimSuffix(table, "s"), id)
	}
	return nil
}

// Exists reports whether the entity behind ref has a row. Types without an
// entity table always exist.
func (e *Entities) Exists(ctx context.Context, ref queue.ItemRef) (bool, error) {
	table, ok := entityTables[ref.Type]
	if !ok {
		return true, nil
	}
	var found int
	err := e.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM `+table+` WHERE id = ?`, ref.ID).Scan(&found)
	if err != nil {
		return false, fmt.Errorf("check %s: %w", ref, err)
	}
	return found > 0, nil
}

// Title returns a display title for the entity behind ref, or "" when it has none.
func (e *Entities) Title(ctx context.Context, ref queue.ItemRef) (string, error) {
	table, ok := entityTables[ref.Type]
	if !ok {
		return "", nil
	}
	var title string
	err := e.db.QueryRowContext(ctx, `SELECT title FROM `+table+` WHERE id = ?`, ref.ID).Scan(&title)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", queue.ErrNotFound, ref)
	}
	if err != nil {
		return "", fmt.Errorf("load %s title: %w", ref, err)
	}
	return title, nil
}

// State returns the queue mirror of the entity behind ref. ok is false for
// types without an entity table and for missing rows.
func (e *Entities) State(ctx context.Context, ref queue.ItemRef) (QueueState, bool, error) {
	table, ok := entityTables[ref.Type]
	if !ok {
		return QueueState{}, false, nil
	}
	var state stateColumns
	err := e.db.QueryRowContext(ctx, `SELECT `+queueStateColumns+` FROM `+table+` WHERE id = ?`, ref.ID).Scan(state.dest()...)
	if errors.Is(err, sql.ErrNoRows) {
		return QueueState{}, false, nil
	}
	if err != nil {
		return QueueState{}, false, fmt.Errorf("load %s queue state: %w", ref, err)
	}
	return state.state(), true, nil
}

type rowScanner interface{ Scan(dest ...any) error }

func scanTicket(row rowScanner) (*Ticket, error) {
	var (
		ticket      Ticket
		description sql.NullString
		status      string
		state       stateColumns
		created     string
		updated     string
	)
	dest := append([]any{&ticket.ID, &ticket.ProjectID, &ticket.Title, &description, &status}, state.dest()...)
	dest = append(dest, &created, &updated)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	ticket.Description = description.String
	ticket.Status = TicketStatus(status)
	ticket.Queue = state.state()
	ticket.CreatedAt, _ = queue.ParseTime(created)
	ticket.UpdatedAt, _ = queue.ParseTime(updated)
	return &ticket, nil
}

func scanTask(row rowScanner) (*Task, error) {
	var (
		task        Task
		description sql.NullString
		status      string
		state       stateColumns
		created     string
		updated     string
	)
	dest := append([]any{&task.ID, &task.TicketID, &task.Title, &description, &status}, state.dest()...)
	dest = append(dest, &created, &updated)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	task.Description = description.String
	task.Status = TaskStatus(status)
	task.Queue = state.state()
	task.CreatedAt, _ = queue.ParseTime(created)
	task.UpdatedAt, _ = queue.ParseTime(updated)
	return &task, nil
}

// stateColumns holds the nullable queue_* columns while scanning.
type stateColumns struct {
	queueID      sql.NullInt64
	position     sql.NullInt64
	status       sql.NullString
	priority     sql.NullInt64
	queuedAt     sql.NullString
	startedAt    sql.NullString
	completedAt  sql.NullString
	agentID      sql.NullString
	errorMessage sql.NullString
	estimatedMs  sql.NullInt64
	actualMs     sql.NullInt64
}

func (c *stateColumns) dest() []any {
	return []any{
		&c.queueID, &c.position, &c.status, &c.priority, &c.queuedAt, &c.startedAt,
		&c.completedAt, &c.agentID, &c.errorMessage, &c.estimatedMs, &c.actualMs,
	}
}

func (c *stateColumns) state() QueueState {
	return QueueState{
		QueueID:                 c.queueID.Int64,
		Position:                int(c.position.Int64),
		Status:                  queue.Status(c.status.String),
		Priority:                int(c.priority.Int64),
		QueuedAt:                parseTime(c.queuedAt),
		StartedAt:               parseTime(c.startedAt),
		CompletedAt:             parseTime(c.completedAt),
		AgentID:                 c.agentID.String,
		ErrorMessage:            c.errorMessage.String,
		EstimatedProcessingTime: time.Duration(c.estimatedMs.Int64) * time.Millisecond,
		ActualProcessingTime:    time.Duration(c.actualMs.Int64) * time.Millisecond,
	}
}

func parseTime(value sql.NullString) *time.Time {
	if !value.Valid {
		return nil
	}
	t, err := queue.ParseTime(value.String)
	if err != nil {
		return nil
	}
	return &t
}

func nullString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
