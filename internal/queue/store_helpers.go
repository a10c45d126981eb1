package queue

import (
	"database/sql"
	"errors"
	"time"
)

// timeLayout is fixed width so that text comparison in SQL orders like time.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const queueColumns = "id, project_id, name, description, max_parallel_items, is_active, processing_timeout_seconds, created_at, updated_at"

const itemColumns = "id, queue_id, item_type, item_id, title, description, priority, status, agent_id, error_message, output, estimated_processing_ms, actual_processing_ms, retry_count, dead_lettered, dead_lettered_at, dead_letter_reason, started_at, completed_at, created_at, updated_at"

// itemOrder is the service order: lower priority first, then FIFO.
const itemOrder = "priority ASC, created_at ASC, id ASC"

type scanner interface{ Scan(dest ...any) error }

func scanQueue(row scanner) (*Queue, error) {
	var (
		q              Queue
		description    sql.NullString
		isActive       int
		timeoutSeconds int64
		createdRaw     string
		updatedRaw     string
	)
	if err := row.Scan(
		&q.ID,
		&q.ProjectID,
		&q.Name,
		&description,
		&q.MaxParallelItems,
		&isActive,
		&timeoutSeconds,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	q.Description = description.String
	q.IsActive = isActive != 0
	q.ProcessingTimeout = time.Duration(timeoutSeconds) * time.Second
	q.CreatedAt, _ = parseTimeString(createdRaw)
	q.UpdatedAt, _ = parseTimeString(updatedRaw)
	return &q, nil
}

func scanItem(row scanner) (*Item, error) {
	var (
		item           Item
		itemType       string
		status         string
		description    sql.NullString
		agentID        sql.NullString
		errorMessage   sql.NullString
		output         sql.NullString
		estimatedMs    sql.NullInt64
		actualMs       sql.NullInt64
		deadLettered   int
		deadLetteredAt sql.NullString
		deadReason     sql.NullString
		startedAt      sql.NullString
		completedAt    sql.NullString
		createdRaw     string
		updatedRaw     string
	)
	if err := row.Scan(
		&item.ID,
		&item.QueueID,
		&itemType,
		&item.ItemID,
		&item.Title,
		&description,
		&item.Priority,
		&status,
		&agentID,
		&errorMessage,
		&output,
		&estimatedMs,
		&actualMs,
		&item.RetryCount,
		&deadLettered,
		&deadLetteredAt,
		&deadReason,
		&startedAt,
		&completedAt,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	item.ItemType = ItemType(itemType)
	item.Status = Status(status)
	item.Description = description.String
	item.AgentID = agentID.String
	item.ErrorMessage = errorMessage.String
	item.Output = output.String
	item.EstimatedProcessingTime = time.Duration(estimatedMs.Int64) * time.Millisecond
	item.ActualProcessingTime = time.Duration(actualMs.Int64) * time.Millisecond
	item.DeadLettered = deadLettered != 0
	item.DeadLetteredAt = parseNullableTime(deadLetteredAt)
	item.DeadLetterReason = deadReason.String
	item.StartedAt = parseNullableTime(startedAt)
	item.CompletedAt = parseNullableTime(completedAt)
	item.CreatedAt, _ = parseTimeString(createdRaw)
	item.UpdatedAt, _ = parseTimeString(updatedRaw)
	return &item, nil
}

func collectItems(rows *sql.Rows) ([]*Item, error) {
	defer rows.Close()
	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// FormatTime renders t in the stored timestamp layout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return FormatTime(*value)
}

func nullableMillis(d time.Duration) any {
	if d <= 0 {
		return nil
	}
	return d.Milliseconds()
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseNullableTime(value sql.NullString) *time.Time {
	if !value.Valid {
		return nil
	}
	t, err := parseTimeString(value.String)
	if err != nil {
		return nil
	}
	return &t
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(timeLayout, value); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}

func statusArgs(statuses []Status) []any {
	args := make([]any, len(statuses))
	for i, status := range statuses {
		args[i] = string(status)
	}
	return args
}

func rowsAffected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ParseTime parses a timestamp stored by FormatTime.
func ParseTime(value string) (time.Time, error) {
	return parseTimeString(value)
}

// NullableTime converts an optional time into a column argument.
func NullableTime(value *time.Time) any {
	return nullableTime(value)
}
