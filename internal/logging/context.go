package logging

import (
	"context"
	"log/slog"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldQueueID is the standardized structured logging key for queue identifiers.
	FieldQueueID = "queue_id"
	// FieldItemID is the standardized structured logging key for queue item identifiers.
	FieldItemID = "item_id"
	// FieldAgentID is the standardized structured logging key for claiming agents.
	FieldAgentID = "agent_id"
	// FieldEventType classifies a log line for filtering (e.g. item_timeout).
	FieldEventType = "event_type"
	// FieldErrorHint carries the operator's next step for warnings and errors.
	FieldErrorHint = "error_hint"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldCorrelationID is the standardized structured logging key for request or sweep identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldSessionID identifies one daemon process run.
	FieldSessionID = "session_id"
)

type contextKey int

const (
	queueIDKey contextKey = iota
	itemIDKey
	agentIDKey
	correlationIDKey
)

// WithQueueID tags ctx with a queue identifier.
func WithQueueID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, queueIDKey, id)
}

// WithItemID tags ctx with a queue item identifier.
func WithItemID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, itemIDKey, id)
}

// WithAgentID tags ctx with the agent acting on the queue.
func WithAgentID(ctx context.Context, agentID string) context.Context {
	if agentID == "" {
		return ctx
	}
	return context.WithValue(ctx, agentIDKey, agentID)
}

// WithCorrelationID tags ctx with a request or sweep identifier.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationIDKey, id)
}

// CorrelationID returns the correlation identifier stored in ctx, if any.
func CorrelationID(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(correlationIDKey).(string)
	return id, ok && id != ""
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if id, ok := ctx.Value(queueIDKey).(int64); ok {
		fields = append(fields, slog.Int64(FieldQueueID, id))
	}
	if id, ok := ctx.Value(itemIDKey).(int64); ok {
		fields = append(fields, slog.Int64(FieldItemID, id))
	}
	if agent, ok := ctx.Value(agentIDKey).(string); ok {
		fields = append(fields, slog.String(FieldAgentID, agent))
	}
	if id, ok := CorrelationID(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, id))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
