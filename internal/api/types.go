package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Queue describes a queue in a transport-friendly format.
type Queue struct {
	ID                       int64  `json:"id"`
	ProjectID                string `json:"projectId"`
	Name                     string `json:"name"`
	Description              string `json:"description,omitempty"`
	MaxParallelItems         int    `json:"maxParallelItems"`
	IsActive                 bool   `json:"isActive"`
	ProcessingTimeoutSeconds int64  `json:"processingTimeoutSeconds,omitempty"`
	CreatedAt                string `json:"createdAt,omitempty"`
	UpdatedAt                string `json:"updatedAt,omitempty"`
}

// QueueItem describes a queue entry in a transport-friendly format.
type QueueItem struct {
	ID                 int64  `json:"id"`
	QueueID            int64  `json:"queueId"`
	ItemType           string `json:"itemType"`
	ItemID             int64  `json:"itemId"`
	Title              string `json:"title"`
	Description        string `json:"description,omitempty"`
	Priority           int    `json:"priority"`
	Status             string `json:"status"`
	AgentID            string `json:"agentId,omitempty"`
	ErrorMessage       string `json:"errorMessage,omitempty"`
	Output             string `json:"output,omitempty"`
	EstimatedSeconds   int64  `json:"estimatedProcessingSeconds,omitempty"`
	ActualMilliseconds int64  `json:"actualProcessingMs,omitempty"`
	RetryCount         int    `json:"retryCount"`
	DeadLettered       bool   `json:"deadLettered"`
	DeadLetteredAt     string `json:"deadLetteredAt,omitempty"`
	DeadLetterReason   string `json:"deadLetterReason,omitempty"`
	StartedAt          string `json:"startedAt,omitempty"`
	CompletedAt        string `json:"completedAt,omitempty"`
	CreatedAt          string `json:"createdAt,omitempty"`
	UpdatedAt          string `json:"updatedAt,omitempty"`
}

// QueueStats is the per-status count payload.
type QueueStats struct {
	Total        int `json:"total"`
	Queued       int `json:"queued"`
	InProgress   int `json:"inProgress"`
	Completed    int `json:"completed"`
	Failed       int `json:"failed"`
	Cancelled    int `json:"cancelled"`
	DeadLettered int `json:"deadLettered"`
}

// QueueHealth is the diagnostic payload for one queue.
type QueueHealth struct {
	QueueID         int64    `json:"queueId"`
	Healthy         bool     `json:"healthy"`
	IsActive        bool     `json:"isActive"`
	Queued          int      `json:"queued"`
	InProgress      int      `json:"inProgress"`
	Failed          int      `json:"failed"`
	DeadLettered    int      `json:"deadLettered"`
	Stale           int      `json:"stale"`
	OldestQueuedAt  string   `json:"oldestQueuedAt,omitempty"`
	OldestStartedAt string   `json:"oldestStartedAt,omitempty"`
	Issues          []string `json:"issues"`
}

// QueueListResponse wraps a collection of queues.
type QueueListResponse struct {
	Queues []Queue `json:"queues"`
}

// ItemListResponse wraps a collection of queue items.
type ItemListResponse struct {
	Items []QueueItem `json:"items"`
}

// ItemEnvelope carries an item, or null when a claim found nothing or a move
// took the entity out of every queue.
type ItemEnvelope struct {
	Item *QueueItem `json:"item"`
}

// CountResponse reports how many rows an operation touched.
type CountResponse struct {
	Count int64 `json:"count"`
}

// CreateQueueRequest is the body of POST /api/projects/{project}/queues.
type CreateQueueRequest struct {
	Name                     string `json:"name"`
	Description              string `json:"description"`
	MaxParallelItems         int    `json:"maxParallelItems"`
	ProcessingTimeoutSeconds int64  `json:"processingTimeoutSeconds"`
}

// UpdateQueueRequest is the body of PATCH /api/queues/{id}; absent fields are unchanged.
type UpdateQueueRequest struct {
	Name                     *string `json:"name"`
	Description              *string `json:"description"`
	MaxParallelItems         *int    `json:"maxParallelItems"`
	ProcessingTimeoutSeconds *int64  `json:"processingTimeoutSeconds"`
}

// EnqueueRequest is the body of POST /api/queues/{id}/items.
type EnqueueRequest struct {
	Type                       string `json:"type"`
	ReferenceID                int64  `json:"referenceId"`
	Title                      string `json:"title"`
	Description                string `json:"description"`
	Priority                   int    `json:"priority"`
	EstimatedProcessingSeconds int64  `json:"estimatedProcessingSeconds"`
}

// ClaimRequest is the body of POST /api/queues/{id}/claim.
type ClaimRequest struct {
	AgentID string `json:"agentId"`
}

// CompleteRequest is the body of POST /api/items/{id}/complete.
type CompleteRequest struct {
	Success bool   `json:"success"`
	Output  string `json:"output"`
	Error   string `json:"error"`
	AgentID string `json:"agentId"`
}

// MoveRequest is the body of POST /api/move. A zero or absent target removes
// the entity from its queue.
type MoveRequest struct {
	Type          string `json:"type"`
	ReferenceID   int64  `json:"referenceId"`
	TargetQueueID int64  `json:"targetQueueId"`
}

// TicketEnqueueRequest is the body of POST /api/tickets/{id}/enqueue.
type TicketEnqueueRequest struct {
	QueueID  int64 `json:"queueId"`
	Priority int   `json:"priority"`
}

// ErrorResponse is returned with every non-2xx status.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}
