package queue

import (
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle of a queue item.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// TimeoutMessage is the error recorded when the supervisor gives up on an item.
const TimeoutMessage = "timeout"

// DefaultPriority is used when a caller does not choose one. Lower values are served first.
const DefaultPriority = 5

var allStatuses = []Status{
	StatusQueued,
	StatusInProgress,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var terminalStatuses = map[Status]struct{}{
	StatusCompleted: {},
	StatusFailed:    {},
	StatusCancelled: {},
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	normalized = Status(strings.ReplaceAll(string(normalized), "-", "_"))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether no further transition may leave the status
// without an explicit requeue or delete.
func (s Status) IsTerminal() bool {
	_, ok := terminalStatuses[s]
	return ok
}

// HoldsAgent reports whether items in this status carry an agent id.
func (s Status) HoldsAgent() bool {
	return s == StatusInProgress || s == StatusCompleted || s == StatusFailed
}

// ItemType names the kind of entity a queue item references.
type ItemType string

const (
	ItemTypeTicket ItemType = "ticket"
	ItemTypeTask   ItemType = "task"
	ItemTypeChat   ItemType = "chat"
	ItemTypePrompt ItemType = "prompt"
)

var allItemTypes = []ItemType{ItemTypeTicket, ItemTypeTask, ItemTypeChat, ItemTypePrompt}

// AllItemTypes returns the known item types.
func AllItemTypes() []ItemType {
	return append([]ItemType(nil), allItemTypes...)
}

// ParseItemType converts a string into a known ItemType.
func ParseItemType(value string) (ItemType, bool) {
	normalized := ItemType(strings.ToLower(strings.TrimSpace(value)))
	for _, known := range allItemTypes {
		if normalized == known {
			return known, true
		}
	}
	return "", false
}

// ItemRef is a tagged reference to the entity behind a queue item.
type ItemRef struct {
	Type ItemType
	ID   int64
}

func (r ItemRef) String() string {
	return fmt.Sprintf("%s:%d", r.Type, r.ID)
}

// Queue is a named, per-project channel with a bounded number of in-flight items.
type Queue struct {
	ID               int64
	ProjectID        string
	Name             string
	Description      string
	MaxParallelItems int
	IsActive         bool
	// ProcessingTimeout overrides the global supervisor timeout when non-zero.
	ProcessingTimeout time.Duration
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Item represents a queue item persisted in SQLite.
type Item struct {
	ID                      int64
	QueueID                 int64
	ItemType                ItemType
	ItemID                  int64
	Title                   string
	Description             string
	Priority                int
	Status                  Status
	AgentID                 string
	ErrorMessage            string
	Output                  string
	EstimatedProcessingTime time.Duration
	ActualProcessingTime    time.Duration
	RetryCount              int
	DeadLettered            bool
	DeadLetteredAt          *time.Time
	DeadLetterReason        string
	StartedAt               *time.Time
	CompletedAt             *time.Time
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

// Ref returns the entity reference carried by the item.
func (i Item) Ref() ItemRef {
	return ItemRef{Type: i.ItemType, ID: i.ItemID}
}

// IsRetryableFailure reports whether the item failed and has not been dead-lettered.
func (i Item) IsRetryableFailure() bool {
	return i.Status == StatusFailed && !i.DeadLettered
}

// StatusCounts aggregates a queue's items by lifecycle state. Failed excludes
// dead-lettered items, which are counted separately.
type StatusCounts struct {
	Total        int
	Queued       int
	InProgress   int
	Completed    int
	Failed       int
	Cancelled    int
	DeadLettered int
}

// DatabaseHealth captures diagnostic information about the queue database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    int
	TablesPresent    []string
	MissingTables    []string
	IntegrityCheck   bool
	TotalQueues      int
	TotalItems       int
	FreeBytes        uint64
	Error            string
}

// HealthSummary describes aggregated item counts across every queue.
type HealthSummary struct {
	Total      int
	Queued     int
	InProgress int
	Failed     int
	Completed  int
	Cancelled  int
}

// Clock supplies the current time. Services take one so sweeps can be driven
// deterministically in tests.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
