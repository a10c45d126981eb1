package queue

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound reports a missing queue, item, or entity.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument reports caller input that can never succeed.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInvalidStateTransition reports an operation that the item's current status forbids.
	ErrInvalidStateTransition = errors.New("invalid state transition")
	// ErrConsistencyViolation reports drift between queue items and entity mirrors.
	ErrConsistencyViolation = errors.New("consistency violation")
	// ErrTimeout reports an item reclaimed by the supervisor.
	ErrTimeout = errors.New("timeout")
)

// Kind classifies errors for operator surfaces (HTTP status codes, CLI messages).
type Kind string

const (
	KindNotFound        Kind = "not_found"
	KindInvalidArgument Kind = "invalid_argument"
	KindInvalidState    Kind = "invalid_state"
	KindConsistency     Kind = "consistency"
	KindTimeout         Kind = "timeout"
	KindInternal        Kind = "internal"
)

// ErrorClassifier allows errors to declare their classification directly.
type ErrorClassifier interface {
	ErrorKind() Kind
}

// TimeoutError reports an item the supervisor failed after its processing
// timeout. It matches both ErrTimeout and ErrInvalidStateTransition.
type TimeoutError struct {
	ItemID int64

	// Timeout is the limit the item exceeded; zero when unknown.
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	if e.Timeout > 0 {
		return fmt.Sprintf("item %d timed out after %s", e.ItemID, e.Timeout)
	}
	return fmt.Sprintf("item %d timed out", e.ItemID)
}

func (e *TimeoutError) Unwrap() []error {
	return []error{ErrTimeout, ErrInvalidStateTransition}
}

func (e *TimeoutError) ErrorKind() Kind {
	return KindTimeout
}

// ErrorKind maps an error to its Kind. Errors implementing ErrorClassifier win;
// otherwise the wrapped sentinel decides. Unknown errors are internal.
func ErrorKind(err error) Kind {
	if err == nil {
		return ""
	}
	var classifier ErrorClassifier
	if errors.As(err, &classifier) {
		return classifier.ErrorKind()
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidArgument):
		return KindInvalidArgument
	case errors.Is(err, ErrInvalidStateTransition):
		return KindInvalidState
	case errors.Is(err, ErrConsistencyViolation):
		return KindConsistency
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	default:
		return KindInternal
	}
}
