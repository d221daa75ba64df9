package docstore

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors reported by store implementations. Callers match them with
// errors.Is; Classify folds them into the coarser fault classes the sync
// layer acts on.
var (
	// ErrDocumentNotFound indicates the requested document does not exist.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrIndexNotFound indicates the requested index does not exist.
	ErrIndexNotFound = errors.New("index not found")

	// ErrUnavailable indicates the store could not be reached or answered
	// with a server-side failure. The same operation may succeed if
	// reattempted unchanged.
	ErrUnavailable = errors.New("store unavailable")

	// ErrTimeout indicates the operation exceeded its time budget.
	ErrTimeout = errors.New("operation timed out")

	// ErrTooManyRequests indicates the store is shedding load.
	ErrTooManyRequests = errors.New("too many requests")

	// ErrInvalidRequest indicates the store rejected the request as
	// malformed. Reattempting the identical operation fails identically.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrConflict indicates a write raced with another writer.
	ErrConflict = errors.New("version conflict")
)

// Class partitions store faults by how callers should react to them.
type Class int

const (
	// ClassUnexpected covers faults no other class recognizes. They are
	// propagated so monitoring can surface unknown failure modes.
	ClassUnexpected Class = iota

	// ClassNotFound covers missing documents and indexes. Routine, absorbed
	// into normal control flow by callers.
	ClassNotFound

	// ClassRetryable covers connectivity and transport faults where the
	// identical operation may succeed on a later attempt.
	ClassRetryable

	// ClassTerminal covers malformed-request faults where retrying cannot
	// help.
	ClassTerminal
)

// String returns the class name used in logs.
func (c Class) String() string {
	switch c {
	case ClassNotFound:
		return "not_found"
	case ClassRetryable:
		return "retryable"
	case ClassTerminal:
		return "terminal"
	default:
		return "unexpected"
	}
}

// Error decorates a store fault with the operation and target that raised it.
type Error struct {
	Op    string
	Index string
	DocID string
	Err   error
}

// Error returns the string representation of the error.
func (e *Error) Error() string {
	switch {
	case e.Index != "" && e.DocID != "":
		return fmt.Sprintf("%s %s/%s: %v", e.Op, e.Index, e.DocID, e.Err)
	case e.Index != "":
		return fmt.Sprintf("%s %s: %v", e.Op, e.Index, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
}

// Unwrap returns the underlying fault for errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Classify maps a store fault into its class. A context deadline or
// cancellation is always retryable; it must never be absorbed as a permanent
// failure.
func Classify(err error) Class {
	switch {
	case errors.Is(err, ErrDocumentNotFound), errors.Is(err, ErrIndexNotFound):
		return ClassNotFound
	case errors.Is(err, ErrUnavailable),
		errors.Is(err, ErrTimeout),
		errors.Is(err, ErrTooManyRequests),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return ClassRetryable
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrConflict):
		return ClassTerminal
	default:
		return ClassUnexpected
	}
}

// IsNotFound reports whether err represents a missing document or index.
func IsNotFound(err error) bool {
	return err != nil && Classify(err) == ClassNotFound
}

// IsRetryable reports whether the operation that raised err may succeed if
// reattempted unchanged.
func IsRetryable(err error) bool {
	return err != nil && Classify(err) == ClassRetryable
}

// IsTerminal reports whether reattempting the operation that raised err would
// fail identically.
func IsTerminal(err error) bool {
	return err != nil && Classify(err) == ClassTerminal
}
