package scheduling

import (
	"context"
	"errors"
	"fmt"
)

// Conflict: the caller should re-query availability and pick a fresh slot.
var ErrSlotTaken = errors.New("scheduling: slot no longer available")

// Invalid input: never retryable.
var (
	ErrInvalidSlot     = errors.New("scheduling: invalid slot")
	ErrUnknownService  = errors.New("scheduling: unknown service")
	ErrInvalidCustomer = errors.New("scheduling: customer name and phone or email required")
	ErrInvalidRange    = errors.New("scheduling: invalid date range")
)

// ErrNotFound is the base for lookups that matched nothing. Operations where
// "nothing to do" is an expected outcome report it in their result instead.
var ErrNotFound = errors.New("scheduling: not found")

// ErrInvalidState is the base for transitions attempted from the wrong state.
var ErrInvalidState = errors.New("scheduling: invalid state transition")

// ErrStorageTimeout matches storage errors caused by an expired deadline.
var ErrStorageTimeout = errors.New("scheduling: storage timeout")

// StorageError wraps an infrastructure failure. It is always safe to retry
// with backoff.
type StorageError struct {
	Op      string
	Err     error
	Timeout bool
}

func (e *StorageError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("scheduling: storage %s timed out: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("scheduling: storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool {
	return target == ErrStorageTimeout && e.Timeout
}

// Storage classifies err as an infrastructure failure unless it already
// carries a domain meaning. Nil stays nil.
func Storage(op string, err error) error {
	if err == nil || IsConflict(err) || IsInvalid(err) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidState) {
		return err
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{
		Op:      op,
		Err:     err,
		Timeout: errors.Is(err, context.DeadlineExceeded),
	}
}

// IsConflict reports a slot collision.
func IsConflict(err error) bool {
	return errors.Is(err, ErrSlotTaken)
}

// IsInvalid reports non-retryable caller errors.
func IsInvalid(err error) bool {
	return errors.Is(err, ErrInvalidSlot) || errors.Is(err, ErrUnknownService) ||
		errors.Is(err, ErrInvalidCustomer) || errors.Is(err, ErrInvalidRange)
}

// IsStorage reports infrastructure failures.
func IsStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// IsRetryable covers conflicts (after re-querying) and storage failures.
func IsRetryable(err error) bool {
	return IsConflict(err) || IsStorage(err)
}
