package versions

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a document or version does not exist
	ErrNotFound = errors.New("not found")
	// ErrValidation is matched by every *ValidationError
	ErrValidation = errors.New("validation failed")
	// ErrQuotaExceeded is matched by every *QuotaError
	ErrQuotaExceeded = errors.New("storage quota exceeded")
	// ErrCorruptedData is matched by every *CorruptionError
	ErrCorruptedData = errors.New("corrupted data")
	// ErrConcurrentModification means another writer changed the document
	// since this store last observed it
	ErrConcurrentModification = errors.New("concurrent modification")
)

// ValidationError describes rejected input. Nothing is written when it is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// QuotaError reports an append that would exceed the configured capacity
type QuotaError struct {
	UsedBytes      int64
	ProjectedBytes int64
	CapacityBytes  int64
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("storage quota exceeded: %d bytes needed, capacity %d (currently used %d)",
		e.ProjectedBytes, e.CapacityBytes, e.UsedBytes)
}

func (e *QuotaError) Is(target error) bool {
	return target == ErrQuotaExceeded
}

// CorruptionError reports a stored document that could not be decoded. The
// raw bytes are left in place.
type CorruptionError struct {
	DocumentID string
	Key        string
	Err        error
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("corrupted data for document %s (key %s): %v", e.DocumentID, e.Key, e.Err)
}

func (e *CorruptionError) Is(target error) bool {
	return target == ErrCorruptedData
}

func (e *CorruptionError) Unwrap() error {
	return e.Err
}
