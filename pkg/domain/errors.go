package domain

import (
	"errors"
	"fmt"
)

// Sentinels matched through errors.Is by transports that map failures to
// status codes.
var (
	ErrValidation    = errors.New("validation failed")
	ErrNotFound      = errors.New("not found")
	ErrAlreadyUndone = errors.New("history entry already undone")
	ErrConflict      = errors.New("conflict")
	ErrStorage       = errors.New("storage failure")
	ErrRuleViolation = errors.New("blocked by rules")
)

// ValidationError reports malformed or out-of-range input for a single field.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError builds a ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Is reports ErrValidation equivalence.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NotFoundError is returned when a referenced raffle, entry or log is absent.
type NotFoundError struct {
	Entity EntityType
	ID     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// Is reports ErrNotFound equivalence.
func (e NotFoundError) Is(target error) bool { return target == ErrNotFound }

// AlreadyUndoneError is returned when undo targets a consumed history entry.
type AlreadyUndoneError struct {
	LogID string
}

func (e AlreadyUndoneError) Error() string {
	return fmt.Sprintf("history entry %s was already undone", e.LogID)
}

// Is reports ErrAlreadyUndone equivalence.
func (e AlreadyUndoneError) Is(target error) bool { return target == ErrAlreadyUndone }

// ConflictError is returned when an insert reuses an existing identifier.
type ConflictError struct {
	Entity EntityType
	ID     string
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("%s %s already exists", e.Entity, e.ID)
}

// Is reports ErrConflict equivalence.
func (e ConflictError) Is(target error) bool { return target == ErrConflict }

// StorageError wraps a backing store failure.
type StorageError struct {
	Op  string
	Err error
}

// NewStorageError wraps err unless it is nil or already a StorageError.
func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Is reports ErrStorage equivalence.
func (e *StorageError) Is(target error) bool { return target == ErrStorage }
