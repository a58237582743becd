package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation              = errors.New("validation error")
	ErrUnknownAlgorithmVersion = errors.New("unknown algorithm version")
	ErrInvalidWeights          = errors.New("invalid weights")
	ErrIncompleteInput         = errors.New("incomplete input")
	ErrCalculationTimeout      = errors.New("calculation timeout")
	ErrVersionConflict         = errors.New("version conflict")
	ErrNotFound                = errors.New("not found")
	ErrCancelled               = errors.New("cancelled")
	ErrQueueFull               = errors.New("job queue full")
)

// FieldError reports a missing or unusable input field for one item.
type FieldError struct {
	EntityID string
	Field    string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("incomplete input: %s missing %s", e.EntityID, e.Field)
}

func (e *FieldError) Unwrap() error { return ErrIncompleteInput }

func Incomplete(entityID, field string) error {
	return &FieldError{EntityID: entityID, Field: field}
}

// ErrorCode maps err to a stable machine-readable code.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrUnknownAlgorithmVersion):
		return "unknown_algorithm_version"
	case errors.Is(err, ErrInvalidWeights):
		return "invalid_weights"
	case errors.Is(err, ErrIncompleteInput):
		return "incomplete_input"
	case errors.Is(err, ErrCalculationTimeout):
		return "calculation_timeout"
	case errors.Is(err, ErrVersionConflict):
		return "version_conflict"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrCancelled):
		return "cancelled"
	case errors.Is(err, ErrQueueFull):
		return "queue_full"
	default:
		return "internal_error"
	}
}
