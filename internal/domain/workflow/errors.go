package workflow

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when an instance or checkpoint id is unknown
	ErrNotFound = errors.New("not found")

	// ErrInvalidState is returned when an operation is not valid for the
	// current status or stage of an instance
	ErrInvalidState = errors.New("invalid state")

	// ErrConflict is returned when a concurrent writer lost the optimistic
	// concurrency check, or when a duplicate open checkpoint is requested
	ErrConflict = errors.New("conflict")

	// ErrConfig is returned for fatal configuration problems such as an
	// unknown stage or a misconfigured threshold; never retried
	ErrConfig = errors.New("configuration error")

	// ErrAlreadyResolved is returned when a checkpoint is resolved twice
	ErrAlreadyResolved = errors.New("checkpoint already resolved")

	// ErrValidation is returned for malformed invoice data; terminal for
	// the owning instance
	ErrValidation = errors.New("validation error")

	// ErrInvalidTransition is returned when a stage transition is not
	// permitted by the pipeline graph
	ErrInvalidTransition = errors.New("invalid stage transition")

	// ErrUnsupportedFormat is returned by the OCR executor for file types
	// it cannot process
	ErrUnsupportedFormat = errors.New("unsupported document format")

	// ErrLowConfidence is returned by the OCR executor when extraction
	// confidence is below the configured floor
	ErrLowConfidence = errors.New("extraction confidence too low")
)

// TransientError wraps a network or timeout failure from an external
// collaborator. Transient errors are eligible for bounded retry inside
// the stage handler that produced them.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient error in %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Transient wraps err as a TransientError for the given operation
func Transient(op string, err error) error {
	return &TransientError{Op: op, Err: err}
}

// IsTransient reports whether err is (or wraps) a TransientError
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// ErrorKind maps an error to the taxonomy name recorded in stage history
// and surfaced through the query interface.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	case errors.Is(err, ErrInvalidState):
		return "InvalidState"
	case errors.Is(err, ErrConflict):
		return "ConflictError"
	case errors.Is(err, ErrConfig), errors.Is(err, ErrInvalidTransition):
		return "ConfigError"
	case errors.Is(err, ErrAlreadyResolved):
		return "AlreadyResolved"
	case errors.Is(err, ErrValidation), errors.Is(err, ErrUnsupportedFormat), errors.Is(err, ErrLowConfidence):
		return "ValidationError"
	case IsTransient(err):
		return "TransientExternalError"
	default:
		return "InternalError"
	}
}
