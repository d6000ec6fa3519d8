package errors

import "fmt"

// ErrorCode represents a pipeline error code.
type ErrorCode string

const (
	ErrInvalidInput      ErrorCode = "INVALID_INPUT"      // malformed candidate record; per-record, non-fatal
	ErrVersionConflict   ErrorCode = "VERSION_CONFLICT"   // snapshot version collision or write failure; fatal
	ErrAlreadyMerged     ErrorCode = "ALREADY_MERGED"     // merge requested for a version already in the merge log
	ErrIndexInconsistent ErrorCode = "INDEX_INCONSISTENT" // signature/configuration invariant violated; fatal
	ErrValidationFailed  ErrorCode = "VALIDATION_FAILED"  // validator rejected the snapshot
	ErrNotFound          ErrorCode = "NOT_FOUND"          // snapshot version does not exist
	ErrCancelled         ErrorCode = "CANCELLED"          // context cancelled mid-operation
	ErrInternal          ErrorCode = "INTERNAL"
)

// PipelineError represents a structured error with code and details.
type PipelineError struct {
	Code    ErrorCode
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewInvalidInput creates a per-record error for malformed candidate input.
// Callers skip the record and continue the batch.
func NewInvalidInput(msg string) *PipelineError {
	return &PipelineError{
		Code:    ErrInvalidInput,
		Message: msg,
	}
}

// NewVersionConflict creates a fatal error for a snapshot version collision.
func NewVersionConflict(version int) *PipelineError {
	return &PipelineError{
		Code:    ErrVersionConflict,
		Message: fmt.Sprintf("snapshot version v%03d already exists", version),
		Details: map[string]any{"version": version},
	}
}

// NewVersionWriteFailed creates a fatal error for a failed snapshot write.
func NewVersionWriteFailed(version int, err error) *PipelineError {
	return &PipelineError{
		Code:    ErrVersionConflict,
		Message: fmt.Sprintf("failed to write snapshot v%03d: %v", version, err),
		Details: map[string]any{"version": version},
	}
}

// NewAlreadyMerged creates an error for a merge of an already-merged version.
// Reported to the caller; not fatal to the process.
func NewAlreadyMerged(version int) *PipelineError {
	return &PipelineError{
		Code:    ErrAlreadyMerged,
		Message: fmt.Sprintf("snapshot version v%03d has already been merged", version),
		Details: map[string]any{"version": version},
	}
}

// NewIndexInconsistent creates a fatal error for a dedup index invariant
// violation. Indicates a configuration or logic defect; the run must halt
// rather than silently degrade dedup guarantees.
func NewIndexInconsistent(msg string) *PipelineError {
	return &PipelineError{
		Code:    ErrIndexInconsistent,
		Message: msg,
	}
}

// NewValidationFailed creates an error carrying the validator's reasons.
func NewValidationFailed(reasons []string) *PipelineError {
	return &PipelineError{
		Code:    ErrValidationFailed,
		Message: fmt.Sprintf("validation failed with %d error(s)", len(reasons)),
		Details: map[string]any{"reasons": reasons},
	}
}

// NewNotFound creates an error for a missing snapshot version.
func NewNotFound(identifier string) *PipelineError {
	return &PipelineError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("version not found: %s", identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewCancelled creates an error for a context-cancelled operation.
func NewCancelled(operation string) *PipelineError {
	return &PipelineError{
		Code:    ErrCancelled,
		Message: fmt.Sprintf("operation cancelled: %s", operation),
	}
}

// NewInternal creates an error for unexpected internal failures.
func NewInternal(err error) *PipelineError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &PipelineError{
		Code:    ErrInternal,
		Message: msg,
	}
}

// Is checks if an error is a PipelineError with the given code.
func Is(err error, code ErrorCode) bool {
	if pErr, ok := err.(*PipelineError); ok {
		return pErr.Code == code
	}
	return false
}
