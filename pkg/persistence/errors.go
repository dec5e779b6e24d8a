package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrExecutionNotFound indicates an execution was not found by the given identifier.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrTemplateNotFound indicates a template was not found by the given identifier.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrPublishedTemplateNotFound indicates no published version exists for the logical id.
	ErrPublishedTemplateNotFound = errors.New("published template not found")

	// ErrIntegrationNotFound indicates an integration was not found or is inactive.
	ErrIntegrationNotFound = errors.New("integration not found")

	// ErrTemplateImmutable indicates an attempt to mutate a published template version.
	ErrTemplateImmutable = errors.New("published template versions are immutable")
)

// ExecutionError wraps execution-related errors with operation context.
type ExecutionError struct {
	Op          string
	ExecutionID string
	Err         error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s operation failed for execution %s: %v", e.Op, e.ExecutionID, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

func (e *ExecutionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewExecutionError creates a new execution error with context.
func NewExecutionError(op, executionID string, err error) *ExecutionError {
	return &ExecutionError{Op: op, ExecutionID: executionID, Err: err}
}

// IsExecutionNotFound checks whether an error means the execution does not exist.
func IsExecutionNotFound(err error) bool {
	return errors.Is(err, ErrExecutionNotFound)
}

// IsTemplateNotFound checks whether an error means the template does not exist.
func IsTemplateNotFound(err error) bool {
	return errors.Is(err, ErrTemplateNotFound) || errors.Is(err, ErrPublishedTemplateNotFound)
}

// IsIntegrationNotFound checks whether an error means the integration does not exist or is inactive.
func IsIntegrationNotFound(err error) bool {
	return errors.Is(err, ErrIntegrationNotFound)
}
