// Package services implements the business operations behind the API:
// template lifecycle, execution intake and progress reads.
package services

import (
	"errors"
	"fmt"
)

// Business logic errors. Validation errors map to 400 responses,
// conflicts to 409.
var (
	ErrTemplateBodyRequired    = errors.New("template body is required")
	ErrTemplateNameRequired    = errors.New("template name is required")
	ErrRecipientColumnRequired = errors.New("recipient column is required")
	ErrInvalidFilter           = errors.New("invalid filter definition")
	ErrChannelMismatch         = errors.New("integration channel does not match the requested channel")
	ErrTemplateNotPublished    = errors.New("template has no published version")
	ErrDatasetNotCompatible    = errors.New("dataset is not compatible with the template")

	ErrAlreadyTerminal = errors.New("execution is already in a terminal state")
)

// ServiceError wraps service-level errors with operation context.
type ServiceError struct {
	Op      string
	Message string
	Err     error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks whether an error should map to HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrTemplateBodyRequired) ||
		errors.Is(err, ErrTemplateNameRequired) ||
		errors.Is(err, ErrRecipientColumnRequired) ||
		errors.Is(err, ErrInvalidFilter) ||
		errors.Is(err, ErrChannelMismatch) ||
		errors.Is(err, ErrTemplateNotPublished) ||
		errors.Is(err, ErrDatasetNotCompatible)
}

// IsConflictError checks whether an error should map to HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrAlreadyTerminal)
}
