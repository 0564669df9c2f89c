package domain

import (
	"errors"
	"fmt"
)

// ErrOwnerImmutable is returned when the owner is targeted by admin removal.
var ErrOwnerImmutable = errors.New("owner privileges cannot be revoked")

// UsageError reports missing or malformed command arguments. Message is shown
// to the caller verbatim.
type UsageError struct {
	Message string
}

func (e *UsageError) Error() string {
	return "usage: " + e.Message
}

// NewUsageError builds a UsageError.
func NewUsageError(format string, args ...any) *UsageError {
	return &UsageError{Message: fmt.Sprintf(format, args...)}
}

// AuthorizationError reports a caller without the privilege a command needs.
type AuthorizationError struct {
	UserID   int64
	Required string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("user %d lacks %s privileges", e.UserID, e.Required)
}

// DeliveryFailure reports that the transport could not reach a chat.
type DeliveryFailure struct {
	ChatID int64
	Err    error
}

func (e *DeliveryFailure) Error() string {
	return fmt.Sprintf("deliver to %d: %v", e.ChatID, e.Err)
}

func (e *DeliveryFailure) Unwrap() error {
	return e.Err
}

// InvalidFieldError reports a settings update on an unknown field.
type InvalidFieldError struct {
	Field string
}

func (e *InvalidFieldError) Error() string {
	return fmt.Sprintf("invalid settings field %q", e.Field)
}
