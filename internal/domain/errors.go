package domain

import (
	"errors"
	"fmt"
)

var (
	ErrRecordNotFound        = errors.New("record not found")
	ErrEventAlreadyProcessed = errors.New("webhook event already processed")
	ErrSessionNotFound       = errors.New("payment session not found")
)

// ValidationError signals malformed input or references to entities that do
// not exist for the requested scope. The client must fix the request.
type ValidationError struct {
	Message string
}

func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ConflictError signals that a seat is taken by a competing booking or hold.
// The client should re-query availability and retry with different seats.
type ConflictError struct {
	Message string
}

func NewConflictError(format string, args ...any) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

func (e *ConflictError) Error() string {
	return e.Message
}

// ForbiddenError signals an ownership violation or a bad webhook signature.
type ForbiddenError struct {
	Message string
}

func NewForbiddenError(format string, args ...any) *ForbiddenError {
	return &ForbiddenError{Message: fmt.Sprintf(format, args...)}
}

func (e *ForbiddenError) Error() string {
	return e.Message
}

// NotFoundError signals an unknown entity id.
type NotFoundError struct {
	Message string
}

func NewNotFoundError(format string, args ...any) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

func (e *NotFoundError) Error() string {
	return e.Message
}

// InvalidStateError signals an operation that is not valid for the entity's
// current lifecycle state, e.g. cancelling a CONFIRMED booking.
type InvalidStateError struct {
	Message string
}

func NewInvalidStateError(format string, args ...any) *InvalidStateError {
	return &InvalidStateError{Message: fmt.Sprintf(format, args...)}
}

func (e *InvalidStateError) Error() string {
	return e.Message
}
