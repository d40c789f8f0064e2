package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies domain errors so transports can map them to status codes
type ErrorKind string

const (
	ErrKindValidation    ErrorKind = "validation"
	ErrKindConflict      ErrorKind = "conflict"
	ErrKindState         ErrorKind = "state"
	ErrKindNotFound      ErrorKind = "not_found"
	ErrKindExpired       ErrorKind = "expired"
	ErrKindAuthorization ErrorKind = "authorization"
)

// DomainError is the typed error returned by every engine operation.
// Mutations are all-or-nothing: when a DomainError is returned, no state changed.
type DomainError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	// ConflictsWith carries the course titles a weekly-time conflict was detected against
	ConflictsWith []string `json:"conflicts_with,omitempty"`
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func NewValidationError(format string, args ...interface{}) error {
	return &DomainError{Kind: ErrKindValidation, Message: fmt.Sprintf(format, args...)}
}

func NewConflictError(msg string, with []string) error {
	return &DomainError{Kind: ErrKindConflict, Message: msg, ConflictsWith: with}
}

func NewStateError(format string, args ...interface{}) error {
	return &DomainError{Kind: ErrKindState, Message: fmt.Sprintf(format, args...)}
}

func NewNotFoundError(entity string, id interface{}) error {
	return &DomainError{Kind: ErrKindNotFound, Message: fmt.Sprintf("%s %v not found", entity, id)}
}

func NewExpiredError(format string, args ...interface{}) error {
	return &DomainError{Kind: ErrKindExpired, Message: fmt.Sprintf(format, args...)}
}

func NewAuthorizationError(format string, args ...interface{}) error {
	return &DomainError{Kind: ErrKindAuthorization, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the domain error kind, or "" if err is not a DomainError
func KindOf(err error) ErrorKind {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}
