// Package models contains the domain types shared across the application.
package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// ErrorKind classifies an OperationError.
type ErrorKind string

const (
	// KindInvalidRequest marks malformed, missing, or self-referential parameters.
	KindInvalidRequest ErrorKind = "InvalidRequest"
	// KindResourceNotFound marks a missing user, request, or connection.
	KindResourceNotFound ErrorKind = "ResourceNotFound"
	// KindResourceConflict marks an operation that would duplicate existing state.
	KindResourceConflict ErrorKind = "ResourceConflict"
	// KindStoreFailure marks a failed datastore call.
	KindStoreFailure ErrorKind = "StoreFailure"
	// KindInconsistency marks a one-sided record left behind by failed cleanup.
	// It is logged and never returned to a caller.
	KindInconsistency ErrorKind = "Inconsistency"
)

// SuccessBody is the payload of a successful outcome.
type SuccessBody struct {
	Message string `json:"message"`
}

// ErrorBody is the payload of a failed outcome.
type ErrorBody struct {
	Type    ErrorKind `json:"type"`
	Message string    `json:"message"`
}

// Outcome is the uniform response shape for social operations.
// Exactly one of Success or Error is set.
type Outcome struct {
	Success *SuccessBody `json:"success,omitempty"`
	Error   *ErrorBody   `json:"error,omitempty"`
}

// OperationError is the single structured error type used across the service.
type OperationError struct {
	Kind    ErrorKind
	Message string
	Context map[string]string
	Err     error
}

func (e *OperationError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" [")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(" ")
			}
			fmt.Fprintf(&b, "%s=%s", k, e.Context[k])
		}
		b.WriteString("]")
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

// With returns the error with an extra context entry.
func (e *OperationError) With(key, value string) *OperationError {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

// NewInvalidRequestError reports a parameter problem detected before storage is touched.
func NewInvalidRequestError(message string) *OperationError {
	return &OperationError{
		Kind:    KindInvalidRequest,
		Message: message,
	}
}

// NewNotFoundError reports a missing resource identified by id.
func NewNotFoundError(resource string, id interface{}) *OperationError {
	return &OperationError{
		Kind:    KindResourceNotFound,
		Message: fmt.Sprintf("%s %v not found", resource, id),
		Context: map[string]string{"resource": resource},
	}
}

// NewConflictError reports an operation that would duplicate existing state.
func NewConflictError(message string) *OperationError {
	return &OperationError{
		Kind:    KindResourceConflict,
		Message: message,
	}
}

// NewStoreError wraps a datastore failure for the given path.
func NewStoreError(op, path string, err error) *OperationError {
	return &OperationError{
		Kind:    KindStoreFailure,
		Message: "Datastore operation failed",
		Context: map[string]string{"op": op, "path": path},
		Err:     err,
	}
}

// KindOf returns the kind of err, or StoreFailure for errors that are not
// OperationErrors.
func KindOf(err error) ErrorKind {
	var opErr *OperationError
	if errors.As(err, &opErr) {
		return opErr.Kind
	}
	return KindStoreFailure
}

// IsKind reports whether err is an OperationError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var opErr *OperationError
	return errors.As(err, &opErr) && opErr.Kind == kind
}

// StatusFor maps an error kind to an HTTP status.
func StatusFor(kind ErrorKind) int {
	switch kind {
	case KindInvalidRequest:
		return fiber.StatusBadRequest
	case KindResourceNotFound:
		return fiber.StatusNotFound
	case KindResourceConflict:
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

// NewErrorOutcome renders err into the error outcome shape.
// Store failures never leak driver detail to the client.
func NewErrorOutcome(err error) Outcome {
	var opErr *OperationError
	if errors.As(err, &opErr) {
		message := opErr.Message
		if opErr.Kind == KindStoreFailure {
			message = "Internal server error"
		}
		return Outcome{Error: &ErrorBody{Type: opErr.Kind, Message: message}}
	}
	return Outcome{Error: &ErrorBody{Type: KindStoreFailure, Message: "Internal server error"}}
}

// NewSuccessOutcome renders message into the success outcome shape.
func NewSuccessOutcome(message string) Outcome {
	return Outcome{Success: &SuccessBody{Message: message}}
}

// RespondWithError writes the error outcome with the status derived from its kind.
func RespondWithError(c *fiber.Ctx, err error) error {
	return c.Status(StatusFor(KindOf(err))).JSON(NewErrorOutcome(err))
}

// RespondWithSuccess writes the success outcome.
func RespondWithSuccess(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(NewSuccessOutcome(message))
}
