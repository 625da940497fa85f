package apierr

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/gray-logic-access/internal/infrastructure/database"
)

const (
	databaseErrorPrefix = "Database Error: "
	internalMessage     = "internal server error"
	timeoutMessage      = "request timed out"
)

// Mapped is the wire-level view of a failure.
type Mapped struct {
	Status  Status
	Message string
	// Content is sent as the response content. Nil means empty content.
	Content map[string]any
	// Detail is set when the failure has internal detail worth logging.
	Detail error
	// Severe marks storage and unclassified failures.
	Severe bool
}

// Map converts any error into a status and message. It never fails.
func Map(err error) Mapped {
	if err == nil {
		return Mapped{Status: Success}
	}

	var apiErr *Error
	isAPIErr := errors.As(err, &apiErr)

	if isAPIErr {
		switch apiErr.Kind {
		case KindInvalidCall:
			return Mapped{Status: InvalidCall, Message: apiErr.Msg}
		case KindPermissionDenied:
			return Mapped{Status: PermissionDenied, Message: apiErr.Msg}
		case KindMalformed:
			return Mapped{Status: Malformed, Message: apiErr.Msg}
		case KindSessionAborted:
			return Mapped{Status: SessionAborted, Message: apiErr.Msg}
		case KindEntityNotFound:
			return Mapped{
				Status:  EntityNotFound,
				Message: apiErr.Msg,
				Content: map[string]any{
					"entity_id":   apiErr.EntityID,
					"entity_type": apiErr.EntityType,
				},
			}
		}
	}

	// Storage failures win over a domain wrapper so they stay distinguishable.
	if database.IsStorageError(err) {
		return Mapped{Status: GeneralFailure, Message: databaseErrorPrefix + err.Error(), Detail: err, Severe: true}
	}

	if isAPIErr && apiErr.Kind == KindDomain {
		return Mapped{Status: GeneralFailure, Message: apiErr.Msg, Detail: apiErr.Err}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Mapped{Status: GeneralFailure, Message: timeoutMessage, Detail: err}
	}

	return Mapped{Status: GeneralFailure, Message: internalMessage, Detail: err, Severe: true}
}

// FromPanic converts a recovered panic value into an error for Map.
func FromPanic(v any) error {
	if err, ok := v.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return fmt.Errorf("panic: %v", v)
}
