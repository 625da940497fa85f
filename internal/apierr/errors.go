package apierr

import (
	"fmt"
)

// Kind selects the status an *Error maps to.
type Kind int

const (
	KindInvalidCall Kind = iota + 1
	KindPermissionDenied
	KindMalformed
	KindSessionAborted
	KindEntityNotFound
	// KindDomain is a business-rule failure. Its message reaches the client.
	KindDomain
)

// Error is a classified remote API failure.
type Error struct {
	Kind       Kind
	Msg        string
	EntityID   int64  // KindEntityNotFound only
	EntityType string // KindEntityNotFound only
	Err        error  // cause, logged but never sent
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// NewInvalidCall reports an unknown method name.
func NewInvalidCall(method string) *Error {
	return &Error{Kind: KindInvalidCall, Msg: fmt.Sprintf("unknown method %q", method)}
}

// NewPermissionDenied reports a failed authorization check.
func NewPermissionDenied(msg string) *Error {
	if msg == "" {
		msg = "permission denied"
	}
	return &Error{Kind: KindPermissionDenied, Msg: msg}
}

// NewMalformed reports a structurally invalid envelope or payload.
func NewMalformed(format string, args ...any) *Error {
	return &Error{Kind: KindMalformed, Msg: fmt.Sprintf(format, args...)}
}

// NewSessionAborted reports that the session was invalidated.
func NewSessionAborted(msg string) *Error {
	return &Error{Kind: KindSessionAborted, Msg: msg}
}

// NewEntityNotFound reports a missing entity. Its id and type are sent
// back in the response content.
func NewEntityNotFound(entityType string, id int64) *Error {
	return &Error{
		Kind:       KindEntityNotFound,
		Msg:        fmt.Sprintf("%s %d not found", entityType, id),
		EntityID:   id,
		EntityType: entityType,
	}
}

// NewDomain reports a business-rule failure with a client-facing message.
// cause may be nil.
func NewDomain(msg string, cause error) *Error {
	return &Error{Kind: KindDomain, Msg: msg, Err: cause}
}
