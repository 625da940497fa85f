package wsapi

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nerrad567/gray-logic-access/internal/apierr"
	"github.com/nerrad567/gray-logic-access/internal/auth"
)

// Verb is the CRUD operation implied by a resource method name.
type Verb int

const (
	VerbCreate Verb = iota
	VerbRead
	VerbUpdate
	VerbDelete
)

var verbSuffixes = map[Verb]string{
	VerbCreate: "_create",
	VerbRead:   "_get",
	VerbUpdate: "_put",
	VerbDelete: "_delete",
}

func (v Verb) String() string {
	switch v {
	case VerbCreate:
		return "create"
	case VerbRead:
		return "read"
	case VerbUpdate:
		return "update"
	case VerbDelete:
		return "delete"
	}
	return fmt.Sprintf("verb(%d)", int(v))
}

// PermissionRequirement is one (permission, parameter) check a resource
// handler needs to pass before it runs.
type PermissionRequirement struct {
	Permission auth.Permission
	Param      auth.ActionParam
}

// Require is shorthand for building a PermissionRequirement.
func Require(p auth.Permission, param auth.ActionParam) PermissionRequirement {
	return PermissionRequirement{Permission: p, Param: param}
}

// Result is what a handler produces: content, or explicitly no content.
// The zero Result is empty content and encodes as {}.
type Result struct {
	content   any
	noContent bool
}

// Content wraps v as the response content.
func Content(v any) Result {
	return Result{content: v}
}

// NoContent is a successful result without content. It encodes as null.
func NoContent() Result {
	return Result{noContent: true}
}

// IsNoContent reports whether r was built with NoContent.
func (r Result) IsNoContent() bool { return r.noContent }

func (r Result) encode() (json.RawMessage, error) {
	if r.noContent {
		return nullContent, nil
	}
	if r.content == nil {
		return emptyContent, nil
	}
	data, err := json.Marshal(r.content)
	if err != nil {
		return nil, fmt.Errorf("encoding response content: %w", err)
	}
	return data, nil
}

// ResourceHandler serves the CRUD methods of one resource type. A handler
// is built for a single request and must not keep state between requests.
type ResourceHandler interface {
	RequiredPermissions(ctx context.Context, verb Verb, payload json.RawMessage) ([]PermissionRequirement, error)
	Create(ctx context.Context, payload json.RawMessage) (Result, error)
	Read(ctx context.Context, payload json.RawMessage) (Result, error)
	Update(ctx context.Context, payload json.RawMessage) (Result, error)
	Delete(ctx context.Context, payload json.RawMessage) (Result, error)
}

// ResourceFactory builds a handler bound to one request.
type ResourceFactory func(rc *RequestContext) ResourceHandler

// BaseResource rejects every verb. Embed it and override what the
// resource supports.
type BaseResource struct{}

// Create fails with GENERAL_FAILURE.
func (BaseResource) Create(context.Context, json.RawMessage) (Result, error) {
	return Result{}, unsupported(VerbCreate)
}

// Read fails with GENERAL_FAILURE.
func (BaseResource) Read(context.Context, json.RawMessage) (Result, error) {
	return Result{}, unsupported(VerbRead)
}

// Update fails with GENERAL_FAILURE.
func (BaseResource) Update(context.Context, json.RawMessage) (Result, error) {
	return Result{}, unsupported(VerbUpdate)
}

// Delete fails with GENERAL_FAILURE.
func (BaseResource) Delete(context.Context, json.RawMessage) (Result, error) {
	return Result{}, unsupported(VerbDelete)
}

func unsupported(v Verb) error {
	return apierr.NewDomain(fmt.Sprintf("operation %s is not supported by this resource", v), nil)
}

// perform runs the operation matching verb.
func perform(ctx context.Context, h ResourceHandler, verb Verb, payload json.RawMessage) (Result, error) {
	switch verb {
	case VerbCreate:
		return h.Create(ctx, payload)
	case VerbRead:
		return h.Read(ctx, payload)
	case VerbUpdate:
		return h.Update(ctx, payload)
	case VerbDelete:
		return h.Delete(ctx, payload)
	}
	return Result{}, unsupported(verb)
}
