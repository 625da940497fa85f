package resources

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/nerrad567/gray-logic-access/internal/apierr"
	"github.com/nerrad567/gray-logic-access/internal/auth"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-access/internal/wsapi"
)

// Identity map kinds.
const (
	kindUser        = "user"
	kindGroup       = "group"
	kindMembership  = "membership"
	kindAccessPoint = "access_point"
)

// request is the common resource payload.
type request struct {
	ID         int64           `json:"id"`
	Attributes json.RawMessage `json:"attributes"`
}

func decode(payload json.RawMessage) (request, error) {
	var req request
	if err := json.Unmarshal(payload, &req); err != nil {
		return request{}, apierr.NewMalformed("invalid payload: %v", err)
	}
	return req, nil
}

// decodeTarget decodes a payload that must name an entity.
func decodeTarget(payload json.RawMessage) (request, error) {
	req, err := decode(payload)
	if err != nil {
		return request{}, err
	}
	if req.ID <= 0 {
		return request{}, apierr.NewMalformed("field %q must be a positive integer", "id")
	}
	return req, nil
}

// attributes decodes req.Attributes into v. Missing attributes decode as
// an empty object.
func (req request) attributes(v any) error {
	if len(req.Attributes) == 0 {
		return nil
	}
	if err := json.Unmarshal(req.Attributes, v); err != nil {
		return apierr.NewMalformed("invalid attributes: %v", err)
	}
	return nil
}

func data(v any) wsapi.Result {
	return wsapi.Content(map[string]any{"data": v})
}

// actorID is the caller's user id for log lines, 0 when anonymous.
func actorID(rc *wsapi.RequestContext) int64 {
	if u := rc.User(); u != nil {
		return u.ID
	}
	return 0
}

// checkVersion rejects a write against a stale copy. expected 0 skips
// the check.
func checkVersion(kind string, expected, current int) error {
	if expected != 0 && expected != current {
		return apierr.NewDomain(kind+" was modified concurrently, reload and retry", nil)
	}
	return nil
}

func loadUser(ctx context.Context, rc *wsapi.RequestContext, id int64) (*auth.User, error) {
	u, err := database.Load(ctx, rc.UoW, database.EntityKey{Kind: kindUser, ID: id},
		func(ctx context.Context, q database.Querier) (*auth.User, error) {
			return auth.NewUserRepository(q).GetByID(ctx, id)
		})
	if errors.Is(err, auth.ErrUserNotFound) {
		return nil, apierr.NewEntityNotFound(kindUser, id)
	}
	return u, err
}

func loadGroup(ctx context.Context, rc *wsapi.RequestContext, id int64) (*auth.Group, error) {
	g, err := database.Load(ctx, rc.UoW, database.EntityKey{Kind: kindGroup, ID: id},
		func(ctx context.Context, q database.Querier) (*auth.Group, error) {
			return auth.NewGroupRepository(q).GetByID(ctx, id)
		})
	if errors.Is(err, auth.ErrGroupNotFound) {
		return nil, apierr.NewEntityNotFound(kindGroup, id)
	}
	return g, err
}

func loadMembership(ctx context.Context, rc *wsapi.RequestContext, id int64) (*auth.Membership, error) {
	m, err := database.Load(ctx, rc.UoW, database.EntityKey{Kind: kindMembership, ID: id},
		func(ctx context.Context, q database.Querier) (*auth.Membership, error) {
			return auth.NewMembershipRepository(q).GetByID(ctx, id)
		})
	if errors.Is(err, auth.ErrMembershipNotFound) {
		return nil, apierr.NewEntityNotFound(kindMembership, id)
	}
	return m, err
}

// notFound reports whether err is an ENTITY_NOT_FOUND failure, so
// permission checks can fall back to a bare requirement for a missing
// target and let the operation report ENTITY_NOT_FOUND.
func notFound(err error) bool {
	var apiErr *apierr.Error
	return errors.As(err, &apiErr) && apiErr.Kind == apierr.KindEntityNotFound
}

// Register adds every resource method to reg.
func Register(reg *wsapi.Registry) {
	reg.RegisterResource("user", NewUserResource, wsapi.VerbCreate, wsapi.VerbRead, wsapi.VerbUpdate, wsapi.VerbDelete)
	reg.RegisterResource("group", NewGroupResource, wsapi.VerbCreate, wsapi.VerbRead, wsapi.VerbUpdate, wsapi.VerbDelete)
	reg.RegisterResource("membership", NewMembershipResource, wsapi.VerbCreate, wsapi.VerbRead, wsapi.VerbDelete)
	reg.RegisterResource("access_point", NewAccessPointResource, wsapi.VerbCreate, wsapi.VerbRead, wsapi.VerbUpdate, wsapi.VerbDelete)
	reg.RegisterResourceMethod(MethodGetLogs, wsapi.VerbRead, NewLogResource)
}
