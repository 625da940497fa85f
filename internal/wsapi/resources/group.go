package resources

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/nerrad567/gray-logic-access/internal/apierr"
	"github.com/nerrad567/gray-logic-access/internal/auth"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-access/internal/wsapi"
)

const maxGroupNameLength = 64

type groupAttributes struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Version     int     `json:"version"`
}

type groupView struct {
	*auth.Group
	Memberships []auth.Membership `json:"memberships"`
}

// GroupResource serves group_create, group_get, group_put and group_delete.
type GroupResource struct {
	wsapi.BaseResource
	rc *wsapi.RequestContext
}

// NewGroupResource is the ResourceFactory for groups.
func NewGroupResource(rc *wsapi.RequestContext) wsapi.ResourceHandler {
	return &GroupResource{rc: rc}
}

var groupPermissions = map[wsapi.Verb]auth.Permission{
	wsapi.VerbCreate: auth.PermGroupCreate,
	wsapi.VerbRead:   auth.PermGroupRead,
	wsapi.VerbUpdate: auth.PermGroupUpdate,
	wsapi.VerbDelete: auth.PermGroupDelete,
}

// RequiredPermissions checks the verb's group permission against the
// target group, so members may read their own groups.
func (r *GroupResource) RequiredPermissions(_ context.Context, verb wsapi.Verb, payload json.RawMessage) ([]wsapi.PermissionRequirement, error) {
	if verb == wsapi.VerbCreate {
		return []wsapi.PermissionRequirement{wsapi.Require(auth.PermGroupCreate, auth.ActionParam{})}, nil
	}
	req, err := decodeTarget(payload)
	if err != nil {
		return nil, err
	}
	return []wsapi.PermissionRequirement{
		wsapi.Require(groupPermissions[verb], auth.ActionParam{GroupID: req.ID}),
	}, nil
}

func validGroupName(name string) error {
	if name == "" || len(name) > maxGroupNameLength {
		return apierr.NewDomain("group name must be 1 to 64 characters", nil)
	}
	return nil
}

// Create adds a group.
func (r *GroupResource) Create(ctx context.Context, payload json.RawMessage) (wsapi.Result, error) {
	req, err := decode(payload)
	if err != nil {
		return wsapi.Result{}, err
	}
	var attrs groupAttributes
	if err := req.attributes(&attrs); err != nil {
		return wsapi.Result{}, err
	}
	if attrs.Name == nil {
		return wsapi.Result{}, apierr.NewMalformed("name is required")
	}

	g := &auth.Group{Name: strings.TrimSpace(*attrs.Name)}
	if attrs.Description != nil {
		g.Description = *attrs.Description
	}
	if err := validGroupName(g.Name); err != nil {
		return wsapi.Result{}, err
	}

	err = r.rc.UoW.InTx(ctx, func(ctx context.Context, q database.Querier) error {
		return auth.NewGroupRepository(q).Create(ctx, g)
	})
	if errors.Is(err, auth.ErrGroupExists) {
		return wsapi.Result{}, apierr.NewDomain("group name already exists", err)
	}
	if err != nil {
		return wsapi.Result{}, err
	}
	r.rc.UoW.Remember(database.EntityKey{Kind: kindGroup, ID: g.ID}, g)
	return data(g), nil
}

// Read returns a group and its members.
func (r *GroupResource) Read(ctx context.Context, payload json.RawMessage) (wsapi.Result, error) {
	req, err := decodeTarget(payload)
	if err != nil {
		return wsapi.Result{}, err
	}
	g, err := loadGroup(ctx, r.rc, req.ID)
	if err != nil {
		return wsapi.Result{}, err
	}

	view := groupView{Group: g}
	err = r.rc.UoW.Run(ctx, func(ctx context.Context, q database.Querier) error {
		var err error
		view.Memberships, err = auth.NewMembershipRepository(q).ListForGroup(ctx, g.ID)
		return err
	})
	if err != nil {
		return wsapi.Result{}, err
	}
	return data(view), nil
}

// Update renames or re-describes a group.
func (r *GroupResource) Update(ctx context.Context, payload json.RawMessage) (wsapi.Result, error) {
	req, err := decodeTarget(payload)
	if err != nil {
		return wsapi.Result{}, err
	}
	var attrs groupAttributes
	if err := req.attributes(&attrs); err != nil {
		return wsapi.Result{}, err
	}
	g, err := loadGroup(ctx, r.rc, req.ID)
	if err != nil {
		return wsapi.Result{}, err
	}
	if err := checkVersion(kindGroup, attrs.Version, g.Version); err != nil {
		return wsapi.Result{}, err
	}

	if attrs.Name != nil {
		name := strings.TrimSpace(*attrs.Name)
		if err := validGroupName(name); err != nil {
			return wsapi.Result{}, err
		}
		g.Name = name
	}
	if attrs.Description != nil {
		g.Description = *attrs.Description
	}

	err = r.rc.UoW.InTx(ctx, func(ctx context.Context, q database.Querier) error {
		return auth.NewGroupRepository(q).Update(ctx, g)
	})
	if errors.Is(err, auth.ErrGroupExists) {
		return wsapi.Result{}, apierr.NewDomain("group name already exists", err)
	}
	if err != nil {
		return wsapi.Result{}, err
	}
	return data(g), nil
}

// Delete removes a group and its memberships.
func (r *GroupResource) Delete(ctx context.Context, payload json.RawMessage) (wsapi.Result, error) {
	req, err := decodeTarget(payload)
	if err != nil {
		return wsapi.Result{}, err
	}
	g, err := loadGroup(ctx, r.rc, req.ID)
	if err != nil {
		return wsapi.Result{}, err
	}

	err = r.rc.UoW.InTx(ctx, func(ctx context.Context, q database.Querier) error {
		return auth.NewGroupRepository(q).Delete(ctx, g.ID)
	})
	if err != nil {
		return wsapi.Result{}, err
	}
	r.rc.UoW.Forget(database.EntityKey{Kind: kindGroup, ID: g.ID})
	r.rc.Logger().Info("group deleted", "group_id", g.ID, "deleted_by", actorID(r.rc))
	return wsapi.NoContent(), nil
}
