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

type membershipAttributes struct {
	UserID  int64               `json:"user_id"`
	GroupID int64               `json:"group_id"`
	Rank    auth.MembershipRank `json:"rank"`
}

// membershipQuery selects one membership by id, or all memberships of a
// user.
type membershipQuery struct {
	ID     int64 `json:"id"`
	UserID int64 `json:"user_id"`
}

// MembershipResource serves membership_create, membership_get and
// membership_delete.
type MembershipResource struct {
	wsapi.BaseResource
	rc *wsapi.RequestContext
}

// NewMembershipResource is the ResourceFactory for memberships.
func NewMembershipResource(rc *wsapi.RequestContext) wsapi.ResourceHandler {
	return &MembershipResource{rc: rc}
}

func decodeQuery(payload json.RawMessage) (membershipQuery, error) {
	var mq membershipQuery
	if err := json.Unmarshal(payload, &mq); err != nil {
		return mq, apierr.NewMalformed("invalid payload: %v", err)
	}
	if (mq.ID <= 0) == (mq.UserID <= 0) {
		return mq, apierr.NewMalformed("exactly one of %q or %q is required", "id", "user_id")
	}
	return mq, nil
}

// RequiredPermissions lets users read their own memberships; creating
// and deleting need the membership permissions.
func (r *MembershipResource) RequiredPermissions(ctx context.Context, verb wsapi.Verb, payload json.RawMessage) ([]wsapi.PermissionRequirement, error) {
	switch verb {
	case wsapi.VerbCreate:
		return []wsapi.PermissionRequirement{wsapi.Require(auth.PermMembershipCreate, auth.ActionParam{})}, nil

	case wsapi.VerbRead:
		mq, err := decodeQuery(payload)
		if err != nil {
			return nil, err
		}
		param := auth.ActionParam{UserID: mq.UserID}
		if mq.ID > 0 {
			m, err := loadMembership(ctx, r.rc, mq.ID)
			switch {
			case notFound(err):
			case err != nil:
				return nil, err
			default:
				param = auth.ActionParam{UserID: m.UserID, GroupID: m.GroupID}
			}
		}
		return []wsapi.PermissionRequirement{wsapi.Require(auth.PermMembershipRead, param)}, nil

	case wsapi.VerbDelete:
		return []wsapi.PermissionRequirement{wsapi.Require(auth.PermMembershipDelete, auth.ActionParam{})}, nil
	}
	return nil, nil
}

// Create adds a user to a group.
func (r *MembershipResource) Create(ctx context.Context, payload json.RawMessage) (wsapi.Result, error) {
	req, err := decode(payload)
	if err != nil {
		return wsapi.Result{}, err
	}
	var attrs membershipAttributes
	if err := req.attributes(&attrs); err != nil {
		return wsapi.Result{}, err
	}
	if attrs.UserID <= 0 || attrs.GroupID <= 0 {
		return wsapi.Result{}, apierr.NewMalformed("user_id and group_id are required")
	}
	if attrs.Rank != "" && !auth.IsValidRank(attrs.Rank) {
		return wsapi.Result{}, apierr.NewDomain("invalid membership rank", nil)
	}

	m := &auth.Membership{UserID: attrs.UserID, GroupID: attrs.GroupID, Rank: attrs.Rank}
	err = r.rc.UoW.InTx(ctx, func(ctx context.Context, q database.Querier) error {
		return auth.NewMembershipRepository(q).Create(ctx, m)
	})
	switch {
	case errors.Is(err, auth.ErrUserNotFound):
		return wsapi.Result{}, apierr.NewEntityNotFound(kindUser, attrs.UserID)
	case errors.Is(err, auth.ErrGroupNotFound):
		return wsapi.Result{}, apierr.NewEntityNotFound(kindGroup, attrs.GroupID)
	case errors.Is(err, auth.ErrMembershipExists):
		return wsapi.Result{}, apierr.NewDomain("user is already a member of this group", err)
	case err != nil:
		return wsapi.Result{}, err
	}
	r.rc.UoW.Remember(database.EntityKey{Kind: kindMembership, ID: m.ID}, m)
	return data(m), nil
}

// Read returns one membership by id, or every membership of user_id.
func (r *MembershipResource) Read(ctx context.Context, payload json.RawMessage) (wsapi.Result, error) {
	mq, err := decodeQuery(payload)
	if err != nil {
		return wsapi.Result{}, err
	}
	if mq.ID > 0 {
		m, err := loadMembership(ctx, r.rc, mq.ID)
		if err != nil {
			return wsapi.Result{}, err
		}
		return data(m), nil
	}

	if _, err := loadUser(ctx, r.rc, mq.UserID); err != nil {
		return wsapi.Result{}, err
	}
	var list []auth.Membership
	err = r.rc.UoW.Run(ctx, func(ctx context.Context, q database.Querier) error {
		var err error
		list, err = auth.NewMembershipRepository(q).ListForUser(ctx, mq.UserID)
		return err
	})
	if err != nil {
		return wsapi.Result{}, err
	}
	return data(list), nil
}

// Delete removes a user from a group.
func (r *MembershipResource) Delete(ctx context.Context, payload json.RawMessage) (wsapi.Result, error) {
	req, err := decodeTarget(payload)
	if err != nil {
		return wsapi.Result{}, err
	}
	m, err := loadMembership(ctx, r.rc, req.ID)
	if err != nil {
		return wsapi.Result{}, err
	}
	err = r.rc.UoW.InTx(ctx, func(ctx context.Context, q database.Querier) error {
		return auth.NewMembershipRepository(q).Delete(ctx, m.ID)
	})
	if err != nil {
		return wsapi.Result{}, err
	}
	r.rc.UoW.Forget(database.EntityKey{Kind: kindMembership, ID: m.ID})
	return wsapi.NoContent(), nil
}
