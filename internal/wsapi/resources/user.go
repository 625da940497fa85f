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

const minPasswordLength = 8

type userAttributes struct {
	Username        *string    `json:"username"`
	Firstname       *string    `json:"firstname"`
	Lastname        *string    `json:"lastname"`
	Email           *string    `json:"email"`
	Password        *string    `json:"password"`
	Rank            *auth.Role `json:"rank"`
	ValidityEnabled *bool      `json:"validity_enabled"`
	Version         int        `json:"version"`
}

// userView is a user with its group memberships.
type userView struct {
	*auth.User
	Memberships []auth.Membership `json:"memberships"`
}

// UserResource serves user_create, user_get, user_put and user_delete.
type UserResource struct {
	wsapi.BaseResource
	rc *wsapi.RequestContext
}

// NewUserResource is the ResourceFactory for users.
func NewUserResource(rc *wsapi.RequestContext) wsapi.ResourceHandler {
	return &UserResource{rc: rc}
}

// RequiredPermissions adds user:manage_role to rank or validity changes and
// user:manage_owner to any operation touching an owner account.
func (r *UserResource) RequiredPermissions(ctx context.Context, verb wsapi.Verb, payload json.RawMessage) ([]wsapi.PermissionRequirement, error) {
	if verb == wsapi.VerbCreate {
		req, err := decode(payload)
		if err != nil {
			return nil, err
		}
		var attrs userAttributes
		if err := req.attributes(&attrs); err != nil {
			return nil, err
		}
		reqs := []wsapi.PermissionRequirement{wsapi.Require(auth.PermUserCreate, auth.ActionParam{})}
		if attrs.Rank != nil && *attrs.Rank != auth.RoleUser {
			reqs = append(reqs, wsapi.Require(auth.PermUserManageRole, auth.ActionParam{}))
		}
		if attrs.Rank != nil && *attrs.Rank == auth.RoleOwner {
			reqs = append(reqs, wsapi.Require(auth.PermUserManageOwner, auth.ActionParam{}))
		}
		return reqs, nil
	}

	req, err := decodeTarget(payload)
	if err != nil {
		return nil, err
	}
	param := auth.ActionParam{UserID: req.ID}

	switch verb {
	case wsapi.VerbRead:
		return []wsapi.PermissionRequirement{wsapi.Require(auth.PermUserRead, param)}, nil

	case wsapi.VerbUpdate:
		var attrs userAttributes
		if err := req.attributes(&attrs); err != nil {
			return nil, err
		}
		reqs := []wsapi.PermissionRequirement{wsapi.Require(auth.PermUserUpdate, param)}
		target, err := loadUser(ctx, r.rc, req.ID)
		if notFound(err) {
			return reqs, nil
		}
		if err != nil {
			return nil, err
		}
		if attrs.Rank != nil && *attrs.Rank != target.Role {
			reqs = append(reqs, wsapi.Require(auth.PermUserManageRole, param))
		}
		if attrs.ValidityEnabled != nil && *attrs.ValidityEnabled != target.IsActive {
			reqs = append(reqs, wsapi.Require(auth.PermUserManageRole, param))
		}
		if target.Role == auth.RoleOwner || (attrs.Rank != nil && *attrs.Rank == auth.RoleOwner) {
			reqs = append(reqs, wsapi.Require(auth.PermUserManageOwner, param))
		}
		return reqs, nil

	case wsapi.VerbDelete:
		reqs := []wsapi.PermissionRequirement{wsapi.Require(auth.PermUserDelete, param)}
		target, err := loadUser(ctx, r.rc, req.ID)
		if notFound(err) {
			return reqs, nil
		}
		if err != nil {
			return nil, err
		}
		if target.Role == auth.RoleOwner {
			reqs = append(reqs, wsapi.Require(auth.PermUserManageOwner, param))
		}
		return reqs, nil
	}
	return nil, nil
}

// Create adds a user account.
func (r *UserResource) Create(ctx context.Context, payload json.RawMessage) (wsapi.Result, error) {
	req, err := decode(payload)
	if err != nil {
		return wsapi.Result{}, err
	}
	var attrs userAttributes
	if err := req.attributes(&attrs); err != nil {
		return wsapi.Result{}, err
	}
	if attrs.Username == nil || attrs.Password == nil {
		return wsapi.Result{}, apierr.NewMalformed("username and password are required")
	}

	user := &auth.User{
		Username: strings.TrimSpace(*attrs.Username),
		Role:     auth.RoleUser,
		IsActive: true,
	}
	if !auth.IsValidUsername(user.Username) {
		return wsapi.Result{}, apierr.NewDomain("invalid username", nil)
	}
	if len(*attrs.Password) < minPasswordLength {
		return wsapi.Result{}, apierr.NewDomain("password must be at least 8 characters", nil)
	}
	if attrs.Rank != nil {
		if !auth.IsValidUserRole(*attrs.Rank) {
			return wsapi.Result{}, apierr.NewDomain("invalid rank", nil)
		}
		user.Role = *attrs.Rank
	}
	applyProfile(user, attrs)
	if attrs.ValidityEnabled != nil {
		user.IsActive = *attrs.ValidityEnabled
	}

	if user.PasswordHash, err = auth.HashPassword(*attrs.Password); err != nil {
		return wsapi.Result{}, err
	}

	err = r.rc.UoW.InTx(ctx, func(ctx context.Context, q database.Querier) error {
		return auth.NewUserRepository(q).Create(ctx, user)
	})
	if errors.Is(err, auth.ErrUsernameExists) {
		return wsapi.Result{}, apierr.NewDomain("username already exists", err)
	}
	if err != nil {
		return wsapi.Result{}, err
	}
	r.rc.UoW.Remember(database.EntityKey{Kind: kindUser, ID: user.ID}, user)

	r.rc.Logger().Info("user created", "user_id", user.ID, "rank", user.Role, "created_by", actorID(r.rc))
	return data(user), nil
}

// Read returns a user and its memberships.
func (r *UserResource) Read(ctx context.Context, payload json.RawMessage) (wsapi.Result, error) {
	req, err := decodeTarget(payload)
	if err != nil {
		return wsapi.Result{}, err
	}
	user, err := loadUser(ctx, r.rc, req.ID)
	if err != nil {
		return wsapi.Result{}, err
	}

	view := userView{User: user}
	err = r.rc.UoW.Run(ctx, func(ctx context.Context, q database.Querier) error {
		var err error
		view.Memberships, err = auth.NewMembershipRepository(q).ListForUser(ctx, user.ID)
		return err
	})
	if err != nil {
		return wsapi.Result{}, err
	}
	return data(view), nil
}

// Update patches a user. A password change or deactivation revokes every
// token of the user.
func (r *UserResource) Update(ctx context.Context, payload json.RawMessage) (wsapi.Result, error) {
	req, err := decodeTarget(payload)
	if err != nil {
		return wsapi.Result{}, err
	}
	var attrs userAttributes
	if err := req.attributes(&attrs); err != nil {
		return wsapi.Result{}, err
	}

	user, err := loadUser(ctx, r.rc, req.ID)
	if err != nil {
		return wsapi.Result{}, err
	}
	if err := checkVersion(kindUser, attrs.Version, user.Version); err != nil {
		return wsapi.Result{}, err
	}

	self := r.rc.User()
	isSelf := self != nil && self.ID == user.ID
	switch {
	case attrs.Username != nil && strings.TrimSpace(*attrs.Username) != user.Username:
		return wsapi.Result{}, apierr.NewDomain("username cannot be changed", nil)
	case attrs.Rank != nil && !auth.IsValidUserRole(*attrs.Rank):
		return wsapi.Result{}, apierr.NewDomain("invalid rank", nil)
	case isSelf && attrs.Rank != nil && *attrs.Rank != user.Role:
		return wsapi.Result{}, apierr.NewDomain("cannot change your own rank", nil)
	case isSelf && attrs.ValidityEnabled != nil && !*attrs.ValidityEnabled:
		return wsapi.Result{}, apierr.NewDomain("cannot disable your own account", nil)
	case attrs.Password != nil && len(*attrs.Password) < minPasswordLength:
		return wsapi.Result{}, apierr.NewDomain("password must be at least 8 characters", nil)
	}

	var hash string
	if attrs.Password != nil {
		if hash, err = auth.HashPassword(*attrs.Password); err != nil {
			return wsapi.Result{}, err
		}
	}

	applyProfile(user, attrs)
	if attrs.Rank != nil {
		user.Role = *attrs.Rank
	}
	if attrs.ValidityEnabled != nil {
		user.IsActive = *attrs.ValidityEnabled
	}

	err = r.rc.UoW.InTx(ctx, func(ctx context.Context, q database.Querier) error {
		users := auth.NewUserRepository(q)
		if err := users.Update(ctx, user); err != nil {
			return err
		}
		if hash == "" && user.IsActive {
			return nil
		}
		if hash != "" {
			if err := users.UpdatePassword(ctx, user.ID, hash); err != nil {
				return err
			}
		}
		return auth.NewTokenRepository(q).RevokeAllForUser(ctx, user.ID)
	})
	if err != nil {
		return wsapi.Result{}, err
	}

	r.rc.Logger().Info("user updated", "user_id", user.ID, "updated_by", actorID(r.rc))
	return data(user), nil
}

// Delete removes a user. Users cannot delete themselves.
func (r *UserResource) Delete(ctx context.Context, payload json.RawMessage) (wsapi.Result, error) {
	req, err := decodeTarget(payload)
	if err != nil {
		return wsapi.Result{}, err
	}
	user, err := loadUser(ctx, r.rc, req.ID)
	if err != nil {
		return wsapi.Result{}, err
	}
	if self := r.rc.User(); self != nil && self.ID == user.ID {
		return wsapi.Result{}, apierr.NewDomain("cannot delete your own account", nil)
	}

	err = r.rc.UoW.InTx(ctx, func(ctx context.Context, q database.Querier) error {
		return auth.NewUserRepository(q).Delete(ctx, user.ID)
	})
	if err != nil {
		return wsapi.Result{}, err
	}
	r.rc.UoW.Forget(database.EntityKey{Kind: kindUser, ID: user.ID})

	r.rc.Logger().Info("user deleted", "user_id", user.ID, "deleted_by", actorID(r.rc))
	return wsapi.NoContent(), nil
}

func applyProfile(u *auth.User, attrs userAttributes) {
	if attrs.Firstname != nil {
		u.Firstname = strings.TrimSpace(*attrs.Firstname)
	}
	if attrs.Lastname != nil {
		u.Lastname = strings.TrimSpace(*attrs.Lastname)
	}
	if attrs.Email != nil {
		u.Email = strings.TrimSpace(*attrs.Email)
	}
}
