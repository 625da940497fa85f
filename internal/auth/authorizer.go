package auth

import (
	"context"

	"github.com/nerrad567/gray-logic-access/internal/infrastructure/database"
)

// ActionParam identifies the object an action is performed on.
// Zero fields mean "not applicable".
type ActionParam struct {
	UserID  int64
	GroupID int64
}

// Engine decides whether an identity may perform an action.
//
// Role grants are checked first. For RoleUser the engine then applies
// object-scoped rules:
//   - user:read and user:update on their own account
//   - group:read on groups they are a member of
//   - membership:read on their own memberships
//
// A nil or inactive identity is denied everything.
type Engine struct{}

// NewEngine returns the authorization engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Check reports whether user may perform perm on param. Membership lookups
// run on q so they join the caller's unit of work.
func (e *Engine) Check(ctx context.Context, q database.Querier, user *User, perm Permission, param ActionParam) (bool, error) {
	if user == nil || !user.IsActive {
		return false, nil
	}

	if HasPermission(user.Role, perm) {
		return true, nil
	}

	if user.Role != RoleUser {
		return false, nil
	}

	switch perm {
	case PermUserRead, PermUserUpdate, PermMembershipRead:
		return param.UserID != 0 && param.UserID == user.ID, nil
	case PermGroupRead:
		if param.GroupID == 0 {
			return false, nil
		}
		return NewMembershipRepository(q).IsMember(ctx, user.ID, param.GroupID)
	default:
		return false, nil
	}
}
