package auth

import (
	"errors"
	"regexp"
	"time"
)

// usernamePattern defines the valid format for usernames:
// alphanumeric, dots, hyphens, underscores, 1-64 characters.
var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,64}$`)

// maxUsernameLength is the maximum allowed username length.
const maxUsernameLength = 64

// IsValidUsername checks if a username meets format requirements.
func IsValidUsername(username string) bool {
	return len(username) <= maxUsernameLength && usernamePattern.MatchString(username)
}

// Role represents an authorisation tier.
type Role string

const (
	// RoleUser is a badge holder. Can see and edit their own profile, their
	// own group memberships and the groups they belong to.
	RoleUser Role = "user"

	// RoleAdmin manages users, groups, memberships and access points, and
	// reads the audit trail.
	RoleAdmin Role = "admin"

	// RoleOwner can do everything an admin can, plus create, promote or
	// remove other owners.
	RoleOwner Role = "owner"
)

// ValidRoles is the set of valid user roles.
var ValidRoles = []Role{RoleUser, RoleAdmin, RoleOwner}

// IsValidUserRole returns true if the role is a valid role for a user account.
func IsValidUserRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// User is a person who can authenticate against the remote API.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Firstname    string    `json:"firstname"`
	Lastname     string    `json:"lastname"`
	Email        string    `json:"email,omitempty"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"rank"`
	IsActive     bool      `json:"validity_enabled"`
	Version      int       `json:"version"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// AuthToken is a stored, revocable remote API session token.
// The signed JWT handed to the client carries ID as its jti.
type AuthToken struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
	Revoked   bool      `json:"revoked"`
	CreatedAt time.Time `json:"created_at"`
}

// Valid reports whether the token is neither revoked nor expired at now.
func (t *AuthToken) Valid(now time.Time) bool {
	return !t.Revoked && now.Before(t.ExpiresAt)
}

// Group is a named set of users.
type Group struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Version     int       `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// MembershipRank is a user's standing inside a group.
type MembershipRank string

const (
	RankMember        MembershipRank = "member"
	RankOperator      MembershipRank = "operator"
	RankAdministrator MembershipRank = "administrator"
)

// IsValidRank returns true for a known membership rank.
func IsValidRank(r MembershipRank) bool {
	switch r {
	case RankMember, RankOperator, RankAdministrator:
		return true
	}
	return false
}

// Membership links a user to a group.
type Membership struct {
	ID        int64          `json:"id"`
	UserID    int64          `json:"user_id"`
	GroupID   int64          `json:"group_id"`
	Rank      MembershipRank `json:"rank"`
	CreatedAt time.Time      `json:"created_at"`
}

// Sentinel errors for auth operations.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrUserInactive       = errors.New("user account is inactive")
	ErrUsernameExists     = errors.New("username already exists")
	ErrTokenExpired       = errors.New("token has expired")
	ErrTokenRevoked       = errors.New("token has been revoked")
	ErrTokenInvalid       = errors.New("invalid token")
	ErrGroupNotFound      = errors.New("group not found")
	ErrGroupExists        = errors.New("group name already exists")
	ErrMembershipNotFound = errors.New("membership not found")
	ErrMembershipExists   = errors.New("user is already a member of this group")
)
