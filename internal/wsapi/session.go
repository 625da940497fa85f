package wsapi

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/nerrad567/gray-logic-access/internal/accesspoint"
	"github.com/nerrad567/gray-logic-access/internal/apierr"
	"github.com/nerrad567/gray-logic-access/internal/audit"
	"github.com/nerrad567/gray-logic-access/internal/auth"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/database"
)

// Session method names.
const (
	MethodGetVersion            = "get_version"
	MethodCreateAuthToken       = "create_auth_token"
	MethodAuthenticateWithToken = "authenticate_with_token"
	MethodLogout                = "logout"
	MethodSystemOverview        = "system_overview"
)

// RegisterSessionMethods adds the session-bound methods to reg.
func RegisterSessionMethods(reg *Registry) {
	reg.RegisterSessionMethod(MethodGetVersion, (*APISession).GetVersion)
	reg.RegisterSessionMethod(MethodCreateAuthToken, (*APISession).CreateAuthToken)
	reg.RegisterSessionMethod(MethodAuthenticateWithToken, (*APISession).AuthenticateWithToken)
	reg.RegisterSessionMethod(MethodLogout, (*APISession).Logout)
	reg.RegisterSessionMethod(MethodSystemOverview, (*APISession).SystemOverview)
}

// APISession is the authentication state of one connection.
//
// The identity is set by create_auth_token or authenticate_with_token and
// cleared only by logout, by re-authentication, or when the session's
// token stops being valid.
type APISession struct {
	conn    Conn
	limiter *rate.Limiter

	mu      sync.Mutex
	user    *auth.User
	tokenID string
	caps    map[string]bool
}

func newAPISession(conn Conn) *APISession {
	return &APISession{conn: conn, caps: make(map[string]bool)}
}

// Conn returns the session's connection.
func (s *APISession) Conn() Conn { return s.conn }

// User returns the authenticated identity, or nil.
func (s *APISession) User() *auth.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

// UserID returns the identity's ID, or nil when unauthenticated.
func (s *APISession) UserID() *int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return nil
	}
	id := s.user.ID
	return &id
}

// TokenID returns the stored token the session authenticated with.
func (s *APISession) TokenID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokenID
}

func (s *APISession) setIdentity(user *auth.User, tokenID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = user
	s.tokenID = tokenID
	clear(s.caps)
}

func (s *APISession) reset() {
	s.setIdentity(nil, "")
}

// refresh swaps in a freshly loaded copy of the identity if the session is
// still bound to tokenID. Cached capabilities are dropped when the role or
// active state changed.
func (s *APISession) refresh(tokenID string, user *auth.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tokenID != tokenID || s.user == nil {
		return
	}
	if s.user.Role != user.Role || s.user.IsActive != user.IsActive {
		clear(s.caps)
	}
	s.user = user
}

// allowRequest consumes one request from the rate limiter, if any.
func (s *APISession) allowRequest() bool {
	return s.limiter == nil || s.limiter.Allow()
}

// Allowed is the capability check for session methods. Results are cached
// until the identity changes.
func (s *APISession) Allowed(method string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := s.caps[method]; ok {
		return v
	}

	var allowed bool
	switch method {
	case MethodGetVersion, MethodCreateAuthToken, MethodAuthenticateWithToken:
		allowed = true
	case MethodLogout:
		allowed = s.user != nil
	case MethodSystemOverview:
		allowed = s.user != nil && s.user.IsActive && auth.HasPermission(s.user.Role, auth.PermSystemOverview)
	}
	s.caps[method] = allowed
	return allowed
}

// ensureValid re-checks the session's token and reloads its user, so role
// changes apply to sessions that are already open. A revoked, expired or
// deleted token, or a deactivated user, resets the session and aborts the
// request.
func (s *APISession) ensureValid(ctx context.Context, rc *RequestContext) error {
	tokenID := s.TokenID()
	if tokenID == "" {
		return nil
	}

	var user *auth.User
	err := rc.UoW.Run(ctx, func(ctx context.Context, q database.Querier) error {
		token, err := rc.Server.tokens.CheckToken(ctx, q, tokenID)
		if err != nil {
			return err
		}
		user, err = auth.NewUserRepository(q).GetByID(ctx, token.UserID)
		return err
	})
	if err == nil && !user.IsActive {
		err = auth.ErrUserInactive
	}
	if err == nil {
		s.refresh(tokenID, user)
		return nil
	}
	if isTokenFailure(err) {
		s.reset()
		return apierr.NewSessionAborted("session token is no longer valid")
	}
	return err
}

func isTokenFailure(err error) bool {
	return errors.Is(err, auth.ErrTokenRevoked) ||
		errors.Is(err, auth.ErrTokenExpired) ||
		errors.Is(err, auth.ErrTokenInvalid) ||
		errors.Is(err, auth.ErrUserInactive) ||
		errors.Is(err, auth.ErrUserNotFound)
}

// GetVersion returns the gateway version.
func (s *APISession) GetVersion(_ context.Context, rc *RequestContext, _ json.RawMessage) (Result, error) {
	return Content(map[string]string{"version": rc.Server.version}), nil
}

type createAuthTokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// CreateAuthToken authenticates with a username and password, stores a
// new token and binds the session to the user. The session's previous
// token is revoked. Bad credentials leave the session as it was.
func (s *APISession) CreateAuthToken(ctx context.Context, rc *RequestContext, payload json.RawMessage) (Result, error) {
	var req createAuthTokenRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return Result{}, apierr.NewMalformed("invalid create_auth_token payload")
	}
	if req.Username == "" || req.Password == "" {
		return Result{}, apierr.NewMalformed("username and password are required")
	}

	previous := s.TokenID()

	var (
		user   *auth.User
		token  *auth.AuthToken
		signed string
	)
	err := rc.UoW.InTx(ctx, func(ctx context.Context, q database.Querier) error {
		var err error
		if user, err = rc.Server.tokens.Authenticate(ctx, q, req.Username, req.Password); err != nil {
			return err
		}
		if signed, token, err = rc.Server.tokens.IssueToken(ctx, q, user); err != nil {
			return err
		}
		if previous == "" {
			return nil
		}
		return rc.Server.tokens.RevokeToken(ctx, q, previous)
	})
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) || errors.Is(err, auth.ErrUserInactive) {
			return Result{}, apierr.NewDomain("invalid credentials", err)
		}
		return Result{}, err
	}

	s.setIdentity(user, token.ID)
	rc.Server.logger.Info("session authenticated", "conn", s.conn.ID(), "user_id", user.ID)

	return Content(map[string]any{
		"token":      signed,
		"user_id":    user.ID,
		"username":   user.Username,
		"expires_at": token.ExpiresAt.UTC().Format(time.RFC3339),
	}), nil
}

type authenticateWithTokenRequest struct {
	Token string `json:"token"`
}

// AuthenticateWithToken binds the session to the owner of a previously
// issued token.
func (s *APISession) AuthenticateWithToken(ctx context.Context, rc *RequestContext, payload json.RawMessage) (Result, error) {
	var req authenticateWithTokenRequest
	if err := json.Unmarshal(payload, &req); err != nil || req.Token == "" {
		return Result{}, apierr.NewMalformed("token is required")
	}

	s.reset()

	var (
		user  *auth.User
		token *auth.AuthToken
	)
	err := rc.UoW.Run(ctx, func(ctx context.Context, q database.Querier) error {
		var err error
		user, token, err = rc.Server.tokens.ValidateToken(ctx, q, req.Token)
		return err
	})
	if err != nil {
		if isTokenFailure(err) {
			return Result{}, apierr.NewDomain("invalid or expired token", err)
		}
		return Result{}, err
	}

	s.setIdentity(user, token.ID)
	return Content(map[string]any{
		"user_id":  user.ID,
		"username": user.Username,
		"rank":     user.Role,
	}), nil
}

// Logout revokes the session's token and clears its identity.
func (s *APISession) Logout(ctx context.Context, rc *RequestContext, _ json.RawMessage) (Result, error) {
	tokenID := s.TokenID()
	err := rc.UoW.InTx(ctx, func(ctx context.Context, q database.Querier) error {
		return rc.Server.tokens.RevokeToken(ctx, q, tokenID)
	})
	if err != nil {
		return Result{}, err
	}
	s.reset()
	return NoContent(), nil
}

// SystemOverview summarises the state of the gateway.
func (s *APISession) SystemOverview(ctx context.Context, rc *RequestContext, _ json.RawMessage) (Result, error) {
	overview := map[string]any{
		"version":         rc.Server.version,
		"uptime_seconds":  int64(time.Since(rc.Server.started).Seconds()),
		"active_sessions": rc.Server.sessions.Len(),
	}

	err := rc.UoW.Run(ctx, func(ctx context.Context, q database.Querier) error {
		users, err := auth.NewUserRepository(q).Count(ctx)
		if err != nil {
			return err
		}
		groups, err := auth.NewGroupRepository(q).Count(ctx)
		if err != nil {
			return err
		}
		points, err := accesspoint.NewRepository(q).List(ctx)
		if err != nil {
			return err
		}
		calls, err := audit.NewRepository(q).List(ctx, audit.Filter{Limit: 1})
		if err != nil {
			return err
		}
		overview["users"] = users
		overview["groups"] = groups
		overview["access_points"] = len(points)
		overview["audited_calls"] = calls.Total
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return Content(overview), nil
}
