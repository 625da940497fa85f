package wsapi

import (
	"context"

	"github.com/nerrad567/gray-logic-access/internal/auth"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/logging"
)

// RequestContext is what a handler sees of the request it serves. It is
// valid only until the handler returns.
type RequestContext struct {
	Session *APISession
	UoW     *database.UnitOfWork
	Server  *Server

	log *logging.Logger
}

// User returns the session's identity, or nil.
func (rc *RequestContext) User() *auth.User {
	return rc.Session.User()
}

// Logger returns a logger tagged with the request's connection, id and
// method.
func (rc *RequestContext) Logger() *logging.Logger {
	if rc.log == nil {
		return rc.Server.logger
	}
	return rc.log
}

// Check evaluates one permission requirement for the session's identity.
func (rc *RequestContext) Check(ctx context.Context, req PermissionRequirement) (bool, error) {
	var allowed bool
	err := rc.UoW.Run(ctx, func(ctx context.Context, q database.Querier) error {
		var err error
		allowed, err = rc.Server.authz.Check(ctx, q, rc.Session.User(), req.Permission, req.Param)
		return err
	})
	return allowed, err
}

// Tokens returns the token service for handlers that revoke tokens.
func (rc *RequestContext) Tokens() *auth.TokenService {
	return rc.Server.tokens
}
