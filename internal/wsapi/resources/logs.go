package resources

import (
	"context"
	"encoding/json"

	"github.com/nerrad567/gray-logic-access/internal/apierr"
	"github.com/nerrad567/gray-logic-access/internal/audit"
	"github.com/nerrad567/gray-logic-access/internal/auth"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-access/internal/wsapi"
)

// MethodGetLogs reads the remote API audit trail.
const MethodGetLogs = "get_logs"

type logQuery struct {
	Limit      int    `json:"limit"`
	Offset     int    `json:"offset"`
	Method     string `json:"method"`
	AuthorID   int64  `json:"author_id"`
	StatusCode *int   `json:"status_code"`
}

// LogResource serves get_logs.
type LogResource struct {
	wsapi.BaseResource
	rc *wsapi.RequestContext
}

// NewLogResource is the ResourceFactory for get_logs.
func NewLogResource(rc *wsapi.RequestContext) wsapi.ResourceHandler {
	return &LogResource{rc: rc}
}

// RequiredPermissions requires log:read for every verb.
func (r *LogResource) RequiredPermissions(context.Context, wsapi.Verb, json.RawMessage) ([]wsapi.PermissionRequirement, error) {
	return []wsapi.PermissionRequirement{wsapi.Require(auth.PermLogRead, auth.ActionParam{})}, nil
}

// Read returns one page of audited calls, newest first.
func (r *LogResource) Read(ctx context.Context, payload json.RawMessage) (wsapi.Result, error) {
	var lq logQuery
	if err := json.Unmarshal(payload, &lq); err != nil {
		return wsapi.Result{}, apierr.NewMalformed("invalid payload: %v", err)
	}
	if lq.Limit < 0 || lq.Offset < 0 {
		return wsapi.Result{}, apierr.NewMalformed("limit and offset must not be negative")
	}

	var page *audit.ListResult
	err := r.rc.UoW.Run(ctx, func(ctx context.Context, q database.Querier) error {
		var err error
		page, err = audit.NewRepository(q).List(ctx, audit.Filter{
			AuthorID:   lq.AuthorID,
			Method:     lq.Method,
			StatusCode: lq.StatusCode,
			Limit:      lq.Limit,
			Offset:     lq.Offset,
		})
		return err
	})
	if err != nil {
		return wsapi.Result{}, err
	}

	return wsapi.Content(map[string]any{
		"data": page.Calls,
		"meta": map[string]int{
			"total":  page.Total,
			"limit":  page.Limit,
			"offset": page.Offset,
		},
	}), nil
}
