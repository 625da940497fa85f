package resources

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/nerrad567/gray-logic-access/internal/accesspoint"
	"github.com/nerrad567/gray-logic-access/internal/apierr"
	"github.com/nerrad567/gray-logic-access/internal/auth"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-access/internal/wsapi"
)

type accessPointAttributes struct {
	Alias            *string `json:"alias"`
	Description      *string `json:"description"`
	ControllerModule *string `json:"controller_module"`
	Version          int     `json:"version"`
}

// AccessPointResource serves access_point_create, _get, _put and _delete.
// access_point_get without an id lists every access point.
type AccessPointResource struct {
	wsapi.BaseResource
	rc *wsapi.RequestContext
}

// NewAccessPointResource is the ResourceFactory for access points.
func NewAccessPointResource(rc *wsapi.RequestContext) wsapi.ResourceHandler {
	return &AccessPointResource{rc: rc}
}

var accessPointPermissions = map[wsapi.Verb]auth.Permission{
	wsapi.VerbCreate: auth.PermAccessPointCreate,
	wsapi.VerbRead:   auth.PermAccessPointRead,
	wsapi.VerbUpdate: auth.PermAccessPointUpdate,
	wsapi.VerbDelete: auth.PermAccessPointDelete,
}

// RequiredPermissions maps each verb to its access_point permission.
func (r *AccessPointResource) RequiredPermissions(_ context.Context, verb wsapi.Verb, _ json.RawMessage) ([]wsapi.PermissionRequirement, error) {
	return []wsapi.PermissionRequirement{wsapi.Require(accessPointPermissions[verb], auth.ActionParam{})}, nil
}

// accessPointError turns package errors into client-facing failures.
func accessPointError(id int64, err error) error {
	switch {
	case errors.Is(err, accesspoint.ErrNotFound):
		return apierr.NewEntityNotFound(kindAccessPoint, id)
	case errors.Is(err, accesspoint.ErrAliasExists):
		return apierr.NewDomain("alias already in use", err)
	case errors.Is(err, accesspoint.ErrInvalidAlias):
		return apierr.NewDomain("invalid alias", err)
	case errors.Is(err, accesspoint.ErrInvalidController):
		return apierr.NewDomain("invalid controller module", err)
	case errors.Is(err, accesspoint.ErrDescriptionTooLong):
		return apierr.NewDomain("description too long", err)
	}
	return err
}

func (r *AccessPointResource) load(ctx context.Context, id int64) (*accesspoint.AccessPoint, error) {
	ap, err := database.Load(ctx, r.rc.UoW, database.EntityKey{Kind: kindAccessPoint, ID: id},
		func(ctx context.Context, q database.Querier) (*accesspoint.AccessPoint, error) {
			return accesspoint.NewRepository(q).GetByID(ctx, id)
		})
	if err != nil {
		return nil, accessPointError(id, err)
	}
	return ap, nil
}

func (a accessPointAttributes) apply(ap *accesspoint.AccessPoint) {
	if a.Alias != nil {
		ap.Alias = *a.Alias
	}
	if a.Description != nil {
		ap.Description = *a.Description
	}
	if a.ControllerModule != nil {
		ap.ControllerModule = *a.ControllerModule
	}
}

// Create adds an access point.
func (r *AccessPointResource) Create(ctx context.Context, payload json.RawMessage) (wsapi.Result, error) {
	req, err := decode(payload)
	if err != nil {
		return wsapi.Result{}, err
	}
	var attrs accessPointAttributes
	if err := req.attributes(&attrs); err != nil {
		return wsapi.Result{}, err
	}

	ap := &accesspoint.AccessPoint{}
	attrs.apply(ap)
	err = r.rc.UoW.InTx(ctx, func(ctx context.Context, q database.Querier) error {
		return accesspoint.NewRepository(q).Create(ctx, ap)
	})
	if err != nil {
		return wsapi.Result{}, accessPointError(0, err)
	}
	r.rc.UoW.Remember(database.EntityKey{Kind: kindAccessPoint, ID: ap.ID}, ap)
	r.rc.Logger().Info("access point created", "access_point_id", ap.ID, "alias", ap.Alias, "created_by", actorID(r.rc))
	return data(ap), nil
}

// Read returns one access point by id, or all of them when id is absent.
func (r *AccessPointResource) Read(ctx context.Context, payload json.RawMessage) (wsapi.Result, error) {
	req, err := decode(payload)
	if err != nil {
		return wsapi.Result{}, err
	}
	if req.ID > 0 {
		ap, err := r.load(ctx, req.ID)
		if err != nil {
			return wsapi.Result{}, err
		}
		return data(ap), nil
	}

	var list []accesspoint.AccessPoint
	err = r.rc.UoW.Run(ctx, func(ctx context.Context, q database.Querier) error {
		var err error
		list, err = accesspoint.NewRepository(q).List(ctx)
		return err
	})
	if err != nil {
		return wsapi.Result{}, err
	}
	return data(list), nil
}

// Update patches an access point's alias, description or controller.
func (r *AccessPointResource) Update(ctx context.Context, payload json.RawMessage) (wsapi.Result, error) {
	req, err := decodeTarget(payload)
	if err != nil {
		return wsapi.Result{}, err
	}
	var attrs accessPointAttributes
	if err := req.attributes(&attrs); err != nil {
		return wsapi.Result{}, err
	}
	ap, err := r.load(ctx, req.ID)
	if err != nil {
		return wsapi.Result{}, err
	}
	if err := checkVersion(kindAccessPoint, attrs.Version, ap.Version); err != nil {
		return wsapi.Result{}, err
	}

	attrs.apply(ap)
	err = r.rc.UoW.InTx(ctx, func(ctx context.Context, q database.Querier) error {
		return accesspoint.NewRepository(q).Update(ctx, ap)
	})
	if err != nil {
		return wsapi.Result{}, accessPointError(ap.ID, err)
	}
	return data(ap), nil
}

// Delete removes an access point.
func (r *AccessPointResource) Delete(ctx context.Context, payload json.RawMessage) (wsapi.Result, error) {
	req, err := decodeTarget(payload)
	if err != nil {
		return wsapi.Result{}, err
	}
	err = r.rc.UoW.InTx(ctx, func(ctx context.Context, q database.Querier) error {
		return accesspoint.NewRepository(q).Delete(ctx, req.ID)
	})
	if err != nil {
		return wsapi.Result{}, accessPointError(req.ID, err)
	}
	r.rc.UoW.Forget(database.EntityKey{Kind: kindAccessPoint, ID: req.ID})
	r.rc.Logger().Info("access point deleted", "access_point_id", req.ID, "deleted_by", actorID(r.rc))
	return wsapi.NoContent(), nil
}
