package dispatch

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/strataops/atrium/internal/authorization"
	"github.com/strataops/atrium/internal/dispatch/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Registry *Registry
	Executor domain.Executor
	Authz    authorization.Service
}

// Dispatcher validates and authorizes a request, then hands it to the
// executor. Validation and permission failures reject synchronously: nothing
// is written to the ledger for them, so they never burn an idempotency key.
type Dispatcher struct {
	log      *zap.Logger
	registry *Registry
	executor domain.Executor
	authz    authorization.Service
}

func New(p Params) domain.Service {
	return &Dispatcher{
		log:      p.Log.Named("dispatch"),
		registry: p.Registry,
		executor: p.Executor,
		authz:    p.Authz,
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, req domain.Request) (*domain.Result, error) {
	req.Key = strings.TrimSpace(req.Key)
	if _, err := uuid.Parse(req.Key); err != nil {
		return nil, domain.ErrInvalidKey
	}
	if req.OrgID == 0 {
		return nil, domain.ErrMissingOrg
	}
	if !req.Action.Valid() {
		return nil, domain.ErrInvalidAction
	}
	if strings.TrimSpace(req.Actor) == "" {
		return nil, domain.ErrInvalidActor
	}

	spec, ok := d.registry.Lookup(req.Action)
	if !ok {
		return nil, domain.ErrUnknownAction
	}

	if err := d.authz.Authorize(ctx, req.Actor, req.OrgID.String(), spec.Object, spec.Verb); err != nil {
		return nil, err
	}

	result, err := d.executor.Execute(ctx, req, spec)
	if err != nil {
		d.log.Debug("dispatch failed",
			zap.String("action", string(req.Action)),
			zap.String("key", req.Key),
			zap.Error(err),
		)
		return nil, err
	}
	return result, nil
}
