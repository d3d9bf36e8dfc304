package dispatch

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/strataops/atrium/internal/authorization"
	"github.com/strataops/atrium/internal/dispatch/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type authzStub struct {
	err   error
	calls int
}

func (a *authzStub) Authorize(ctx context.Context, actor, orgID, object, action string) error {
	a.calls++
	return a.err
}

func (a *authzStub) AuthorizeStaff(ctx context.Context, actor, object, action string) error {
	return a.err
}

func (a *authzStub) QueryFilter(ctx context.Context, actor, orgID, object, action string) (authorization.QueryDecision, error) {
	return authorization.Conditional(authorization.Predicate{}), nil
}

type executorStub struct {
	calls int
	last  domain.Request
}

func (e *executorStub) Execute(ctx context.Context, req domain.Request, spec domain.Spec) (*domain.Result, error) {
	e.calls++
	e.last = req
	return &domain.Result{Data: map[string]any{"ok": true}}, nil
}

func newTestDispatcher(t *testing.T) (domain.Service, *Registry, *executorStub, *authzStub) {
	t.Helper()
	registry := NewRegistry()
	executor := &executorStub{}
	authz := &authzStub{}
	svc := New(Params{
		Log:      zap.NewNop(),
		Registry: registry,
		Executor: executor,
		Authz:    authz,
	})
	return svc, registry, executor, authz
}

func validDispatchRequest() domain.Request {
	return domain.Request{
		OrgID:  7001,
		Key:    uuid.NewString(),
		Action: domain.ActionCreateAssociation,
		Actor:  "user:301",
	}
}

func noopHandler(ctx context.Context, req domain.Request) (*domain.Result, error) {
	return &domain.Result{Data: map[string]any{}}, nil
}

func TestDispatchValidation(t *testing.T) {
	svc, registry, executor, _ := newTestDispatcher(t)
	require.NoError(t, registry.Register(domain.ActionCreateAssociation, domain.Spec{Handler: noopHandler}))

	cases := []struct {
		name    string
		mutate  func(*domain.Request)
		wantErr error
	}{
		{"blank key", func(r *domain.Request) { r.Key = "" }, domain.ErrInvalidKey},
		{"non-uuid key", func(r *domain.Request) { r.Key = "order-123" }, domain.ErrInvalidKey},
		{"missing org", func(r *domain.Request) { r.OrgID = 0 }, domain.ErrMissingOrg},
		{"unknown action", func(r *domain.Request) { r.Action = "LAUNCH_ROCKET" }, domain.ErrInvalidAction},
		{"blank actor", func(r *domain.Request) { r.Actor = "  " }, domain.ErrInvalidActor},
		{"unregistered action", func(r *domain.Request) { r.Action = domain.ActionCreateUnit }, domain.ErrUnknownAction},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validDispatchRequest()
			tc.mutate(&req)
			_, err := svc.Dispatch(context.Background(), req)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
	assert.Equal(t, 0, executor.calls, "rejected requests must never reach the executor")
}

func TestDispatchDeniedByGate(t *testing.T) {
	svc, registry, executor, authz := newTestDispatcher(t)
	require.NoError(t, registry.Register(domain.ActionCreateAssociation, domain.Spec{Handler: noopHandler}))
	authz.err = authorization.ErrForbidden

	_, err := svc.Dispatch(context.Background(), validDispatchRequest())
	assert.ErrorIs(t, err, authorization.ErrForbidden)
	assert.Equal(t, 0, executor.calls, "denied requests must not burn an idempotency key")
}

func TestDispatchRunsAuthorizedRequest(t *testing.T) {
	svc, registry, executor, authz := newTestDispatcher(t)
	require.NoError(t, registry.Register(domain.ActionCreateAssociation, domain.Spec{
		Handler: noopHandler,
		Object:  authorization.ObjectAssociation,
		Verb:    authorization.ActionAssociationCreate,
	}))

	req := validDispatchRequest()
	result, err := svc.Dispatch(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, true, result.Data["ok"])
	assert.Equal(t, 1, authz.calls)
	assert.Equal(t, 1, executor.calls)
	assert.Equal(t, req.Key, executor.last.Key)
}

func TestRegistryRejectsDuplicatesAndSealed(t *testing.T) {
	registry := NewRegistry()

	require.NoError(t, registry.Register(domain.ActionSubmitBid, domain.Spec{Handler: noopHandler}))
	assert.ErrorIs(t, registry.Register(domain.ActionSubmitBid, domain.Spec{Handler: noopHandler}), domain.ErrActionRegistered)
	assert.ErrorIs(t, registry.Register("NOT_AN_ACTION", domain.Spec{Handler: noopHandler}), domain.ErrInvalidAction)
	assert.ErrorIs(t, registry.Register(domain.ActionAcceptBid, domain.Spec{}), domain.ErrInvalidAction)

	registry.Seal()
	assert.ErrorIs(t, registry.Register(domain.ActionAcceptBid, domain.Spec{Handler: noopHandler}), domain.ErrActionRegistered)

	_, ok := registry.Lookup(domain.ActionSubmitBid)
	assert.True(t, ok)
	_, ok = registry.Lookup(domain.ActionAcceptBid)
	assert.False(t, ok)
}
