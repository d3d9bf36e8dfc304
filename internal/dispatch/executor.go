package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	activitydomain "github.com/strataops/atrium/internal/activity/domain"
	"github.com/strataops/atrium/internal/clock"
	"github.com/strataops/atrium/internal/config"
	"github.com/strataops/atrium/internal/dispatch/domain"
	ledgerdomain "github.com/strataops/atrium/internal/ledger/domain"
	obsmetrics "github.com/strataops/atrium/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ExecutorParams struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Ledger   ledgerdomain.Repository
	Recorder activitydomain.Recorder
	Policy   *config.DispatchPolicyHolder
	Locker   *Locker             `optional:"true"`
	Metrics  *obsmetrics.Metrics `optional:"true"`
}

// LedgerExecutor runs handlers under the idempotency ledger's exactly-once
// contract. The unique (scope, key) insert decides ownership: the winner runs
// the handler once, everyone else observes the winner's outcome.
type LedgerExecutor struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	ledger   ledgerdomain.Repository
	recorder activitydomain.Recorder
	policy   *config.DispatchPolicyHolder
	locker   *Locker
	metrics  *obsmetrics.Metrics

	mu      sync.Mutex
	waiters map[string]chan struct{}
}

func NewLedgerExecutor(p ExecutorParams) domain.Executor {
	return &LedgerExecutor{
		db:       p.DB,
		log:      p.Log.Named("dispatch.executor"),
		genID:    p.GenID,
		clock:    p.Clock,
		ledger:   p.Ledger,
		recorder: p.Recorder,
		policy:   p.Policy,
		locker:   p.Locker,
		metrics:  p.Metrics,
		waiters:  make(map[string]chan struct{}),
	}
}

func (e *LedgerExecutor) Execute(ctx context.Context, req domain.Request, spec domain.Spec) (*domain.Result, error) {
	record := &ledgerdomain.Record{
		ID:        e.genID.Generate(),
		Scope:     req.Scope(),
		Key:       req.Key,
		Action:    string(req.Action),
		Status:    ledgerdomain.StatusInProgress,
		CreatedAt: e.clock.Now(),
	}

	created, existing, err := e.ledger.Begin(ctx, e.db, record)
	if err != nil {
		return nil, err
	}
	if !created {
		if existing.Status.Terminal() {
			e.metrics.RecordDispatchDuplicate(ctx, string(req.Action))
			return replay(existing)
		}
		e.metrics.RecordDispatchAwaited(ctx, string(req.Action))
		return e.await(ctx, req)
	}

	return e.run(ctx, req, spec, record)
}

// run owns the invocation: exactly one run per ledger record.
func (e *LedgerExecutor) run(ctx context.Context, req domain.Request, spec domain.Spec, record *ledgerdomain.Record) (*domain.Result, error) {
	done := e.claimWaiter(req)
	defer e.releaseWaiter(req, done)

	policy := e.policy.Get()

	lockKey := ledgerdomain.LockKey(req.Scope(), req.Key)
	var token string
	if e.locker != nil {
		t, ok, err := e.locker.TryLock(ctx, lockKey, policy.LeaseTTL)
		if err != nil {
			e.log.Warn("failed to take dispatch lease", zap.String("key", req.Key), zap.Error(err))
		} else if ok {
			token = t
		}
	}
	defer func() {
		if token == "" {
			return
		}
		if err := e.locker.Release(context.WithoutCancel(ctx), lockKey, token); err != nil {
			e.log.Warn("failed to release dispatch lease", zap.String("key", req.Key), zap.Error(err))
		}
	}()

	e.metrics.DispatchStarted(ctx)
	defer e.metrics.DispatchFinished(ctx)

	// Once the record exists the invocation must reach a terminal state,
	// so the handler is detached from the caller's cancellation. The lease
	// TTL still bounds it.
	execCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), policy.LeaseTTL)
	defer cancel()

	result, err := runHandler(execCtx, req, spec)
	if err != nil {
		wfErr, ok := domain.AsWorkflowError(err)
		if !ok {
			wfErr = domain.NewWorkflowError(domain.CodeInternal, err.Error())
		}
		if failErr := e.ledger.Fail(execCtx, e.db, record.ID, wfErr.Code, wfErr.Message, e.clock.Now()); failErr != nil {
			e.log.Error("failed to record workflow failure",
				zap.String("scope", record.Scope),
				zap.String("key", record.Key),
				zap.String("action", record.Action),
				zap.Error(failErr),
			)
		}
		e.metrics.RecordDispatchRun(ctx, string(req.Action), "failed")
		return nil, wfErr
	}

	if result == nil {
		result = &domain.Result{Data: map[string]any{}}
	}
	payload, marshalErr := json.Marshal(result)
	if marshalErr != nil {
		wfErr := domain.NewWorkflowError(domain.CodeInternal, "workflow result is not serializable")
		if failErr := e.ledger.Fail(execCtx, e.db, record.ID, wfErr.Code, wfErr.Message, e.clock.Now()); failErr != nil {
			e.log.Error("failed to record workflow failure", zap.String("key", record.Key), zap.Error(failErr))
		}
		e.metrics.RecordDispatchRun(ctx, string(req.Action), "failed")
		return nil, wfErr
	}

	if err := e.ledger.Complete(execCtx, e.db, record.ID, payload, e.clock.Now()); err != nil {
		if err == ledgerdomain.ErrNotInProgress {
			// The sweeper timed the record out while the handler ran.
			// The stored outcome wins so every caller sees one result.
			stored, findErr := e.ledger.Find(execCtx, e.db, record.Scope, record.Key)
			if findErr == nil && stored.Status.Terminal() {
				return replay(stored)
			}
		}
		return nil, err
	}

	e.recordExecution(execCtx, req, spec, record, result)
	e.metrics.RecordDispatchRun(ctx, string(req.Action), "completed")
	return result, nil
}

func runHandler(ctx context.Context, req domain.Request, spec domain.Spec) (result *domain.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = domain.NewWorkflowError(domain.CodeInternal, fmt.Sprintf("workflow panicked: %v", r))
		}
	}()
	return spec.Handler(ctx, req)
}

// await blocks until the invocation owned elsewhere reaches a terminal
// state. In-process owners signal through a waiter channel; cross-process
// owners are observed by polling the ledger.
func (e *LedgerExecutor) await(ctx context.Context, req domain.Request) (*domain.Result, error) {
	policy := e.policy.Get()
	deadline := time.NewTimer(policy.AwaitTimeout)
	defer deadline.Stop()

	if ch := e.waiterChannel(req); ch != nil {
		select {
		case <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, domain.NewWorkflowError(domain.CodeUnavailable, "timed out awaiting an in-flight invocation")
		}
	}

	ticker := time.NewTicker(policy.PollInterval)
	defer ticker.Stop()
	for {
		record, err := e.ledger.Find(ctx, e.db, req.Scope(), req.Key)
		if err != nil && err != ledgerdomain.ErrRecordNotFound {
			return nil, err
		}
		if err == nil && record.Status.Terminal() {
			return replay(record)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, domain.NewWorkflowError(domain.CodeUnavailable, "timed out awaiting an in-flight invocation")
		case <-ticker.C:
		}
	}
}

// replay reproduces a terminal record's outcome verbatim.
func replay(record *ledgerdomain.Record) (*domain.Result, error) {
	switch record.Status {
	case ledgerdomain.StatusCompleted:
		var result domain.Result
		if len(record.Result) > 0 {
			if err := json.Unmarshal(record.Result, &result); err != nil {
				return nil, err
			}
		}
		if result.Data == nil {
			result.Data = map[string]any{}
		}
		return &result, nil
	case ledgerdomain.StatusFailed:
		code := domain.CodeInternal
		if record.ErrorCode != nil {
			code = *record.ErrorCode
		}
		message := "workflow failed"
		if record.ErrorMessage != nil {
			message = *record.ErrorMessage
		}
		return nil, domain.NewWorkflowError(code, message)
	default:
		return nil, domain.NewWorkflowError(domain.CodeUnavailable, "invocation has not finished")
	}
}

func (e *LedgerExecutor) recordExecution(ctx context.Context, req domain.Request, spec domain.Spec, record *ledgerdomain.Record, result *domain.Result) {
	entityID := ""
	if spec.EntityIDKey != "" {
		if v, ok := result.Data[spec.EntityIDKey].(string); ok {
			entityID = v
		}
	}
	if entityID == "" {
		entityID = record.ID.String()
	}

	summary := fmt.Sprintf("%s completed", req.Action)
	if spec.Summary != nil {
		summary = spec.Summary(req, result)
	}

	performedByType, performedByID := performerFromActor(req.Actor)
	orgID := req.OrgID

	_, err := e.recorder.RecordExecution(ctx, activitydomain.Draft{
		OrgID:           &orgID,
		EntityType:      activitydomain.EntityType(spec.Entity),
		EntityID:        entityID,
		Action:          activitydomain.Action(spec.RecordedAction),
		Summary:         summary,
		PerformedByID:   performedByID,
		PerformedByType: performedByType,
		Metadata: map[string]any{
			"idempotency_key": req.Key,
			"workflow_action": string(req.Action),
		},
	})
	if err != nil {
		e.log.Warn("failed to record execution event",
			zap.String("action", string(req.Action)),
			zap.String("entity_id", entityID),
			zap.Error(err),
		)
	}
}

func performerFromActor(actor string) (activitydomain.PerformerType, *string) {
	switch {
	case actor == "system":
		return activitydomain.PerformerSystem, nil
	case strings.HasPrefix(actor, "ai:"):
		id := strings.TrimPrefix(actor, "ai:")
		return activitydomain.PerformerAI, &id
	case strings.HasPrefix(actor, "user:"):
		id := strings.TrimPrefix(actor, "user:")
		return activitydomain.PerformerHuman, &id
	case strings.HasPrefix(actor, "staff:"):
		id := strings.TrimPrefix(actor, "staff:")
		return activitydomain.PerformerHuman, &id
	default:
		return activitydomain.PerformerSystem, nil
	}
}

func waiterKey(req domain.Request) string {
	return req.Scope() + "/" + req.Key
}

func (e *LedgerExecutor) claimWaiter(req domain.Request) chan struct{} {
	ch := make(chan struct{})
	e.mu.Lock()
	e.waiters[waiterKey(req)] = ch
	e.mu.Unlock()
	return ch
}

func (e *LedgerExecutor) releaseWaiter(req domain.Request, ch chan struct{}) {
	e.mu.Lock()
	if current, ok := e.waiters[waiterKey(req)]; ok && current == ch {
		delete(e.waiters, waiterKey(req))
	}
	e.mu.Unlock()
	close(ch)
}

func (e *LedgerExecutor) waiterChannel(req domain.Request) chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.waiters[waiterKey(req)]
}
