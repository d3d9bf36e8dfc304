package dispatch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	activitydomain "github.com/strataops/atrium/internal/activity/domain"
	"github.com/strataops/atrium/internal/clock"
	"github.com/strataops/atrium/internal/config"
	"github.com/strataops/atrium/internal/dispatch/domain"
	ledgerdomain "github.com/strataops/atrium/internal/ledger/domain"
	ledgerrepository "github.com/strataops/atrium/internal/ledger/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var dbSeq atomic.Int64

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:dispatch_exec_%d?mode=memory&cache=shared", dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// One connection keeps concurrent writers off sqlite's lock errors.
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&ledgerdomain.Record{}))
	return db
}

type recorderStub struct {
	mu         sync.Mutex
	executions []activitydomain.Draft
}

func (r *recorderStub) Record(ctx context.Context, draft activitydomain.Draft) (*activitydomain.Event, error) {
	return &activitydomain.Event{}, nil
}

func (r *recorderStub) RecordIntent(ctx context.Context, draft activitydomain.Draft) (*activitydomain.Event, error) {
	return &activitydomain.Event{}, nil
}

func (r *recorderStub) RecordExecution(ctx context.Context, draft activitydomain.Draft) (*activitydomain.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executions = append(r.executions, draft)
	return &activitydomain.Event{}, nil
}

func (r *recorderStub) RecordBootstrap(ctx context.Context, orgID snowflake.ID, draft activitydomain.Draft) (*activitydomain.Event, error) {
	return &activitydomain.Event{}, nil
}

func (r *recorderStub) executionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.executions)
}

func newTestExecutor(t *testing.T, db *gorm.DB, recorder *recorderStub) *LedgerExecutor {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	exec := NewLedgerExecutor(ExecutorParams{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    clock.NewSystemClock(),
		Ledger:   ledgerrepository.Provide(),
		Recorder: recorder,
		Policy:   config.NewStaticDispatchPolicyHolder(config.DefaultDispatchPolicy()),
	})
	return exec.(*LedgerExecutor)
}

func testSpec(handler domain.Handler) domain.Spec {
	return domain.Spec{
		Handler:        handler,
		Entity:         "ASSOCIATION",
		RecordedAction: "CREATE",
		EntityIDKey:    "association_id",
	}
}

func testRequest(key string) domain.Request {
	return domain.Request{
		OrgID:  snowflake.ID(7001),
		Key:    key,
		Action: domain.ActionCreateAssociation,
		Actor:  "user:301",
	}
}

func TestExecuteRunsHandlerExactlyOnce(t *testing.T) {
	db := openTestDB(t)
	recorder := &recorderStub{}
	exec := newTestExecutor(t, db, recorder)

	var runs atomic.Int64
	spec := testSpec(func(ctx context.Context, req domain.Request) (*domain.Result, error) {
		runs.Add(1)
		time.Sleep(50 * time.Millisecond)
		return &domain.Result{Data: map[string]any{"association_id": "8801"}}, nil
	})
	req := testRequest(uuid.NewString())

	const callers = 8
	results := make([]*domain.Result, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = exec.Execute(context.Background(), req, spec)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(1), runs.Load())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.NotNil(t, results[i])
		assert.Equal(t, "8801", results[i].Data["association_id"])
	}
	assert.Equal(t, 1, recorder.executionCount())
}

func TestExecuteReplaysCompletedRecord(t *testing.T) {
	db := openTestDB(t)
	recorder := &recorderStub{}
	exec := newTestExecutor(t, db, recorder)

	var runs atomic.Int64
	spec := testSpec(func(ctx context.Context, req domain.Request) (*domain.Result, error) {
		runs.Add(1)
		return &domain.Result{Data: map[string]any{"association_id": "8802", "name": "Elm Court"}}, nil
	})
	req := testRequest(uuid.NewString())

	first, err := exec.Execute(context.Background(), req, spec)
	require.NoError(t, err)

	second, err := exec.Execute(context.Background(), req, spec)
	require.NoError(t, err)

	assert.Equal(t, int64(1), runs.Load())
	assert.Equal(t, first.Data, second.Data)
	assert.Equal(t, 1, recorder.executionCount(), "the replay must not append another activity event")
}

func TestExecuteReplaysFailedRecord(t *testing.T) {
	db := openTestDB(t)
	recorder := &recorderStub{}
	exec := newTestExecutor(t, db, recorder)

	var runs atomic.Int64
	spec := testSpec(func(ctx context.Context, req domain.Request) (*domain.Result, error) {
		runs.Add(1)
		return nil, domain.NewWorkflowError(domain.CodeConflict, "bid is no longer pending")
	})
	req := testRequest(uuid.NewString())

	_, firstErr := exec.Execute(context.Background(), req, spec)
	_, secondErr := exec.Execute(context.Background(), req, spec)

	assert.Equal(t, int64(1), runs.Load())
	for _, err := range []error{firstErr, secondErr} {
		wfErr, ok := domain.AsWorkflowError(err)
		require.True(t, ok)
		assert.Equal(t, domain.CodeConflict, wfErr.Code)
		assert.Equal(t, "bid is no longer pending", wfErr.Message)
	}
	assert.Equal(t, 0, recorder.executionCount(), "failures must not produce execution events")
}

func TestExecuteDistinctKeysRunIndependently(t *testing.T) {
	db := openTestDB(t)
	recorder := &recorderStub{}
	exec := newTestExecutor(t, db, recorder)

	var runs atomic.Int64
	spec := testSpec(func(ctx context.Context, req domain.Request) (*domain.Result, error) {
		runs.Add(1)
		return &domain.Result{Data: map[string]any{"association_id": "8803"}}, nil
	})

	_, err := exec.Execute(context.Background(), testRequest(uuid.NewString()), spec)
	require.NoError(t, err)
	_, err = exec.Execute(context.Background(), testRequest(uuid.NewString()), spec)
	require.NoError(t, err)

	assert.Equal(t, int64(2), runs.Load())
}

func TestExecuteRecordsPanicAsInternalFailure(t *testing.T) {
	db := openTestDB(t)
	recorder := &recorderStub{}
	exec := newTestExecutor(t, db, recorder)

	spec := testSpec(func(ctx context.Context, req domain.Request) (*domain.Result, error) {
		panic("unit lookup exploded")
	})
	req := testRequest(uuid.NewString())

	_, err := exec.Execute(context.Background(), req, spec)
	wfErr, ok := domain.AsWorkflowError(err)
	require.True(t, ok)
	assert.Equal(t, domain.CodeInternal, wfErr.Code)

	record, findErr := ledgerrepository.Provide().Find(context.Background(), db, req.Scope(), req.Key)
	require.NoError(t, findErr)
	assert.Equal(t, ledgerdomain.StatusFailed, record.Status)
	require.NotNil(t, record.ErrorCode)
	assert.Equal(t, domain.CodeInternal, *record.ErrorCode)
}

func TestExecuteSurvivesCallerCancellation(t *testing.T) {
	db := openTestDB(t)
	recorder := &recorderStub{}
	exec := newTestExecutor(t, db, recorder)

	started := make(chan struct{})
	spec := testSpec(func(ctx context.Context, req domain.Request) (*domain.Result, error) {
		close(started)
		time.Sleep(50 * time.Millisecond)
		return &domain.Result{Data: map[string]any{"association_id": "8804"}}, nil
	})
	req := testRequest(uuid.NewString())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	result, err := exec.Execute(ctx, req, spec)
	require.NoError(t, err, "a started invocation must reach its outcome despite cancellation")
	assert.Equal(t, "8804", result.Data["association_id"])

	record, findErr := ledgerrepository.Provide().Find(context.Background(), db, req.Scope(), req.Key)
	require.NoError(t, findErr)
	assert.Equal(t, ledgerdomain.StatusCompleted, record.Status)
}
