package repository

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	ledgerdomain "github.com/strataops/atrium/internal/ledger/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var dbSeq atomic.Int64

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:ledger_repo_%d?mode=memory&cache=shared", dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&ledgerdomain.Record{}))
	return db
}

func newRecord(t *testing.T, node *snowflake.Node, scope, key string) *ledgerdomain.Record {
	t.Helper()
	return &ledgerdomain.Record{
		ID:        node.Generate(),
		Scope:     scope,
		Key:       key,
		Action:    "CREATE_ASSOCIATION",
		Status:    ledgerdomain.StatusInProgress,
		CreatedAt: time.Now().UTC(),
	}
}

func TestBeginInsertsOnce(t *testing.T) {
	db := openTestDB(t)
	node, _ := snowflake.NewNode(1)
	repo := Provide()
	ctx := context.Background()

	first := newRecord(t, node, "org-1", "key-1")
	created, existing, err := repo.Begin(ctx, db, first)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Nil(t, existing)

	second := newRecord(t, node, "org-1", "key-1")
	created, existing, err = repo.Begin(ctx, db, second)
	require.NoError(t, err)
	assert.False(t, created)
	require.NotNil(t, existing)
	assert.Equal(t, first.ID, existing.ID)
	assert.Equal(t, ledgerdomain.StatusInProgress, existing.Status)
}

func TestBeginScopesAreIndependent(t *testing.T) {
	db := openTestDB(t)
	node, _ := snowflake.NewNode(1)
	repo := Provide()
	ctx := context.Background()

	created, _, err := repo.Begin(ctx, db, newRecord(t, node, "org-1", "same-key"))
	require.NoError(t, err)
	assert.True(t, created)

	created, _, err = repo.Begin(ctx, db, newRecord(t, node, "org-2", "same-key"))
	require.NoError(t, err)
	assert.True(t, created, "the same key under another scope must not collide")
}

func TestCompleteIsASingleTransition(t *testing.T) {
	db := openTestDB(t)
	node, _ := snowflake.NewNode(1)
	repo := Provide()
	ctx := context.Background()

	record := newRecord(t, node, "org-1", "key-1")
	_, _, err := repo.Begin(ctx, db, record)
	require.NoError(t, err)

	now := time.Now().UTC()
	payload := datatypes.JSON(`{"data":{"association_id":"42"}}`)
	require.NoError(t, repo.Complete(ctx, db, record.ID, payload, now))

	stored, err := repo.Find(ctx, db, "org-1", "key-1")
	require.NoError(t, err)
	assert.Equal(t, ledgerdomain.StatusCompleted, stored.Status)
	assert.JSONEq(t, string(payload), string(stored.Result))
	require.NotNil(t, stored.CompletedAt)

	// Terminal rows are immutable.
	err = repo.Complete(ctx, db, record.ID, payload, now)
	assert.ErrorIs(t, err, ledgerdomain.ErrNotInProgress)
	err = repo.Fail(ctx, db, record.ID, "workflow_execution_error", "late failure", now)
	assert.ErrorIs(t, err, ledgerdomain.ErrNotInProgress)
}

func TestFailStoresErrorDescriptor(t *testing.T) {
	db := openTestDB(t)
	node, _ := snowflake.NewNode(1)
	repo := Provide()
	ctx := context.Background()

	record := newRecord(t, node, "org-1", "key-1")
	_, _, err := repo.Begin(ctx, db, record)
	require.NoError(t, err)

	require.NoError(t, repo.Fail(ctx, db, record.ID, "conflict", "bid is no longer pending", time.Now().UTC()))

	stored, err := repo.Find(ctx, db, "org-1", "key-1")
	require.NoError(t, err)
	assert.Equal(t, ledgerdomain.StatusFailed, stored.Status)
	require.NotNil(t, stored.ErrorCode)
	assert.Equal(t, "conflict", *stored.ErrorCode)
	require.NotNil(t, stored.ErrorMessage)
	assert.Equal(t, "bid is no longer pending", *stored.ErrorMessage)
}

func TestFindMissingRecord(t *testing.T) {
	db := openTestDB(t)
	repo := Provide()

	_, err := repo.Find(context.Background(), db, "org-1", "missing")
	assert.ErrorIs(t, err, ledgerdomain.ErrRecordNotFound)
}

func TestReapStaleSelectsOldInProgressOnly(t *testing.T) {
	db := openTestDB(t)
	node, _ := snowflake.NewNode(1)
	repo := Provide()
	ctx := context.Background()

	now := time.Now().UTC()

	stale := newRecord(t, node, "org-1", "stale")
	stale.CreatedAt = now.Add(-10 * time.Minute)
	_, _, err := repo.Begin(ctx, db, stale)
	require.NoError(t, err)

	fresh := newRecord(t, node, "org-1", "fresh")
	_, _, err = repo.Begin(ctx, db, fresh)
	require.NoError(t, err)

	finished := newRecord(t, node, "org-1", "finished")
	finished.CreatedAt = now.Add(-10 * time.Minute)
	_, _, err = repo.Begin(ctx, db, finished)
	require.NoError(t, err)
	require.NoError(t, repo.Complete(ctx, db, finished.ID, datatypes.JSON(`{}`), now))

	records, err := repo.ReapStale(ctx, db, now.Add(-5*time.Minute), 100)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "stale", records[0].Key)
}

func TestDeleteExpiredKeepsRecentAndInProgress(t *testing.T) {
	db := openTestDB(t)
	node, _ := snowflake.NewNode(1)
	repo := Provide()
	ctx := context.Background()

	now := time.Now().UTC()
	old := now.Add(-40 * 24 * time.Hour)

	expired := newRecord(t, node, "org-1", "expired")
	_, _, err := repo.Begin(ctx, db, expired)
	require.NoError(t, err)
	require.NoError(t, repo.Complete(ctx, db, expired.ID, datatypes.JSON(`{}`), old))

	recent := newRecord(t, node, "org-1", "recent")
	_, _, err = repo.Begin(ctx, db, recent)
	require.NoError(t, err)
	require.NoError(t, repo.Complete(ctx, db, recent.ID, datatypes.JSON(`{}`), now))

	running := newRecord(t, node, "org-1", "running")
	_, _, err = repo.Begin(ctx, db, running)
	require.NoError(t, err)

	removed, err := repo.DeleteExpired(ctx, db, now.Add(-30*24*time.Hour), 100)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, err = repo.Find(ctx, db, "org-1", "expired")
	assert.ErrorIs(t, err, ledgerdomain.ErrRecordNotFound)
	_, err = repo.Find(ctx, db, "org-1", "recent")
	assert.NoError(t, err)
	_, err = repo.Find(ctx, db, "org-1", "running")
	assert.NoError(t, err)
}
