package ledger

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/strataops/atrium/internal/clock"
	"github.com/strataops/atrium/internal/config"
	"github.com/strataops/atrium/internal/ledger/domain"
	"github.com/strataops/atrium/internal/ledger/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var dbSeq atomic.Int64

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:ledger_sweeper_%d?mode=memory&cache=shared", dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Record{}))
	return db
}

func newTestSweeper(t *testing.T, db *gorm.DB, fake *clock.FakeClock) (*Sweeper, domain.Repository) {
	t.Helper()
	repo := repository.Provide()
	sweeper := NewSweeper(SweeperParams{
		DB:     db,
		Log:    zap.NewNop(),
		Repo:   repo,
		Clock:  fake,
		Policy: config.NewStaticDispatchPolicyHolder(config.DefaultDispatchPolicy()),
	})
	return sweeper, repo
}

func beginRecord(t *testing.T, repo domain.Repository, db *gorm.DB, node *snowflake.Node, key string, at time.Time) *domain.Record {
	t.Helper()
	record := &domain.Record{
		ID:        node.Generate(),
		Scope:     "9001",
		Key:       key,
		Action:    "SUBMIT_BID",
		Status:    domain.StatusInProgress,
		CreatedAt: at,
	}
	created, _, err := repo.Begin(context.Background(), db, record)
	require.NoError(t, err)
	require.True(t, created)
	return record
}

func TestSweepOnceTimesOutExpiredLeases(t *testing.T) {
	db := openTestDB(t)
	fake := clock.NewFakeClock(time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC))
	sweeper, repo := newTestSweeper(t, db, fake)
	node, _ := snowflake.NewNode(1)

	stale := beginRecord(t, repo, db, node, "stale-key", fake.Now())

	fake.Advance(2 * time.Minute)
	fresh := beginRecord(t, repo, db, node, "fresh-key", fake.Now())

	// Push the first record past its lease.
	fake.Advance(4 * time.Minute)
	sweeper.SweepOnce(context.Background())

	timedOut, err := repo.Find(context.Background(), db, stale.Scope, stale.Key)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, timedOut.Status)
	require.NotNil(t, timedOut.ErrorCode)
	assert.Equal(t, TimeoutErrorCode, *timedOut.ErrorCode)
	require.NotNil(t, timedOut.CompletedAt)

	untouched, err := repo.Find(context.Background(), db, fresh.Scope, fresh.Key)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, untouched.Status)
}

func TestSweepOnceTimeoutIsTerminal(t *testing.T) {
	db := openTestDB(t)
	fake := clock.NewFakeClock(time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC))
	sweeper, repo := newTestSweeper(t, db, fake)
	node, _ := snowflake.NewNode(1)

	record := beginRecord(t, repo, db, node, "late-key", fake.Now())
	fake.Advance(6 * time.Minute)
	sweeper.SweepOnce(context.Background())

	// The late handler loses: a timed-out record stays failed.
	err := repo.Complete(context.Background(), db, record.ID, datatypes.JSON(`{"data":{}}`), fake.Now())
	assert.ErrorIs(t, err, domain.ErrNotInProgress)

	stored, err := repo.Find(context.Background(), db, record.Scope, record.Key)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, stored.Status)
}

func TestSweepOnceDeletesRecordsPastRetention(t *testing.T) {
	db := openTestDB(t)
	fake := clock.NewFakeClock(time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC))
	sweeper, repo := newTestSweeper(t, db, fake)
	node, _ := snowflake.NewNode(1)

	old := beginRecord(t, repo, db, node, "old-key", fake.Now())
	require.NoError(t, repo.Complete(context.Background(), db, old.ID, datatypes.JSON(`{"data":{}}`), fake.Now()))

	fake.Advance(31 * 24 * time.Hour)
	recent := beginRecord(t, repo, db, node, "recent-key", fake.Now())
	require.NoError(t, repo.Complete(context.Background(), db, recent.ID, datatypes.JSON(`{"data":{}}`), fake.Now()))

	sweeper.SweepOnce(context.Background())

	_, err := repo.Find(context.Background(), db, old.Scope, old.Key)
	assert.ErrorIs(t, err, domain.ErrRecordNotFound)

	_, err = repo.Find(context.Background(), db, recent.Scope, recent.Key)
	assert.NoError(t, err)
}
