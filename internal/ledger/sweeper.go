package ledger

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/strataops/atrium/internal/clock"
	"github.com/strataops/atrium/internal/config"
	"github.com/strataops/atrium/internal/ledger/domain"
	obsmetrics "github.com/strataops/atrium/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const sweepBatchSize = 200

// TimeoutErrorCode marks records failed by the sweeper rather than by their
// handler. Callers replaying the key get this code back verbatim.
const TimeoutErrorCode = "workflow_timeout"

const timeoutErrorMessage = "workflow timed out before recording an outcome"

type SweeperParams struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Repo    domain.Repository
	Clock   clock.Clock
	Policy  *config.DispatchPolicyHolder
	Redis   *redis.Client       `optional:"true"`
	Metrics *obsmetrics.Metrics `optional:"true"`
}

// Sweeper recovers from crashed invocations: IN_PROGRESS records whose lease
// expired are failed with workflow_timeout, and terminal records past the
// retention window are deleted. A failed record is terminal, so retrying a
// timed-out workflow requires a fresh idempotency key.
type Sweeper struct {
	db      *gorm.DB
	log     *zap.Logger
	repo    domain.Repository
	clock   clock.Clock
	policy  *config.DispatchPolicyHolder
	redis   *redis.Client
	metrics *obsmetrics.Metrics

	stop chan struct{}
	done chan struct{}
}

func NewSweeper(p SweeperParams) *Sweeper {
	return &Sweeper{
		db:      p.DB,
		log:     p.Log.Named("ledger.sweeper"),
		repo:    p.Repo,
		clock:   p.Clock,
		policy:  p.Policy,
		redis:   p.Redis,
		metrics: p.Metrics,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (s *Sweeper) run() {
	defer close(s.done)
	for {
		interval := s.policy.Get().SweepInterval
		select {
		case <-s.stop:
			return
		case <-time.After(interval):
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			s.SweepOnce(ctx)
			cancel()
		}
	}
}

// SweepOnce runs one recovery pass. It is exported so tests drive the sweep
// directly instead of waiting on the ticker.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	policy := s.policy.Get()
	now := s.clock.Now()

	stale, err := s.repo.ReapStale(ctx, s.db, now.Add(-policy.LeaseTTL), sweepBatchSize)
	if err != nil {
		s.log.Warn("failed to list stale ledger records", zap.Error(err))
	}
	for _, record := range stale {
		if s.leaseHeld(ctx, record) {
			continue
		}
		err := s.repo.Fail(ctx, s.db, record.ID, TimeoutErrorCode, timeoutErrorMessage, now)
		if err == domain.ErrNotInProgress {
			// The invocation finished between the listing and this update.
			continue
		}
		if err != nil {
			s.log.Warn("failed to time out stale ledger record",
				zap.String("scope", record.Scope),
				zap.String("key", record.Key),
				zap.Error(err),
			)
			continue
		}
		s.log.Info("timed out stale ledger record",
			zap.String("scope", record.Scope),
			zap.String("key", record.Key),
			zap.String("action", record.Action),
			zap.Duration("age", now.Sub(record.CreatedAt)),
		)
		s.metrics.RecordLedgerReaped(ctx, TimeoutErrorCode)
	}

	removed, err := s.repo.DeleteExpired(ctx, s.db, now.Add(-policy.Retention), sweepBatchSize)
	if err != nil {
		s.log.Warn("failed to delete expired ledger records", zap.Error(err))
		return
	}
	if removed > 0 {
		s.log.Info("deleted expired ledger records", zap.Int64("count", removed))
	}
}

// leaseHeld reports whether the executor's redis lease is still alive. With
// no redis configured the lease cannot be observed, so record age decides
// alone.
func (s *Sweeper) leaseHeld(ctx context.Context, record *domain.Record) bool {
	if s.redis == nil {
		return false
	}
	held, err := s.redis.Exists(ctx, domain.LockKey(record.Scope, record.Key)).Result()
	if err != nil {
		s.log.Warn("failed to check dispatch lease", zap.Error(err))
		return false
	}
	return held > 0
}

func registerSweeper(lc fx.Lifecycle, sweeper *Sweeper) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go sweeper.run()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			close(sweeper.stop)
			select {
			case <-sweeper.done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}
