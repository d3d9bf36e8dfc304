package dispatch

import (
	"context"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/strataops/atrium/internal/config"
	"go.uber.org/fx"
)

// NewRedisClient builds the shared client for dispatch leases. With no
// REDIS_ADDR configured it returns nil and the lease layer disables itself.
func NewRedisClient(cfg config.Config) *redis.Client {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.RedisPassword),
		DB:       cfg.RedisDB,
	})
}

// sealRegistry closes the action table once startup finishes. Feature
// modules register during fx invokes, which all run before OnStart hooks.
func sealRegistry(lc fx.Lifecycle, registry *Registry) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			registry.Seal()
			return nil
		},
	})
}

var Module = fx.Module("dispatch",
	fx.Provide(NewRedisClient),
	fx.Provide(NewRegistry),
	fx.Provide(NewLocker),
	fx.Provide(NewLedgerExecutor),
	fx.Provide(New),
	fx.Invoke(sealRegistry),
)
