package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// DispatchPolicy tunes the workflow dispatcher and activity query service.
// It is loaded from dispatch.yml and hot-reloaded on change, so operators can
// adjust lease and pagination behavior without a restart.
type DispatchPolicy struct {
	// LeaseTTL bounds how long an IN_PROGRESS ledger record may go without a
	// live lease before the sweeper times it out.
	LeaseTTL time.Duration `mapstructure:"leaseTTL"`
	// PollInterval is the backoff between ledger reads while awaiting a
	// concurrent invocation owned by another process.
	PollInterval time.Duration `mapstructure:"pollInterval"`
	// AwaitTimeout bounds how long a duplicate caller waits for the original
	// invocation before giving up with an unavailable error.
	AwaitTimeout time.Duration `mapstructure:"awaitTimeout"`
	// SweepInterval is the cadence of the stale-record sweeper.
	SweepInterval time.Duration `mapstructure:"sweepInterval"`
	// Retention is how long terminal ledger records are kept before GC.
	Retention time.Duration `mapstructure:"retention"`

	DefaultPageSize    int `mapstructure:"defaultPageSize"`
	CaseScopedPageSize int `mapstructure:"caseScopedPageSize"`
	MaxPageSize        int `mapstructure:"maxPageSize"`
	MaxExportRecords   int `mapstructure:"maxExportRecords"`
}

func DefaultDispatchPolicy() DispatchPolicy {
	return DispatchPolicy{
		LeaseTTL:           5 * time.Minute,
		PollInterval:       250 * time.Millisecond,
		AwaitTimeout:       30 * time.Second,
		SweepInterval:      time.Minute,
		Retention:          30 * 24 * time.Hour,
		DefaultPageSize:    50,
		CaseScopedPageSize: 100,
		MaxPageSize:        250,
		MaxExportRecords:   10_000,
	}
}

// DispatchPolicyHolder exposes the current policy through an atomic value so
// readers never block on a reload.
type DispatchPolicyHolder struct {
	current atomic.Value // holds DispatchPolicy
}

func NewDispatchPolicyHolder() (*DispatchPolicyHolder, error) {
	v := viper.New()

	v.SetConfigName("dispatch")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/atrium/config")
	v.AddConfigPath("/etc/atrium")
	v.AddConfigPath(".")

	v.SetEnvPrefix("ATRIUM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultDispatchPolicy()
	v.SetDefault("dispatch.leaseTTL", defaults.LeaseTTL)
	v.SetDefault("dispatch.pollInterval", defaults.PollInterval)
	v.SetDefault("dispatch.awaitTimeout", defaults.AwaitTimeout)
	v.SetDefault("dispatch.sweepInterval", defaults.SweepInterval)
	v.SetDefault("dispatch.retention", defaults.Retention)
	v.SetDefault("dispatch.defaultPageSize", defaults.DefaultPageSize)
	v.SetDefault("dispatch.caseScopedPageSize", defaults.CaseScopedPageSize)
	v.SetDefault("dispatch.maxPageSize", defaults.MaxPageSize)
	v.SetDefault("dispatch.maxExportRecords", defaults.MaxExportRecords)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg DispatchPolicy
	if err := v.UnmarshalKey("dispatch", &cfg); err != nil {
		return nil, err
	}
	if err := validateDispatchPolicy(cfg); err != nil {
		return nil, err
	}

	holder := &DispatchPolicyHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated DispatchPolicy
		if err := v.UnmarshalKey("dispatch", &updated); err != nil {
			log.Printf("[dispatch-config] reload failed: %v", err)
			return
		}
		if err := validateDispatchPolicy(updated); err != nil {
			log.Printf("[dispatch-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[dispatch-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *DispatchPolicyHolder) Get() DispatchPolicy {
	return h.current.Load().(DispatchPolicy)
}

// NewStaticDispatchPolicyHolder wraps a fixed policy, used by tests.
func NewStaticDispatchPolicyHolder(cfg DispatchPolicy) *DispatchPolicyHolder {
	holder := &DispatchPolicyHolder{}
	holder.current.Store(cfg)
	return holder
}

func validateDispatchPolicy(cfg DispatchPolicy) error {
	if cfg.LeaseTTL <= 0 {
		return errors.New("dispatch.leaseTTL must be positive")
	}
	if cfg.PollInterval <= 0 {
		return errors.New("dispatch.pollInterval must be positive")
	}
	if cfg.AwaitTimeout <= 0 {
		return errors.New("dispatch.awaitTimeout must be positive")
	}
	if cfg.DefaultPageSize <= 0 || cfg.CaseScopedPageSize <= 0 {
		return errors.New("dispatch page sizes must be positive")
	}
	if cfg.MaxPageSize < cfg.DefaultPageSize || cfg.MaxPageSize < cfg.CaseScopedPageSize {
		return errors.New("dispatch.maxPageSize must cover the default page sizes")
	}
	if cfg.MaxExportRecords <= 0 {
		return errors.New("dispatch.maxExportRecords must be positive")
	}
	return nil
}
