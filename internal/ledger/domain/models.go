package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrRecordNotFound = errors.New("ledger_record_not_found")
	ErrNotInProgress  = errors.New("ledger_record_not_in_progress")
	ErrInvalidScope   = errors.New("invalid_scope")
	ErrInvalidKey     = errors.New("invalid_idempotency_key")
)

// Status is the lifecycle of one idempotency record. Records move exactly
// once out of IN_PROGRESS; COMPLETED and FAILED are terminal.
type Status string

const (
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Record is one row of the idempotency ledger. The unique (scope, key) index
// is what makes duplicate dispatches collide instead of double-running.
type Record struct {
	ID           snowflake.ID   `gorm:"primaryKey" json:"id"`
	Scope        string         `gorm:"not null;uniqueIndex:idx_ledger_scope_key,priority:1" json:"scope"`
	Key          string         `gorm:"not null;uniqueIndex:idx_ledger_scope_key,priority:2" json:"key"`
	Action       string         `gorm:"not null" json:"action"`
	Status       Status         `gorm:"not null;index" json:"status"`
	Result       datatypes.JSON `json:"result,omitempty"`
	ErrorCode    *string        `json:"error_code,omitempty"`
	ErrorMessage *string        `json:"error_message,omitempty"`
	CreatedAt    time.Time      `gorm:"not null;index" json:"created_at"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
}

func (Record) TableName() string {
	return "idempotency_records"
}

// LockKey is the redis key guarding one in-flight invocation. The executor
// takes it with the lease TTL; the sweeper checks it before timing a record
// out.
func LockKey(scope, key string) string {
	return "atrium:dispatch:" + scope + ":" + key
}

// Repository persists ledger records. Terminal rows are immutable: Complete
// and Fail refuse to touch anything that already left IN_PROGRESS.
type Repository interface {
	// Begin inserts the record if no row with its (scope, key) exists.
	// When the insert loses to an existing row, created is false and the
	// existing row is returned instead.
	Begin(ctx context.Context, db *gorm.DB, record *Record) (created bool, existing *Record, err error)
	Find(ctx context.Context, db *gorm.DB, scope, key string) (*Record, error)
	Complete(ctx context.Context, db *gorm.DB, id snowflake.ID, result datatypes.JSON, at time.Time) error
	Fail(ctx context.Context, db *gorm.DB, id snowflake.ID, code, message string, at time.Time) error
	// ReapStale lists IN_PROGRESS rows created before the cutoff.
	ReapStale(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]*Record, error)
	// DeleteExpired removes terminal rows completed before the cutoff and
	// returns how many went away.
	DeleteExpired(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) (int64, error)
}
