package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Cursor is the decoded keyset position: the last-seen row's performed_at and
// id. ID breaks ties between events stamped in the same instant.
type Cursor struct {
	ID          snowflake.ID
	PerformedAt time.Time
}

// ListFilter is the storage-level filter. OrgID nil means no tenant
// constraint, which only the staff operations may request.
type ListFilter struct {
	OrgID  *snowflake.ID
	Filter Filter
	Cursor *Cursor
	Limit  int
}

// ExportFilter selects a bounded ascending snapshot.
type ExportFilter struct {
	OrgID      *snowflake.ID
	Filter     Filter
	MaxRecords int
}

// Repository persists events. There is deliberately no update or delete:
// the log is append-only at every layer.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, event *Event) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Event, error)
	Export(ctx context.Context, db *gorm.DB, filter ExportFilter) ([]*Event, error)
}
