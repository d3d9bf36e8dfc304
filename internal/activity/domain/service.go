package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/strataops/atrium/pkg/db/pagination"
)

var (
	ErrInvalidEntityType = errors.New("invalid_entity_type")
	ErrInvalidEntityID   = errors.New("invalid_entity_id")
	ErrInvalidAction     = errors.New("invalid_action")
	ErrInvalidCategory   = errors.New("invalid_category")
	ErrInvalidSummary    = errors.New("invalid_summary")
	ErrInvalidPerformer  = errors.New("invalid_performer")

	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidPageToken    = errors.New("invalid_page_token")
	ErrInvalidTimeRange    = errors.New("invalid_time_range")
	ErrInvalidActor        = errors.New("invalid_actor")
)

// Recorder is the append-only write path of the activity log.
type Recorder interface {
	// Record validates the draft and appends exactly one event.
	Record(ctx context.Context, draft Draft) (*Event, error)
	// RecordIntent appends the draft with category INTENT.
	RecordIntent(ctx context.Context, draft Draft) (*Event, error)
	// RecordExecution appends the draft with category EXECUTION.
	RecordExecution(ctx context.Context, draft Draft) (*Event, error)
	// RecordBootstrap appends an event for an organization whose
	// authorization context does not exist yet, e.g. during tenant
	// provisioning. It is the only entry point that skips tenant scoping
	// and it always requires an explicit org ID.
	RecordBootstrap(ctx context.Context, orgID snowflake.ID, draft Draft) (*Event, error)
}

// Filter describes the combinable listing axes. A nil field imposes no
// constraint.
type Filter struct {
	EntityType      *EntityType
	EntityID        *string
	Action          *Action
	Category        *Category
	PerformedByID   *string
	PerformedByType *PerformerType
	SummaryContains *string
	StartAt         *time.Time
	EndAt           *time.Time
	Refs            Refs
}

type ListRequest struct {
	pagination.Pagination
	// Actor is the encoded caller identity handed to the authorization gate.
	Actor  string
	Filter Filter
}

type ListResponse struct {
	pagination.PageInfo
	Events []Event `json:"events"`
}

type GetByEntityRequest struct {
	pagination.Pagination
	Actor      string
	EntityType EntityType
	EntityID   string
}

type ListByCaseRequest struct {
	pagination.Pagination
	Actor  string
	CaseID string
	Filter Filter
}

type ListByActorRequest struct {
	pagination.Pagination
	Actor           string
	PerformedByID   string
	PerformedByType *PerformerType
}

type ExportRequest struct {
	Actor      string
	Filter     Filter
	MaxRecords int
}

type ExportResponse struct {
	Events      []Event   `json:"events"`
	ExportedAt  time.Time `json:"exported_at"`
	RecordCount int       `json:"record_count"`
}

type StaffListRequest struct {
	pagination.Pagination
	Actor string
	// OrgID optionally narrows the cross-tenant listing to one organization.
	OrgID  *snowflake.ID
	Filter Filter
}

// Query is the read side of the activity log. Non-staff operations are
// tenant-scoped from the caller's context; the staff operations are separate
// on purpose so cross-tenant reach never depends on a parameter toggle.
type Query interface {
	List(ctx context.Context, req ListRequest) (ListResponse, error)
	GetByEntity(ctx context.Context, req GetByEntityRequest) (ListResponse, error)
	ListByCase(ctx context.Context, req ListByCaseRequest) (ListResponse, error)
	ListByActor(ctx context.Context, req ListByActorRequest) (ListResponse, error)
	Export(ctx context.Context, req ExportRequest) (ExportResponse, error)

	StaffList(ctx context.Context, req StaffListRequest) (ListResponse, error)
	StaffGetByEntity(ctx context.Context, req GetByEntityRequest) (ListResponse, error)
}
