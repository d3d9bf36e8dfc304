package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/strataops/atrium/internal/activity/domain"
	"github.com/strataops/atrium/internal/authorization"
	"github.com/strataops/atrium/internal/clock"
	"github.com/strataops/atrium/internal/config"
	"github.com/strataops/atrium/internal/orgcontext"
	"github.com/strataops/atrium/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type QueryParams struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	Clock  clock.Clock
	Repo   domain.Repository
	Authz  authorization.Service
	Policy *config.DispatchPolicyHolder
}

type Query struct {
	db     *gorm.DB
	log    *zap.Logger
	clock  clock.Clock
	repo   domain.Repository
	authz  authorization.Service
	policy *config.DispatchPolicyHolder
}

func NewQuery(p QueryParams) domain.Query {
	return &Query{
		db:     p.DB,
		log:    p.Log.Named("activity.query"),
		clock:  p.Clock,
		repo:   p.Repo,
		authz:  p.Authz,
		policy: p.Policy,
	}
}

func (q *Query) List(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.ListResponse{}, domain.ErrInvalidOrganization
	}
	if err := validateTimeRange(req.Filter.StartAt, req.Filter.EndAt); err != nil {
		return domain.ListResponse{}, err
	}

	decision, err := q.authz.QueryFilter(ctx, req.Actor, orgID.String(),
		authorization.ObjectActivityLog, authorization.ActionActivityLogView)
	if err != nil {
		return domain.ListResponse{}, err
	}

	policy := q.policy.Get()
	return q.list(ctx, orgID, req.Filter, decision, req.Pagination, policy.DefaultPageSize)
}

func (q *Query) GetByEntity(ctx context.Context, req domain.GetByEntityRequest) (domain.ListResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.ListResponse{}, domain.ErrInvalidOrganization
	}
	if !req.EntityType.Valid() {
		return domain.ListResponse{}, domain.ErrInvalidEntityType
	}
	if strings.TrimSpace(req.EntityID) == "" {
		return domain.ListResponse{}, domain.ErrInvalidEntityID
	}

	decision, err := q.authz.QueryFilter(ctx, req.Actor, orgID.String(),
		authorization.ObjectActivityLog, authorization.ActionActivityLogView)
	if err != nil {
		return domain.ListResponse{}, err
	}

	entityID := req.EntityID
	filter := domain.Filter{
		EntityType: &req.EntityType,
		EntityID:   &entityID,
	}

	policy := q.policy.Get()
	return q.list(ctx, orgID, filter, decision, req.Pagination, policy.DefaultPageSize)
}

// ListByCase gathers every event referencing a case regardless of entity
// type, so the full history of a decision chain reads as one stream.
func (q *Query) ListByCase(ctx context.Context, req domain.ListByCaseRequest) (domain.ListResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.ListResponse{}, domain.ErrInvalidOrganization
	}
	caseID := strings.TrimSpace(req.CaseID)
	if caseID == "" {
		return domain.ListResponse{}, domain.ErrInvalidEntityID
	}
	if err := validateTimeRange(req.Filter.StartAt, req.Filter.EndAt); err != nil {
		return domain.ListResponse{}, err
	}

	decision, err := q.authz.QueryFilter(ctx, req.Actor, orgID.String(),
		authorization.ObjectActivityLog, authorization.ActionActivityLogView)
	if err != nil {
		return domain.ListResponse{}, err
	}

	filter := req.Filter
	filter.Refs.CaseID = &caseID

	policy := q.policy.Get()
	return q.list(ctx, orgID, filter, decision, req.Pagination, policy.CaseScopedPageSize)
}

func (q *Query) ListByActor(ctx context.Context, req domain.ListByActorRequest) (domain.ListResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.ListResponse{}, domain.ErrInvalidOrganization
	}
	performedByID := strings.TrimSpace(req.PerformedByID)
	if performedByID == "" {
		return domain.ListResponse{}, domain.ErrInvalidActor
	}

	decision, err := q.authz.QueryFilter(ctx, req.Actor, orgID.String(),
		authorization.ObjectActivityLog, authorization.ActionActivityLogView)
	if err != nil {
		return domain.ListResponse{}, err
	}

	filter := domain.Filter{
		PerformedByID:   &performedByID,
		PerformedByType: req.PerformedByType,
	}

	policy := q.policy.Get()
	return q.list(ctx, orgID, filter, decision, req.Pagination, policy.DefaultPageSize)
}

// Export takes a bounded ascending snapshot for compliance handoff. The
// same gate decision that scopes listings scopes the snapshot.
func (q *Query) Export(ctx context.Context, req domain.ExportRequest) (domain.ExportResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.ExportResponse{}, domain.ErrInvalidOrganization
	}
	if err := validateTimeRange(req.Filter.StartAt, req.Filter.EndAt); err != nil {
		return domain.ExportResponse{}, err
	}

	decision, err := q.authz.QueryFilter(ctx, req.Actor, orgID.String(),
		authorization.ObjectActivityLog, authorization.ActionActivityLogExport)
	if err != nil {
		return domain.ExportResponse{}, err
	}

	filter, visible := mergeDecision(req.Filter, decision)
	if !visible {
		return domain.ExportResponse{
			Events:     []domain.Event{},
			ExportedAt: q.clock.Now(),
		}, nil
	}

	policy := q.policy.Get()
	maxRecords := req.MaxRecords
	if maxRecords <= 0 || maxRecords > policy.MaxExportRecords {
		maxRecords = policy.MaxExportRecords
	}

	rows, err := q.repo.Export(ctx, q.db, domain.ExportFilter{
		OrgID:      &orgID,
		Filter:     filter,
		MaxRecords: maxRecords,
	})
	if err != nil {
		return domain.ExportResponse{}, err
	}

	events := make([]domain.Event, 0, len(rows))
	for _, row := range rows {
		events = append(events, *row)
	}

	return domain.ExportResponse{
		Events:      events,
		ExportedAt:  q.clock.Now(),
		RecordCount: len(events),
	}, nil
}

func (q *Query) StaffList(ctx context.Context, req domain.StaffListRequest) (domain.ListResponse, error) {
	if err := q.authz.AuthorizeStaff(ctx, req.Actor,
		authorization.ObjectActivityLog, authorization.ActionStaffActivityLogView); err != nil {
		return domain.ListResponse{}, err
	}
	if err := validateTimeRange(req.Filter.StartAt, req.Filter.EndAt); err != nil {
		return domain.ListResponse{}, err
	}

	policy := q.policy.Get()
	limit := clampPageSize(req.PageSize, policy.DefaultPageSize, policy.MaxPageSize)

	cursor, err := decodeCursor(req.PageToken)
	if err != nil {
		return domain.ListResponse{}, err
	}

	rows, err := q.repo.List(ctx, q.db, domain.ListFilter{
		OrgID:  req.OrgID,
		Filter: req.Filter,
		Cursor: cursor,
		Limit:  limit,
	})
	if err != nil {
		return domain.ListResponse{}, err
	}
	return buildPage(rows, limit), nil
}

func (q *Query) StaffGetByEntity(ctx context.Context, req domain.GetByEntityRequest) (domain.ListResponse, error) {
	if err := q.authz.AuthorizeStaff(ctx, req.Actor,
		authorization.ObjectActivityLog, authorization.ActionStaffActivityLogView); err != nil {
		return domain.ListResponse{}, err
	}
	if !req.EntityType.Valid() {
		return domain.ListResponse{}, domain.ErrInvalidEntityType
	}
	if strings.TrimSpace(req.EntityID) == "" {
		return domain.ListResponse{}, domain.ErrInvalidEntityID
	}

	policy := q.policy.Get()
	limit := clampPageSize(req.PageSize, policy.DefaultPageSize, policy.MaxPageSize)

	cursor, err := decodeCursor(req.PageToken)
	if err != nil {
		return domain.ListResponse{}, err
	}

	entityID := req.EntityID
	rows, err := q.repo.List(ctx, q.db, domain.ListFilter{
		Filter: domain.Filter{
			EntityType: &req.EntityType,
			EntityID:   &entityID,
		},
		Cursor: cursor,
		Limit:  limit,
	})
	if err != nil {
		return domain.ListResponse{}, err
	}
	return buildPage(rows, limit), nil
}

// list runs the shared tenant-scoped listing path: apply the gate's decision,
// merge its predicate into the filter, then page through storage.
func (q *Query) list(
	ctx context.Context,
	orgID snowflake.ID,
	filter domain.Filter,
	decision authorization.QueryDecision,
	page pagination.Pagination,
	defaultSize int,
) (domain.ListResponse, error) {
	filter, visible := mergeDecision(filter, decision)
	if !visible {
		return domain.ListResponse{
			PageInfo: pagination.PageInfo{HasMore: false},
			Events:   []domain.Event{},
		}, nil
	}

	policy := q.policy.Get()
	limit := clampPageSize(page.PageSize, defaultSize, policy.MaxPageSize)

	cursor, err := decodeCursor(page.PageToken)
	if err != nil {
		return domain.ListResponse{}, err
	}

	rows, err := q.repo.List(ctx, q.db, domain.ListFilter{
		OrgID:  &orgID,
		Filter: filter,
		Cursor: cursor,
		Limit:  limit,
	})
	if err != nil {
		q.log.Warn("activity list failed", zap.Error(err))
		return domain.ListResponse{}, err
	}
	return buildPage(rows, limit), nil
}

// mergeDecision folds the gate's decision into a storage filter. The second
// return is false when no rows can be visible to the caller, either because
// the gate denied outright or because the requested performer and the
// caller's own-events predicate cannot both hold.
func mergeDecision(filter domain.Filter, decision authorization.QueryDecision) (domain.Filter, bool) {
	if decision.Kind == authorization.DecisionAlwaysDenied {
		return filter, false
	}
	if decision.Predicate.PerformedByID != nil {
		if filter.PerformedByID != nil && *filter.PerformedByID != *decision.Predicate.PerformedByID {
			return filter, false
		}
		filter.PerformedByID = decision.Predicate.PerformedByID
	}
	return filter, true
}

func buildPage(rows []*domain.Event, limit int) domain.ListResponse {
	pageInfo := pagination.BuildCursorPageInfo(rows, limit, func(event *domain.Event) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:          event.ID.String(),
			PerformedAt: event.PerformedAt.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})

	if len(rows) > limit {
		rows = rows[:limit]
	}
	events := make([]domain.Event, 0, len(rows))
	for _, row := range rows {
		events = append(events, *row)
	}

	return domain.ListResponse{
		PageInfo: *pageInfo,
		Events:   events,
	}
}

func decodeCursor(token string) (*domain.Cursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}

	raw, err := pagination.DecodeCursor(token)
	if err != nil {
		return nil, domain.ErrInvalidPageToken
	}

	id, err := strconv.ParseInt(raw.ID, 10, 64)
	if err != nil {
		return nil, domain.ErrInvalidPageToken
	}
	performedAt, err := time.Parse(time.RFC3339Nano, raw.PerformedAt)
	if err != nil {
		return nil, domain.ErrInvalidPageToken
	}

	return &domain.Cursor{
		ID:          snowflake.ID(id),
		PerformedAt: performedAt,
	}, nil
}

func clampPageSize(requested, fallback, max int) int {
	if requested <= 0 {
		return fallback
	}
	if requested > max {
		return max
	}
	return requested
}

func validateTimeRange(start, end *time.Time) error {
	if start != nil && end != nil && end.Before(*start) {
		return domain.ErrInvalidTimeRange
	}
	return nil
}
