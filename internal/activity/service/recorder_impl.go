package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/strataops/atrium/internal/activity/domain"
	"github.com/strataops/atrium/internal/actorcontext"
	"github.com/strataops/atrium/internal/clock"
	obsmetrics "github.com/strataops/atrium/internal/observability/metrics"
	"github.com/strataops/atrium/internal/orgcontext"
	"github.com/strataops/atrium/pkg/telemetry/correlation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type RecorderParams struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    domain.Repository
	Metrics *obsmetrics.Metrics `optional:"true"`
}

type Recorder struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    domain.Repository
	metrics *obsmetrics.Metrics
}

func NewRecorder(p RecorderParams) domain.Recorder {
	return &Recorder{
		db:      p.DB,
		log:     p.Log.Named("activity.recorder"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		metrics: p.Metrics,
	}
}

func (r *Recorder) Record(ctx context.Context, draft domain.Draft) (*domain.Event, error) {
	if err := validateDraft(draft); err != nil {
		return nil, err
	}

	orgID := r.resolveOrgID(ctx, draft.OrgID)
	return r.append(ctx, orgID, draft)
}

func (r *Recorder) RecordIntent(ctx context.Context, draft domain.Draft) (*domain.Event, error) {
	draft.Category = domain.CategoryIntent
	return r.Record(ctx, draft)
}

func (r *Recorder) RecordExecution(ctx context.Context, draft domain.Draft) (*domain.Event, error) {
	draft.Category = domain.CategoryExecution
	return r.Record(ctx, draft)
}

// RecordBootstrap appends on behalf of an organization that has no
// authorization context yet. The explicit org ID keeps the escape hatch
// narrow: callers cannot reach other tenants by omission.
func (r *Recorder) RecordBootstrap(ctx context.Context, orgID snowflake.ID, draft domain.Draft) (*domain.Event, error) {
	if orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	if err := validateDraft(draft); err != nil {
		return nil, err
	}
	return r.append(ctx, &orgID, draft)
}

func (r *Recorder) append(ctx context.Context, orgID *snowflake.ID, draft domain.Draft) (*domain.Event, error) {
	performedAt := r.clock.Now()
	if draft.PerformedAt != nil {
		performedAt = draft.PerformedAt.UTC()
	}

	metadata := map[string]any{}
	for key, value := range draft.Metadata {
		if key == "" {
			continue
		}
		metadata[key] = value
	}
	if requestID := actorcontext.RequestIDFromContext(ctx); requestID != "" {
		metadata["request_id"] = requestID
	}
	if cid := correlation.ExtractCorrelationID(ctx); cid != "" {
		metadata["correlation_id"] = cid
	}
	if ip := actorcontext.IPAddressFromContext(ctx); ip != "" {
		metadata["ip_address"] = ip
	}
	if ua := actorcontext.UserAgentFromContext(ctx); ua != "" {
		metadata["user_agent"] = ua
	}

	event := domain.Event{
		ID:              r.genID.Generate(),
		OrgID:           orgID,
		EntityType:      draft.EntityType,
		EntityID:        strings.TrimSpace(draft.EntityID),
		Action:          draft.Action,
		Category:        draft.Category,
		Summary:         strings.TrimSpace(draft.Summary),
		PerformedByID:   normalizePointer(draft.PerformedByID),
		PerformedByType: draft.PerformedByType,
		PerformedAt:     performedAt,
		Metadata:        datatypes.JSONMap(metadata),
		Refs:            draft.Refs,
	}
	if len(draft.PreviousState) > 0 {
		event.PreviousState = datatypes.JSONMap(draft.PreviousState)
	}
	if len(draft.NewState) > 0 {
		event.NewState = datatypes.JSONMap(draft.NewState)
	}

	if err := r.repo.Insert(ctx, r.db, &event); err != nil {
		r.log.Warn("failed to append activity event",
			zap.String("entity_type", string(event.EntityType)),
			zap.String("action", string(event.Action)),
			zap.Error(err),
		)
		return nil, err
	}

	r.metrics.RecordActivityAppend(ctx, string(event.EntityType), string(event.Category))
	return &event, nil
}

func (r *Recorder) resolveOrgID(ctx context.Context, orgID *snowflake.ID) *snowflake.ID {
	if orgID != nil && *orgID != 0 {
		return orgID
	}
	resolved, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || resolved == 0 {
		return nil
	}
	return &resolved
}

func validateDraft(draft domain.Draft) error {
	if !draft.EntityType.Valid() {
		return domain.ErrInvalidEntityType
	}
	if strings.TrimSpace(draft.EntityID) == "" {
		return domain.ErrInvalidEntityID
	}
	if !draft.Action.Valid() {
		return domain.ErrInvalidAction
	}
	if !draft.Category.Valid() {
		return domain.ErrInvalidCategory
	}
	if strings.TrimSpace(draft.Summary) == "" {
		return domain.ErrInvalidSummary
	}
	if !draft.PerformedByType.Valid() {
		return domain.ErrInvalidPerformer
	}
	return nil
}

func normalizePointer(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
