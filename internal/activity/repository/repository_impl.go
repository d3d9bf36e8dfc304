package repository

import (
	"context"
	"strings"

	"github.com/strataops/atrium/internal/activity/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, event *domain.Event) error {
	if event == nil {
		return nil
	}
	return db.WithContext(ctx).Create(event).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.Event, error) {
	var events []*domain.Event
	stmt := db.WithContext(ctx).Model(&domain.Event{})

	if filter.OrgID != nil {
		stmt = stmt.Where("org_id = ?", *filter.OrgID)
	}
	stmt = applyFilter(stmt, filter.Filter)

	if filter.Cursor != nil {
		stmt = stmt.Where("(performed_at < ?) OR (performed_at = ? AND id < ?)",
			filter.Cursor.PerformedAt,
			filter.Cursor.PerformedAt,
			filter.Cursor.ID,
		)
	}

	stmt = stmt.Order("performed_at desc, id desc")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit + 1)
	}

	if err := stmt.Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (r *repo) Export(ctx context.Context, db *gorm.DB, filter domain.ExportFilter) ([]*domain.Event, error) {
	var events []*domain.Event
	stmt := db.WithContext(ctx).Model(&domain.Event{})

	if filter.OrgID != nil {
		stmt = stmt.Where("org_id = ?", *filter.OrgID)
	}
	stmt = applyFilter(stmt, filter.Filter)

	stmt = stmt.Order("performed_at asc, id asc")
	if filter.MaxRecords > 0 {
		stmt = stmt.Limit(filter.MaxRecords)
	}

	if err := stmt.Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

// applyFilter folds the optional axes into AND clauses. An omitted field adds
// no constraint.
func applyFilter(stmt *gorm.DB, f domain.Filter) *gorm.DB {
	if f.EntityType != nil {
		stmt = stmt.Where("entity_type = ?", *f.EntityType)
	}
	if f.EntityID != nil && strings.TrimSpace(*f.EntityID) != "" {
		stmt = stmt.Where("entity_id = ?", strings.TrimSpace(*f.EntityID))
	}
	if f.Action != nil {
		stmt = stmt.Where("action = ?", *f.Action)
	}
	if f.Category != nil {
		stmt = stmt.Where("category = ?", *f.Category)
	}
	if f.PerformedByID != nil && strings.TrimSpace(*f.PerformedByID) != "" {
		stmt = stmt.Where("performed_by_id = ?", strings.TrimSpace(*f.PerformedByID))
	}
	if f.PerformedByType != nil {
		stmt = stmt.Where("performed_by_type = ?", *f.PerformedByType)
	}
	if f.SummaryContains != nil && strings.TrimSpace(*f.SummaryContains) != "" {
		needle := escapeLike(strings.ToLower(strings.TrimSpace(*f.SummaryContains)))
		stmt = stmt.Where("LOWER(summary) LIKE ? ESCAPE '|'", "%"+needle+"%")
	}
	if f.StartAt != nil {
		stmt = stmt.Where("performed_at >= ?", f.StartAt.UTC())
	}
	if f.EndAt != nil {
		stmt = stmt.Where("performed_at <= ?", f.EndAt.UTC())
	}

	stmt = applyRef(stmt, "case_id", f.Refs.CaseID)
	stmt = applyRef(stmt, "job_id", f.Refs.JobID)
	stmt = applyRef(stmt, "work_order_id", f.Refs.WorkOrderID)
	stmt = applyRef(stmt, "association_id", f.Refs.AssociationID)
	stmt = applyRef(stmt, "unit_id", f.Refs.UnitID)
	stmt = applyRef(stmt, "violation_id", f.Refs.ViolationID)
	stmt = applyRef(stmt, "arc_request_id", f.Refs.ArcRequestID)
	stmt = applyRef(stmt, "property_id", f.Refs.PropertyID)
	stmt = applyRef(stmt, "technician_id", f.Refs.TechnicianID)
	stmt = applyRef(stmt, "decision_id", f.Refs.DecisionID)
	stmt = applyRef(stmt, "intent_id", f.Refs.IntentID)

	return stmt
}

// escapeLike neutralizes LIKE metacharacters so a search term matches
// literally. The pipe escape character works across sqlite, postgres and
// mysql, unlike a backslash.
func escapeLike(s string) string {
	return strings.NewReplacer(`|`, `||`, `%`, `|%`, `_`, `|_`).Replace(s)
}

func applyRef(stmt *gorm.DB, column string, value *string) *gorm.DB {
	if value == nil || strings.TrimSpace(*value) == "" {
		return stmt
	}
	return stmt.Where(column+" = ?", strings.TrimSpace(*value))
}
