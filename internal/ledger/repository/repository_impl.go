package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/strataops/atrium/internal/ledger/domain"
	"github.com/strataops/atrium/pkg/db"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Begin(ctx context.Context, tx *gorm.DB, record *domain.Record) (bool, *domain.Record, error) {
	if record == nil || strings.TrimSpace(record.Scope) == "" {
		return false, nil, domain.ErrInvalidScope
	}
	if strings.TrimSpace(record.Key) == "" {
		return false, nil, domain.ErrInvalidKey
	}

	err := tx.WithContext(ctx).Create(record).Error
	if err == nil {
		return true, nil, nil
	}
	if !db.IsDuplicateKeyErr(err) {
		return false, nil, err
	}

	existing, findErr := r.Find(ctx, tx, record.Scope, record.Key)
	if findErr != nil {
		return false, nil, findErr
	}
	return false, existing, nil
}

func (r *repo) Find(ctx context.Context, tx *gorm.DB, scope, key string) (*domain.Record, error) {
	var record domain.Record
	err := tx.WithContext(ctx).
		Where("scope = ? AND key = ?", scope, key).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *repo) Complete(ctx context.Context, tx *gorm.DB, id snowflake.ID, result datatypes.JSON, at time.Time) error {
	return r.transition(ctx, tx, id, map[string]any{
		"status":       domain.StatusCompleted,
		"result":       result,
		"completed_at": at,
	})
}

func (r *repo) Fail(ctx context.Context, tx *gorm.DB, id snowflake.ID, code, message string, at time.Time) error {
	return r.transition(ctx, tx, id, map[string]any{
		"status":        domain.StatusFailed,
		"error_code":    code,
		"error_message": message,
		"completed_at":  at,
	})
}

// transition is the single IN_PROGRESS exit. The status guard in the WHERE
// clause is what keeps terminal rows immutable under concurrent writers.
func (r *repo) transition(ctx context.Context, tx *gorm.DB, id snowflake.ID, updates map[string]any) error {
	res := tx.WithContext(ctx).
		Model(&domain.Record{}).
		Where("id = ? AND status = ?", id, domain.StatusInProgress).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotInProgress
	}
	return nil
}

func (r *repo) ReapStale(ctx context.Context, tx *gorm.DB, cutoff time.Time, limit int) ([]*domain.Record, error) {
	var records []*domain.Record
	query := tx.WithContext(ctx).
		Where("status = ? AND created_at < ?", domain.StatusInProgress, cutoff).
		Order("created_at asc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (r *repo) DeleteExpired(ctx context.Context, tx *gorm.DB, cutoff time.Time, limit int) (int64, error) {
	ids := tx.WithContext(ctx).
		Model(&domain.Record{}).
		Select("id").
		Where("status IN ? AND completed_at < ?", []domain.Status{domain.StatusCompleted, domain.StatusFailed}, cutoff)
	if limit > 0 {
		ids = ids.Limit(limit)
	}

	res := tx.WithContext(ctx).
		Where("id IN (?)", ids).
		Delete(&domain.Record{})
	return res.RowsAffected, res.Error
}
