package repository

import (
	"context"

	"github.com/strataops/atrium/internal/association/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Create(ctx context.Context, db *gorm.DB, association *domain.Association) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO associations (id, org_id, name, timezone, unit_count, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		association.ID,
		association.OrgID,
		association.Name,
		association.Timezone,
		association.UnitCount,
		association.Status,
		association.CreatedAt,
		association.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id int64) (*domain.Association, error) {
	var a domain.Association
	err := db.WithContext(ctx).Raw(
		`SELECT id, org_id, name, timezone, unit_count, status, created_at, updated_at
		 FROM associations WHERE org_id = ? AND id = ?`,
		orgID,
		id,
	).Scan(&a).Error
	if err != nil {
		return nil, err
	}
	if a.ID == 0 {
		return nil, nil
	}
	return &a, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, association *domain.Association) error {
	if association == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Exec(
		`UPDATE associations
		 SET name = ?, timezone = ?, unit_count = ?, status = ?, updated_at = ?
		 WHERE org_id = ? AND id = ?`,
		association.Name,
		association.Timezone,
		association.UnitCount,
		association.Status,
		association.UpdatedAt,
		association.OrgID,
		association.ID,
	).Error
}
