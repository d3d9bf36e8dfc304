package repository

import (
	"context"
	"errors"

	"github.com/strataops/atrium/internal/bid/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Create(ctx context.Context, db *gorm.DB, bid *domain.Bid) error {
	return db.WithContext(ctx).Create(bid).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id int64) (*domain.Bid, error) {
	var bid domain.Bid
	err := db.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, id).
		First(&bid).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrBidNotFound
	}
	if err != nil {
		return nil, err
	}
	return &bid, nil
}

// UpdateStatus moves the bid out of `from`. The status guard in the WHERE
// clause makes the transition a compare-and-swap, so two concurrent accepts
// cannot both win.
func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, bid *domain.Bid, from domain.Status) error {
	res := db.WithContext(ctx).
		Model(&domain.Bid{}).
		Where("org_id = ? AND id = ? AND status = ?", bid.OrgID, bid.ID, from).
		Updates(map[string]any{
			"status":     bid.Status,
			"updated_at": bid.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrBidNotPending
	}
	return nil
}
