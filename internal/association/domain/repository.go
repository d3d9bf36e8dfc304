package domain

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

var (
	ErrInvalidName  = errors.New("invalid_name")
	ErrNotFound     = errors.New("association_not_found")
	ErrNameTaken    = errors.New("association_name_taken")
	ErrInvalidID    = errors.New("invalid_id")
	ErrInvalidOrgID = errors.New("invalid_organization")
)

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, association *Association) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id int64) (*Association, error)
	Update(ctx context.Context, db *gorm.DB, association *Association) error
}
