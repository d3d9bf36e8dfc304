package domain

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

var (
	ErrBidNotFound   = errors.New("bid_not_found")
	ErrBidNotPending = errors.New("bid_not_pending")
	ErrInvalidAmount = errors.New("invalid_amount")
	ErrInvalidVendor = errors.New("invalid_vendor")
)

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusAccepted Status = "ACCEPTED"
	StatusDeclined Status = "DECLINED"
)

// Bid is a vendor's offer against a work order. Only PENDING bids can be
// accepted or declined; both transitions are final.
type Bid struct {
	ID          int64     `json:"id" gorm:"primaryKey"`
	OrgID       int64     `json:"organization_id" gorm:"column:org_id;not null;index"`
	WorkOrderID string    `json:"work_order_id" gorm:"type:text;not null;index"`
	VendorID    string    `json:"vendor_id" gorm:"type:text;not null"`
	AmountCents int64     `json:"amount_cents" gorm:"not null"`
	Currency    string    `json:"currency" gorm:"type:text;not null"`
	Notes       *string   `json:"notes,omitempty" gorm:"type:text"`
	Status      Status    `json:"status" gorm:"type:text;not null;index"`
	CreatedAt   time.Time `json:"created_at" gorm:"not null"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"not null"`
}

func (Bid) TableName() string { return "bids" }

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, bid *Bid) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id int64) (*Bid, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, bid *Bid, from Status) error
}
