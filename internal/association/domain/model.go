package domain

import (
	"time"
)

type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusArchived Status = "ARCHIVED"
)

// Association is one HOA or condo community managed on the platform.
type Association struct {
	ID        int64     `json:"id" gorm:"primaryKey"`
	OrgID     int64     `json:"organization_id" gorm:"column:org_id;not null;index:ux_associations_org_name,priority:1"`
	Name      string    `json:"name" gorm:"type:text;not null;index:ux_associations_org_name,priority:2"`
	Timezone  string    `json:"timezone" gorm:"type:text;not null"`
	UnitCount int       `json:"unit_count" gorm:"not null;default:0"`
	Status    Status    `json:"status" gorm:"type:text;not null"`
	CreatedAt time.Time `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null"`
}

func (Association) TableName() string { return "associations" }
