package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

const (
	platformOrgName = "Platform"
	platformOrgSlug = "platform"
)

// Organization is a property-management company tenant. Most of its shape
// lives in the external account system; only what ledger scoping and
// membership lookups need is kept here.
type Organization struct {
	ID        int64     `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name" gorm:"type:text;not null"`
	Slug      string    `json:"slug" gorm:"type:text;not null;uniqueIndex"`
	CreatedAt time.Time `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null"`
}

func (Organization) TableName() string { return "organizations" }

// OrganizationMember maps a user to their role inside one organization. The
// authorization gate reads it to resolve casbin role groupings.
type OrganizationMember struct {
	ID        int64     `json:"id" gorm:"primaryKey"`
	OrgID     int64     `json:"organization_id" gorm:"column:org_id;not null;uniqueIndex:ux_organization_members_org_user,priority:1"`
	UserID    int64     `json:"user_id" gorm:"not null;uniqueIndex:ux_organization_members_org_user,priority:2"`
	Role      string    `json:"role" gorm:"type:text;not null"`
	CreatedAt time.Time `json:"created_at" gorm:"not null"`
}

func (OrganizationMember) TableName() string { return "organization_members" }

// EnsurePlatformOrg seeds the reserved platform organization used by staff
// operations.
func EnsurePlatformOrg(db *gorm.DB) error {
	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}
	return EnsurePlatformOrgWithID(db, node.Generate().Int64())
}

func EnsurePlatformOrgWithID(db *gorm.DB, orgID int64) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}
	if orgID == 0 {
		return errors.New("platform org id is required")
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Organization
		err := tx.Where("slug = ?", platformOrgSlug).First(&existing).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		now := time.Now().UTC()
		return tx.Create(&Organization{
			ID:        orgID,
			Name:      platformOrgName,
			Slug:      platformOrgSlug,
			CreatedAt: now,
			UpdatedAt: now,
		}).Error
	})
}
