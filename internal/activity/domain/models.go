package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// EntityType is the closed set of entity kinds an event may describe.
type EntityType string

const (
	EntityAssociation        EntityType = "ASSOCIATION"
	EntityProperty           EntityType = "PROPERTY"
	EntityUnit               EntityType = "UNIT"
	EntityOwnership          EntityType = "OWNERSHIP"
	EntityComplianceDeadline EntityType = "COMPLIANCE_DEADLINE"
	EntityReserve            EntityType = "RESERVE"
	EntityBid                EntityType = "BID"
	EntityInvitation         EntityType = "INVITATION"
	EntityStaff              EntityType = "STAFF"
	EntityBillingAccount     EntityType = "BILLING_ACCOUNT"
	EntityCase               EntityType = "CASE"
	EntityJob                EntityType = "JOB"
	EntityWorkOrder          EntityType = "WORK_ORDER"
	EntityViolation          EntityType = "VIOLATION"
	EntityArcRequest         EntityType = "ARC_REQUEST"
	EntityAuthorization      EntityType = "AUTHORIZATION"
)

func (t EntityType) Valid() bool {
	switch t {
	case EntityAssociation, EntityProperty, EntityUnit, EntityOwnership,
		EntityComplianceDeadline, EntityReserve, EntityBid, EntityInvitation,
		EntityStaff, EntityBillingAccount, EntityCase, EntityJob,
		EntityWorkOrder, EntityViolation, EntityArcRequest, EntityAuthorization:
		return true
	}
	return false
}

// Action is the closed set of verbs an event may carry.
type Action string

const (
	ActionCreate       Action = "CREATE"
	ActionUpdate       Action = "UPDATE"
	ActionDelete       Action = "DELETE"
	ActionApprove      Action = "APPROVE"
	ActionDeny         Action = "DENY"
	ActionStatusChange Action = "STATUS_CHANGE"
	ActionSubmit       Action = "SUBMIT"
	ActionAccept       Action = "ACCEPT"
	ActionTransfer     Action = "TRANSFER"
	ActionRevoke       Action = "REVOKE"
	ActionExport       Action = "EXPORT"
)

func (a Action) Valid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete, ActionApprove, ActionDeny,
		ActionStatusChange, ActionSubmit, ActionAccept, ActionTransfer,
		ActionRevoke, ActionExport:
		return true
	}
	return false
}

// Category distinguishes a request from its execution in the audit trail.
type Category string

const (
	// CategoryIntent records that a request to do something was made.
	CategoryIntent Category = "INTENT"
	// CategoryDecision records a human or AI judgment.
	CategoryDecision Category = "DECISION"
	// CategoryExecution records that the system carried the change out.
	CategoryExecution Category = "EXECUTION"
	// CategorySystem records automated or background action.
	CategorySystem Category = "SYSTEM"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryIntent, CategoryDecision, CategoryExecution, CategorySystem:
		return true
	}
	return false
}

type PerformerType string

const (
	PerformerHuman  PerformerType = "HUMAN"
	PerformerAI     PerformerType = "AI"
	PerformerSystem PerformerType = "SYSTEM"
)

func (p PerformerType) Valid() bool {
	switch p {
	case PerformerHuman, PerformerAI, PerformerSystem:
		return true
	}
	return false
}

// Refs are the denormalized context keys an event may reference, kept as
// columns so listings filter without joins. A nil field means the event has
// no tie to that context.
type Refs struct {
	CaseID        *string `gorm:"index" json:"case_id,omitempty"`
	JobID         *string `gorm:"index" json:"job_id,omitempty"`
	WorkOrderID   *string `gorm:"index" json:"work_order_id,omitempty"`
	AssociationID *string `gorm:"index" json:"association_id,omitempty"`
	UnitID        *string `gorm:"index" json:"unit_id,omitempty"`
	ViolationID   *string `gorm:"index" json:"violation_id,omitempty"`
	ArcRequestID  *string `gorm:"index" json:"arc_request_id,omitempty"`
	PropertyID    *string `gorm:"index" json:"property_id,omitempty"`
	TechnicianID  *string `gorm:"index" json:"technician_id,omitempty"`
	DecisionID    *string `gorm:"index" json:"decision_id,omitempty"`
	IntentID      *string `gorm:"index" json:"intent_id,omitempty"`
}

// Event is one immutable audit-log row. Rows are only ever inserted; no part
// of the system updates or deletes them.
type Event struct {
	ID              snowflake.ID      `gorm:"primaryKey" json:"id"`
	OrgID           *snowflake.ID     `gorm:"index:idx_activity_org_time,priority:1" json:"organization_id,omitempty"`
	EntityType      EntityType        `gorm:"not null;index:idx_activity_entity_time,priority:1" json:"entity_type"`
	EntityID        string            `gorm:"not null;index:idx_activity_entity_time,priority:2" json:"entity_id"`
	Action          Action            `gorm:"not null" json:"action"`
	Category        Category          `gorm:"not null" json:"event_category"`
	Summary         string            `gorm:"not null" json:"summary"`
	PerformedByID   *string           `gorm:"index" json:"performed_by_id,omitempty"`
	PerformedByType PerformerType     `gorm:"not null" json:"performed_by_type"`
	PerformedAt     time.Time         `gorm:"not null;index:idx_activity_org_time,priority:2;index:idx_activity_entity_time,priority:3" json:"performed_at"`
	PreviousState   datatypes.JSONMap `json:"previous_state,omitempty"`
	NewState        datatypes.JSONMap `json:"new_state,omitempty"`
	Metadata        datatypes.JSONMap `json:"metadata,omitempty"`
	Refs            Refs              `gorm:"embedded" json:"refs"`
}

func (Event) TableName() string {
	return "activity_events"
}

// Draft is the input to the write path. PerformedAt defaults to the current
// time when nil; OrgID may be nil only for platform-level entities.
type Draft struct {
	OrgID           *snowflake.ID
	EntityType      EntityType
	EntityID        string
	Action          Action
	Category        Category
	Summary         string
	PerformedByID   *string
	PerformedByType PerformerType
	PerformedAt     *time.Time
	PreviousState   map[string]any
	NewState        map[string]any
	Metadata        map[string]any
	Refs            Refs
}
