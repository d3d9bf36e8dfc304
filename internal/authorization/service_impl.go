package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	activitydomain "github.com/strataops/atrium/internal/activity/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

// PlatformDomain is the reserved casbin domain for cross-tenant staff access.
const PlatformDomain = "org:platform"

const (
	ObjectAssociation        = "association"
	ObjectProperty           = "property"
	ObjectUnit               = "unit"
	ObjectOwnership          = "ownership"
	ObjectComplianceDeadline = "compliance_deadline"
	ObjectReserve            = "reserve"
	ObjectBid                = "bid"
	ObjectInvitation         = "invitation"
	ObjectStaff              = "staff"
	ObjectBillingAccount     = "billing_account"
	ObjectActivityLog        = "activity_log"
	ObjectWorkflow           = "workflow"
)

const (
	ActionAssociationView   = "association.view"
	ActionAssociationCreate = "association.create"
	ActionAssociationUpdate = "association.update"
	ActionAssociationDelete = "association.delete"

	ActionPropertyView   = "property.view"
	ActionPropertyCreate = "property.create"
	ActionPropertyUpdate = "property.update"
	ActionPropertyDelete = "property.delete"

	ActionUnitView   = "unit.view"
	ActionUnitCreate = "unit.create"
	ActionUnitUpdate = "unit.update"
	ActionUnitDelete = "unit.delete"

	ActionOwnershipView     = "ownership.view"
	ActionOwnershipTransfer = "ownership.transfer"

	ActionComplianceView    = "compliance_deadline.view"
	ActionComplianceCreate  = "compliance_deadline.create"
	ActionComplianceResolve = "compliance_deadline.resolve"

	ActionReserveView   = "reserve.view"
	ActionReserveCreate = "reserve.create"
	ActionReserveUpdate = "reserve.update"

	ActionBidView    = "bid.view"
	ActionBidSubmit  = "bid.submit"
	ActionBidAccept  = "bid.accept"
	ActionBidDecline = "bid.decline"

	ActionInvitationView   = "invitation.view"
	ActionInvitationCreate = "invitation.create"
	ActionInvitationRevoke = "invitation.revoke"

	ActionBillingAccountView   = "billing_account.view"
	ActionBillingAccountUpdate = "billing_account.update"

	ActionActivityLogView    = "activity_log.view"
	ActionActivityLogViewOwn = "activity_log.view.own"
	ActionActivityLogExport  = "activity_log.export"

	ActionStaffActivityLogView = "staff.activity_log.view"

	ActionWorkflowDispatch = "workflow.dispatch"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	Recorder activitydomain.Recorder `optional:"true"`
}

type ServiceImpl struct {
	db       *gorm.DB
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	recorder activitydomain.Recorder
}

var Module = fx.Module("authorization",
	fx.Provide(NewEnforcer),
	fx.Provide(NewService),
)

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		db:       p.DB,
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		recorder: p.Recorder,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor string, orgID string, object string, action string) error {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return ErrInvalidActor
	}
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		return ErrInvalidOrganization
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	subject, roleName, actorType, actorID, err := s.resolveActor(ctx, actor, orgID)
	if err != nil {
		s.auditDenied(ctx, actorType, actorID, orgID, object, action)
		return err
	}

	domain := fmt.Sprintf("org:%s", orgID)
	if err := s.ensureGrouping(subject, roleName, domain); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, domain, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.auditDenied(ctx, actorType, actorID, orgID, object, action)
		return ErrForbidden
	}
	return nil
}

func (s *ServiceImpl) AuthorizeStaff(ctx context.Context, actor string, object string, action string) error {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	// Staff subjects are granted into the platform domain at provisioning
	// time; no per-org role resolution happens here.
	if actor != "system" && !strings.HasPrefix(actor, "staff:") {
		return ErrForbidden
	}
	if actor == "system" {
		if err := s.ensureGrouping(actor, "role:system", PlatformDomain); err != nil {
			return err
		}
	} else {
		if err := s.ensureGrouping(actor, "role:staff", PlatformDomain); err != nil {
			return err
		}
	}

	allowed, err := s.enforcer.Enforce(actor, PlatformDomain, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		return ErrForbidden
	}
	return nil
}

func (s *ServiceImpl) QueryFilter(ctx context.Context, actor string, orgID string, object string, action string) (QueryDecision, error) {
	actor = strings.TrimSpace(actor)
	if actor == "" || strings.TrimSpace(orgID) == "" {
		return AlwaysDenied(), nil
	}

	subject, roleName, _, actorID, err := s.resolveActor(ctx, actor, orgID)
	if err != nil {
		return AlwaysDenied(), nil
	}

	domain := fmt.Sprintf("org:%s", orgID)
	if err := s.ensureGrouping(subject, roleName, domain); err != nil {
		return QueryDecision{}, err
	}

	allowed, err := s.enforcer.Enforce(subject, domain, object, action)
	if err != nil {
		return QueryDecision{}, err
	}
	if allowed {
		return Conditional(Predicate{}), nil
	}

	// A role without the blanket grant may still hold the self-scoped
	// variant, which narrows the listing to the actor's own events.
	ownAllowed, err := s.enforcer.Enforce(subject, domain, object, action+".own")
	if err != nil {
		return QueryDecision{}, err
	}
	if ownAllowed && actorID != nil {
		return Conditional(Predicate{PerformedByID: actorID}), nil
	}

	return AlwaysDenied(), nil
}

func (s *ServiceImpl) resolveActor(ctx context.Context, actor string, orgID string) (string, string, string, *string, error) {
	if actor == "system" {
		return actor, "role:system", "system", nil, nil
	}
	if strings.HasPrefix(actor, "staff:") {
		staffIDRaw := strings.TrimPrefix(actor, "staff:")
		staffID, err := snowflake.ParseString(staffIDRaw)
		if err != nil || staffID == 0 {
			return "", "", "", nil, ErrInvalidActor
		}
		staffIDStr := staffID.String()
		return actor, "role:staff", "staff", &staffIDStr, nil
	}
	if strings.HasPrefix(actor, "ai:") {
		// AI agents act with the system role; their identity is retained for
		// attribution in the activity log.
		agentID := strings.TrimPrefix(actor, "ai:")
		if strings.TrimSpace(agentID) == "" {
			return "", "", "", nil, ErrInvalidActor
		}
		return actor, "role:system", "ai", &agentID, nil
	}
	if strings.HasPrefix(actor, "user:") {
		userIDRaw := strings.TrimPrefix(actor, "user:")
		userID, err := snowflake.ParseString(userIDRaw)
		if err != nil || userID == 0 {
			return "", "", "", nil, ErrInvalidActor
		}
		parsedOrgID, err := snowflake.ParseString(orgID)
		userIDStr := userID.String()
		if err != nil || parsedOrgID == 0 {
			return actor, "", "user", &userIDStr, ErrInvalidOrganization
		}
		role, err := s.roleForUser(ctx, parsedOrgID, userID)
		if err != nil {
			return actor, "", "user", &userIDStr, err
		}
		roleName := fmt.Sprintf("role:%s", strings.ToLower(role))
		return actor, roleName, "user", &userIDStr, nil
	}
	return "", "", "", nil, ErrInvalidActor
}

func (s *ServiceImpl) roleForUser(ctx context.Context, orgID snowflake.ID, userID snowflake.ID) (string, error) {
	var row struct {
		Role string `gorm:"column:role"`
	}
	if err := s.db.WithContext(ctx).Raw(
		`SELECT role
		 FROM organization_members
		 WHERE org_id = ? AND user_id = ?
		 LIMIT 1`,
		orgID,
		userID,
	).Scan(&row).Error; err != nil {
		return "", err
	}

	role := strings.TrimSpace(row.Role)
	if role == "" {
		return "", ErrForbidden
	}
	return role, nil
}

func (s *ServiceImpl) ensureGrouping(subject string, roleName string, domain string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject, "", domain)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 {
			continue
		}
		if rule[1] != roleName {
			params := make([]interface{}, 0, len(rule))
			for _, value := range rule {
				params = append(params, value)
			}
			_, _ = s.enforcer.RemoveGroupingPolicy(params...)
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName, domain)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName, domain)
	return err
}

func (s *ServiceImpl) auditDenied(ctx context.Context, actorType string, actorID *string, orgID string, object string, action string) {
	if s.recorder == nil {
		return
	}
	parsedOrgID, err := snowflake.ParseString(orgID)
	if err != nil || parsedOrgID == 0 {
		return
	}
	performedBy := ""
	if actorID != nil {
		performedBy = *actorID
	}
	_, recErr := s.recorder.Record(ctx, activitydomain.Draft{
		OrgID:           &parsedOrgID,
		EntityType:      activitydomain.EntityAuthorization,
		EntityID:        object,
		Action:          activitydomain.ActionDeny,
		Category:        activitydomain.CategorySystem,
		Summary:         fmt.Sprintf("authorization denied for %s on %s", action, object),
		PerformedByID:   optional(performedBy),
		PerformedByType: performerType(actorType),
		Metadata: map[string]any{
			"object": object,
			"action": action,
			"actor":  actorType,
		},
	})
	if recErr != nil {
		s.log.Warn("failed to record authorization denial",
			zap.String("object", object),
			zap.String("action", action),
			zap.Error(recErr),
		)
	}
}

func performerType(actorType string) activitydomain.PerformerType {
	switch actorType {
	case "ai":
		return activitydomain.PerformerAI
	case "system":
		return activitydomain.PerformerSystem
	default:
		return activitydomain.PerformerHuman
	}
}

func optional(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Member permissions (homeowners: read-only plus own activity)
		{"role:member", ObjectAssociation, ActionAssociationView},
		{"role:member", ObjectUnit, ActionUnitView},
		{"role:member", ObjectActivityLog, ActionActivityLogViewOwn},

		// Manager permissions (property managers run day-to-day operations)
		{"role:manager", ObjectAssociation, ActionAssociationView},
		{"role:manager", ObjectAssociation, ActionAssociationCreate},
		{"role:manager", ObjectAssociation, ActionAssociationUpdate},
		{"role:manager", ObjectProperty, ActionPropertyView},
		{"role:manager", ObjectProperty, ActionPropertyCreate},
		{"role:manager", ObjectProperty, ActionPropertyUpdate},
		{"role:manager", ObjectUnit, ActionUnitView},
		{"role:manager", ObjectUnit, ActionUnitCreate},
		{"role:manager", ObjectUnit, ActionUnitUpdate},
		{"role:manager", ObjectOwnership, ActionOwnershipView},
		{"role:manager", ObjectOwnership, ActionOwnershipTransfer},
		{"role:manager", ObjectComplianceDeadline, ActionComplianceView},
		{"role:manager", ObjectComplianceDeadline, ActionComplianceCreate},
		{"role:manager", ObjectComplianceDeadline, ActionComplianceResolve},
		{"role:manager", ObjectReserve, ActionReserveView},
		{"role:manager", ObjectReserve, ActionReserveCreate},
		{"role:manager", ObjectReserve, ActionReserveUpdate},
		{"role:manager", ObjectBid, ActionBidView},
		{"role:manager", ObjectBid, ActionBidSubmit},
		{"role:manager", ObjectInvitation, ActionInvitationView},
		{"role:manager", ObjectInvitation, ActionInvitationCreate},
		{"role:manager", ObjectInvitation, ActionInvitationRevoke},
		{"role:manager", ObjectActivityLog, ActionActivityLogView},
		{"role:manager", ObjectActivityLog, ActionActivityLogExport},
		{"role:manager", ObjectWorkflow, ActionWorkflowDispatch},

		// Board permissions (approvals and awards)
		{"role:board", ObjectAssociation, ActionAssociationView},
		{"role:board", ObjectBid, ActionBidView},
		{"role:board", ObjectBid, ActionBidAccept},
		{"role:board", ObjectBid, ActionBidDecline},
		{"role:board", ObjectReserve, ActionReserveView},
		{"role:board", ObjectBillingAccount, ActionBillingAccountView},
		{"role:board", ObjectActivityLog, ActionActivityLogView},
		{"role:board", ObjectWorkflow, ActionWorkflowDispatch},

		// Staff permissions (platform domain only)
		{"role:staff", ObjectActivityLog, ActionStaffActivityLogView},
		{"role:staff", ObjectStaff, "staff.view"},

		// System permissions (automated processes)
		{"role:system", ObjectAssociation, ActionAssociationCreate},
		{"role:system", ObjectAssociation, ActionAssociationUpdate},
		{"role:system", ObjectAssociation, ActionAssociationView},
		{"role:system", ObjectProperty, ActionPropertyCreate},
		{"role:system", ObjectProperty, ActionPropertyUpdate},
		{"role:system", ObjectUnit, ActionUnitCreate},
		{"role:system", ObjectUnit, ActionUnitUpdate},
		{"role:system", ObjectOwnership, ActionOwnershipTransfer},
		{"role:system", ObjectComplianceDeadline, ActionComplianceCreate},
		{"role:system", ObjectComplianceDeadline, ActionComplianceResolve},
		{"role:system", ObjectReserve, ActionReserveCreate},
		{"role:system", ObjectReserve, ActionReserveUpdate},
		{"role:system", ObjectBid, ActionBidSubmit},
		{"role:system", ObjectBid, ActionBidAccept},
		{"role:system", ObjectBid, ActionBidDecline},
		{"role:system", ObjectInvitation, ActionInvitationCreate},
		{"role:system", ObjectInvitation, ActionInvitationRevoke},
		{"role:system", ObjectBillingAccount, ActionBillingAccountUpdate},
		{"role:system", ObjectActivityLog, ActionActivityLogView},
		{"role:system", ObjectActivityLog, ActionActivityLogExport},
		{"role:system", ObjectActivityLog, ActionStaffActivityLogView},
		{"role:system", ObjectWorkflow, ActionWorkflowDispatch},
	}

	for _, policy := range policies {
		if len(policy) < 3 {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
