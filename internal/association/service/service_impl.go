package service

import (
	"context"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/strataops/atrium/internal/association/domain"
	"github.com/strataops/atrium/internal/clock"
	dispatchdomain "github.com/strataops/atrium/internal/dispatch/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) *Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("association.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

// Create is the CREATE_ASSOCIATION workflow handler.
func (s *Service) Create(ctx context.Context, req dispatchdomain.Request) (*dispatchdomain.Result, error) {
	name := dispatchdomain.StringField(req.Payload, "name")
	if name == "" {
		return nil, dispatchdomain.NewWorkflowError(dispatchdomain.CodeValidation, "association name is required")
	}
	timezone := dispatchdomain.StringField(req.Payload, "timezone")
	if timezone == "" {
		timezone = "UTC"
	}

	now := s.clock.Now()
	association := &domain.Association{
		ID:        s.genID.Generate().Int64(),
		OrgID:     req.OrgID.Int64(),
		Name:      name,
		Timezone:  timezone,
		Status:    domain.StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.repo.Create(ctx, tx, association)
	})
	if err != nil {
		return nil, err
	}

	return &dispatchdomain.Result{Data: map[string]any{
		"association_id": strconv.FormatInt(association.ID, 10),
		"name":           association.Name,
		"status":         string(association.Status),
	}}, nil
}

// Update is the UPDATE_ASSOCIATION workflow handler.
func (s *Service) Update(ctx context.Context, req dispatchdomain.Request) (*dispatchdomain.Result, error) {
	rawID := dispatchdomain.StringField(req.Payload, "association_id")
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id == 0 {
		return nil, dispatchdomain.NewWorkflowError(dispatchdomain.CodeValidation, "association_id is required")
	}

	var updated *domain.Association
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		association, err := s.repo.FindByID(ctx, tx, req.OrgID.Int64(), id)
		if err != nil {
			return err
		}
		if association == nil {
			return dispatchdomain.NewWorkflowError(dispatchdomain.CodeNotFound, "association not found")
		}

		if name := dispatchdomain.StringField(req.Payload, "name"); name != "" {
			association.Name = name
		}
		if timezone := dispatchdomain.StringField(req.Payload, "timezone"); timezone != "" {
			association.Timezone = timezone
		}
		if count, ok := dispatchdomain.Int64Field(req.Payload, "unit_count"); ok && count >= 0 {
			association.UnitCount = int(count)
		}
		association.UpdatedAt = s.clock.Now()

		updated = association
		return s.repo.Update(ctx, tx, association)
	})
	if err != nil {
		return nil, err
	}

	return &dispatchdomain.Result{Data: map[string]any{
		"association_id": strconv.FormatInt(updated.ID, 10),
		"name":           updated.Name,
		"unit_count":     updated.UnitCount,
	}}, nil
}
