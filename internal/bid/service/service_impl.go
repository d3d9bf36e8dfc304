package service

import (
	"context"
	"errors"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/strataops/atrium/internal/bid/domain"
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
		log:   p.Log.Named("bid.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

// Submit is the SUBMIT_BID workflow handler. New bids always start PENDING.
func (s *Service) Submit(ctx context.Context, req dispatchdomain.Request) (*dispatchdomain.Result, error) {
	workOrderID := dispatchdomain.StringField(req.Payload, "work_order_id")
	if workOrderID == "" {
		return nil, dispatchdomain.NewWorkflowError(dispatchdomain.CodeValidation, "work_order_id is required")
	}
	vendorID := dispatchdomain.StringField(req.Payload, "vendor_id")
	if vendorID == "" {
		return nil, dispatchdomain.NewWorkflowError(dispatchdomain.CodeValidation, "vendor_id is required")
	}
	amount, ok := dispatchdomain.Int64Field(req.Payload, "amount_cents")
	if !ok || amount <= 0 {
		return nil, dispatchdomain.NewWorkflowError(dispatchdomain.CodeValidation, "amount_cents must be positive")
	}
	currency := dispatchdomain.StringField(req.Payload, "currency")
	if currency == "" {
		currency = "USD"
	}

	now := s.clock.Now()
	bid := &domain.Bid{
		ID:          s.genID.Generate().Int64(),
		OrgID:       req.OrgID.Int64(),
		WorkOrderID: workOrderID,
		VendorID:    vendorID,
		AmountCents: amount,
		Currency:    currency,
		Status:      domain.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if notes := dispatchdomain.StringField(req.Payload, "notes"); notes != "" {
		bid.Notes = &notes
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.repo.Create(ctx, tx, bid)
	})
	if err != nil {
		return nil, err
	}

	return &dispatchdomain.Result{Data: map[string]any{
		"bid_id":        strconv.FormatInt(bid.ID, 10),
		"work_order_id": bid.WorkOrderID,
		"status":        string(bid.Status),
	}}, nil
}

// Accept is the ACCEPT_BID workflow handler.
func (s *Service) Accept(ctx context.Context, req dispatchdomain.Request) (*dispatchdomain.Result, error) {
	return s.transition(ctx, req, domain.StatusAccepted)
}

// Decline is the DECLINE_BID workflow handler.
func (s *Service) Decline(ctx context.Context, req dispatchdomain.Request) (*dispatchdomain.Result, error) {
	return s.transition(ctx, req, domain.StatusDeclined)
}

func (s *Service) transition(ctx context.Context, req dispatchdomain.Request, to domain.Status) (*dispatchdomain.Result, error) {
	rawID := dispatchdomain.StringField(req.Payload, "bid_id")
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id == 0 {
		return nil, dispatchdomain.NewWorkflowError(dispatchdomain.CodeValidation, "bid_id is required")
	}

	var bid *domain.Bid
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		found, err := s.repo.FindByID(ctx, tx, req.OrgID.Int64(), id)
		if err != nil {
			return err
		}
		if found.Status != domain.StatusPending {
			return domain.ErrBidNotPending
		}

		found.Status = to
		found.UpdatedAt = s.clock.Now()
		bid = found
		return s.repo.UpdateStatus(ctx, tx, found, domain.StatusPending)
	})
	if errors.Is(err, domain.ErrBidNotFound) {
		return nil, dispatchdomain.NewWorkflowError(dispatchdomain.CodeNotFound, "bid not found")
	}
	if errors.Is(err, domain.ErrBidNotPending) {
		return nil, dispatchdomain.NewWorkflowError(dispatchdomain.CodeConflict, "bid is no longer pending")
	}
	if err != nil {
		return nil, err
	}

	return &dispatchdomain.Result{Data: map[string]any{
		"bid_id":        strconv.FormatInt(bid.ID, 10),
		"work_order_id": bid.WorkOrderID,
		"status":        string(bid.Status),
	}}, nil
}
