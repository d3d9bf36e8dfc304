package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/strataops/atrium/internal/bid/domain"
	"github.com/strataops/atrium/internal/bid/repository"
	"github.com/strataops/atrium/internal/clock"
	dispatchdomain "github.com/strataops/atrium/internal/dispatch/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var dbSeq atomic.Int64

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:bid_svc_%d?mode=memory&cache=shared", dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Bid{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)),
		Repo:  repository.Provide(),
	})
	return svc, db
}

func submitRequest(payload map[string]any) dispatchdomain.Request {
	return dispatchdomain.Request{
		OrgID:   snowflake.ID(9001),
		Key:     "test-key",
		Action:  dispatchdomain.ActionSubmitBid,
		Actor:   "user:77",
		Payload: payload,
	}
}

func TestSubmitCreatesPendingBid(t *testing.T) {
	svc, db := newTestService(t)

	result, err := svc.Submit(context.Background(), submitRequest(map[string]any{
		"work_order_id": "wo-12",
		"vendor_id":     "vendor-4",
		"amount_cents":  float64(125000),
		"notes":         "includes haul-away",
	}))
	require.NoError(t, err)
	assert.Equal(t, "PENDING", result.Data["status"])
	assert.Equal(t, "wo-12", result.Data["work_order_id"])

	var stored domain.Bid
	require.NoError(t, db.First(&stored).Error)
	assert.Equal(t, int64(9001), stored.OrgID)
	assert.Equal(t, int64(125000), stored.AmountCents)
	assert.Equal(t, "USD", stored.Currency)
	require.NotNil(t, stored.Notes)
	assert.Equal(t, "includes haul-away", *stored.Notes)
}

func TestSubmitValidatesPayload(t *testing.T) {
	svc, _ := newTestService(t)

	cases := []struct {
		name    string
		payload map[string]any
	}{
		{"missing work order", map[string]any{"vendor_id": "v", "amount_cents": 100}},
		{"missing vendor", map[string]any{"work_order_id": "wo", "amount_cents": 100}},
		{"zero amount", map[string]any{"work_order_id": "wo", "vendor_id": "v", "amount_cents": 0}},
		{"negative amount", map[string]any{"work_order_id": "wo", "vendor_id": "v", "amount_cents": -5}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Submit(context.Background(), submitRequest(tc.payload))
			wfErr, ok := dispatchdomain.AsWorkflowError(err)
			require.True(t, ok)
			assert.Equal(t, dispatchdomain.CodeValidation, wfErr.Code)
		})
	}
}

func TestAcceptTransitionsPendingBid(t *testing.T) {
	svc, _ := newTestService(t)

	submitted, err := svc.Submit(context.Background(), submitRequest(map[string]any{
		"work_order_id": "wo-12",
		"vendor_id":     "vendor-4",
		"amount_cents":  float64(125000),
	}))
	require.NoError(t, err)
	bidID := submitted.Data["bid_id"].(string)

	accepted, err := svc.Accept(context.Background(), submitRequest(map[string]any{"bid_id": bidID}))
	require.NoError(t, err)
	assert.Equal(t, "ACCEPTED", accepted.Data["status"])
	assert.Equal(t, bidID, accepted.Data["bid_id"])
}

func TestAcceptNonPendingBidConflicts(t *testing.T) {
	svc, _ := newTestService(t)

	submitted, err := svc.Submit(context.Background(), submitRequest(map[string]any{
		"work_order_id": "wo-12",
		"vendor_id":     "vendor-4",
		"amount_cents":  float64(125000),
	}))
	require.NoError(t, err)
	bidID := submitted.Data["bid_id"].(string)

	_, err = svc.Accept(context.Background(), submitRequest(map[string]any{"bid_id": bidID}))
	require.NoError(t, err)

	// Declining an already accepted bid is a business-rule failure, not a
	// transient one.
	_, err = svc.Decline(context.Background(), submitRequest(map[string]any{"bid_id": bidID}))
	wfErr, ok := dispatchdomain.AsWorkflowError(err)
	require.True(t, ok)
	assert.Equal(t, dispatchdomain.CodeConflict, wfErr.Code)
	assert.Equal(t, "bid is no longer pending", wfErr.Message)
}

func TestTransitionUnknownBid(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Accept(context.Background(), submitRequest(map[string]any{"bid_id": "123456"}))
	wfErr, ok := dispatchdomain.AsWorkflowError(err)
	require.True(t, ok)
	assert.Equal(t, dispatchdomain.CodeNotFound, wfErr.Code)
}

func TestTransitionIsScopedToOrg(t *testing.T) {
	svc, _ := newTestService(t)

	submitted, err := svc.Submit(context.Background(), submitRequest(map[string]any{
		"work_order_id": "wo-12",
		"vendor_id":     "vendor-4",
		"amount_cents":  float64(125000),
	}))
	require.NoError(t, err)
	bidID := submitted.Data["bid_id"].(string)

	foreign := submitRequest(map[string]any{"bid_id": bidID})
	foreign.OrgID = snowflake.ID(9002)

	_, err = svc.Accept(context.Background(), foreign)
	wfErr, ok := dispatchdomain.AsWorkflowError(err)
	require.True(t, ok)
	assert.Equal(t, dispatchdomain.CodeNotFound, wfErr.Code, "another tenant's bid must be invisible")
}
