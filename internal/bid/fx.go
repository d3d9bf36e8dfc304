package bid

import (
	"fmt"

	"github.com/strataops/atrium/internal/authorization"
	"github.com/strataops/atrium/internal/bid/repository"
	"github.com/strataops/atrium/internal/bid/service"
	"github.com/strataops/atrium/internal/dispatch"
	"github.com/strataops/atrium/internal/dispatch/domain"
	"go.uber.org/fx"
)

func RegisterWorkflows(registry *dispatch.Registry, svc *service.Service) error {
	specs := []struct {
		action   domain.Action
		verb     string
		recorded string
		summary  string
		fn       domain.Handler
	}{
		{domain.ActionSubmitBid, authorization.ActionBidSubmit, "SUBMIT", "Bid %v was submitted for work order %v", svc.Submit},
		{domain.ActionAcceptBid, authorization.ActionBidAccept, "ACCEPT", "Bid %v was accepted for work order %v", svc.Accept},
		{domain.ActionDeclineBid, authorization.ActionBidDecline, "DENY", "Bid %v was declined for work order %v", svc.Decline},
	}
	for _, s := range specs {
		format := s.summary
		err := registry.Register(s.action, domain.Spec{
			Object:         authorization.ObjectBid,
			Verb:           s.verb,
			Handler:        s.fn,
			Entity:         "BID",
			RecordedAction: s.recorded,
			EntityIDKey:    "bid_id",
			Summary: func(req domain.Request, result *domain.Result) string {
				return fmt.Sprintf(format, result.Data["bid_id"], result.Data["work_order_id"])
			},
		})
		if err != nil {
			return err
		}
	}
	return nil
}

var Module = fx.Module("bid.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Invoke(RegisterWorkflows),
)
