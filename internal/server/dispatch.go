package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	dispatchdomain "github.com/strataops/atrium/internal/dispatch/domain"
	"github.com/strataops/atrium/internal/orgcontext"
)

type dispatchRequest struct {
	IdempotencyKey string         `json:"idempotency_key"`
	Action         string         `json:"action"`
	Payload        map[string]any `json:"payload"`
}

type dispatchResponse struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data"`
}

func (s *Server) DispatchWorkflow(c *gin.Context) {
	var body dispatchRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ctx := c.Request.Context()
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		AbortWithError(c, newValidationError("organization", "missing_organization", "X-Org-ID header is required"))
		return
	}

	result, err := s.dispatchSvc.Dispatch(ctx, dispatchdomain.Request{
		OrgID:   orgID,
		Key:     body.IdempotencyKey,
		Action:  dispatchdomain.Action(body.Action),
		Actor:   actorString(c),
		Payload: body.Payload,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, dispatchResponse{Success: true, Data: result.Data})
}
