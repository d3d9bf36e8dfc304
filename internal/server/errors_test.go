package server

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	activitydomain "github.com/strataops/atrium/internal/activity/domain"
	"github.com/strataops/atrium/internal/authorization"
	dispatchdomain "github.com/strataops/atrium/internal/dispatch/domain"
	ledgerdomain "github.com/strataops/atrium/internal/ledger/domain"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestMapError(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
	}{
		{"bad page token", activitydomain.ErrInvalidPageToken, http.StatusBadRequest, "validation_error"},
		{"bad idempotency key", dispatchdomain.ErrInvalidKey, http.StatusBadRequest, "validation_error"},
		{"inverted time range", activitydomain.ErrInvalidTimeRange, http.StatusBadRequest, "validation_error"},
		{"forbidden", authorization.ErrForbidden, http.StatusForbidden, "forbidden"},
		{"missing ledger record", ledgerdomain.ErrRecordNotFound, http.StatusNotFound, "not_found"},
		{"unexpected", errors.New("disk on fire"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, payload := mapError(tc.err)
			assert.Equal(t, tc.wantStatus, status)
			assert.Equal(t, tc.wantType, payload.Type)
		})
	}
}

func TestMapErrorReplaysWorkflowOutcomeVerbatim(t *testing.T) {
	cases := []struct {
		code       string
		wantStatus int
	}{
		{dispatchdomain.CodeValidation, http.StatusBadRequest},
		{dispatchdomain.CodeForbidden, http.StatusForbidden},
		{dispatchdomain.CodeNotFound, http.StatusNotFound},
		{dispatchdomain.CodeConflict, http.StatusConflict},
		{dispatchdomain.CodeUnavailable, http.StatusServiceUnavailable},
		{dispatchdomain.CodeTimeout, http.StatusGatewayTimeout},
		{dispatchdomain.CodeInternal, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			status, payload := mapError(dispatchdomain.NewWorkflowError(tc.code, "stored message"))
			assert.Equal(t, tc.wantStatus, status)
			assert.Equal(t, "workflow_error", payload.Type)
			assert.Equal(t, tc.code, payload.Code)
			assert.Equal(t, "stored message", payload.Message)
		})
	}
}

func TestErrorHandlingMiddlewareWritesEnvelope(t *testing.T) {
	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())
	engine.GET("/boom", func(c *gin.Context) {
		AbortWithError(c, dispatchdomain.NewWorkflowError(dispatchdomain.CodeConflict, "bid is no longer pending"))
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t, `{
		"success": false,
		"error": {
			"type": "workflow_error",
			"code": "conflict",
			"message": "bid is no longer pending"
		}
	}`, rec.Body.String())
}

func TestErrorHandlingMiddlewareIgnoresWrittenResponses(t *testing.T) {
	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())
	engine.GET("/ok", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"success": true})
		_ = c.Error(errors.New("late error"))
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success": true}`, rec.Body.String())
}
