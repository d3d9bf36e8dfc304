package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	activitydomain "github.com/strataops/atrium/internal/activity/domain"
	"github.com/strataops/atrium/internal/authorization"
	dispatchdomain "github.com/strataops/atrium/internal/dispatch/domain"
	ledgerdomain "github.com/strataops/atrium/internal/ledger/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Code    string            `json:"code,omitempty"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Success bool         `json:"success"`
	Error   errorPayload `json:"error"`
}

var ErrInvalidRequest = errors.New("invalid_request")

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Success: false, Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if wfErr, ok := dispatchdomain.AsWorkflowError(err); ok {
		return workflowErrorStatus(wfErr.Code), errorPayload{
			Type:    "workflow_error",
			Code:    wfErr.Code,
			Message: wfErr.Message,
		}
	}

	if isValidationError(err) {
		code := err.Error()
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Code:    code,
					Message: "invalid value",
				},
			},
		}
	}

	switch {
	case errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// workflowErrorStatus maps a ledger-recorded failure to its HTTP status, so a
// replayed FAILED record answers the same way the original attempt did.
func workflowErrorStatus(code string) int {
	switch code {
	case dispatchdomain.CodeValidation:
		return http.StatusBadRequest
	case dispatchdomain.CodeForbidden:
		return http.StatusForbidden
	case dispatchdomain.CodeNotFound:
		return http.StatusNotFound
	case dispatchdomain.CodeConflict:
		return http.StatusConflict
	case dispatchdomain.CodeUnavailable:
		return http.StatusServiceUnavailable
	case dispatchdomain.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, dispatchdomain.ErrInvalidKey),
		errors.Is(err, dispatchdomain.ErrInvalidAction),
		errors.Is(err, dispatchdomain.ErrUnknownAction),
		errors.Is(err, dispatchdomain.ErrInvalidActor),
		errors.Is(err, dispatchdomain.ErrMissingOrg),
		errors.Is(err, activitydomain.ErrInvalidEntityType),
		errors.Is(err, activitydomain.ErrInvalidEntityID),
		errors.Is(err, activitydomain.ErrInvalidAction),
		errors.Is(err, activitydomain.ErrInvalidCategory),
		errors.Is(err, activitydomain.ErrInvalidSummary),
		errors.Is(err, activitydomain.ErrInvalidPerformer),
		errors.Is(err, activitydomain.ErrInvalidOrganization),
		errors.Is(err, activitydomain.ErrInvalidPageToken),
		errors.Is(err, activitydomain.ErrInvalidTimeRange),
		errors.Is(err, activitydomain.ErrInvalidActor),
		errors.Is(err, authorization.ErrInvalidActor),
		errors.Is(err, authorization.ErrInvalidOrganization),
		errors.Is(err, authorization.ErrInvalidObject),
		errors.Is(err, authorization.ErrInvalidAction),
		errors.Is(err, ledgerdomain.ErrInvalidScope),
		errors.Is(err, ledgerdomain.ErrInvalidKey):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ledgerdomain.ErrRecordNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}
