package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrInvalidKey       = errors.New("invalid_idempotency_key")
	ErrInvalidAction    = errors.New("invalid_action")
	ErrUnknownAction    = errors.New("unknown_action")
	ErrInvalidActor     = errors.New("invalid_actor")
	ErrMissingOrg       = errors.New("missing_organization")
	ErrActionRegistered = errors.New("action_already_registered")
)

// Action is the closed set of dispatchable workflows. Dispatching anything
// outside this set is a validation error, never a dynamic lookup.
type Action string

const (
	ActionCreateAssociation Action = "CREATE_ASSOCIATION"
	ActionUpdateAssociation Action = "UPDATE_ASSOCIATION"
	ActionCreateUnit        Action = "CREATE_UNIT"
	ActionTransferOwnership Action = "TRANSFER_OWNERSHIP"
	ActionSubmitBid         Action = "SUBMIT_BID"
	ActionAcceptBid         Action = "ACCEPT_BID"
	ActionDeclineBid        Action = "DECLINE_BID"
	ActionCreateInvitation  Action = "CREATE_INVITATION"
	ActionRevokeInvitation  Action = "REVOKE_INVITATION"
)

func (a Action) Valid() bool {
	switch a {
	case ActionCreateAssociation, ActionUpdateAssociation, ActionCreateUnit,
		ActionTransferOwnership, ActionSubmitBid, ActionAcceptBid,
		ActionDeclineBid, ActionCreateInvitation, ActionRevokeInvitation:
		return true
	}
	return false
}

// Request is one dispatch call. Key is the caller-supplied idempotency key,
// unique per organization: the same key under two orgs names two independent
// invocations.
type Request struct {
	OrgID   snowflake.ID
	Key     string
	Action  Action
	Actor   string
	Payload map[string]any
}

// Scope is the ledger partition the request's key lives in.
func (r Request) Scope() string {
	return r.OrgID.String()
}

// Result is the terminal payload of a successful invocation, stored in the
// ledger and replayed verbatim to duplicate callers.
type Result struct {
	Data map[string]any `json:"data"`
}

// Workflow error codes. Stored in FAILED ledger records and replayed to
// retried calls with the same key.
const (
	CodeValidation  = "validation_failed"
	CodeForbidden   = "forbidden"
	CodeNotFound    = "not_found"
	CodeConflict    = "conflict"
	CodeUnavailable = "workflow_unavailable"
	CodeInternal    = "workflow_execution_error"
	CodeTimeout     = "workflow_timeout"
)

// WorkflowError is a typed terminal failure. Handlers return it for domain
// rejections; the dispatcher wraps unexpected faults into one with
// CodeInternal so every failure replays identically.
type WorkflowError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *WorkflowError) Error() string {
	return e.Code + ": " + e.Message
}

func NewWorkflowError(code, message string) *WorkflowError {
	return &WorkflowError{Code: code, Message: message}
}

// AsWorkflowError extracts a typed failure from an error chain.
func AsWorkflowError(err error) (*WorkflowError, bool) {
	var wfErr *WorkflowError
	if errors.As(err, &wfErr) {
		return wfErr, true
	}
	return nil, false
}

// Handler executes one workflow. It either returns a result or an error;
// a *WorkflowError carries a domain rejection, anything else is treated as an
// unexpected fault.
type Handler func(ctx context.Context, req Request) (*Result, error)

// Spec binds an action to its authorization object/verb, its handler, and
// how its execution shows up in the activity log.
type Spec struct {
	Object  string
	Verb    string
	Handler Handler
	// Entity names the activity-log entity the workflow's execution event
	// describes, e.g. "ASSOCIATION".
	Entity string
	// RecordedAction is the activity-log verb for the execution event.
	RecordedAction string
	// EntityIDKey names the result field carrying the created or mutated
	// entity's ID, e.g. "association_id".
	EntityIDKey string
	// Summary renders the execution event's one-line description.
	Summary func(req Request, result *Result) string
}

// Executor is the durable-execution seam: it owns the ledger interaction
// around one handler run. The dispatcher validates and authorizes, then hands
// the request here.
type Executor interface {
	Execute(ctx context.Context, req Request, spec Spec) (*Result, error)
}

// Service is the single entry point domain operations are dispatched
// through.
type Service interface {
	Dispatch(ctx context.Context, req Request) (*Result, error)
}
