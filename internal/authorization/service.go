package authorization

import (
	"context"
	"errors"
)

var (
	ErrInvalidActor        = errors.New("invalid_actor")
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidObject       = errors.New("invalid_object")
	ErrInvalidAction       = errors.New("invalid_action")
	ErrForbidden           = errors.New("forbidden")
)

// DecisionKind discriminates QueryFilter outcomes.
type DecisionKind string

const (
	// DecisionAlwaysDenied means listing must return an empty page without
	// touching storage.
	DecisionAlwaysDenied DecisionKind = "always_denied"
	// DecisionConditional means listing proceeds with the decision's
	// predicate AND-merged into the storage filter.
	DecisionConditional DecisionKind = "conditional"
)

// Predicate is an explicit set of optional AND constraints contributed by the
// gate. A nil field imposes no constraint.
type Predicate struct {
	// PerformedByID restricts results to events performed by this actor.
	PerformedByID *string
}

// QueryDecision is the gate's answer for a listing operation.
type QueryDecision struct {
	Kind      DecisionKind
	Predicate Predicate
}

func AlwaysDenied() QueryDecision {
	return QueryDecision{Kind: DecisionAlwaysDenied}
}

func Conditional(p Predicate) QueryDecision {
	return QueryDecision{Kind: DecisionConditional, Predicate: p}
}

// Service is the authorization gate consulted before every write and read.
// Actors are encoded as "user:<id>", "staff:<id>", "ai:<id>" or "system".
type Service interface {
	// Authorize checks a single action against the actor's role in the org.
	Authorize(ctx context.Context, actor string, orgID string, object string, action string) error
	// AuthorizeStaff checks an elevated cross-tenant action in the platform
	// domain. It is deliberately a separate operation from Authorize.
	AuthorizeStaff(ctx context.Context, actor string, object string, action string) error
	// QueryFilter answers how a listing by this actor must be constrained.
	QueryFilter(ctx context.Context, actor string, orgID string, object string, action string) (QueryDecision, error)
}
