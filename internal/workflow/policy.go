// Package workflow holds the decision rules of the procurement process: which
// role may move a request from one status to another, the payment limit tiers,
// and the outstanding balance arithmetic. It has no storage dependencies.
package workflow

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/pesio-ai/be-procurement/internal/platform/errors"
	"github.com/pesio-ai/be-procurement/internal/repository"
)

// Action names a request status change.
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
	ActionSettle  Action = "settle"
)

// Transition is one edge of the request state machine.
type Transition struct {
	From   repository.RequestStatus
	Action Action
	To     repository.RequestStatus
	Roles  []repository.Role
}

// RequestTransitions is the complete request state machine. Rejected and paid
// have no outgoing edges.
var RequestTransitions = []Transition{
	{From: repository.RequestPending, Action: ActionApprove, To: repository.RequestApproved, Roles: []repository.Role{repository.RoleDirector}},
	{From: repository.RequestPending, Action: ActionReject, To: repository.RequestRejected, Roles: []repository.Role{repository.RoleDirector}},
	{From: repository.RequestApproved, Action: ActionSettle, To: repository.RequestPaid, Roles: []repository.Role{repository.RoleFinance, repository.RoleDirector}},
}

// VendorReviewers may approve or reject vendors.
var VendorReviewers = []repository.Role{repository.RoleDirector}

// MaxAmount bounds money values to what NUMERIC(14,2) can hold.
var MaxAmount = decimal.New(1, 12)

// Next returns the status reached by applying action to a request in from.
func Next(from repository.RequestStatus, action Action) (repository.RequestStatus, error) {
	t, ok := find(from, action)
	if !ok {
		return "", errors.InvalidTransition(fmt.Sprintf("cannot %s a %s request", action, from))
	}
	return t.To, nil
}

// RolesFor returns the roles allowed to perform action, in any state.
func RolesFor(action Action) []repository.Role {
	for _, t := range RequestTransitions {
		if t.Action == action {
			return t.Roles
		}
	}
	return nil
}

// IsTerminal reports whether no transition leaves status.
func IsTerminal(status repository.RequestStatus) bool {
	for _, t := range RequestTransitions {
		if t.From == status {
			return false
		}
	}
	return true
}

func find(from repository.RequestStatus, action Action) (Transition, bool) {
	for _, t := range RequestTransitions {
		if t.From == from && t.Action == action {
			return t, true
		}
	}
	return Transition{}, false
}

// RequireActor rejects anonymous actors and unknown roles.
func RequireActor(actor repository.Actor) error {
	if actor.ID == "" {
		return errors.New(errors.ErrCodeUnauthorized, "authenticated actor required")
	}
	if !actor.Role.Valid() {
		return errors.Forbidden(fmt.Sprintf("unknown role %q", actor.Role))
	}
	return nil
}

// RequireRole checks the actor is authenticated and holds one of allowed.
func RequireRole(actor repository.Actor, allowed ...repository.Role) error {
	if err := RequireActor(actor); err != nil {
		return err
	}
	for _, r := range allowed {
		if actor.Role == r {
			return nil
		}
	}
	return errors.Forbidden(fmt.Sprintf("role %s may not perform this action", actor.Role))
}

// PaymentPolicy enforces the approval limit tiers.
type PaymentPolicy struct {
	// Limit is the largest request amount finance may pay without a director.
	Limit decimal.Decimal
}

// Authorize decides whether role may pay against a request of requestAmount.
// The limit compares against the request amount, not the instalment.
func (p PaymentPolicy) Authorize(role repository.Role, requestAmount decimal.Decimal) error {
	switch role {
	case repository.RoleDirector:
		return nil
	case repository.RoleFinance:
		if requestAmount.GreaterThan(p.Limit) {
			return errors.Forbidden(fmt.Sprintf(
				"request amount %s exceeds the finance payment limit %s; director authorization required",
				requestAmount.StringFixed(2), p.Limit.StringFixed(2)))
		}
		return nil
	default:
		return errors.Forbidden(fmt.Sprintf("role %s may not record payments", role))
	}
}

// ValidateAmount checks a money value is positive, has at most two decimal
// places and fits the storage column.
func ValidateAmount(field string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return errors.InvalidInput(field, "must be greater than zero")
	}
	if !amount.Equal(amount.Round(2)) {
		return errors.InvalidInput(field, "must have at most two decimal places")
	}
	if amount.GreaterThanOrEqual(MaxAmount) {
		return errors.InvalidInput(field, "is too large")
	}
	return nil
}

// Outstanding is the request amount minus what has been paid so far.
func Outstanding(requestAmount, paid decimal.Decimal) decimal.Decimal {
	out := requestAmount.Sub(paid)
	if out.IsNegative() {
		return decimal.Zero
	}
	return out
}

// ValidatePayment checks a payment amount against the outstanding balance.
func ValidatePayment(amount, outstanding decimal.Decimal) error {
	if err := ValidateAmount("amount", amount); err != nil {
		return err
	}
	if amount.GreaterThan(outstanding) {
		return errors.InvalidInput("amount", fmt.Sprintf("exceeds outstanding balance %s", outstanding.StringFixed(2)))
	}
	return nil
}

// IsFullyPaid reports whether paid covers the request amount.
func IsFullyPaid(requestAmount, paid decimal.Decimal) bool {
	return paid.GreaterThanOrEqual(requestAmount)
}

// PaymentState is a derived, never persisted, view of how much of a request
// has been paid.
type PaymentState string

const (
	Unpaid        PaymentState = "unpaid"
	PartiallyPaid PaymentState = "partially_paid"
	FullyPaid     PaymentState = "paid"
)

// StateOf derives the payment state from the request amount and total paid.
func StateOf(requestAmount, paid decimal.Decimal) PaymentState {
	switch {
	case !paid.IsPositive():
		return Unpaid
	case IsFullyPaid(requestAmount, paid):
		return FullyPaid
	default:
		return PartiallyPaid
	}
}
