package domain

// Role identifies which side of a request an actor is on.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleRepairer Role = "repairer"
	// RoleSystem is used for transitions driven by verified internal
	// machinery (settlement callbacks), never by a client directly.
	RoleSystem Role = "system"
)

// Event is a lifecycle event applied to a service request.
type Event string

const (
	// EventClaim is a repairer's attempt to take an unassigned request.
	EventClaim Event = "claim"
	// EventSubmitQuote is the assigned repairer submitting or revising a quote.
	EventSubmitQuote Event = "submit_quote"
	// EventAcceptQuote is the customer accepting the quote.
	EventAcceptQuote Event = "accept_quote"
	// EventRejectQuote is the customer rejecting the quote.
	EventRejectQuote Event = "reject_quote"
	// EventCloseRejected finalizes a rejection once the fee payment exists.
	EventCloseRejected Event = "close_rejected"
	// EventIssueCode is the repairer requesting a completion code
	// (first issue or resend).
	EventIssueCode Event = "issue_code"
	// EventVerifyCode is the customer verifying the completion code.
	EventVerifyCode Event = "verify_code"
	// EventPaymentSettled marks a verified standard-payment settlement.
	EventPaymentSettled Event = "payment_settled"
	// EventComplete closes a paid request.
	EventComplete Event = "complete"
	// EventCancel is the customer abandoning a not-yet-accepted request.
	EventCancel Event = "cancel"
	// EventWithdraw is the assigned repairer backing out, reopening the
	// request to all repairers.
	EventWithdraw Event = "withdraw"
)

type rule struct {
	next  Status
	roles []Role
}

// transitions is the single legality table for the whole lifecycle.
// Every status check in the system goes through Next; callers never
// compare status strings ad hoc.
var transitions = map[Status]map[Event]rule{
	StatusRequested: {
		EventClaim:  {next: StatusPendingQuote, roles: []Role{RoleRepairer}},
		EventCancel: {next: StatusCancelled, roles: []Role{RoleCustomer}},
	},
	StatusPendingQuote: {
		EventSubmitQuote: {next: StatusQuoted, roles: []Role{RoleRepairer}},
		EventCancel:      {next: StatusCancelled, roles: []Role{RoleCustomer}},
		EventWithdraw:    {next: StatusRequested, roles: []Role{RoleRepairer}},
	},
	StatusQuoted: {
		// Revising an unanswered quote stays in quoted.
		EventSubmitQuote: {next: StatusQuoted, roles: []Role{RoleRepairer}},
		EventAcceptQuote: {next: StatusAccepted, roles: []Role{RoleCustomer}},
		EventRejectQuote: {next: StatusRejected, roles: []Role{RoleCustomer}},
		EventCancel:      {next: StatusCancelled, roles: []Role{RoleCustomer}},
		EventWithdraw:    {next: StatusRequested, roles: []Role{RoleRepairer}},
	},
	StatusRejected: {
		EventCloseRejected: {next: StatusClosedRejected, roles: []Role{RoleSystem}},
	},
	StatusAccepted: {
		EventIssueCode: {next: StatusPendingOTP, roles: []Role{RoleRepairer}},
		EventWithdraw:  {next: StatusRequested, roles: []Role{RoleRepairer}},
	},
	StatusPendingOTP: {
		// Resend invalidates the previous code.
		EventIssueCode:  {next: StatusPendingOTP, roles: []Role{RoleRepairer}},
		EventVerifyCode: {next: StatusPendingPayment, roles: []Role{RoleCustomer}},
	},
	StatusPendingPayment: {
		EventPaymentSettled: {next: StatusCustomerPaid, roles: []Role{RoleSystem}},
	},
	StatusCustomerPaid: {
		EventComplete: {next: StatusCompleted, roles: []Role{RoleSystem}},
	},
}

// Next returns the status reached by applying event in the given status for
// an actor with the given role. ok is false when the event is not legal from
// the status at all; allowed is false when it is legal but not for this role.
func Next(current Status, event Event, role Role) (next Status, ok bool, allowed bool) {
	byEvent, exists := transitions[current]
	if !exists {
		return "", false, false
	}
	r, exists := byEvent[event]
	if !exists {
		return "", false, false
	}
	for _, want := range r.roles {
		if want == role {
			return r.next, true, true
		}
	}
	return r.next, true, false
}

// Legal reports whether the event is legal from the status for any role.
func Legal(current Status, event Event) bool {
	_, ok := transitions[current][event]
	return ok
}
