// Package domain provides the core state machine for service requests.
package domain

// Status is the lifecycle state of a service request.
type Status string

const (
	// StatusRequested is the initial, unassigned state. This is the only
	// state multiple repairers can race to claim.
	StatusRequested Status = "requested"
	// StatusPendingQuote means a repairer has claimed the job but has not
	// quoted yet.
	StatusPendingQuote Status = "pending_quote"
	// StatusQuoted means the assigned repairer has submitted a binding price.
	StatusQuoted Status = "quoted"
	// StatusAccepted means the customer accepted the quote.
	StatusAccepted Status = "accepted"
	// StatusPendingOTP means a completion code has been issued and awaits
	// the customer's verification.
	StatusPendingOTP Status = "pending_otp"
	// StatusPendingPayment means completion was verified and a payment
	// intent exists for the quoted amount.
	StatusPendingPayment Status = "pending_payment"
	// StatusCustomerPaid means the gateway confirmed the customer's payment.
	StatusCustomerPaid Status = "customer_paid"
	// StatusCompleted is the happy-path terminal state.
	StatusCompleted Status = "completed"
	// StatusRejected means the customer rejected the quote; the rejection
	// fee has not been billed yet.
	StatusRejected Status = "rejected"
	// StatusClosedRejected is the terminal state after a quote rejection
	// once the rejection-fee payment exists.
	StatusClosedRejected Status = "closed_rejected"
	// StatusCancelled is the terminal state for customer-cancelled requests.
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusClosedRejected, StatusCancelled:
		return true
	}
	return false
}

// statusRank orders the happy path for monotonicity checks. Side-branch
// states rank after the state they fork from.
var statusRank = map[Status]int{
	StatusRequested:      0,
	StatusPendingQuote:   1,
	StatusQuoted:         2,
	StatusAccepted:       3,
	StatusPendingOTP:     4,
	StatusPendingPayment: 5,
	StatusCustomerPaid:   6,
	StatusCompleted:      7,
	StatusRejected:       3,
	StatusClosedRejected: 4,
	StatusCancelled:      3,
}

// Rank returns the monotonicity rank of a status. Transitions other than a
// repairer withdrawal never decrease rank.
func (s Status) Rank() int {
	return statusRank[s]
}

// HasQuote reports whether a request in this status must carry an
// estimated price. The quote is set exactly when quoting happens and is
// never cleared on the rejection branch.
func (s Status) HasQuote() bool {
	switch s {
	case StatusQuoted, StatusAccepted, StatusPendingOTP, StatusPendingPayment,
		StatusCustomerPaid, StatusCompleted, StatusRejected, StatusClosedRejected:
		return true
	}
	return false
}

// AllowsCompletionCode reports whether a completion code may exist in this
// status.
func (s Status) AllowsCompletionCode() bool {
	return s == StatusAccepted || s == StatusPendingOTP
}

// CountsTowardCapacity reports whether a request in this status occupies a
// slot of the assigned repairer's concurrent-job cap.
func (s Status) CountsTowardCapacity() bool {
	switch s {
	case StatusAccepted, StatusPendingOTP, StatusPendingPayment:
		return true
	}
	return false
}
