// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"time"

	"repairlink_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Request Lifecycle Events
// =============================================================================

// RequestCreated is published when a customer opens a new service request.
type RequestCreated struct {
	BaseEvent
	RequestID  uuid.UUID `json:"requestId"`
	CustomerID uuid.UUID `json:"customerId"`
	Category   string    `json:"category"`
	PostalCode string    `json:"postalCode"`
}

func (e RequestCreated) EventName() string { return "requests.created" }

// RequestAssigned is published when a repairer wins the claim on a request.
// The chat collaborator uses it to open the conversation between the parties.
type RequestAssigned struct {
	BaseEvent
	RequestID    uuid.UUID `json:"requestId"`
	CustomerID   uuid.UUID `json:"customerId"`
	RepairerID   uuid.UUID `json:"repairerId"`
	Category     string    `json:"category"`
	ContactPhone string    `json:"contactPhone"`
}

func (e RequestAssigned) EventName() string { return "requests.assigned" }

// QuoteSubmitted is published when the assigned repairer quotes a price.
type QuoteSubmitted struct {
	BaseEvent
	RequestID    uuid.UUID `json:"requestId"`
	CustomerID   uuid.UUID `json:"customerId"`
	RepairerID   uuid.UUID `json:"repairerId"`
	AmountCents  int64     `json:"amountCents"`
	Revised      bool      `json:"revised"`
	ContactPhone string    `json:"contactPhone"`
}

func (e QuoteSubmitted) EventName() string { return "requests.quote.submitted" }

// QuoteAccepted is published when the customer accepts the quote.
type QuoteAccepted struct {
	BaseEvent
	RequestID   uuid.UUID `json:"requestId"`
	RepairerID  uuid.UUID `json:"repairerId"`
	AmountCents int64     `json:"amountCents"`
}

func (e QuoteAccepted) EventName() string { return "requests.quote.accepted" }

// QuoteRejected is published when the customer rejects the quote and the
// rejection-fee payment has been created.
type QuoteRejected struct {
	BaseEvent
	RequestID    uuid.UUID `json:"requestId"`
	CustomerID   uuid.UUID `json:"customerId"`
	RepairerID   uuid.UUID `json:"repairerId"`
	FeeCents     int64     `json:"feeCents"`
	PaymentID    uuid.UUID `json:"paymentId"`
	ContactPhone string    `json:"contactPhone"`
}

func (e QuoteRejected) EventName() string { return "requests.quote.rejected" }

// CompletionCodeIssued is published when a completion code is generated.
// Code is the plain value, present only on this in-process event so the
// SMS collaborator can deliver it; it is never persisted.
type CompletionCodeIssued struct {
	BaseEvent
	RequestID    uuid.UUID `json:"requestId"`
	CustomerID   uuid.UUID `json:"customerId"`
	ContactPhone string    `json:"contactPhone"`
	Code         string    `json:"-"`
	ExpiresAt    time.Time `json:"expiresAt"`
	Resend       bool      `json:"resend"`
}

func (e CompletionCodeIssued) EventName() string { return "requests.completion.code_issued" }

// CompletionVerified is published when the customer verifies the code.
type CompletionVerified struct {
	BaseEvent
	RequestID  uuid.UUID `json:"requestId"`
	RepairerID uuid.UUID `json:"repairerId"`
}

func (e CompletionVerified) EventName() string { return "requests.completion.verified" }

// RequestCancelled is published when the customer cancels a request.
type RequestCancelled struct {
	BaseEvent
	RequestID  uuid.UUID  `json:"requestId"`
	CustomerID uuid.UUID  `json:"customerId"`
	RepairerID *uuid.UUID `json:"repairerId,omitempty"`
}

func (e RequestCancelled) EventName() string { return "requests.cancelled" }

// RepairerWithdrew is published when the assigned repairer backs out and
// the request reopens to all repairers.
type RepairerWithdrew struct {
	BaseEvent
	RequestID    uuid.UUID `json:"requestId"`
	CustomerID   uuid.UUID `json:"customerId"`
	RepairerID   uuid.UUID `json:"repairerId"`
	ContactPhone string    `json:"contactPhone"`
}

func (e RepairerWithdrew) EventName() string { return "requests.repairer_withdrew" }

// =============================================================================
// Settlement Events
// =============================================================================

// PaymentIntentCreated is published when a payment intent is created.
type PaymentIntentCreated struct {
	BaseEvent
	PaymentID   uuid.UUID `json:"paymentId"`
	RequestID   uuid.UUID `json:"requestId"`
	CustomerID  uuid.UUID `json:"customerId"`
	Method      string    `json:"method"` // standard | rejection_fee
	AmountCents int64     `json:"amountCents"`
	CheckoutURL string    `json:"checkoutUrl,omitempty"`
}

func (e PaymentIntentCreated) EventName() string { return "payments.intent.created" }

// PaymentSettled is published after a verified gateway callback settles a
// payment. PayoutCents is zero for rejection fees.
type PaymentSettled struct {
	BaseEvent
	PaymentID       uuid.UUID  `json:"paymentId"`
	RequestID       uuid.UUID  `json:"requestId"`
	CustomerID      uuid.UUID  `json:"customerId"`
	RepairerID      *uuid.UUID `json:"repairerId,omitempty"`
	Method          string     `json:"method"`
	AmountCents     int64      `json:"amountCents"`
	CommissionCents int64      `json:"commissionCents"`
	PayoutCents     int64      `json:"payoutCents"`
}

func (e PaymentSettled) EventName() string { return "payments.settled" }

// PaymentExpired is published when a stale unpaid intent is expired by the
// scheduler, freeing the request's active-payment slot.
type PaymentExpired struct {
	BaseEvent
	PaymentID uuid.UUID `json:"paymentId"`
	RequestID uuid.UUID `json:"requestId"`
}

func (e PaymentExpired) EventName() string { return "payments.expired" }
