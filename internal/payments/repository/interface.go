package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Method distinguishes what a payment settles.
type Method string

const (
	// MethodStandard is the post-completion payment for the quoted amount.
	MethodStandard Method = "standard"
	// MethodRejectionFee is the flat fee billed for rejecting a quote.
	MethodRejectionFee Method = "rejection_fee"
)

// Status is the lifecycle state of a payment attempt.
type Status string

const (
	// StatusCreated means the intent exists but no gateway order does.
	StatusCreated Status = "created"
	// StatusPending means a gateway order exists and awaits the customer.
	StatusPending Status = "pending"
	// StatusCompleted means the gateway callback was verified and funds moved.
	StatusCompleted Status = "completed"
	// StatusFailed is the terminal state for a gateway-side failure.
	StatusFailed Status = "failed"
	// StatusExpired is the terminal state for intents abandoned past the TTL.
	StatusExpired Status = "expired"
)

// IsTerminal reports whether the payment can no longer change.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusExpired:
		return true
	}
	return false
}

// Payment is a settlement attempt for a service request. Amounts are in
// minor currency units.
type Payment struct {
	ID               uuid.UUID
	RequestID        uuid.UUID
	CustomerID       uuid.UUID
	RepairerID       *uuid.UUID
	Method           Method
	Status           Status
	AmountCents      int64
	Currency         string
	CommissionCents  int64
	PayoutCents      int64
	GatewayOrderID   *string
	GatewayPaymentID *string
	GatewaySignature *string
	CheckoutURL      *string
	FailureReason    *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	SettledAt        *time.Time
}

// SettleParams records a verified gateway settlement.
type SettleParams struct {
	ID               uuid.UUID
	GatewayPaymentID string
	GatewaySignature string
	CommissionCents  int64
	PayoutCents      int64
	SettledAt        time.Time
}

// Repository provides persistence for payments.
// Payments are never deleted; a retried attempt supersedes the old one.
type Repository interface {
	// Create inserts a payment. It fails with apperr KindConflict when the
	// request already has an active (non-terminal) payment.
	Create(ctx context.Context, p Payment) (Payment, error)

	GetByID(ctx context.Context, id uuid.UUID) (Payment, error)
	GetByGatewayOrderID(ctx context.Context, orderID string) (Payment, error)
	ListForRequest(ctx context.Context, requestID uuid.UUID) ([]Payment, error)

	// Settle marks the payment completed. The conditional write only
	// matches non-terminal payments, so a duplicate callback yields apperr
	// KindConflict instead of moving funds twice.
	Settle(ctx context.Context, params SettleParams) (Payment, error)

	// MarkFailed records a gateway-side failure, freeing the request's
	// active-payment slot for a retry.
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) (Payment, error)

	// ExpireStale expires created/pending payments older than cutoff and
	// returns the payments it touched.
	ExpireStale(ctx context.Context, cutoff time.Time) ([]Payment, error)
}
