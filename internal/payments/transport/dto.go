// Package transport defines the HTTP DTOs for the payments module.
package transport

import (
	"time"

	"repairlink_backend/internal/payments/repository"

	"github.com/google/uuid"
)

// ── Requests ──────────────────────────────────────────────────────────────────

// WebhookRequest is the gateway callback payload. Amounts and status are
// never taken from this body; the signature over the identifiers is the only
// thing trusted.
type WebhookRequest struct {
	Event            string `json:"event" validate:"required,oneof=payment.captured payment.failed"`
	GatewayOrderID   string `json:"orderId" validate:"required"`
	GatewayPaymentID string `json:"paymentId" validate:"required"`
	Signature        string `json:"signature" validate:"required"`
	Reason           string `json:"reason,omitempty"`
}

// ── Responses ─────────────────────────────────────────────────────────────────

// PaymentResponse is the API representation of a payment attempt.
type PaymentResponse struct {
	ID              uuid.UUID  `json:"id"`
	RequestID       uuid.UUID  `json:"requestId"`
	Method          string     `json:"method"`
	Status          string     `json:"status"`
	AmountCents     int64      `json:"amountCents"`
	Currency        string     `json:"currency"`
	CommissionCents int64      `json:"commissionCents"`
	PayoutCents     int64      `json:"payoutCents"`
	CheckoutURL     *string    `json:"checkoutUrl,omitempty"`
	FailureReason   *string    `json:"failureReason,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	SettledAt       *time.Time `json:"settledAt,omitempty"`
}

// FromPayment maps a repository payment to its API shape. Gateway
// identifiers and signatures stay internal.
func FromPayment(p repository.Payment) PaymentResponse {
	return PaymentResponse{
		ID:              p.ID,
		RequestID:       p.RequestID,
		Method:          string(p.Method),
		Status:          string(p.Status),
		AmountCents:     p.AmountCents,
		Currency:        p.Currency,
		CommissionCents: p.CommissionCents,
		PayoutCents:     p.PayoutCents,
		CheckoutURL:     p.CheckoutURL,
		FailureReason:   p.FailureReason,
		CreatedAt:       p.CreatedAt,
		SettledAt:       p.SettledAt,
	}
}

// FromPayments maps a slice of payments.
func FromPayments(items []repository.Payment) []PaymentResponse {
	out := make([]PaymentResponse, 0, len(items))
	for _, p := range items {
		out = append(out, FromPayment(p))
	}
	return out
}
