// Package adapters bridges the bounded contexts without letting them import
// each other's service packages directly.
package adapters

import (
	"context"

	paymentsrepo "repairlink_backend/internal/payments/repository"
	paymentssvc "repairlink_backend/internal/payments/service"
	requestssvc "repairlink_backend/internal/requests/service"

	"github.com/google/uuid"
)

// SettlementAdapter adapts the payments service for the requests lifecycle.
// It implements requests/service.SettlementCreator.
type SettlementAdapter struct {
	svc *paymentssvc.Service
}

// NewSettlementAdapter creates the adapter.
func NewSettlementAdapter(svc *paymentssvc.Service) *SettlementAdapter {
	return &SettlementAdapter{svc: svc}
}

// CreateStandardIntent opens the post-completion payment for the quoted amount.
func (a *SettlementAdapter) CreateStandardIntent(ctx context.Context, requestID, customerID, repairerID uuid.UUID, amountCents int64) (uuid.UUID, error) {
	p, err := a.svc.CreateIntent(ctx, paymentssvc.IntentParams{
		RequestID:   requestID,
		CustomerID:  customerID,
		RepairerID:  &repairerID,
		Method:      paymentsrepo.MethodStandard,
		AmountCents: amountCents,
	})
	if err != nil {
		return uuid.Nil, err
	}
	return p.ID, nil
}

// CreateRejectionFeeIntent opens the flat-fee payment for a rejected quote.
func (a *SettlementAdapter) CreateRejectionFeeIntent(ctx context.Context, requestID, customerID, repairerID uuid.UUID, amountCents int64) (uuid.UUID, error) {
	p, err := a.svc.CreateIntent(ctx, paymentssvc.IntentParams{
		RequestID:   requestID,
		CustomerID:  customerID,
		RepairerID:  &repairerID,
		Method:      paymentsrepo.MethodRejectionFee,
		AmountCents: amountCents,
	})
	if err != nil {
		return uuid.Nil, err
	}
	return p.ID, nil
}

// Compile-time check
var _ requestssvc.SettlementCreator = (*SettlementAdapter)(nil)
