package adapters

import (
	"context"

	paymentssvc "repairlink_backend/internal/payments/service"
	requestssvc "repairlink_backend/internal/requests/service"

	"github.com/google/uuid"
)

// LifecycleAdapter adapts the requests service for the settlement engine.
// It implements payments/service.LifecycleAdvancer.
type LifecycleAdapter struct {
	svc *requestssvc.Service
}

// NewLifecycleAdapter creates the adapter.
func NewLifecycleAdapter(svc *requestssvc.Service) *LifecycleAdapter {
	return &LifecycleAdapter{svc: svc}
}

// OnStandardPaymentSettled closes out the request after a verified settlement.
func (a *LifecycleAdapter) OnStandardPaymentSettled(ctx context.Context, requestID uuid.UUID) error {
	return a.svc.OnStandardPaymentSettled(ctx, requestID)
}

// Compile-time check
var _ paymentssvc.LifecycleAdvancer = (*LifecycleAdapter)(nil)
