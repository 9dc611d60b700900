// Package service implements the settlement engine: payment intents,
// verified gateway callbacks, and the platform/repairer commission split.
package service

import (
	"context"
	"fmt"
	"time"

	"repairlink_backend/internal/events"
	"repairlink_backend/internal/payments/gateway"
	"repairlink_backend/internal/payments/repository"
	"repairlink_backend/platform/apperr"
	"repairlink_backend/platform/config"
	"repairlink_backend/platform/logger"

	"github.com/google/uuid"
)

// Gateway creates orders with the external payment gateway.
type Gateway interface {
	CreateOrder(ctx context.Context, amountCents int64, currency, receipt string, notes map[string]string) (gateway.Order, error)
}

// LifecycleAdvancer moves a service request forward after a verified
// standard-payment settlement. Implemented by an adapter over the requests
// module; this is the only path into customer_paid.
type LifecycleAdvancer interface {
	OnStandardPaymentSettled(ctx context.Context, requestID uuid.UUID) error
}

// Config combines the settlement tunables and gateway credentials.
type Config interface {
	config.SettlementConfig
	config.GatewayConfig
}

// Service provides settlement operations.
type Service struct {
	repo     repository.Repository
	gw       Gateway
	advancer LifecycleAdvancer
	bus      events.Bus
	cfg      Config
	log      *logger.Logger
}

// New creates a new settlement service.
func New(repo repository.Repository, gw Gateway, cfg Config, log *logger.Logger) *Service {
	return &Service{repo: repo, gw: gw, cfg: cfg, log: log}
}

// SetEventBus wires the domain event bus.
func (s *Service) SetEventBus(bus events.Bus) {
	s.bus = bus
}

// SetLifecycleAdvancer wires the requests-module adapter.
// Set from main to break the module cycle.
func (s *Service) SetLifecycleAdvancer(advancer LifecycleAdvancer) {
	s.advancer = advancer
}

// IntentParams describes a payment intent to create.
type IntentParams struct {
	RequestID   uuid.UUID
	CustomerID  uuid.UUID
	RepairerID  *uuid.UUID
	Method      repository.Method
	AmountCents int64
}

// CreateIntent creates a payment for a request and registers a gateway
// order. At most one active payment may exist per request; repository
// enforcement surfaces as a conflict here.
func (s *Service) CreateIntent(ctx context.Context, params IntentParams) (repository.Payment, error) {
	if params.AmountCents <= 0 {
		return repository.Payment{}, apperr.Validation("payment amount must be positive").
			WithCode("invalid_amount")
	}
	if params.Method != repository.MethodStandard && params.Method != repository.MethodRejectionFee {
		return repository.Payment{}, apperr.Validation("unknown payment method").
			WithCode("invalid_method")
	}

	p := repository.Payment{
		ID:          uuid.New(),
		RequestID:   params.RequestID,
		CustomerID:  params.CustomerID,
		RepairerID:  params.RepairerID,
		Method:      params.Method,
		Status:      repository.StatusCreated,
		AmountCents: params.AmountCents,
		Currency:    s.cfg.GetCurrency(),
	}

	order, err := s.gw.CreateOrder(ctx, params.AmountCents, p.Currency, p.ID.String(), map[string]string{
		"request_id": params.RequestID.String(),
		"method":     string(params.Method),
	})
	if err != nil {
		return repository.Payment{}, fmt.Errorf("create gateway order: %w", err)
	}
	p.Status = repository.StatusPending
	p.GatewayOrderID = &order.ID
	if order.CheckoutURL != "" {
		p.CheckoutURL = &order.CheckoutURL
	}

	created, err := s.repo.Create(ctx, p)
	if err != nil {
		return repository.Payment{}, err
	}

	s.log.PaymentEvent("intent_created", created.ID.String(), created.AmountCents, string(created.Method))
	s.publish(ctx, events.PaymentIntentCreated{
		BaseEvent:   events.NewBaseEvent(),
		PaymentID:   created.ID,
		RequestID:   created.RequestID,
		CustomerID:  created.CustomerID,
		Method:      string(created.Method),
		AmountCents: created.AmountCents,
		CheckoutURL: order.CheckoutURL,
	})
	return created, nil
}

// CallbackParams carries the gateway's signed callback payload.
type CallbackParams struct {
	GatewayOrderID   string
	GatewayPaymentID string
	Signature        string
}

// VerifyCallback validates the gateway signature, settles the payment once,
// and advances the request for standard payments. A duplicate callback for
// an already-completed payment returns apperr KindConflict with code
// already_settled and moves no funds.
func (s *Service) VerifyCallback(ctx context.Context, params CallbackParams) (repository.Payment, error) {
	p, err := s.repo.GetByGatewayOrderID(ctx, params.GatewayOrderID)
	if err != nil {
		return repository.Payment{}, err
	}

	if !gateway.VerifySignature(params.GatewayOrderID, params.GatewayPaymentID, params.Signature, s.cfg.GetGatewayWebhookSecret()) {
		s.log.PaymentEvent("callback_rejected", p.ID.String(), p.AmountCents, "signature_invalid")
		return repository.Payment{}, apperr.Unauthorized("callback signature verification failed").
			WithCode("signature_invalid")
	}

	commission, payout := s.split(p)

	settled, err := s.repo.Settle(ctx, repository.SettleParams{
		ID:               p.ID,
		GatewayPaymentID: params.GatewayPaymentID,
		GatewaySignature: params.Signature,
		CommissionCents:  commission,
		PayoutCents:      payout,
		SettledAt:        time.Now().UTC(),
	})
	if err != nil {
		// A redelivered callback for an already-settled standard payment
		// still re-drives the request advance; a failure between settle and
		// advance would otherwise strand the request in pending_payment.
		if apperr.CodeOf(err) == "already_settled" && p.Method == repository.MethodStandard && s.advancer != nil {
			if advErr := s.advancer.OnStandardPaymentSettled(ctx, p.RequestID); advErr != nil {
				return repository.Payment{}, fmt.Errorf("advance request on settlement replay: %w", advErr)
			}
		}
		return repository.Payment{}, err
	}

	if settled.Method == repository.MethodStandard && s.advancer != nil {
		if err := s.advancer.OnStandardPaymentSettled(ctx, settled.RequestID); err != nil {
			// The payment is settled but the request did not move. Surface
			// the error; the gateway redelivers the callback and the replay
			// branch re-drives the advance until it lands.
			return repository.Payment{}, fmt.Errorf("advance request after settlement: %w", err)
		}
	}

	s.log.PaymentEvent("settled", settled.ID.String(), settled.AmountCents, string(settled.Method))
	s.publish(ctx, events.PaymentSettled{
		BaseEvent:       events.NewBaseEvent(),
		PaymentID:       settled.ID,
		RequestID:       settled.RequestID,
		CustomerID:      settled.CustomerID,
		RepairerID:      settled.RepairerID,
		Method:          string(settled.Method),
		AmountCents:     settled.AmountCents,
		CommissionCents: settled.CommissionCents,
		PayoutCents:     settled.PayoutCents,
	})
	return settled, nil
}

// split computes the commission deduction. Rejection fees are platform
// revenue in full; no payout is queued for them.
func (s *Service) split(p repository.Payment) (commissionCents, payoutCents int64) {
	if p.Method == repository.MethodRejectionFee {
		return p.AmountCents, 0
	}
	commissionCents = p.AmountCents * int64(s.cfg.GetCommissionRateBps()) / 10000
	payoutCents = p.AmountCents - commissionCents
	return commissionCents, payoutCents
}

// MarkFailed records a gateway-side failure. The request keeps its
// pre-payment status, so a fresh intent can be created and retried.
func (s *Service) MarkFailed(ctx context.Context, params CallbackParams, reason string) (repository.Payment, error) {
	p, err := s.repo.GetByGatewayOrderID(ctx, params.GatewayOrderID)
	if err != nil {
		return repository.Payment{}, err
	}

	if !gateway.VerifySignature(params.GatewayOrderID, params.GatewayPaymentID, params.Signature, s.cfg.GetGatewayWebhookSecret()) {
		return repository.Payment{}, apperr.Unauthorized("callback signature verification failed").
			WithCode("signature_invalid")
	}

	failed, err := s.repo.MarkFailed(ctx, p.ID, reason)
	if err != nil {
		return repository.Payment{}, err
	}
	s.log.PaymentEvent("failed", failed.ID.String(), failed.AmountCents, reason)
	return failed, nil
}

// ExpireStale expires abandoned intents older than the configured TTL and
// publishes an event per expired payment. Called by the scheduler worker.
func (s *Service) ExpireStale(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-s.cfg.GetPaymentPendingTTL())
	expired, err := s.repo.ExpireStale(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	for _, p := range expired {
		s.log.PaymentEvent("expired", p.ID.String(), p.AmountCents, string(p.Method))
		s.publish(ctx, events.PaymentExpired{
			BaseEvent: events.NewBaseEvent(),
			PaymentID: p.ID,
			RequestID: p.RequestID,
		})
	}
	return len(expired), nil
}

// GetForActor returns a payment if the actor is a party to it.
func (s *Service) GetForActor(ctx context.Context, id, actorID uuid.UUID, isAdmin bool) (repository.Payment, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return repository.Payment{}, err
	}
	if !isAdmin && p.CustomerID != actorID && (p.RepairerID == nil || *p.RepairerID != actorID) {
		return repository.Payment{}, apperr.Forbidden("not a party to this payment")
	}
	return p, nil
}

// ListForRequest returns all attempts for a request, for party actors.
func (s *Service) ListForRequest(ctx context.Context, requestID, actorID uuid.UUID, isAdmin bool) ([]repository.Payment, error) {
	items, err := s.repo.ListForRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if isAdmin || len(items) == 0 {
		return items, nil
	}
	first := items[0]
	if first.CustomerID != actorID && (first.RepairerID == nil || *first.RepairerID != actorID) {
		return nil, apperr.Forbidden("not a party to this request")
	}
	return items, nil
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if s.bus != nil {
		s.bus.Publish(ctx, event)
	}
}
