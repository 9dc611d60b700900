// Package service implements the service request lifecycle engine.
// All status changes go through the domain transition table; writes are
// guarded by optimistic versioning except the claim, which is a single
// atomic compare-and-swap in the repository.
package service

import (
	"context"
	"time"

	"repairlink_backend/internal/events"
	"repairlink_backend/internal/requests/domain"
	"repairlink_backend/internal/requests/repository"
	"repairlink_backend/platform/apperr"
	"repairlink_backend/platform/config"
	"repairlink_backend/platform/logger"
	"repairlink_backend/platform/phone"

	"github.com/google/uuid"
)

// SettlementCreator opens payment intents in the payments module. The
// returned id is recorded on the request so the flows stay correlated.
type SettlementCreator interface {
	CreateStandardIntent(ctx context.Context, requestID, customerID, repairerID uuid.UUID, amountCents int64) (uuid.UUID, error)
	CreateRejectionFeeIntent(ctx context.Context, requestID, customerID, repairerID uuid.UUID, amountCents int64) (uuid.UUID, error)
}

// Config combines the lifecycle and completion tunables the engine needs.
type Config interface {
	config.LifecycleConfig
	config.CompletionConfig
}

// Service orchestrates the request lifecycle.
type Service struct {
	repo       repository.Repository
	bus        events.Bus
	cfg        Config
	log        *logger.Logger
	settlement SettlementCreator
	guard      AttemptGuard
	now        func() time.Time
}

// New creates a new lifecycle service.
func New(repo repository.Repository, cfg Config, log *logger.Logger) *Service {
	return &Service{
		repo:  repo,
		cfg:   cfg,
		log:   log,
		guard: NoopAttemptGuard{},
		now:   time.Now,
	}
}

// SetEventBus wires the domain event bus.
func (s *Service) SetEventBus(bus events.Bus) {
	s.bus = bus
}

// SetSettlementCreator wires the payments-module adapter.
// Set from main to break the module cycle.
func (s *Service) SetSettlementCreator(settlement SettlementCreator) {
	s.settlement = settlement
}

// SetAttemptGuard wires the completion-code attempt limiter.
func (s *Service) SetAttemptGuard(guard AttemptGuard) {
	s.guard = guard
}

// CreateRequestParams contains the customer's input for a new request.
type CreateRequestParams struct {
	CustomerID     uuid.UUID
	Category       string
	Description    string
	Address        string
	PostalCode     string
	ContactPhone   string
	QuotationCents *int64
}

// Create opens a new service request in the requested status.
func (s *Service) Create(ctx context.Context, params CreateRequestParams) (repository.ServiceRequest, error) {
	if !phone.IsValid(params.ContactPhone) {
		return repository.ServiceRequest{}, apperr.Validation("invalid contact phone").WithCode("invalid_phone")
	}
	normalized := phone.NormalizeE164(params.ContactPhone)
	if params.QuotationCents != nil && *params.QuotationCents <= 0 {
		return repository.ServiceRequest{}, apperr.Validation("estimate must be positive").WithCode("invalid_quote")
	}

	req, err := s.repo.Create(ctx, repository.CreateParams{
		CustomerID:     params.CustomerID,
		Category:       params.Category,
		Description:    params.Description,
		Address:        params.Address,
		PostalCode:     params.PostalCode,
		ContactPhone:   normalized,
		QuotationCents: params.QuotationCents,
	})
	if err != nil {
		return repository.ServiceRequest{}, err
	}

	s.publish(ctx, events.RequestCreated{
		BaseEvent:  events.NewBaseEvent(),
		RequestID:  req.ID,
		CustomerID: req.CustomerID,
		Category:   req.Category,
		PostalCode: req.PostalCode,
	})
	return req, nil
}

// GetForActor returns a request visible to the actor. Customers see their
// own requests; repairers see their assigned ones plus any still-open
// request; admins see everything.
func (s *Service) GetForActor(ctx context.Context, id uuid.UUID, actor Actor) (repository.ServiceRequest, error) {
	req, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return repository.ServiceRequest{}, err
	}
	if !s.canSee(req, actor) {
		return repository.ServiceRequest{}, apperr.Forbidden("not a party to this request")
	}
	return req, nil
}

// Actor is the authenticated caller as the lifecycle engine sees it.
type Actor struct {
	ID      uuid.UUID
	Role    domain.Role
	IsAdmin bool
}

func (s *Service) canSee(req repository.ServiceRequest, actor Actor) bool {
	if actor.IsAdmin {
		return true
	}
	switch actor.Role {
	case domain.RoleCustomer:
		return req.CustomerID == actor.ID
	case domain.RoleRepairer:
		if req.RepairerID != nil && *req.RepairerID == actor.ID {
			return true
		}
		return req.Status == domain.StatusRequested
	}
	return false
}

// ListOpen returns unassigned requests for the repairer marketplace view.
func (s *Service) ListOpen(ctx context.Context, params repository.ListParams) ([]repository.ServiceRequest, int, error) {
	return s.repo.ListOpen(ctx, params)
}

// ListForCustomer returns the customer's own requests.
func (s *Service) ListForCustomer(ctx context.Context, customerID uuid.UUID, params repository.ListParams) ([]repository.ServiceRequest, int, error) {
	return s.repo.ListForCustomer(ctx, customerID, params)
}

// ListForRepairer returns the repairer's assigned requests.
func (s *Service) ListForRepairer(ctx context.Context, repairerID uuid.UUID, params repository.ListParams) ([]repository.ServiceRequest, int, error) {
	return s.repo.ListForRepairer(ctx, repairerID, params)
}

// Cancel abandons a request that has not been accepted yet. Past acceptance
// the parties are committed and the transition table refuses the event.
func (s *Service) Cancel(ctx context.Context, requestID uuid.UUID, customerID uuid.UUID) (repository.ServiceRequest, error) {
	updated, err := s.transition(ctx, requestID, domain.EventCancel, domain.RoleCustomer, func(req *repository.ServiceRequest) error {
		if req.CustomerID != customerID {
			return apperr.Forbidden("not a party to this request")
		}
		return nil
	})
	if err != nil {
		return repository.ServiceRequest{}, err
	}

	s.publish(ctx, events.RequestCancelled{
		BaseEvent:  events.NewBaseEvent(),
		RequestID:  updated.ID,
		CustomerID: updated.CustomerID,
		RepairerID: updated.RepairerID,
	})
	return updated, nil
}

// Withdraw lets the assigned repairer back out before completion starts.
// The request sheds its assignment, quote and any pending code and reopens
// to all repairers.
func (s *Service) Withdraw(ctx context.Context, requestID uuid.UUID, repairerID uuid.UUID) (repository.ServiceRequest, error) {
	var withdrew uuid.UUID
	updated, err := s.transition(ctx, requestID, domain.EventWithdraw, domain.RoleRepairer, func(req *repository.ServiceRequest) error {
		if req.RepairerID == nil || *req.RepairerID != repairerID {
			return apperr.Forbidden("not the assigned repairer")
		}
		withdrew = *req.RepairerID
		req.RepairerID = nil
		req.EstimatedPriceCents = nil
		req.CodeHash = nil
		req.CodeExpiresAt = nil
		req.AssignedAt = nil
		req.QuotedAt = nil
		return nil
	})
	if err != nil {
		return repository.ServiceRequest{}, err
	}

	s.publish(ctx, events.RepairerWithdrew{
		BaseEvent:    events.NewBaseEvent(),
		RequestID:    updated.ID,
		CustomerID:   updated.CustomerID,
		RepairerID:   withdrew,
		ContactPhone: updated.ContactPhone,
	})
	return updated, nil
}

// OnStandardPaymentSettled advances a request after a verified settlement:
// pending_payment moves to customer_paid and the request is then closed out
// as completed. Convergent under redelivery: a run that already absorbed
// part of the advance resumes at the close, and a completed request
// reports success.
func (s *Service) OnStandardPaymentSettled(ctx context.Context, requestID uuid.UUID) error {
	req, err := s.repo.GetByID(ctx, requestID)
	if err != nil {
		return err
	}

	switch req.Status {
	case domain.StatusCompleted:
		return nil
	case domain.StatusCustomerPaid:
		// An earlier advance recorded the settlement but failed before the
		// close; resume from there.
	case domain.StatusPendingPayment:
		if _, err := s.transition(ctx, requestID, domain.EventPaymentSettled, domain.RoleSystem, nil); err != nil {
			return err
		}
	default:
		return apperr.Validation("request in status " + string(req.Status) + " is not awaiting settlement").
			WithCode("invalid_transition")
	}

	now := s.now().UTC()
	_, err = s.transition(ctx, requestID, domain.EventComplete, domain.RoleSystem, func(r *repository.ServiceRequest) error {
		r.CompletedAt = &now
		return nil
	})
	return err
}

// transition loads the request, applies the event through the legality
// table plus an optional mutation, and writes under the version guard.
// A version conflict means another writer got there first; the whole
// load-mutate-write is retried a bounded number of times.
func (s *Service) transition(ctx context.Context, requestID uuid.UUID, event domain.Event, role domain.Role, mutate func(*repository.ServiceRequest) error) (repository.ServiceRequest, error) {
	var lastErr error
	for attempt := 0; attempt <= s.cfg.GetTransitionMaxRetries(); attempt++ {
		req, err := s.repo.GetByID(ctx, requestID)
		if err != nil {
			return repository.ServiceRequest{}, err
		}

		from := req.Status
		next, ok, allowed := domain.Next(req.Status, event, role)
		if !ok {
			return repository.ServiceRequest{}, apperr.Validation(
				"event "+string(event)+" is not legal from status "+string(req.Status)).
				WithCode("invalid_transition")
		}
		if !allowed {
			return repository.ServiceRequest{}, apperr.Forbidden(
				"role may not apply event " + string(event)).
				WithCode("role_not_allowed")
		}

		if mutate != nil {
			if err := mutate(&req); err != nil {
				return repository.ServiceRequest{}, err
			}
		}
		req.Status = next

		updated, err := s.repo.UpdateVersioned(ctx, req)
		if err == nil {
			s.log.StateTransition(requestID.String(), string(from), string(next), string(event), string(role))
			return updated, nil
		}
		if apperr.CodeOf(err) != "version_conflict" {
			return repository.ServiceRequest{}, err
		}
		lastErr = err
	}
	return repository.ServiceRequest{}, apperr.Wrap(apperr.KindConflict,
		"request was modified concurrently, retry", lastErr).
		WithCode("version_conflict")
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if s.bus != nil {
		s.bus.Publish(ctx, event)
	}
}
