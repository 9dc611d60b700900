package service

import (
	"context"

	"repairlink_backend/internal/events"
	"repairlink_backend/internal/requests/domain"
	"repairlink_backend/internal/requests/repository"
	"repairlink_backend/platform/apperr"

	"github.com/google/uuid"
)

// SubmitQuote records the assigned repairer's binding quote. A quote on an
// already-quoted request is a revision; the customer answers whichever
// amount is current.
func (s *Service) SubmitQuote(ctx context.Context, requestID, repairerID uuid.UUID, amountCents int64) (repository.ServiceRequest, error) {
	if amountCents <= 0 {
		return repository.ServiceRequest{}, apperr.Validation("quote amount must be positive").
			WithCode("invalid_quote")
	}

	revised := false
	updated, err := s.transition(ctx, requestID, domain.EventSubmitQuote, domain.RoleRepairer, func(req *repository.ServiceRequest) error {
		if req.RepairerID == nil || *req.RepairerID != repairerID {
			return apperr.Forbidden("not the assigned repairer")
		}
		revised = req.Status == domain.StatusQuoted
		req.EstimatedPriceCents = &amountCents
		now := s.now().UTC()
		req.QuotedAt = &now
		return nil
	})
	if err != nil {
		return repository.ServiceRequest{}, err
	}

	s.publish(ctx, events.QuoteSubmitted{
		BaseEvent:    events.NewBaseEvent(),
		RequestID:    updated.ID,
		CustomerID:   updated.CustomerID,
		RepairerID:   repairerID,
		AmountCents:  amountCents,
		Revised:      revised,
		ContactPhone: updated.ContactPhone,
	})
	return updated, nil
}

// AcceptQuote is the customer committing to the quoted price. From here on
// neither side can walk away without consequence.
func (s *Service) AcceptQuote(ctx context.Context, requestID, customerID uuid.UUID) (repository.ServiceRequest, error) {
	updated, err := s.transition(ctx, requestID, domain.EventAcceptQuote, domain.RoleCustomer, func(req *repository.ServiceRequest) error {
		if req.CustomerID != customerID {
			return apperr.Forbidden("not a party to this request")
		}
		return nil
	})
	if err != nil {
		return repository.ServiceRequest{}, err
	}

	s.publish(ctx, events.QuoteAccepted{
		BaseEvent:   events.NewBaseEvent(),
		RequestID:   updated.ID,
		RepairerID:  *updated.RepairerID,
		AmountCents: *updated.EstimatedPriceCents,
	})
	return updated, nil
}

// RejectQuote is the customer declining the quote. Rejection is not free: a
// flat fee intent is created for the customer, and only once that intent
// exists does the request close out. If intent creation fails the request
// stays in rejected and the close is retried on the next call.
func (s *Service) RejectQuote(ctx context.Context, requestID, customerID uuid.UUID) (repository.ServiceRequest, error) {
	rejected, err := s.transition(ctx, requestID, domain.EventRejectQuote, domain.RoleCustomer, func(req *repository.ServiceRequest) error {
		if req.CustomerID != customerID {
			return apperr.Forbidden("not a party to this request")
		}
		return nil
	})
	if err != nil {
		return repository.ServiceRequest{}, err
	}

	return s.closeRejected(ctx, rejected)
}

// FinalizeRejection retries closing a rejected request whose fee intent
// failed to create. Exposed for the scheduler.
func (s *Service) FinalizeRejection(ctx context.Context, requestID uuid.UUID) (repository.ServiceRequest, error) {
	req, err := s.repo.GetByID(ctx, requestID)
	if err != nil {
		return repository.ServiceRequest{}, err
	}
	if req.Status != domain.StatusRejected {
		return repository.ServiceRequest{}, apperr.Validation("request is not awaiting rejection close").
			WithCode("invalid_transition")
	}
	return s.closeRejected(ctx, req)
}

func (s *Service) closeRejected(ctx context.Context, req repository.ServiceRequest) (repository.ServiceRequest, error) {
	if s.settlement == nil {
		return repository.ServiceRequest{}, apperr.Internal("settlement not configured")
	}

	fee := s.cfg.GetRejectionFeeCents()
	paymentID, err := s.settlement.CreateRejectionFeeIntent(ctx, req.ID, req.CustomerID, *req.RepairerID, fee)
	if err != nil {
		// An active intent from an earlier attempt also counts as created.
		if apperr.CodeOf(err) != "active_payment_exists" {
			return repository.ServiceRequest{}, err
		}
	}

	closed, err := s.transition(ctx, req.ID, domain.EventCloseRejected, domain.RoleSystem, func(r *repository.ServiceRequest) error {
		if paymentID != uuid.Nil {
			r.PaymentID = &paymentID
		}
		return nil
	})
	if err != nil {
		return repository.ServiceRequest{}, err
	}

	s.publish(ctx, events.QuoteRejected{
		BaseEvent:    events.NewBaseEvent(),
		RequestID:    closed.ID,
		CustomerID:   closed.CustomerID,
		RepairerID:   *closed.RepairerID,
		FeeCents:     fee,
		PaymentID:    paymentID,
		ContactPhone: closed.ContactPhone,
	})
	return closed, nil
}
