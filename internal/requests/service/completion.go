package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"

	"repairlink_backend/internal/events"
	"repairlink_backend/internal/requests/domain"
	"repairlink_backend/internal/requests/repository"
	"repairlink_backend/platform/apperr"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const completionCodeDigits = 6

// IssueCompletionCode generates a fresh completion code when the repairer
// declares the work done. Only the bcrypt hash is stored; the plain code
// rides the in-process event to the customer's phone and is never
// persisted or returned to the repairer. Reissuing invalidates the
// previous code.
func (s *Service) IssueCompletionCode(ctx context.Context, requestID, repairerID uuid.UUID) (repository.ServiceRequest, error) {
	code, err := generateCode()
	if err != nil {
		return repository.ServiceRequest{}, fmt.Errorf("generate completion code: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return repository.ServiceRequest{}, fmt.Errorf("hash completion code: %w", err)
	}

	resend := false
	expiresAt := s.now().UTC().Add(s.cfg.GetCompletionCodeTTL())
	updated, err := s.transition(ctx, requestID, domain.EventIssueCode, domain.RoleRepairer, func(req *repository.ServiceRequest) error {
		if req.RepairerID == nil || *req.RepairerID != repairerID {
			return apperr.Forbidden("not the assigned repairer")
		}
		resend = req.Status == domain.StatusPendingOTP
		h := string(hash)
		req.CodeHash = &h
		req.CodeExpiresAt = &expiresAt
		return nil
	})
	if err != nil {
		return repository.ServiceRequest{}, err
	}

	if err := s.guard.Reset(ctx, requestID); err != nil {
		s.log.Warn("failed to reset completion attempts", "request_id", requestID, "error", err)
	}

	s.publish(ctx, events.CompletionCodeIssued{
		BaseEvent:    events.NewBaseEvent(),
		RequestID:    updated.ID,
		CustomerID:   updated.CustomerID,
		ContactPhone: updated.ContactPhone,
		Code:         code,
		ExpiresAt:    expiresAt,
		Resend:       resend,
	})
	return updated, nil
}

// VerifyCompletionCode checks the customer's code and, on a match, consumes
// it and opens the standard payment. Attempts are bounded; an expired code
// reports gone and must be reissued by the repairer.
func (s *Service) VerifyCompletionCode(ctx context.Context, requestID, customerID uuid.UUID, code string) (repository.ServiceRequest, error) {
	req, err := s.repo.GetByID(ctx, requestID)
	if err != nil {
		return repository.ServiceRequest{}, err
	}
	if req.CustomerID != customerID {
		return repository.ServiceRequest{}, apperr.Forbidden("not a party to this request")
	}
	if req.Status != domain.StatusPendingOTP || req.CodeHash == nil {
		return repository.ServiceRequest{}, apperr.Validation("no completion code to verify").
			WithCode("invalid_transition")
	}

	attempts, err := s.guard.Increment(ctx, requestID)
	if err != nil {
		return repository.ServiceRequest{}, fmt.Errorf("count verification attempt: %w", err)
	}
	if attempts > s.cfg.GetCompletionCodeMaxAttempts() {
		return repository.ServiceRequest{}, apperr.Conflict("too many verification attempts, ask the repairer to resend").
			WithCode("too_many_attempts")
	}

	// Expiry and hash checks run inside the transition so they apply to the
	// re-read record; a code reissued mid-flight must not verify against
	// its predecessor.
	updated, err := s.transition(ctx, requestID, domain.EventVerifyCode, domain.RoleCustomer, func(r *repository.ServiceRequest) error {
		if r.CustomerID != customerID {
			return apperr.Forbidden("not a party to this request")
		}
		if r.CodeHash == nil {
			return apperr.Validation("no completion code to verify").
				WithCode("invalid_transition")
		}
		if r.CodeExpiresAt == nil || s.now().UTC().After(*r.CodeExpiresAt) {
			return apperr.Gone("completion code expired").
				WithCode("code_expired")
		}
		if bcrypt.CompareHashAndPassword([]byte(*r.CodeHash), []byte(code)) != nil {
			return apperr.Validation("completion code does not match").
				WithCode("code_mismatch")
		}
		// Single use: the hash is cleared so the code can never match again.
		r.CodeHash = nil
		r.CodeExpiresAt = nil
		return nil
	})
	if err != nil {
		return repository.ServiceRequest{}, err
	}

	if err := s.guard.Reset(ctx, requestID); err != nil {
		s.log.Warn("failed to reset completion attempts", "request_id", requestID, "error", err)
	}

	if s.settlement == nil {
		return repository.ServiceRequest{}, apperr.Internal("settlement not configured")
	}
	paymentID, err := s.settlement.CreateStandardIntent(ctx, updated.ID, updated.CustomerID, *updated.RepairerID, *updated.EstimatedPriceCents)
	if err != nil && apperr.CodeOf(err) != "active_payment_exists" {
		return repository.ServiceRequest{}, err
	}
	if paymentID != uuid.Nil {
		linked, linkErr := s.transitionlessUpdate(ctx, updated.ID, func(r *repository.ServiceRequest) error {
			r.PaymentID = &paymentID
			return nil
		})
		if linkErr == nil {
			updated = linked
		}
	}

	s.publish(ctx, events.CompletionVerified{
		BaseEvent:  events.NewBaseEvent(),
		RequestID:  updated.ID,
		RepairerID: *updated.RepairerID,
	})
	return updated, nil
}

// AttachEvidence records object-storage keys for the repairer's completion
// photos. Allowed once the job is accepted and until payment settles.
func (s *Service) AttachEvidence(ctx context.Context, requestID, repairerID uuid.UUID, keys []string) (repository.ServiceRequest, error) {
	if len(keys) == 0 {
		return repository.ServiceRequest{}, apperr.Validation("no evidence keys provided").
			WithCode("invalid_evidence")
	}
	return s.transitionlessUpdate(ctx, requestID, func(req *repository.ServiceRequest) error {
		if req.RepairerID == nil || *req.RepairerID != repairerID {
			return apperr.Forbidden("not the assigned repairer")
		}
		if !req.Status.CountsTowardCapacity() {
			return apperr.Validation("request does not accept evidence in status " + string(req.Status)).
				WithCode("invalid_transition")
		}
		req.EvidenceKeys = append(req.EvidenceKeys, keys...)
		return nil
	})
}

// transitionlessUpdate applies a mutation that changes fields but not
// status, under the same version guard and retry bound as transitions.
func (s *Service) transitionlessUpdate(ctx context.Context, requestID uuid.UUID, mutate func(*repository.ServiceRequest) error) (repository.ServiceRequest, error) {
	var lastErr error
	for attempt := 0; attempt <= s.cfg.GetTransitionMaxRetries(); attempt++ {
		req, err := s.repo.GetByID(ctx, requestID)
		if err != nil {
			return repository.ServiceRequest{}, err
		}
		if err := mutate(&req); err != nil {
			return repository.ServiceRequest{}, err
		}
		updated, err := s.repo.UpdateVersioned(ctx, req)
		if err == nil {
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

func generateCode() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < completionCodeDigits; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", completionCodeDigits, n), nil
}
