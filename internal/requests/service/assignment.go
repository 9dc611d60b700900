package service

import (
	"context"

	"repairlink_backend/internal/events"
	"repairlink_backend/internal/requests/repository"
	"repairlink_backend/platform/apperr"

	"github.com/google/uuid"
)

// Claim assigns the repairer to an open request. Assignment is first come
// first served: the repository performs one conditional update, so when N
// repairers race for the same request exactly one wins and the rest get a
// conflict. A repairer at the concurrent-job cap cannot take on more work
// until a job settles or the parties part ways; the cap is checked here for
// the fast path and re-checked inside the claim statement so it holds under
// concurrent acceptances. Capacity counts accepted-or-later jobs only.
func (s *Service) Claim(ctx context.Context, requestID, repairerID uuid.UUID) (repository.ServiceRequest, error) {
	active, err := s.repo.CountActiveJobs(ctx, repairerID)
	if err != nil {
		return repository.ServiceRequest{}, err
	}
	if active >= s.cfg.GetRepairerJobCap() {
		return repository.ServiceRequest{}, apperr.Conflict("concurrent job cap reached").
			WithCode("capacity_exceeded")
	}

	req, err := s.repo.Claim(ctx, requestID, repairerID, s.cfg.GetRepairerJobCap(), s.now().UTC())
	if err != nil {
		return repository.ServiceRequest{}, err
	}

	s.log.StateTransition(req.ID.String(), "requested", string(req.Status), "claim", "repairer")
	s.publish(ctx, events.RequestAssigned{
		BaseEvent:    events.NewBaseEvent(),
		RequestID:    req.ID,
		CustomerID:   req.CustomerID,
		RepairerID:   repairerID,
		Category:     req.Category,
		ContactPhone: req.ContactPhone,
	})
	return req, nil
}
