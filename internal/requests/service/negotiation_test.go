package service

import (
	"context"
	"testing"

	"repairlink_backend/internal/events"
	"repairlink_backend/internal/requests/domain"
	"repairlink_backend/platform/apperr"

	"github.com/google/uuid"
)

func setupQuoted(t *testing.T, svc *Service) (requestID, customerID, repairerID uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	customerID = uuid.New()
	repairerID = uuid.New()
	req := mustCreate(t, svc, customerID)
	if _, err := svc.Claim(ctx, req.ID, repairerID); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := svc.SubmitQuote(ctx, req.ID, repairerID, 15000); err != nil {
		t.Fatalf("submit quote: %v", err)
	}
	return req.ID, customerID, repairerID
}

func TestSubmitQuoteSetsPriceAndStatus(t *testing.T) {
	svc, _, _, bus := newTestService(defaultTestConfig())
	requestID, _, _ := setupQuoted(t, svc)

	req, err := svc.repo.GetByID(context.Background(), requestID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if req.Status != domain.StatusQuoted {
		t.Fatalf("expected quoted, got %s", req.Status)
	}
	if req.EstimatedPriceCents == nil || *req.EstimatedPriceCents != 15000 {
		t.Fatal("expected quote amount to be recorded")
	}
	if req.QuotedAt == nil {
		t.Fatal("expected quotedAt to be set")
	}

	got := bus.named(events.QuoteSubmitted{}.EventName())
	if len(got) != 1 {
		t.Fatalf("expected one quote event, got %d", len(got))
	}
	if got[0].(events.QuoteSubmitted).Revised {
		t.Fatal("expected first quote not to be a revision")
	}
}

func TestSubmitQuoteRevision(t *testing.T) {
	svc, _, _, bus := newTestService(defaultTestConfig())
	requestID, _, repairerID := setupQuoted(t, svc)

	revised, err := svc.SubmitQuote(context.Background(), requestID, repairerID, 12000)
	if err != nil {
		t.Fatalf("revise quote: %v", err)
	}
	if revised.Status != domain.StatusQuoted {
		t.Fatalf("expected revision to stay quoted, got %s", revised.Status)
	}
	if *revised.EstimatedPriceCents != 12000 {
		t.Fatalf("expected revised amount, got %d", *revised.EstimatedPriceCents)
	}

	got := bus.named(events.QuoteSubmitted{}.EventName())
	if len(got) != 2 {
		t.Fatalf("expected two quote events, got %d", len(got))
	}
	if !got[1].(events.QuoteSubmitted).Revised {
		t.Fatal("expected second quote to be flagged as a revision")
	}
}

func TestSubmitQuoteRejectsNonPositiveAmount(t *testing.T) {
	svc, _, _, _ := newTestService(defaultTestConfig())
	requestID, _, repairerID := setupQuoted(t, svc)

	for _, amount := range []int64{0, -500} {
		_, err := svc.SubmitQuote(context.Background(), requestID, repairerID, amount)
		if apperr.CodeOf(err) != "invalid_quote" {
			t.Fatalf("expected invalid_quote for %d, got %v", amount, err)
		}
	}
}

func TestSubmitQuoteByNonAssignedRepairerIsForbidden(t *testing.T) {
	svc, _, _, _ := newTestService(defaultTestConfig())
	requestID, _, _ := setupQuoted(t, svc)

	_, err := svc.SubmitQuote(context.Background(), requestID, uuid.New(), 9000)
	if !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestAcceptQuote(t *testing.T) {
	svc, _, _, bus := newTestService(defaultTestConfig())
	requestID, customerID, _ := setupQuoted(t, svc)

	accepted, err := svc.AcceptQuote(context.Background(), requestID, customerID)
	if err != nil {
		t.Fatalf("accept quote: %v", err)
	}
	if accepted.Status != domain.StatusAccepted {
		t.Fatalf("expected accepted, got %s", accepted.Status)
	}
	if got := bus.named(events.QuoteAccepted{}.EventName()); len(got) != 1 {
		t.Fatalf("expected one accepted event, got %d", len(got))
	}
}

func TestAcceptQuoteBeforeQuoteIsRefused(t *testing.T) {
	svc, _, _, _ := newTestService(defaultTestConfig())
	customerID := uuid.New()
	req := mustCreate(t, svc, customerID)
	ctx := context.Background()

	if _, err := svc.Claim(ctx, req.ID, uuid.New()); err != nil {
		t.Fatalf("claim: %v", err)
	}
	_, err := svc.AcceptQuote(ctx, req.ID, customerID)
	if apperr.CodeOf(err) != "invalid_transition" {
		t.Fatalf("expected invalid_transition, got %v", err)
	}
}

func TestRejectQuoteCreatesFeeIntentAndCloses(t *testing.T) {
	cfg := defaultTestConfig()
	cfg.rejectionFee = 700
	svc, _, settlement, bus := newTestService(cfg)
	requestID, customerID, _ := setupQuoted(t, svc)

	closed, err := svc.RejectQuote(context.Background(), requestID, customerID)
	if err != nil {
		t.Fatalf("reject quote: %v", err)
	}
	if closed.Status != domain.StatusClosedRejected {
		t.Fatalf("expected closed_rejected, got %s", closed.Status)
	}
	if settlement.rejectionCalls != 1 {
		t.Fatalf("expected one rejection-fee intent, got %d", settlement.rejectionCalls)
	}
	if settlement.lastAmountCents != 700 {
		t.Fatalf("expected the configured fee, got %d", settlement.lastAmountCents)
	}
	if closed.PaymentID == nil {
		t.Fatal("expected the fee intent to be linked on the request")
	}
	if closed.EstimatedPriceCents == nil {
		t.Fatal("expected the rejected quote to remain recorded")
	}

	got := bus.named(events.QuoteRejected{}.EventName())
	if len(got) != 1 {
		t.Fatalf("expected one rejected event, got %d", len(got))
	}
	if got[0].(events.QuoteRejected).FeeCents != 700 {
		t.Fatal("expected the event to carry the fee")
	}
}

func TestRejectQuoteStaysRejectedWhenFeeIntentFails(t *testing.T) {
	svc, repo, settlement, _ := newTestService(defaultTestConfig())
	requestID, customerID, _ := setupQuoted(t, svc)

	settlement.err = apperr.Internal("gateway unavailable")
	if _, err := svc.RejectQuote(context.Background(), requestID, customerID); err == nil {
		t.Fatal("expected rejection to surface the intent failure")
	}

	req, err := repo.GetByID(context.Background(), requestID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if req.Status != domain.StatusRejected {
		t.Fatalf("expected the request to stay rejected, got %s", req.Status)
	}

	// Finalize succeeds once the intent can be created.
	settlement.err = nil
	closed, err := svc.FinalizeRejection(context.Background(), requestID)
	if err != nil {
		t.Fatalf("finalize rejection: %v", err)
	}
	if closed.Status != domain.StatusClosedRejected {
		t.Fatalf("expected closed_rejected, got %s", closed.Status)
	}
}

func TestRejectQuoteToleratesExistingActiveIntent(t *testing.T) {
	svc, _, settlement, _ := newTestService(defaultTestConfig())
	requestID, customerID, _ := setupQuoted(t, svc)

	settlement.err = apperr.Conflict("request already has an active payment").
		WithCode("active_payment_exists")
	closed, err := svc.RejectQuote(context.Background(), requestID, customerID)
	if err != nil {
		t.Fatalf("expected an existing intent to count as created: %v", err)
	}
	if closed.Status != domain.StatusClosedRejected {
		t.Fatalf("expected closed_rejected, got %s", closed.Status)
	}
}
