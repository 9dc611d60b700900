package service

import (
	"context"
	"testing"
	"time"

	"repairlink_backend/internal/events"
	"repairlink_backend/internal/requests/domain"
	"repairlink_backend/platform/apperr"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

func setupAccepted(t *testing.T, svc *Service) (requestID, customerID, repairerID uuid.UUID) {
	t.Helper()
	requestID, customerID, repairerID = setupQuoted(t, svc)
	if _, err := svc.AcceptQuote(context.Background(), requestID, customerID); err != nil {
		t.Fatalf("accept quote: %v", err)
	}
	return requestID, customerID, repairerID
}

func issuedCode(t *testing.T, bus *recordingBus) events.CompletionCodeIssued {
	t.Helper()
	got := bus.named(events.CompletionCodeIssued{}.EventName())
	if len(got) == 0 {
		t.Fatal("expected a completion code event")
	}
	return got[len(got)-1].(events.CompletionCodeIssued)
}

func TestIssueCompletionCodeStoresOnlyHash(t *testing.T) {
	svc, repo, _, bus := newTestService(defaultTestConfig())
	requestID, _, repairerID := setupAccepted(t, svc)

	issued, err := svc.IssueCompletionCode(context.Background(), requestID, repairerID)
	if err != nil {
		t.Fatalf("issue code: %v", err)
	}
	if issued.Status != domain.StatusPendingOTP {
		t.Fatalf("expected pending_otp, got %s", issued.Status)
	}

	event := issuedCode(t, bus)
	if len(event.Code) != completionCodeDigits {
		t.Fatalf("expected a %d-digit code, got %q", completionCodeDigits, event.Code)
	}
	if event.Resend {
		t.Fatal("expected first issue not to be a resend")
	}

	stored, _ := repo.GetByID(context.Background(), requestID)
	if stored.CodeHash == nil || *stored.CodeHash == event.Code {
		t.Fatal("expected only a hash of the code to be persisted")
	}
	if stored.CodeExpiresAt == nil {
		t.Fatal("expected a code expiry to be set")
	}
}

func TestIssueCompletionCodeByNonAssignedRepairerIsForbidden(t *testing.T) {
	svc, _, _, _ := newTestService(defaultTestConfig())
	requestID, _, _ := setupAccepted(t, svc)

	_, err := svc.IssueCompletionCode(context.Background(), requestID, uuid.New())
	if !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestIssueCompletionCodeBeforeAcceptanceIsRefused(t *testing.T) {
	svc, _, _, _ := newTestService(defaultTestConfig())
	requestID, _, repairerID := setupQuoted(t, svc)

	_, err := svc.IssueCompletionCode(context.Background(), requestID, repairerID)
	if apperr.CodeOf(err) != "invalid_transition" {
		t.Fatalf("expected invalid_transition, got %v", err)
	}
}

func TestVerifyCompletionCodeOpensPayment(t *testing.T) {
	svc, _, settlement, bus := newTestService(defaultTestConfig())
	requestID, customerID, repairerID := setupAccepted(t, svc)
	ctx := context.Background()

	if _, err := svc.IssueCompletionCode(ctx, requestID, repairerID); err != nil {
		t.Fatalf("issue code: %v", err)
	}
	code := issuedCode(t, bus).Code

	verified, err := svc.VerifyCompletionCode(ctx, requestID, customerID, code)
	if err != nil {
		t.Fatalf("verify code: %v", err)
	}
	if verified.Status != domain.StatusPendingPayment {
		t.Fatalf("expected pending_payment, got %s", verified.Status)
	}
	if settlement.standardCalls != 1 {
		t.Fatalf("expected one standard intent, got %d", settlement.standardCalls)
	}
	if settlement.lastAmountCents != 15000 {
		t.Fatalf("expected the quoted amount, got %d", settlement.lastAmountCents)
	}
	if verified.PaymentID == nil {
		t.Fatal("expected the payment intent to be linked")
	}
	if verified.CodeHash != nil || verified.CodeExpiresAt != nil {
		t.Fatal("expected the code to be consumed on verification")
	}
}

func TestVerifyCompletionCodeIsSingleUse(t *testing.T) {
	svc, _, _, bus := newTestService(defaultTestConfig())
	requestID, customerID, repairerID := setupAccepted(t, svc)
	ctx := context.Background()

	if _, err := svc.IssueCompletionCode(ctx, requestID, repairerID); err != nil {
		t.Fatalf("issue code: %v", err)
	}
	code := issuedCode(t, bus).Code

	if _, err := svc.VerifyCompletionCode(ctx, requestID, customerID, code); err != nil {
		t.Fatalf("first verify: %v", err)
	}
	_, err := svc.VerifyCompletionCode(ctx, requestID, customerID, code)
	if apperr.CodeOf(err) != "invalid_transition" {
		t.Fatalf("expected the consumed code to be unusable, got %v", err)
	}
}

func TestVerifyCompletionCodeMismatch(t *testing.T) {
	svc, repo, _, bus := newTestService(defaultTestConfig())
	requestID, customerID, repairerID := setupAccepted(t, svc)
	ctx := context.Background()

	if _, err := svc.IssueCompletionCode(ctx, requestID, repairerID); err != nil {
		t.Fatalf("issue code: %v", err)
	}
	code := issuedCode(t, bus).Code
	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}

	_, err := svc.VerifyCompletionCode(ctx, requestID, customerID, wrong)
	if apperr.CodeOf(err) != "code_mismatch" {
		t.Fatalf("expected code_mismatch, got %v", err)
	}

	// A mismatch does not consume the code.
	stored, _ := repo.GetByID(ctx, requestID)
	if stored.Status != domain.StatusPendingOTP || stored.CodeHash == nil {
		t.Fatal("expected the code to survive a mismatch")
	}
	if _, err := svc.VerifyCompletionCode(ctx, requestID, customerID, code); err != nil {
		t.Fatalf("expected the right code to still verify: %v", err)
	}
}

func TestVerifyCompletionCodeExpired(t *testing.T) {
	cfg := defaultTestConfig()
	cfg.codeTTL = 5 * time.Minute
	svc, _, _, bus := newTestService(cfg)
	requestID, customerID, repairerID := setupAccepted(t, svc)
	ctx := context.Background()

	base := time.Now()
	svc.now = func() time.Time { return base }
	if _, err := svc.IssueCompletionCode(ctx, requestID, repairerID); err != nil {
		t.Fatalf("issue code: %v", err)
	}
	code := issuedCode(t, bus).Code

	svc.now = func() time.Time { return base.Add(6 * time.Minute) }
	_, err := svc.VerifyCompletionCode(ctx, requestID, customerID, code)
	if apperr.CodeOf(err) != "code_expired" {
		t.Fatalf("expected code_expired, got %v", err)
	}
	if !apperr.Is(err, apperr.KindGone) {
		t.Fatalf("expected gone, got %v", err)
	}
}

func TestVerifyCompletionCodeAttemptBound(t *testing.T) {
	cfg := defaultTestConfig()
	cfg.codeMaxAttempt = 3
	svc, _, _, bus := newTestService(cfg)
	requestID, customerID, repairerID := setupAccepted(t, svc)
	ctx := context.Background()

	if _, err := svc.IssueCompletionCode(ctx, requestID, repairerID); err != nil {
		t.Fatalf("issue code: %v", err)
	}
	code := issuedCode(t, bus).Code
	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}

	for i := 0; i < 3; i++ {
		if _, err := svc.VerifyCompletionCode(ctx, requestID, customerID, wrong); apperr.CodeOf(err) != "code_mismatch" {
			t.Fatalf("attempt %d: expected code_mismatch, got %v", i+1, err)
		}
	}

	// The budget is spent; even the right code is refused now.
	_, err := svc.VerifyCompletionCode(ctx, requestID, customerID, code)
	if apperr.CodeOf(err) != "too_many_attempts" {
		t.Fatalf("expected too_many_attempts, got %v", err)
	}
}

func TestResendInvalidatesPreviousCodeAndResetsAttempts(t *testing.T) {
	cfg := defaultTestConfig()
	cfg.codeMaxAttempt = 2
	svc, _, _, bus := newTestService(cfg)
	requestID, customerID, repairerID := setupAccepted(t, svc)
	ctx := context.Background()

	if _, err := svc.IssueCompletionCode(ctx, requestID, repairerID); err != nil {
		t.Fatalf("issue code: %v", err)
	}
	first := issuedCode(t, bus).Code
	wrong := "000000"
	if wrong == first {
		wrong = "000001"
	}

	// Burn the attempt budget.
	for i := 0; i < 2; i++ {
		_, _ = svc.VerifyCompletionCode(ctx, requestID, customerID, wrong)
	}
	if _, err := svc.VerifyCompletionCode(ctx, requestID, customerID, first); apperr.CodeOf(err) != "too_many_attempts" {
		t.Fatalf("expected too_many_attempts, got %v", err)
	}

	// Resend issues a fresh code and a fresh budget.
	if _, err := svc.IssueCompletionCode(ctx, requestID, repairerID); err != nil {
		t.Fatalf("resend code: %v", err)
	}
	resent := issuedCode(t, bus)
	if !resent.Resend {
		t.Fatal("expected the second issue to be flagged as a resend")
	}

	// The old code only works if it happens to equal the new one.
	if first != resent.Code {
		if _, err := svc.VerifyCompletionCode(ctx, requestID, customerID, first); apperr.CodeOf(err) != "code_mismatch" {
			t.Fatalf("expected the stale code to mismatch, got %v", err)
		}
	}
	if _, err := svc.VerifyCompletionCode(ctx, requestID, customerID, resent.Code); err != nil {
		t.Fatalf("expected the fresh code to verify: %v", err)
	}
}

func TestVerifyCompletionCodeRefusesCodeSupersededMidFlight(t *testing.T) {
	svc, repo, _, bus := newTestService(defaultTestConfig())
	requestID, customerID, repairerID := setupAccepted(t, svc)
	ctx := context.Background()

	if _, err := svc.IssueCompletionCode(ctx, requestID, repairerID); err != nil {
		t.Fatalf("issue code: %v", err)
	}
	first := issuedCode(t, bus).Code
	replacement := "999999"
	if replacement == first {
		replacement = "999998"
	}
	replacementHash, err := bcrypt.GenerateFromPassword([]byte(replacement), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("hash replacement code: %v", err)
	}

	// A reissue lands between the verification's read and its write. The
	// verification must compare against the hash it writes over, not the
	// one it first read.
	repo.beforeUpdate = func(r *fakeRepo) {
		req := r.byID[requestID]
		h := string(replacementHash)
		req.CodeHash = &h
		req.Version++
		r.byID[requestID] = req
	}

	_, err = svc.VerifyCompletionCode(ctx, requestID, customerID, first)
	if apperr.CodeOf(err) != "code_mismatch" {
		t.Fatalf("expected the superseded code to mismatch, got %v", err)
	}

	if _, err := svc.VerifyCompletionCode(ctx, requestID, customerID, replacement); err != nil {
		t.Fatalf("expected the replacement code to verify: %v", err)
	}
}

func TestOnStandardPaymentSettledCompletesRequest(t *testing.T) {
	svc, repo, _, bus := newTestService(defaultTestConfig())
	requestID, customerID, repairerID := setupAccepted(t, svc)
	ctx := context.Background()

	if _, err := svc.IssueCompletionCode(ctx, requestID, repairerID); err != nil {
		t.Fatalf("issue code: %v", err)
	}
	code := issuedCode(t, bus).Code
	if _, err := svc.VerifyCompletionCode(ctx, requestID, customerID, code); err != nil {
		t.Fatalf("verify code: %v", err)
	}

	if err := svc.OnStandardPaymentSettled(ctx, requestID); err != nil {
		t.Fatalf("settle: %v", err)
	}

	req, _ := repo.GetByID(ctx, requestID)
	if req.Status != domain.StatusCompleted {
		t.Fatalf("expected completed, got %s", req.Status)
	}
	if req.CompletedAt == nil {
		t.Fatal("expected completedAt to be set")
	}

	// A duplicate settlement callback converges without moving state.
	completedAt := *req.CompletedAt
	if err := svc.OnStandardPaymentSettled(ctx, requestID); err != nil {
		t.Fatalf("expected the replay to report success, got %v", err)
	}
	req, _ = repo.GetByID(ctx, requestID)
	if req.CompletedAt == nil || !req.CompletedAt.Equal(completedAt) {
		t.Fatal("expected the replay to leave the completion timestamp alone")
	}
}

func TestOnStandardPaymentSettledResumesAfterPartialAdvance(t *testing.T) {
	svc, repo, _, bus := newTestService(defaultTestConfig())
	requestID, customerID, repairerID := setupAccepted(t, svc)
	ctx := context.Background()

	if _, err := svc.IssueCompletionCode(ctx, requestID, repairerID); err != nil {
		t.Fatalf("issue code: %v", err)
	}
	code := issuedCode(t, bus).Code
	if _, err := svc.VerifyCompletionCode(ctx, requestID, customerID, code); err != nil {
		t.Fatalf("verify code: %v", err)
	}

	// An earlier advance recorded the settlement but failed before the close.
	if _, err := svc.transition(ctx, requestID, domain.EventPaymentSettled, domain.RoleSystem, nil); err != nil {
		t.Fatalf("record settlement: %v", err)
	}

	if err := svc.OnStandardPaymentSettled(ctx, requestID); err != nil {
		t.Fatalf("expected the advance to resume at the close: %v", err)
	}
	req, _ := repo.GetByID(ctx, requestID)
	if req.Status != domain.StatusCompleted {
		t.Fatalf("expected completed, got %s", req.Status)
	}
	if req.CompletedAt == nil {
		t.Fatal("expected completedAt to be set")
	}
}

func TestOnStandardPaymentSettledRefusedBeforePayment(t *testing.T) {
	svc, _, _, _ := newTestService(defaultTestConfig())
	requestID, _, _ := setupAccepted(t, svc)

	err := svc.OnStandardPaymentSettled(context.Background(), requestID)
	if apperr.CodeOf(err) != "invalid_transition" {
		t.Fatalf("expected invalid_transition before payment opens, got %v", err)
	}
}

func TestAttachEvidence(t *testing.T) {
	svc, _, _, _ := newTestService(defaultTestConfig())
	requestID, _, repairerID := setupAccepted(t, svc)
	ctx := context.Background()

	updated, err := svc.AttachEvidence(ctx, requestID, repairerID, []string{"evidence/a.jpg", "evidence/b.jpg"})
	if err != nil {
		t.Fatalf("attach evidence: %v", err)
	}
	if len(updated.EvidenceKeys) != 2 {
		t.Fatalf("expected two evidence keys, got %d", len(updated.EvidenceKeys))
	}

	if _, err := svc.AttachEvidence(ctx, requestID, repairerID, nil); apperr.CodeOf(err) != "invalid_evidence" {
		t.Fatalf("expected invalid_evidence for empty keys, got %v", err)
	}
	if _, err := svc.AttachEvidence(ctx, requestID, uuid.New(), []string{"x"}); !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("expected forbidden for a stranger, got %v", err)
	}
}

func TestAttachEvidenceRefusedBeforeAcceptance(t *testing.T) {
	svc, _, _, _ := newTestService(defaultTestConfig())
	requestID, _, repairerID := setupQuoted(t, svc)

	_, err := svc.AttachEvidence(context.Background(), requestID, repairerID, []string{"x"})
	if apperr.CodeOf(err) != "invalid_transition" {
		t.Fatalf("expected invalid_transition, got %v", err)
	}
}
