package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"repairlink_backend/internal/payments/gateway"
	"repairlink_backend/internal/payments/repository"
	"repairlink_backend/platform/apperr"
	"repairlink_backend/platform/logger"

	"github.com/google/uuid"
)

const testWebhookSecret = "whsec_test"

// fakePaymentRepo mirrors the Postgres contract: one active payment per
// request and settle-once semantics.
type fakePaymentRepo struct {
	mu   sync.Mutex
	byID map[uuid.UUID]repository.Payment
}

func newFakePaymentRepo() *fakePaymentRepo {
	return &fakePaymentRepo{byID: make(map[uuid.UUID]repository.Payment)}
}

func (r *fakePaymentRepo) Create(_ context.Context, p repository.Payment) (repository.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.byID {
		if existing.RequestID == p.RequestID && !existing.Status.IsTerminal() {
			return repository.Payment{}, apperr.Conflict("request already has an active payment").
				WithCode("active_payment_exists")
		}
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	r.byID[p.ID] = p
	return p, nil
}

func (r *fakePaymentRepo) GetByID(_ context.Context, id uuid.UUID) (repository.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[id]
	if !ok {
		return repository.Payment{}, apperr.NotFound("payment not found")
	}
	return p, nil
}

func (r *fakePaymentRepo) GetByGatewayOrderID(_ context.Context, orderID string) (repository.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.byID {
		if p.GatewayOrderID != nil && *p.GatewayOrderID == orderID {
			return p, nil
		}
	}
	return repository.Payment{}, apperr.NotFound("payment not found")
}

func (r *fakePaymentRepo) ListForRequest(_ context.Context, requestID uuid.UUID) ([]repository.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var items []repository.Payment
	for _, p := range r.byID {
		if p.RequestID == requestID {
			items = append(items, p)
		}
	}
	return items, nil
}

func (r *fakePaymentRepo) Settle(_ context.Context, params repository.SettleParams) (repository.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[params.ID]
	if !ok {
		return repository.Payment{}, apperr.NotFound("payment not found")
	}
	if p.Status == repository.StatusCompleted {
		return repository.Payment{}, apperr.Conflict("payment already settled").WithCode("already_settled")
	}
	if p.Status.IsTerminal() {
		return repository.Payment{}, apperr.Conflict("payment is no longer settleable").WithCode("payment_terminal")
	}
	p.Status = repository.StatusCompleted
	p.GatewayPaymentID = &params.GatewayPaymentID
	p.GatewaySignature = &params.GatewaySignature
	p.CommissionCents = params.CommissionCents
	p.PayoutCents = params.PayoutCents
	settledAt := params.SettledAt
	p.SettledAt = &settledAt
	r.byID[p.ID] = p
	return p, nil
}

func (r *fakePaymentRepo) MarkFailed(_ context.Context, id uuid.UUID, reason string) (repository.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[id]
	if !ok {
		return repository.Payment{}, apperr.NotFound("payment not found")
	}
	if p.Status.IsTerminal() {
		return repository.Payment{}, apperr.Conflict("payment is no longer active").WithCode("payment_terminal")
	}
	p.Status = repository.StatusFailed
	p.FailureReason = &reason
	r.byID[p.ID] = p
	return p, nil
}

func (r *fakePaymentRepo) ExpireStale(_ context.Context, cutoff time.Time) ([]repository.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var expired []repository.Payment
	for id, p := range r.byID {
		if !p.Status.IsTerminal() && p.CreatedAt.Before(cutoff) {
			p.Status = repository.StatusExpired
			r.byID[id] = p
			expired = append(expired, p)
		}
	}
	return expired, nil
}

var _ repository.Repository = (*fakePaymentRepo)(nil)

// fakeGateway hands out sequential order ids.
type fakeGateway struct {
	mu     sync.Mutex
	orders int
	err    error
}

func (g *fakeGateway) CreateOrder(_ context.Context, _ int64, _ string, _ string, _ map[string]string) (gateway.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return gateway.Order{}, g.err
	}
	g.orders++
	id := fmt.Sprintf("order_%03d", g.orders)
	return gateway.Order{ID: id, CheckoutURL: "https://gateway.test/checkout/" + id}, nil
}

// fakeAdvancer records settlement-driven lifecycle advances.
type fakeAdvancer struct {
	mu    sync.Mutex
	calls []uuid.UUID
	err   error
}

func (a *fakeAdvancer) OnStandardPaymentSettled(_ context.Context, requestID uuid.UUID) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.calls = append(a.calls, requestID)
	return nil
}

type testConfig struct {
	commissionBps int
	rejectionFee  int64
	pendingTTL    time.Duration
}

func (c testConfig) GetCommissionRateBps() int           { return c.commissionBps }
func (c testConfig) GetRejectionFeeCents() int64         { return c.rejectionFee }
func (c testConfig) GetPaymentPendingTTL() time.Duration { return c.pendingTTL }
func (c testConfig) GetGatewayBaseURL() string           { return "" }
func (c testConfig) GetGatewayKeyID() string             { return "key_test" }
func (c testConfig) GetGatewayKeySecret() string         { return "secret_test" }
func (c testConfig) GetGatewayWebhookSecret() string     { return testWebhookSecret }
func (c testConfig) GetCurrency() string                 { return "INR" }
func (c testConfig) IsGatewayEnabled() bool              { return false }

func defaultTestConfig() testConfig {
	return testConfig{commissionBps: 1000, rejectionFee: 500, pendingTTL: 30 * time.Minute}
}

func newTestService(cfg testConfig) (*Service, *fakePaymentRepo, *fakeGateway, *fakeAdvancer) {
	repo := newFakePaymentRepo()
	gw := &fakeGateway{}
	advancer := &fakeAdvancer{}
	log := &logger.Logger{Logger: slog.New(slog.DiscardHandler)}
	svc := New(repo, gw, cfg, log)
	svc.SetLifecycleAdvancer(advancer)
	return svc, repo, gw, advancer
}

func mustCreateIntent(t *testing.T, svc *Service, method repository.Method, amount int64) repository.Payment {
	t.Helper()
	repairerID := uuid.New()
	p, err := svc.CreateIntent(context.Background(), IntentParams{
		RequestID:   uuid.New(),
		CustomerID:  uuid.New(),
		RepairerID:  &repairerID,
		Method:      method,
		AmountCents: amount,
	})
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}
	return p
}

func TestCreateIntentRegistersGatewayOrder(t *testing.T) {
	svc, _, _, _ := newTestService(defaultTestConfig())
	p := mustCreateIntent(t, svc, repository.MethodStandard, 15000)

	if p.Status != repository.StatusPending {
		t.Fatalf("expected pending, got %s", p.Status)
	}
	if p.GatewayOrderID == nil || *p.GatewayOrderID == "" {
		t.Fatal("expected a gateway order id")
	}
	if p.CheckoutURL == nil {
		t.Fatal("expected a checkout url")
	}
	if p.Currency != "INR" {
		t.Fatalf("expected configured currency, got %s", p.Currency)
	}
}

func TestCreateIntentValidation(t *testing.T) {
	svc, _, _, _ := newTestService(defaultTestConfig())
	ctx := context.Background()

	_, err := svc.CreateIntent(ctx, IntentParams{
		RequestID: uuid.New(), CustomerID: uuid.New(),
		Method: repository.MethodStandard, AmountCents: 0,
	})
	if apperr.CodeOf(err) != "invalid_amount" {
		t.Fatalf("expected invalid_amount, got %v", err)
	}

	_, err = svc.CreateIntent(ctx, IntentParams{
		RequestID: uuid.New(), CustomerID: uuid.New(),
		Method: repository.Method("cash"), AmountCents: 100,
	})
	if apperr.CodeOf(err) != "invalid_method" {
		t.Fatalf("expected invalid_method, got %v", err)
	}
}

func TestCreateIntentRefusesSecondActivePayment(t *testing.T) {
	svc, _, _, _ := newTestService(defaultTestConfig())
	ctx := context.Background()
	requestID := uuid.New()
	customerID := uuid.New()

	if _, err := svc.CreateIntent(ctx, IntentParams{
		RequestID: requestID, CustomerID: customerID,
		Method: repository.MethodStandard, AmountCents: 5000,
	}); err != nil {
		t.Fatalf("first intent: %v", err)
	}

	_, err := svc.CreateIntent(ctx, IntentParams{
		RequestID: requestID, CustomerID: customerID,
		Method: repository.MethodStandard, AmountCents: 5000,
	})
	if apperr.CodeOf(err) != "active_payment_exists" {
		t.Fatalf("expected active_payment_exists, got %v", err)
	}
}

func callbackFor(p repository.Payment, paymentID string) CallbackParams {
	return CallbackParams{
		GatewayOrderID:   *p.GatewayOrderID,
		GatewayPaymentID: paymentID,
		Signature:        gateway.Sign(*p.GatewayOrderID, paymentID, testWebhookSecret),
	}
}

func TestVerifyCallbackSettlesWithCommissionSplit(t *testing.T) {
	cfg := defaultTestConfig()
	cfg.commissionBps = 1250
	svc, _, _, advancer := newTestService(cfg)
	p := mustCreateIntent(t, svc, repository.MethodStandard, 10000)

	settled, err := svc.VerifyCallback(context.Background(), callbackFor(p, "pay_001"))
	if err != nil {
		t.Fatalf("verify callback: %v", err)
	}
	if settled.Status != repository.StatusCompleted {
		t.Fatalf("expected completed, got %s", settled.Status)
	}
	if settled.CommissionCents != 1250 {
		t.Fatalf("expected commission 1250, got %d", settled.CommissionCents)
	}
	if settled.PayoutCents != 8750 {
		t.Fatalf("expected payout 8750, got %d", settled.PayoutCents)
	}
	if settled.SettledAt == nil {
		t.Fatal("expected settledAt to be set")
	}
	if len(advancer.calls) != 1 || advancer.calls[0] != p.RequestID {
		t.Fatal("expected the request lifecycle to advance once")
	}
}

func TestVerifyCallbackRejectionFeeIsAllCommission(t *testing.T) {
	svc, _, _, advancer := newTestService(defaultTestConfig())
	p := mustCreateIntent(t, svc, repository.MethodRejectionFee, 500)

	settled, err := svc.VerifyCallback(context.Background(), callbackFor(p, "pay_002"))
	if err != nil {
		t.Fatalf("verify callback: %v", err)
	}
	if settled.CommissionCents != 500 || settled.PayoutCents != 0 {
		t.Fatalf("expected the full fee as commission, got commission=%d payout=%d",
			settled.CommissionCents, settled.PayoutCents)
	}
	// Rejection fees never advance the request lifecycle.
	if len(advancer.calls) != 0 {
		t.Fatal("expected no lifecycle advance for a rejection fee")
	}
}

func TestVerifyCallbackRejectsBadSignature(t *testing.T) {
	svc, repo, _, _ := newTestService(defaultTestConfig())
	p := mustCreateIntent(t, svc, repository.MethodStandard, 10000)

	params := callbackFor(p, "pay_003")
	params.Signature = gateway.Sign(*p.GatewayOrderID, "pay_003", "wrong-secret")

	_, err := svc.VerifyCallback(context.Background(), params)
	if apperr.CodeOf(err) != "signature_invalid" {
		t.Fatalf("expected signature_invalid, got %v", err)
	}
	if !apperr.Is(err, apperr.KindUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}

	stored, _ := repo.GetByID(context.Background(), p.ID)
	if stored.Status != repository.StatusPending {
		t.Fatalf("expected the payment to stay pending, got %s", stored.Status)
	}
}

func TestVerifyCallbackIsIdempotent(t *testing.T) {
	svc, _, _, advancer := newTestService(defaultTestConfig())
	p := mustCreateIntent(t, svc, repository.MethodStandard, 10000)
	params := callbackFor(p, "pay_004")

	if _, err := svc.VerifyCallback(context.Background(), params); err != nil {
		t.Fatalf("first callback: %v", err)
	}
	_, err := svc.VerifyCallback(context.Background(), params)
	if apperr.CodeOf(err) != "already_settled" {
		t.Fatalf("expected already_settled on replay, got %v", err)
	}
	// The replay moves no funds but re-drives the lifecycle advance, which
	// is itself idempotent.
	if len(advancer.calls) != 2 {
		t.Fatalf("expected the replay to re-drive the advance, got %d advances", len(advancer.calls))
	}
	for _, id := range advancer.calls {
		if id != p.RequestID {
			t.Fatalf("expected every advance to target the request, got %s", id)
		}
	}
}

func TestVerifyCallbackSurfacesAdvanceFailure(t *testing.T) {
	svc, repo, _, advancer := newTestService(defaultTestConfig())
	p := mustCreateIntent(t, svc, repository.MethodStandard, 10000)

	advancer.err = apperr.Internal("requests store unavailable")
	if _, err := svc.VerifyCallback(context.Background(), callbackFor(p, "pay_005")); err == nil {
		t.Fatal("expected the advance failure to surface so the gateway retries")
	}

	// The settlement itself stuck; the redelivery picks the advance back up.
	stored, _ := repo.GetByID(context.Background(), p.ID)
	if stored.Status != repository.StatusCompleted {
		t.Fatalf("expected the payment to stay settled, got %s", stored.Status)
	}
}

func TestRedeliveredCallbackRecoversFromAdvanceFailure(t *testing.T) {
	svc, _, _, advancer := newTestService(defaultTestConfig())
	p := mustCreateIntent(t, svc, repository.MethodStandard, 10000)
	params := callbackFor(p, "pay_007")

	advancer.err = apperr.Internal("requests store unavailable")
	if _, err := svc.VerifyCallback(context.Background(), params); err == nil {
		t.Fatal("expected the advance failure to surface")
	}

	// The requests store recovers and the gateway redelivers the callback.
	advancer.mu.Lock()
	advancer.err = nil
	advancer.mu.Unlock()

	_, err := svc.VerifyCallback(context.Background(), params)
	if apperr.CodeOf(err) != "already_settled" {
		t.Fatalf("expected already_settled on redelivery, got %v", err)
	}
	if len(advancer.calls) != 1 || advancer.calls[0] != p.RequestID {
		t.Fatalf("expected the redelivery to advance the request, got %d advances", len(advancer.calls))
	}
}

func TestMarkFailedFreesTheActiveSlot(t *testing.T) {
	svc, _, _, _ := newTestService(defaultTestConfig())
	ctx := context.Background()
	requestID := uuid.New()
	customerID := uuid.New()

	p, err := svc.CreateIntent(ctx, IntentParams{
		RequestID: requestID, CustomerID: customerID,
		Method: repository.MethodStandard, AmountCents: 5000,
	})
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}

	failed, err := svc.MarkFailed(ctx, callbackFor(p, "pay_006"), "card declined")
	if err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if failed.Status != repository.StatusFailed {
		t.Fatalf("expected failed, got %s", failed.Status)
	}

	// A fresh attempt is allowed now.
	if _, err := svc.CreateIntent(ctx, IntentParams{
		RequestID: requestID, CustomerID: customerID,
		Method: repository.MethodStandard, AmountCents: 5000,
	}); err != nil {
		t.Fatalf("expected a retry intent after failure: %v", err)
	}
}

func TestExpireStale(t *testing.T) {
	svc, repo, _, _ := newTestService(defaultTestConfig())
	p := mustCreateIntent(t, svc, repository.MethodStandard, 5000)

	// Age the intent past the TTL.
	repo.mu.Lock()
	aged := repo.byID[p.ID]
	aged.CreatedAt = time.Now().Add(-time.Hour)
	repo.byID[p.ID] = aged
	repo.mu.Unlock()

	count, err := svc.ExpireStale(context.Background())
	if err != nil {
		t.Fatalf("expire stale: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one expired payment, got %d", count)
	}
	stored, _ := repo.GetByID(context.Background(), p.ID)
	if stored.Status != repository.StatusExpired {
		t.Fatalf("expected expired, got %s", stored.Status)
	}
}

func TestGetForActorPartyCheck(t *testing.T) {
	svc, _, _, _ := newTestService(defaultTestConfig())
	p := mustCreateIntent(t, svc, repository.MethodStandard, 5000)
	ctx := context.Background()

	if _, err := svc.GetForActor(ctx, p.ID, p.CustomerID, false); err != nil {
		t.Fatalf("customer should see the payment: %v", err)
	}
	if _, err := svc.GetForActor(ctx, p.ID, *p.RepairerID, false); err != nil {
		t.Fatalf("repairer should see the payment: %v", err)
	}
	if _, err := svc.GetForActor(ctx, p.ID, uuid.New(), false); !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("expected forbidden for a stranger, got %v", err)
	}
	if _, err := svc.GetForActor(ctx, p.ID, uuid.New(), true); err != nil {
		t.Fatalf("admin should see the payment: %v", err)
	}
}
