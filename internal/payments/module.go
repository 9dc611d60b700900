// Package payments provides the settlement engine module.
package payments

import (
	apphttp "repairlink_backend/internal/http"
	"repairlink_backend/internal/payments/gateway"
	"repairlink_backend/internal/payments/handler"
	"repairlink_backend/internal/payments/repository"
	"repairlink_backend/internal/payments/service"
	"repairlink_backend/platform/events"
	"repairlink_backend/platform/logger"
	"repairlink_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module represents the payments domain module.
type Module struct {
	handler *handler.Handler
	service *service.Service
}

// NewModule creates a new payments module with all dependencies wired.
// The lifecycle advancer is injected later from main to avoid a cycle with
// the requests module.
func NewModule(pool *pgxpool.Pool, eventBus *events.InMemoryBus, val *validator.Validator, cfg service.Config, log *logger.Logger) *Module {
	repo := repository.New(pool)
	gw := gateway.NewClient(cfg, log)
	svc := service.New(repo, gw, cfg, log)
	svc.SetEventBus(eventBus)
	h := handler.New(svc, val)

	return &Module{
		handler: h,
		service: svc,
	}
}

// Name returns the module name for logging.
func (m *Module) Name() string {
	return "payments"
}

// Service returns the service layer for external use.
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes registers the module's routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	payments := ctx.Protected.Group("/payments")
	m.handler.RegisterRoutes(payments)

	requests := ctx.Protected.Group("/requests")
	m.handler.RegisterRequestRoutes(requests)

	// Gateway callback is authenticated by HMAC signature, not by session.
	webhook := ctx.V1.Group("/public/payments")
	m.handler.RegisterWebhookRoutes(webhook)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
