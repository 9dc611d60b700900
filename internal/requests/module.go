// Package requests provides the service request lifecycle module.
package requests

import (
	apphttp "repairlink_backend/internal/http"
	"repairlink_backend/internal/requests/handler"
	"repairlink_backend/internal/requests/repository"
	"repairlink_backend/internal/requests/service"
	"repairlink_backend/internal/storage"
	"repairlink_backend/platform/events"
	"repairlink_backend/platform/logger"
	"repairlink_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module represents the requests domain module.
type Module struct {
	handler         *handler.Handler
	service         *service.Service
	evidenceEnabled bool
}

// NewModule creates a new requests module with all dependencies wired.
// The settlement creator and attempt guard are injected later from main.
func NewModule(pool *pgxpool.Pool, eventBus *events.InMemoryBus, val *validator.Validator, cfg service.Config, log *logger.Logger) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, cfg, log)
	svc.SetEventBus(eventBus)
	h := handler.New(svc, val)

	return &Module{
		handler: h,
		service: svc,
	}
}

// Name returns the module name for logging.
func (m *Module) Name() string {
	return "requests"
}

// Service returns the service layer for external use.
func (m *Module) Service() *service.Service {
	return m.service
}

// Handler returns the HTTP handler for late dependency injection.
func (m *Module) Handler() *handler.Handler {
	return m.handler
}

// SetEvidenceStorage wires the evidence object store into the handler.
// Must be called before RegisterRoutes to take effect.
func (m *Module) SetEvidenceStorage(store storage.EvidenceStorage) {
	m.handler.SetEvidenceStorage(store)
	m.evidenceEnabled = true
}

// RegisterRoutes registers the module's routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	requests := ctx.Protected.Group("/requests")
	m.handler.RegisterRoutes(requests)
	if m.evidenceEnabled {
		m.handler.RegisterEvidenceRoutes(requests)
	}
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
