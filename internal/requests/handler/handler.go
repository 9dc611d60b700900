package handler

import (
	"net/http"

	"repairlink_backend/internal/requests/domain"
	"repairlink_backend/internal/requests/repository"
	"repairlink_backend/internal/requests/service"
	"repairlink_backend/internal/requests/transport"
	"repairlink_backend/internal/storage"
	"repairlink_backend/platform/apperr"
	"repairlink_backend/platform/httpkit"
	"repairlink_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInvalidRequestID = "invalid request id"
)

// Handler handles HTTP requests for the service request lifecycle.
type Handler struct {
	svc      *service.Service
	val      *validator.Validator
	evidence storage.EvidenceStorage
}

// New creates a new requests handler.
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// RegisterRoutes registers the lifecycle routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.Create)
	rg.GET("", h.List)
	rg.GET("/open", h.ListOpen)
	rg.GET("/:id", h.GetByID)
	rg.POST("/:id/claim", h.Claim)
	rg.POST("/:id/quote", h.SubmitQuote)
	rg.POST("/:id/quote/decision", h.DecideQuote)
	rg.POST("/:id/completion-code", h.IssueCompletionCode)
	rg.POST("/:id/completion-code/verify", h.VerifyCompletionCode)
	rg.POST("/:id/evidence", h.AttachEvidence)
	rg.POST("/:id/cancel", h.Cancel)
	rg.POST("/:id/withdraw", h.Withdraw)
}

func actorFrom(identity httpkit.Identity) service.Actor {
	return service.Actor{
		ID:      identity.ActorID(),
		Role:    domain.Role(identity.Role()),
		IsAdmin: identity.HasRole(httpkit.RoleAdmin),
	}
}

func (h *Handler) Create(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	if !identity.HasRole(httpkit.RoleCustomer) {
		httpkit.Error(c, http.StatusForbidden, "only customers can open requests")
		return
	}

	var req transport.CreateRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed)
		return
	}

	created, err := h.svc.Create(c.Request.Context(), service.CreateRequestParams{
		CustomerID:     identity.ActorID(),
		Category:       req.Category,
		Description:    req.Description,
		Address:        req.Address,
		PostalCode:     req.PostalCode,
		ContactPhone:   req.ContactPhone,
		QuotationCents: req.QuotationCents,
	})
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.Created(c, transport.FromRequest(created))
}

func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequestID)
		return
	}

	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	req, err := h.svc.GetForActor(c.Request.Context(), id, actorFrom(identity))
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.FromRequest(req))
}

// List returns the caller's own requests: the customer's opened ones or the
// repairer's assigned ones.
func (h *Handler) List(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	params, ok := h.listParams(c)
	if !ok {
		return
	}

	var (
		items []repository.ServiceRequest
		total int
		err   error
	)
	switch {
	case identity.HasRole(httpkit.RoleCustomer):
		items, total, err = h.svc.ListForCustomer(c.Request.Context(), identity.ActorID(), params)
	case identity.HasRole(httpkit.RoleRepairer):
		items, total, err = h.svc.ListForRepairer(c.Request.Context(), identity.ActorID(), params)
	default:
		items, total, err = h.svc.ListOpen(c.Request.Context(), params)
	}
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.ListResponse{
		Items:    transport.FromRequests(items),
		Total:    total,
		Page:     params.Page,
		PageSize: params.PageSize,
	})
}

// ListOpen returns unassigned requests any repairer may claim.
func (h *Handler) ListOpen(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	if !identity.HasRole(httpkit.RoleRepairer) && !identity.HasRole(httpkit.RoleAdmin) {
		httpkit.Error(c, http.StatusForbidden, "only repairers can browse open requests")
		return
	}

	params, ok := h.listParams(c)
	if !ok {
		return
	}

	items, total, err := h.svc.ListOpen(c.Request.Context(), params)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.ListResponse{
		Items:    transport.FromRequests(items),
		Total:    total,
		Page:     params.Page,
		PageSize: params.PageSize,
	})
}

func (h *Handler) Claim(c *gin.Context) {
	id, identity, ok := h.idAndRole(c, httpkit.RoleRepairer, "only repairers can claim requests")
	if !ok {
		return
	}

	req, err := h.svc.Claim(c.Request.Context(), id, identity.ActorID())
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.FromRequest(req))
}

func (h *Handler) SubmitQuote(c *gin.Context) {
	id, identity, ok := h.idAndRole(c, httpkit.RoleRepairer, "only repairers can submit quotes")
	if !ok {
		return
	}

	var req transport.SubmitQuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed)
		return
	}

	updated, err := h.svc.SubmitQuote(c.Request.Context(), id, identity.ActorID(), req.AmountCents)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.FromRequest(updated))
}

func (h *Handler) DecideQuote(c *gin.Context) {
	id, identity, ok := h.idAndRole(c, httpkit.RoleCustomer, "only customers can answer quotes")
	if !ok {
		return
	}

	var req transport.QuoteDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed)
		return
	}

	var (
		updated repository.ServiceRequest
		err     error
	)
	if req.Decision == "accept" {
		updated, err = h.svc.AcceptQuote(c.Request.Context(), id, identity.ActorID())
	} else {
		updated, err = h.svc.RejectQuote(c.Request.Context(), id, identity.ActorID())
	}
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.FromRequest(updated))
}

func (h *Handler) IssueCompletionCode(c *gin.Context) {
	id, identity, ok := h.idAndRole(c, httpkit.RoleRepairer, "only the repairer can issue a completion code")
	if !ok {
		return
	}

	updated, err := h.svc.IssueCompletionCode(c.Request.Context(), id, identity.ActorID())
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.FromRequest(updated))
}

func (h *Handler) VerifyCompletionCode(c *gin.Context) {
	id, identity, ok := h.idAndRole(c, httpkit.RoleCustomer, "only the customer can verify the completion code")
	if !ok {
		return
	}

	var req transport.VerifyCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed)
		return
	}

	updated, err := h.svc.VerifyCompletionCode(c.Request.Context(), id, identity.ActorID(), req.Code)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.FromRequest(updated))
}

func (h *Handler) AttachEvidence(c *gin.Context) {
	id, identity, ok := h.idAndRole(c, httpkit.RoleRepairer, "only the repairer can attach evidence")
	if !ok {
		return
	}

	var req transport.AttachEvidenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed)
		return
	}

	updated, err := h.svc.AttachEvidence(c.Request.Context(), id, identity.ActorID(), req.Keys)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.FromRequest(updated))
}

func (h *Handler) Cancel(c *gin.Context) {
	id, identity, ok := h.idAndRole(c, httpkit.RoleCustomer, "only the customer can cancel")
	if !ok {
		return
	}

	updated, err := h.svc.Cancel(c.Request.Context(), id, identity.ActorID())
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.FromRequest(updated))
}

func (h *Handler) Withdraw(c *gin.Context) {
	id, identity, ok := h.idAndRole(c, httpkit.RoleRepairer, "only the repairer can withdraw")
	if !ok {
		return
	}

	updated, err := h.svc.Withdraw(c.Request.Context(), id, identity.ActorID())
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.FromRequest(updated))
}

func (h *Handler) idAndRole(c *gin.Context, role, forbiddenMsg string) (uuid.UUID, httpkit.Identity, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequestID)
		return uuid.Nil, nil, false
	}

	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return uuid.Nil, nil, false
	}
	if !identity.HasRole(role) {
		httpkit.Error(c, http.StatusForbidden, forbiddenMsg)
		return uuid.Nil, nil, false
	}
	return id, identity, true
}

func (h *Handler) listParams(c *gin.Context) (repository.ListParams, bool) {
	var q transport.ListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest)
		return repository.ListParams{}, false
	}

	params := repository.ListParams{Page: q.Page, PageSize: q.PageSize}
	if q.Status != "" {
		status := domain.Status(q.Status)
		if !status.Valid() {
			httpkit.HandleError(c, apperr.Validation("unknown status filter").WithCode("invalid_status"))
			return repository.ListParams{}, false
		}
		params.Status = &status
	}
	return params, true
}
