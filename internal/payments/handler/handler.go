package handler

import (
	"net/http"

	"repairlink_backend/internal/payments/service"
	"repairlink_backend/internal/payments/transport"
	"repairlink_backend/platform/httpkit"
	"repairlink_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	qrcode "github.com/skip2/go-qrcode"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

// Handler handles HTTP requests for payments.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

// New creates a new payments handler.
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// RegisterRoutes registers the authenticated payment routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/:id", h.GetByID)
	rg.GET("/:id/checkout-qr", h.CheckoutQR)
}

// RegisterWebhookRoutes registers the unauthenticated gateway callback.
// Authenticity comes from the HMAC signature, not from a session.
func (h *Handler) RegisterWebhookRoutes(rg *gin.RouterGroup) {
	rg.POST("/webhook", h.Webhook)
}

// RegisterRequestRoutes registers payment routes nested under a request.
func (h *Handler) RegisterRequestRoutes(rg *gin.RouterGroup) {
	rg.GET("/:id/payments", h.ListForRequest)
}

func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid payment id")
		return
	}

	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	p, err := h.svc.GetForActor(c.Request.Context(), id, identity.ActorID(), identity.HasRole(httpkit.RoleAdmin))
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.FromPayment(p))
}

// CheckoutQR renders the payment's checkout URL as a QR code PNG so the
// repairer can show it on site.
func (h *Handler) CheckoutQR(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid payment id")
		return
	}

	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	p, err := h.svc.GetForActor(c.Request.Context(), id, identity.ActorID(), identity.HasRole(httpkit.RoleAdmin))
	if httpkit.HandleError(c, err) {
		return
	}
	if p.CheckoutURL == nil || *p.CheckoutURL == "" {
		httpkit.Error(c, http.StatusNotFound, "payment has no checkout link")
		return
	}

	png, err := qrcode.Encode(*p.CheckoutURL, qrcode.Medium, 512)
	if err != nil {
		httpkit.Error(c, http.StatusInternalServerError, "QR generation failed")
		return
	}

	c.Data(http.StatusOK, "image/png", png)
}

func (h *Handler) ListForRequest(c *gin.Context) {
	requestID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request id")
		return
	}

	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	items, err := h.svc.ListForRequest(c.Request.Context(), requestID, identity.ActorID(), identity.HasRole(httpkit.RoleAdmin))
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.FromPayments(items))
}

// Webhook processes the gateway's signed callback. Responses are kept
// webhook-friendly: a duplicate delivery acknowledges with the conflict so
// the gateway stops retrying.
func (h *Handler) Webhook(c *gin.Context) {
	var req transport.WebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed)
		return
	}

	params := service.CallbackParams{
		GatewayOrderID:   req.GatewayOrderID,
		GatewayPaymentID: req.GatewayPaymentID,
		Signature:        req.Signature,
	}

	switch req.Event {
	case "payment.captured":
		p, err := h.svc.VerifyCallback(c.Request.Context(), params)
		if httpkit.HandleError(c, err) {
			return
		}
		httpkit.OK(c, transport.FromPayment(p))
	case "payment.failed":
		reason := req.Reason
		if reason == "" {
			reason = "gateway reported failure"
		}
		p, err := h.svc.MarkFailed(c.Request.Context(), params, reason)
		if httpkit.HandleError(c, err) {
			return
		}
		httpkit.OK(c, transport.FromPayment(p))
	default:
		httpkit.Error(c, http.StatusBadRequest, "unsupported event")
	}
}
