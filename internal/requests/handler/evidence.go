package handler

import (
	"net/http"

	"repairlink_backend/internal/requests/transport"
	"repairlink_backend/internal/storage"
	"repairlink_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// SetEvidenceStorage injects the object store for evidence photos.
// Presign routes are only registered when storage is configured.
func (h *Handler) SetEvidenceStorage(store storage.EvidenceStorage) {
	h.evidence = store
}

// RegisterEvidenceRoutes registers the presigned upload/download routes.
func (h *Handler) RegisterEvidenceRoutes(rg *gin.RouterGroup) {
	rg.POST("/:id/evidence/presign", h.PresignEvidenceUpload)
	rg.GET("/:id/evidence/urls", h.EvidenceDownloadURLs)
}

// PresignEvidenceUpload hands the repairer a short-lived PUT URL for one
// photo. The returned file key must then be attached via the evidence
// endpoint to count.
func (h *Handler) PresignEvidenceUpload(c *gin.Context) {
	id, identity, ok := h.idAndRole(c, httpkit.RoleRepairer, "only the repairer can upload evidence")
	if !ok {
		return
	}

	var req transport.PresignEvidenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed)
		return
	}

	// Visibility check doubles as the assignment check.
	if _, err := h.svc.GetForActor(c.Request.Context(), id, actorFrom(identity)); httpkit.HandleError(c, err) {
		return
	}

	presigned, err := h.evidence.PresignUpload(c.Request.Context(), id.String(), req.FileName, req.ContentType, req.SizeBytes)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, presigned)
}

// EvidenceDownloadURLs returns presigned GET URLs for the request's stored
// evidence, for any party to the request.
func (h *Handler) EvidenceDownloadURLs(c *gin.Context) {
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

	urls := make([]*storage.PresignedURL, 0, len(req.EvidenceKeys))
	for _, key := range req.EvidenceKeys {
		presigned, err := h.evidence.PresignDownload(c.Request.Context(), key)
		if httpkit.HandleError(c, err) {
			return
		}
		urls = append(urls, presigned)
	}

	httpkit.OK(c, gin.H{"urls": urls})
}
