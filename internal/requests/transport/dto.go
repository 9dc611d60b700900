// Package transport defines the HTTP DTOs for the requests module.
package transport

import (
	"time"

	"repairlink_backend/internal/requests/repository"

	"github.com/google/uuid"
)

// ── Requests ──────────────────────────────────────────────────────────────────

// CreateRequestRequest is the request body for opening a service request.
type CreateRequestRequest struct {
	Category       string `json:"category" validate:"required,min=2,max=100"`
	Description    string `json:"description" validate:"required,min=10,max=5000"`
	Address        string `json:"address" validate:"required,min=5,max=500"`
	PostalCode     string `json:"postalCode" validate:"required,min=4,max=12"`
	ContactPhone   string `json:"contactPhone" validate:"required"`
	QuotationCents *int64 `json:"quotationCents" validate:"omitempty,min=1"`
}

// SubmitQuoteRequest is the request body for submitting or revising a quote.
type SubmitQuoteRequest struct {
	AmountCents int64 `json:"amountCents" validate:"required,min=1"`
}

// QuoteDecisionRequest is the request body for answering a quote.
type QuoteDecisionRequest struct {
	Decision string `json:"decision" validate:"required,oneof=accept reject"`
}

// VerifyCodeRequest is the request body for the completion handshake.
type VerifyCodeRequest struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

// AttachEvidenceRequest is the request body for registering uploaded
// completion photos.
type AttachEvidenceRequest struct {
	Keys []string `json:"keys" validate:"required,min=1,max=20,dive,min=1,max=1000"`
}

// PresignEvidenceRequest is the request body for a presigned photo upload.
type PresignEvidenceRequest struct {
	FileName    string `json:"fileName" validate:"required,min=1,max=500"`
	ContentType string `json:"contentType" validate:"required"`
	SizeBytes   int64  `json:"sizeBytes" validate:"required,min=1"`
}

// ListQuery holds pagination and status filtering for list endpoints.
type ListQuery struct {
	Status   string `form:"status"`
	Page     int    `form:"page"`
	PageSize int    `form:"pageSize"`
}

// ── Responses ─────────────────────────────────────────────────────────────────

// RequestResponse is the API representation of a service request.
// The completion code hash never leaves the service layer.
type RequestResponse struct {
	ID                  uuid.UUID  `json:"id"`
	CustomerID          uuid.UUID  `json:"customerId"`
	RepairerID          *uuid.UUID `json:"repairerId,omitempty"`
	Category            string     `json:"category"`
	Description         string     `json:"description"`
	Address             string     `json:"address"`
	PostalCode          string     `json:"postalCode"`
	ContactPhone        string     `json:"contactPhone"`
	QuotationCents      *int64     `json:"quotationCents,omitempty"`
	EstimatedPriceCents *int64     `json:"estimatedPriceCents,omitempty"`
	Status              string     `json:"status"`
	CodeExpiresAt       *time.Time `json:"codeExpiresAt,omitempty"`
	EvidenceKeys        []string   `json:"evidenceKeys,omitempty"`
	PaymentID           *uuid.UUID `json:"paymentId,omitempty"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
	AssignedAt          *time.Time `json:"assignedAt,omitempty"`
	QuotedAt            *time.Time `json:"quotedAt,omitempty"`
	CompletedAt         *time.Time `json:"completedAt,omitempty"`
}

// ListResponse wraps a page of requests.
type ListResponse struct {
	Items    []RequestResponse `json:"items"`
	Total    int               `json:"total"`
	Page     int               `json:"page"`
	PageSize int               `json:"pageSize"`
}

// FromRequest maps a repository model to its API shape.
func FromRequest(r repository.ServiceRequest) RequestResponse {
	return RequestResponse{
		ID:                  r.ID,
		CustomerID:          r.CustomerID,
		RepairerID:          r.RepairerID,
		Category:            r.Category,
		Description:         r.Description,
		Address:             r.Address,
		PostalCode:          r.PostalCode,
		ContactPhone:        r.ContactPhone,
		QuotationCents:      r.QuotationCents,
		EstimatedPriceCents: r.EstimatedPriceCents,
		Status:              string(r.Status),
		CodeExpiresAt:       r.CodeExpiresAt,
		EvidenceKeys:        r.EvidenceKeys,
		PaymentID:           r.PaymentID,
		CreatedAt:           r.CreatedAt,
		UpdatedAt:           r.UpdatedAt,
		AssignedAt:          r.AssignedAt,
		QuotedAt:            r.QuotedAt,
		CompletedAt:         r.CompletedAt,
	}
}

// FromRequests maps a slice of requests.
func FromRequests(items []repository.ServiceRequest) []RequestResponse {
	out := make([]RequestResponse, 0, len(items))
	for _, r := range items {
		out = append(out, FromRequest(r))
	}
	return out
}
