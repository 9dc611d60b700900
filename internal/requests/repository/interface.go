package repository

import (
	"context"
	"time"

	"repairlink_backend/internal/requests/domain"

	"github.com/google/uuid"
)

// ServiceRequest is the persisted model for a repair request. Money fields
// are in minor currency units.
type ServiceRequest struct {
	ID                  uuid.UUID
	CustomerID          uuid.UUID
	RepairerID          *uuid.UUID
	Category            string
	Description         string
	Address             string
	PostalCode          string
	ContactPhone        string
	QuotationCents      *int64 // system-generated estimate, informational
	EstimatedPriceCents *int64 // repairer's binding quote
	Status              domain.Status
	CodeHash            *string
	CodeExpiresAt       *time.Time
	EvidenceKeys        []string
	PaymentID           *uuid.UUID
	Version             int64
	CreatedAt           time.Time
	UpdatedAt           time.Time
	AssignedAt          *time.Time
	QuotedAt            *time.Time
	CompletedAt         *time.Time
}

// CreateParams contains parameters for creating a service request.
type CreateParams struct {
	CustomerID     uuid.UUID
	Category       string
	Description    string
	Address        string
	PostalCode     string
	ContactPhone   string
	QuotationCents *int64
}

// ListParams filters request listings.
type ListParams struct {
	Status   *domain.Status
	Page     int
	PageSize int
}

// Reader provides read operations for service requests.
type Reader interface {
	GetByID(ctx context.Context, id uuid.UUID) (ServiceRequest, error)
	ListOpen(ctx context.Context, params ListParams) ([]ServiceRequest, int, error)
	ListForCustomer(ctx context.Context, customerID uuid.UUID, params ListParams) ([]ServiceRequest, int, error)
	ListForRepairer(ctx context.Context, repairerID uuid.UUID, params ListParams) ([]ServiceRequest, int, error)
	// CountActiveJobs returns how many requests currently occupy a slot of
	// the repairer's concurrent-job cap. Derived by query, never cached.
	CountActiveJobs(ctx context.Context, repairerID uuid.UUID) (int, error)
}

// Writer provides write operations for service requests.
type Writer interface {
	Create(ctx context.Context, params CreateParams) (ServiceRequest, error)

	// Claim atomically assigns the repairer to an unassigned request while
	// the repairer holds fewer than capacityCap active jobs. It is the
	// single compare-and-swap in the system: the conditional update only
	// succeeds while the request is still requested with no repairer, so
	// exactly one of N concurrent callers wins, and the capacity re-check
	// in the same statement holds at write time. Losers receive apperr
	// KindConflict with code already_assigned, a full repairer gets
	// capacity_exceeded, a missing row is KindNotFound.
	Claim(ctx context.Context, requestID, repairerID uuid.UUID, capacityCap int, at time.Time) (ServiceRequest, error)

	// UpdateVersioned writes the request's mutable fields guarded by its
	// version. A stale version yields apperr KindConflict and the caller
	// reloads and retries up to its bound.
	UpdateVersioned(ctx context.Context, req ServiceRequest) (ServiceRequest, error)
}

// Repository combines all service request persistence operations.
type Repository interface {
	Reader
	Writer
}
