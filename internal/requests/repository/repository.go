package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"repairlink_backend/internal/requests/domain"
	"repairlink_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const requestNotFoundMsg = "service request not found"

const requestColumns = `
	id, customer_id, repairer_id, category, description, address, postal_code,
	contact_phone, quotation_cents, estimated_price_cents, status,
	code_hash, code_expires_at, evidence_keys, payment_id, version,
	created_at, updated_at, assigned_at, quoted_at, completed_at`

// PGRepository provides Postgres persistence for service requests.
type PGRepository struct {
	pool *pgxpool.Pool
}

// New creates a new service request repository.
func New(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Create inserts a new request in the requested state.
func (r *PGRepository) Create(ctx context.Context, params CreateParams) (ServiceRequest, error) {
	req := ServiceRequest{
		ID:             uuid.New(),
		CustomerID:     params.CustomerID,
		Category:       params.Category,
		Description:    params.Description,
		Address:        params.Address,
		PostalCode:     params.PostalCode,
		ContactPhone:   params.ContactPhone,
		QuotationCents: params.QuotationCents,
		Status:         domain.StatusRequested,
		Version:        1,
		CreatedAt:      time.Now().UTC(),
	}
	req.UpdatedAt = req.CreatedAt

	query := `
		INSERT INTO service_requests (
			id, customer_id, category, description, address, postal_code,
			contact_phone, quotation_cents, status, evidence_keys, version,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	if _, err := r.pool.Exec(ctx, query,
		req.ID, req.CustomerID, req.Category, req.Description, req.Address,
		req.PostalCode, req.ContactPhone, req.QuotationCents, req.Status,
		[]string{}, req.Version, req.CreatedAt, req.UpdatedAt,
	); err != nil {
		return ServiceRequest{}, fmt.Errorf("failed to insert service request: %w", err)
	}
	return req, nil
}

// GetByID retrieves a request by its ID.
func (r *PGRepository) GetByID(ctx context.Context, id uuid.UUID) (ServiceRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM service_requests WHERE id = $1`
	row := r.pool.QueryRow(ctx, query, id)
	req, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ServiceRequest{}, apperr.NotFound(requestNotFoundMsg)
		}
		return ServiceRequest{}, fmt.Errorf("failed to get service request: %w", err)
	}
	return req, nil
}

// ListOpen returns unassigned requests repairers can claim.
func (r *PGRepository) ListOpen(ctx context.Context, params ListParams) ([]ServiceRequest, int, error) {
	return r.list(ctx, `status = 'requested'`, nil, params)
}

// ListForCustomer returns the customer's requests, newest first.
func (r *PGRepository) ListForCustomer(ctx context.Context, customerID uuid.UUID, params ListParams) ([]ServiceRequest, int, error) {
	return r.list(ctx, `customer_id = $1`, []any{customerID}, params)
}

// ListForRepairer returns the repairer's assigned requests, newest first.
func (r *PGRepository) ListForRepairer(ctx context.Context, repairerID uuid.UUID, params ListParams) ([]ServiceRequest, int, error) {
	return r.list(ctx, `repairer_id = $1`, []any{repairerID}, params)
}

func (r *PGRepository) list(ctx context.Context, where string, args []any, params ListParams) ([]ServiceRequest, int, error) {
	page := params.Page
	if page < 1 {
		page = 1
	}
	pageSize := params.PageSize
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	if params.Status != nil {
		where = fmt.Sprintf("(%s) AND status = $%d", where, len(args)+1)
		args = append(args, *params.Status)
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM service_requests WHERE ` + where
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count service requests: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM service_requests WHERE %s
		ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		requestColumns, where, len(args)+1, len(args)+2)
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list service requests: %w", err)
	}
	defer rows.Close()

	var items []ServiceRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan service request: %w", err)
		}
		items = append(items, req)
	}
	return items, total, rows.Err()
}

// CountActiveJobs counts the repairer's requests in capacity-occupying states.
func (r *PGRepository) CountActiveJobs(ctx context.Context, repairerID uuid.UUID) (int, error) {
	var count int
	query := `
		SELECT COUNT(*) FROM service_requests
		WHERE repairer_id = $1 AND status IN ('accepted', 'pending_otp', 'pending_payment')`
	if err := r.pool.QueryRow(ctx, query, repairerID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count active jobs: %w", err)
	}
	return count, nil
}

// Claim performs the atomic assignment. The WHERE clause carries the whole
// contest: repairer still null, status still requested, and the repairer
// still under the job cap at the moment of the write.
func (r *PGRepository) Claim(ctx context.Context, requestID, repairerID uuid.UUID, capacityCap int, at time.Time) (ServiceRequest, error) {
	query := `
		UPDATE service_requests
		SET repairer_id = $2, status = $3, assigned_at = $4,
			updated_at = $4, version = version + 1
		WHERE id = $1 AND repairer_id IS NULL AND status = $5
			AND (SELECT COUNT(*) FROM service_requests
				WHERE repairer_id = $2
				AND status IN ('accepted', 'pending_otp', 'pending_payment')) < $6
		RETURNING ` + requestColumns

	row := r.pool.QueryRow(ctx, query,
		requestID, repairerID, domain.StatusPendingQuote, at.UTC(), domain.StatusRequested, capacityCap)
	req, err := scanRequest(row)
	if err == nil {
		return req, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return ServiceRequest{}, fmt.Errorf("failed to claim service request: %w", err)
	}

	// No row: the request is gone, contested, or the repairer is full.
	// Look once to tell which.
	current, getErr := r.GetByID(ctx, requestID)
	if getErr != nil {
		return ServiceRequest{}, getErr
	}
	if current.RepairerID != nil || current.Status != domain.StatusRequested {
		return ServiceRequest{}, apperr.Conflict("request already assigned to another repairer").
			WithCode("already_assigned")
	}
	return ServiceRequest{}, apperr.Conflict("concurrent job cap reached").
		WithCode("capacity_exceeded")
}

// UpdateVersioned writes all mutable fields guarded by the version token.
func (r *PGRepository) UpdateVersioned(ctx context.Context, req ServiceRequest) (ServiceRequest, error) {
	now := time.Now().UTC()
	query := `
		UPDATE service_requests
		SET repairer_id = $2, estimated_price_cents = $3, status = $4,
			code_hash = $5, code_expires_at = $6, evidence_keys = $7,
			payment_id = $8, assigned_at = $9, quoted_at = $10,
			completed_at = $11, updated_at = $12, version = version + 1
		WHERE id = $1 AND version = $13
		RETURNING ` + requestColumns

	row := r.pool.QueryRow(ctx, query,
		req.ID, req.RepairerID, req.EstimatedPriceCents, req.Status,
		req.CodeHash, req.CodeExpiresAt, req.EvidenceKeys, req.PaymentID,
		req.AssignedAt, req.QuotedAt, req.CompletedAt, now, req.Version)
	updated, err := scanRequest(row)
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return ServiceRequest{}, fmt.Errorf("failed to update service request: %w", err)
	}

	if _, getErr := r.GetByID(ctx, req.ID); getErr != nil {
		return ServiceRequest{}, getErr
	}
	return ServiceRequest{}, apperr.Conflict("service request was modified concurrently").
		WithCode("version_conflict")
}

func scanRequest(row pgx.Row) (ServiceRequest, error) {
	var req ServiceRequest
	err := row.Scan(
		&req.ID, &req.CustomerID, &req.RepairerID, &req.Category, &req.Description,
		&req.Address, &req.PostalCode, &req.ContactPhone, &req.QuotationCents,
		&req.EstimatedPriceCents, &req.Status, &req.CodeHash, &req.CodeExpiresAt,
		&req.EvidenceKeys, &req.PaymentID, &req.Version, &req.CreatedAt,
		&req.UpdatedAt, &req.AssignedAt, &req.QuotedAt, &req.CompletedAt,
	)
	return req, err
}

var _ Repository = (*PGRepository)(nil)
