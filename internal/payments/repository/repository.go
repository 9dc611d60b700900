package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"repairlink_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const paymentNotFoundMsg = "payment not found"

const paymentColumns = `
	id, request_id, customer_id, repairer_id, method, status, amount_cents,
	currency, commission_cents, payout_cents, gateway_order_id,
	gateway_payment_id, gateway_signature, checkout_url, failure_reason,
	created_at, updated_at, settled_at`

// PGRepository provides Postgres persistence for payments.
type PGRepository struct {
	pool *pgxpool.Pool
}

// New creates a new payments repository.
func New(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Create inserts a payment after verifying no active one exists for the
// request. The check and insert run in one transaction; a partial unique
// index on (request_id) WHERE status IN ('created','pending') backs it up
// against races.
func (r *PGRepository) Create(ctx context.Context, p Payment) (Payment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Payment{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var active int
	err = tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM payments WHERE request_id = $1 AND status IN ('created', 'pending')`,
		p.RequestID,
	).Scan(&active)
	if err != nil {
		return Payment{}, fmt.Errorf("failed to check active payments: %w", err)
	}
	if active > 0 {
		return Payment{}, apperr.Conflict("request already has an active payment").
			WithCode("active_payment_exists")
	}

	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err = tx.Exec(ctx, `
		INSERT INTO payments (
			id, request_id, customer_id, repairer_id, method, status,
			amount_cents, currency, commission_cents, payout_cents,
			gateway_order_id, gateway_payment_id, gateway_signature,
			checkout_url, failure_reason, created_at, updated_at, settled_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		p.ID, p.RequestID, p.CustomerID, p.RepairerID, p.Method, p.Status,
		p.AmountCents, p.Currency, p.CommissionCents, p.PayoutCents,
		p.GatewayOrderID, p.GatewayPaymentID, p.GatewaySignature,
		p.CheckoutURL, p.FailureReason, p.CreatedAt, p.UpdatedAt, p.SettledAt,
	)
	if err != nil {
		return Payment{}, fmt.Errorf("failed to insert payment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Payment{}, fmt.Errorf("failed to commit payment: %w", err)
	}
	return p, nil
}

// GetByID retrieves a payment by its ID.
func (r *PGRepository) GetByID(ctx context.Context, id uuid.UUID) (Payment, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id)
	return r.scanOne(row)
}

// GetByGatewayOrderID retrieves a payment by the gateway's order id.
func (r *PGRepository) GetByGatewayOrderID(ctx context.Context, orderID string) (Payment, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE gateway_order_id = $1`, orderID)
	return r.scanOne(row)
}

// ListForRequest returns all payment attempts for a request, newest first.
func (r *PGRepository) ListForRequest(ctx context.Context, requestID uuid.UUID) ([]Payment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE request_id = $1 ORDER BY created_at DESC`,
		requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var items []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

// Settle completes a payment. Only non-terminal payments match, which makes
// duplicate callbacks report a conflict instead of double-settling.
func (r *PGRepository) Settle(ctx context.Context, params SettleParams) (Payment, error) {
	query := `
		UPDATE payments
		SET status = $2, gateway_payment_id = $3, gateway_signature = $4,
			commission_cents = $5, payout_cents = $6, settled_at = $7, updated_at = $8
		WHERE id = $1 AND status IN ('created', 'pending')
		RETURNING ` + paymentColumns

	row := r.pool.QueryRow(ctx, query,
		params.ID, StatusCompleted, params.GatewayPaymentID, params.GatewaySignature,
		params.CommissionCents, params.PayoutCents, params.SettledAt.UTC(), time.Now().UTC())
	p, err := scanPayment(row)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Payment{}, fmt.Errorf("failed to settle payment: %w", err)
	}

	existing, getErr := r.GetByID(ctx, params.ID)
	if getErr != nil {
		return Payment{}, getErr
	}
	if existing.Status == StatusCompleted {
		return Payment{}, apperr.Conflict("payment already settled").WithCode("already_settled")
	}
	return Payment{}, apperr.Conflict("payment is no longer settleable").WithCode("payment_terminal")
}

// MarkFailed records a terminal gateway failure for the attempt.
func (r *PGRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) (Payment, error) {
	query := `
		UPDATE payments
		SET status = $2, failure_reason = $3, updated_at = $4
		WHERE id = $1 AND status IN ('created', 'pending')
		RETURNING ` + paymentColumns

	row := r.pool.QueryRow(ctx, query, id, StatusFailed, reason, time.Now().UTC())
	p, err := scanPayment(row)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Payment{}, fmt.Errorf("failed to mark payment failed: %w", err)
	}

	if _, getErr := r.GetByID(ctx, id); getErr != nil {
		return Payment{}, getErr
	}
	return Payment{}, apperr.Conflict("payment is no longer active").WithCode("payment_terminal")
}

// ExpireStale expires abandoned intents older than cutoff.
func (r *PGRepository) ExpireStale(ctx context.Context, cutoff time.Time) ([]Payment, error) {
	query := `
		UPDATE payments
		SET status = $1, updated_at = $2
		WHERE status IN ('created', 'pending') AND created_at < $3
		RETURNING ` + paymentColumns

	rows, err := r.pool.Query(ctx, query, StatusExpired, time.Now().UTC(), cutoff.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to expire stale payments: %w", err)
	}
	defer rows.Close()

	var items []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan expired payment: %w", err)
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

func (r *PGRepository) scanOne(row pgx.Row) (Payment, error) {
	p, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Payment{}, apperr.NotFound(paymentNotFoundMsg)
		}
		return Payment{}, fmt.Errorf("failed to get payment: %w", err)
	}
	return p, nil
}

func scanPayment(row pgx.Row) (Payment, error) {
	var p Payment
	err := row.Scan(
		&p.ID, &p.RequestID, &p.CustomerID, &p.RepairerID, &p.Method, &p.Status,
		&p.AmountCents, &p.Currency, &p.CommissionCents, &p.PayoutCents,
		&p.GatewayOrderID, &p.GatewayPaymentID, &p.GatewaySignature,
		&p.CheckoutURL, &p.FailureReason, &p.CreatedAt, &p.UpdatedAt, &p.SettledAt,
	)
	return p, err
}

var _ Repository = (*PGRepository)(nil)
