package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pesio-ai/be-procurement/internal/platform/database"
	"github.com/pesio-ai/be-procurement/internal/platform/errors"
)

// PaymentRepository handles payment data operations. Payments are insert-only.
type PaymentRepository struct {
	db database.Querier
}

// NewPaymentRepository creates a new payment repository
func NewPaymentRepository(db database.Querier) *PaymentRepository {
	return &PaymentRepository{db: db}
}

const paymentColumns = `
	id, request_id, amount, payer_role, payer_id, payer_name,
	method, reference, receipt_url, receipt_blob_id, created_at`

// Create records a payment.
func (r *PaymentRepository) Create(ctx context.Context, p *Payment) error {
	query := `
		INSERT INTO payments (request_id, amount, payer_role, payer_id, payer_name,
		                      method, reference, receipt_url, receipt_blob_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`

	err := r.db.QueryRow(ctx, query,
		p.RequestID,
		p.Amount,
		p.PayerRole,
		p.PayerID,
		p.PayerName,
		p.Method,
		p.Reference,
		p.ReceiptURL,
		p.ReceiptBlobID,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to record payment")
	}
	return nil
}

// SumByRequest returns the total already paid against a request.
func (r *PaymentRepository) SumByRequest(ctx context.Context, requestID string) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.db.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM payments WHERE request_id = $1`,
		requestID,
	).Scan(&total)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, errors.ErrCodeInternal, "failed to sum payments")
	}
	return total, nil
}

// List retrieves payments, newest first
func (r *PaymentRepository) List(ctx context.Context, f PaymentFilter) ([]*Payment, int64, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM payments WHERE 1=1`

	args := []any{}
	argCount := 1

	if f.RequestID != nil {
		if _, err := uuid.Parse(*f.RequestID); err != nil {
			return []*Payment{}, 0, nil
		}
		query += fmt.Sprintf(" AND request_id = $%d", argCount)
		countQuery += fmt.Sprintf(" AND request_id = $%d", argCount)
		args = append(args, *f.RequestID)
		argCount++
	}

	limit, offset := pageBounds(f.Limit, f.Offset)
	query += " ORDER BY created_at DESC, id"
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argCount, argCount+1)
	queryArgs := append(append([]any{}, args...), limit, offset)

	var total int64
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to count payments")
	}

	rows, err := r.db.Query(ctx, query, queryArgs...)
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to list payments")
	}
	defer rows.Close()

	payments := make([]*Payment, 0)
	for rows.Next() {
		p := &Payment{}
		err := rows.Scan(
			&p.ID,
			&p.RequestID,
			&p.Amount,
			&p.PayerRole,
			&p.PayerID,
			&p.PayerName,
			&p.Method,
			&p.Reference,
			&p.ReceiptURL,
			&p.ReceiptBlobID,
			&p.CreatedAt,
		)
		if err != nil {
			return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan payment")
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to list payments")
	}

	return payments, total, nil
}
