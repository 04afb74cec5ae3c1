package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-procurement/internal/platform/database"
	"github.com/pesio-ai/be-procurement/internal/platform/errors"
)

// RequestRepository handles procurement request data operations
type RequestRepository struct {
	db database.Querier
}

// NewRequestRepository creates a new procurement request repository
func NewRequestRepository(db database.Querier) *RequestRepository {
	return &RequestRepository{db: db}
}

const requestColumns = `
	id, item, description, quantity, amount, currency, urgent, needed_by,
	vendor_id, quotation_url, quotation_blob_id, status,
	created_by, created_at, updated_at,
	approved_by, approved_at, rejected_by, rejected_at`

// Create inserts a new request in its initial status.
func (r *RequestRepository) Create(ctx context.Context, req *ProcurementRequest) error {
	query := `
		INSERT INTO procurement_requests (item, description, quantity, amount, currency, urgent,
		                                  needed_by, vendor_id, quotation_url, quotation_blob_id,
		                                  status, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		req.Item,
		req.Description,
		req.Quantity,
		req.Amount,
		req.Currency,
		req.Urgent,
		req.NeededBy,
		req.VendorID,
		req.QuotationURL,
		req.QuotationBlobID,
		req.Status,
		req.CreatedBy,
	).Scan(&req.ID, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create procurement request")
	}
	return nil
}

// GetByID retrieves a request by ID
func (r *RequestRepository) GetByID(ctx context.Context, id string) (*ProcurementRequest, error) {
	return r.get(ctx, id, false)
}

// GetForUpdate retrieves a request and holds a row lock on it for the rest
// of the enclosing transaction.
func (r *RequestRepository) GetForUpdate(ctx context.Context, id string) (*ProcurementRequest, error) {
	return r.get(ctx, id, true)
}

func (r *RequestRepository) get(ctx context.Context, id string, lock bool) (*ProcurementRequest, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, errors.NotFound("procurement request", id)
	}

	query := `SELECT ` + requestColumns + ` FROM procurement_requests WHERE id = $1`
	if lock {
		query += " FOR UPDATE"
	}

	req, err := scanRequest(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("procurement request", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get procurement request")
	}
	return req, nil
}

// List retrieves requests with filtering and pagination, newest first
func (r *RequestRepository) List(ctx context.Context, f RequestFilter) ([]*ProcurementRequest, int64, error) {
	query := `SELECT ` + requestColumns + ` FROM procurement_requests WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM procurement_requests WHERE 1=1`

	args := []any{}
	argCount := 1

	if f.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argCount)
		countQuery += fmt.Sprintf(" AND status = $%d", argCount)
		args = append(args, *f.Status)
		argCount++
	}

	if f.VendorID != nil {
		if _, err := uuid.Parse(*f.VendorID); err != nil {
			return []*ProcurementRequest{}, 0, nil
		}
		query += fmt.Sprintf(" AND vendor_id = $%d", argCount)
		countQuery += fmt.Sprintf(" AND vendor_id = $%d", argCount)
		args = append(args, *f.VendorID)
		argCount++
	}

	if f.CreatedBy != nil {
		query += fmt.Sprintf(" AND created_by = $%d", argCount)
		countQuery += fmt.Sprintf(" AND created_by = $%d", argCount)
		args = append(args, *f.CreatedBy)
		argCount++
	}

	limit, offset := pageBounds(f.Limit, f.Offset)
	query += " ORDER BY created_at DESC, id"
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argCount, argCount+1)
	queryArgs := append(append([]any{}, args...), limit, offset)

	var total int64
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to count procurement requests")
	}

	rows, err := r.db.Query(ctx, query, queryArgs...)
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to list procurement requests")
	}
	defer rows.Close()

	requests := make([]*ProcurementRequest, 0)
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan procurement request")
		}
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to list procurement requests")
	}

	return requests, total, nil
}

// Update writes the editable fields of a request that is still pending.
func (r *RequestRepository) Update(ctx context.Context, req *ProcurementRequest) error {
	query := `
		UPDATE procurement_requests
		SET item = $2, description = $3, quantity = $4, amount = $5, urgent = $6,
		    needed_by = $7, vendor_id = $8, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING updated_at
	`

	err := r.db.QueryRow(ctx, query,
		req.ID,
		req.Item,
		req.Description,
		req.Quantity,
		req.Amount,
		req.Urgent,
		req.NeededBy,
		req.VendorID,
	).Scan(&req.UpdatedAt)
	if err == pgx.ErrNoRows {
		return errors.InvalidTransition(fmt.Sprintf("procurement request %s is no longer pending", req.ID))
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to update procurement request")
	}
	return nil
}

// SetQuotation attaches a quotation document to a pending request.
func (r *RequestRepository) SetQuotation(ctx context.Context, id, url, blobID string) error {
	query := `
		UPDATE procurement_requests
		SET quotation_url = $2, quotation_blob_id = NULLIF($3, ''), updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`

	tag, err := r.db.Exec(ctx, query, id, url, blobID)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to attach quotation")
	}
	if tag.RowsAffected() != 1 {
		return errors.InvalidTransition(fmt.Sprintf("procurement request %s is no longer pending", id))
	}
	return nil
}

// Transition moves a request between statuses. Zero affected rows means
// another caller moved it first.
func (r *RequestRepository) Transition(ctx context.Context, id string, from, to RequestStatus, actorID string, at time.Time) error {
	var query string
	args := []any{id, from, to, at}
	switch to {
	case RequestApproved:
		query = `
			UPDATE procurement_requests
			SET status = $3, approved_by = $5, approved_at = $4, updated_at = $4
			WHERE id = $1 AND status = $2
		`
		args = append(args, actorID)
	case RequestRejected:
		query = `
			UPDATE procurement_requests
			SET status = $3, rejected_by = $5, rejected_at = $4, updated_at = $4
			WHERE id = $1 AND status = $2
		`
		args = append(args, actorID)
	default:
		query = `
			UPDATE procurement_requests
			SET status = $3, updated_at = $4
			WHERE id = $1 AND status = $2
		`
	}

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to update procurement request status")
	}
	if tag.RowsAffected() != 1 {
		return errors.InvalidTransition(fmt.Sprintf("procurement request %s is no longer %s", id, from))
	}
	return nil
}

func scanRequest(sc rowScanner) (*ProcurementRequest, error) {
	req := &ProcurementRequest{}
	err := sc.Scan(
		&req.ID,
		&req.Item,
		&req.Description,
		&req.Quantity,
		&req.Amount,
		&req.Currency,
		&req.Urgent,
		&req.NeededBy,
		&req.VendorID,
		&req.QuotationURL,
		&req.QuotationBlobID,
		&req.Status,
		&req.CreatedBy,
		&req.CreatedAt,
		&req.UpdatedAt,
		&req.ApprovedBy,
		&req.ApprovedAt,
		&req.RejectedBy,
		&req.RejectedAt,
	)
	if err != nil {
		return nil, err
	}
	return req, nil
}
