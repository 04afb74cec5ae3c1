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

// VendorRepository handles vendor data operations
type VendorRepository struct {
	db database.Querier
}

// NewVendorRepository creates a new vendor repository
func NewVendorRepository(db database.Querier) *VendorRepository {
	return &VendorRepository{db: db}
}

const vendorColumns = `
	id, name, category, contact_person, phone, email, address,
	bank_name, account_name, account_number, bank_code, notes,
	status, created_by, created_at, updated_by, updated_at,
	reviewed_by, reviewed_at`

// Create inserts a vendor and fills in its generated fields.
func (r *VendorRepository) Create(ctx context.Context, v *Vendor) error {
	query := `
		INSERT INTO vendors (name, category, contact_person, phone, email, address,
		                     bank_name, account_name, account_number, bank_code, notes,
		                     status, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		v.Name,
		v.Category,
		v.ContactPerson,
		v.Phone,
		v.Email,
		v.Address,
		v.BankName,
		v.AccountName,
		v.AccountNumber,
		v.BankCode,
		v.Notes,
		v.Status,
		v.CreatedBy,
	).Scan(&v.ID, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create vendor")
	}
	return nil
}

// GetByID retrieves a vendor by ID
func (r *VendorRepository) GetByID(ctx context.Context, id string) (*Vendor, error) {
	return r.get(ctx, id, "")
}

// GetForUpdate retrieves a vendor under an exclusive row lock.
func (r *VendorRepository) GetForUpdate(ctx context.Context, id string) (*Vendor, error) {
	return r.get(ctx, id, " FOR UPDATE")
}

// GetForShare retrieves a vendor under a shared row lock, so its name and
// bank details cannot change while a request is being linked to it.
func (r *VendorRepository) GetForShare(ctx context.Context, id string) (*Vendor, error) {
	return r.get(ctx, id, " FOR SHARE")
}

func (r *VendorRepository) get(ctx context.Context, id, lock string) (*Vendor, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, errors.NotFound("vendor", id)
	}

	query := `SELECT ` + vendorColumns + ` FROM vendors WHERE id = $1` + lock

	v, err := scanVendor(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("vendor", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get vendor")
	}
	return v, nil
}

// List retrieves vendors with filtering and pagination, newest first
func (r *VendorRepository) List(ctx context.Context, f VendorFilter) ([]*Vendor, int64, error) {
	query := `SELECT ` + vendorColumns + ` FROM vendors WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM vendors WHERE 1=1`

	args := []any{}
	argCount := 1

	if f.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argCount)
		countQuery += fmt.Sprintf(" AND status = $%d", argCount)
		args = append(args, *f.Status)
		argCount++
	}

	limit, offset := pageBounds(f.Limit, f.Offset)
	query += " ORDER BY created_at DESC, id"
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argCount, argCount+1)
	queryArgs := append(append([]any{}, args...), limit, offset)

	var total int64
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to count vendors")
	}

	rows, err := r.db.Query(ctx, query, queryArgs...)
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to list vendors")
	}
	defer rows.Close()

	vendors := make([]*Vendor, 0)
	for rows.Next() {
		v, err := scanVendor(rows)
		if err != nil {
			return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan vendor")
		}
		vendors = append(vendors, v)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to list vendors")
	}

	return vendors, total, nil
}

// Update writes the editable fields of a vendor.
func (r *VendorRepository) Update(ctx context.Context, v *Vendor) error {
	query := `
		UPDATE vendors
		SET name = $2, category = $3, contact_person = $4, phone = $5, email = $6,
		    address = $7, bank_name = $8, account_name = $9, account_number = $10,
		    bank_code = $11, notes = $12, updated_by = $13, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.db.QueryRow(ctx, query,
		v.ID,
		v.Name,
		v.Category,
		v.ContactPerson,
		v.Phone,
		v.Email,
		v.Address,
		v.BankName,
		v.AccountName,
		v.AccountNumber,
		v.BankCode,
		v.Notes,
		v.UpdatedBy,
	).Scan(&v.UpdatedAt)
	if err == pgx.ErrNoRows {
		return errors.NotFound("vendor", v.ID)
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to update vendor")
	}
	return nil
}

// UpdateStatus performs the conditional review transition.
func (r *VendorRepository) UpdateStatus(ctx context.Context, id string, from, to VendorStatus, reviewedBy string, at time.Time) error {
	query := `
		UPDATE vendors
		SET status = $3, reviewed_by = $4, reviewed_at = $5, updated_by = $4, updated_at = $5
		WHERE id = $1 AND status = $2
	`

	tag, err := r.db.Exec(ctx, query, id, from, to, reviewedBy, at)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to update vendor status")
	}
	if tag.RowsAffected() != 1 {
		return errors.InvalidTransition(fmt.Sprintf("vendor %s is no longer %s", id, from))
	}
	return nil
}

// CountReferences returns the number of requests linked to the vendor.
func (r *VendorRepository) CountReferences(ctx context.Context, id string) (int64, error) {
	var n int64
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM procurement_requests WHERE vendor_id = $1`, id).Scan(&n)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to count vendor references")
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVendor(sc rowScanner) (*Vendor, error) {
	v := &Vendor{}
	err := sc.Scan(
		&v.ID,
		&v.Name,
		&v.Category,
		&v.ContactPerson,
		&v.Phone,
		&v.Email,
		&v.Address,
		&v.BankName,
		&v.AccountName,
		&v.AccountNumber,
		&v.BankCode,
		&v.Notes,
		&v.Status,
		&v.CreatedBy,
		&v.CreatedAt,
		&v.UpdatedBy,
		&v.UpdatedAt,
		&v.ReviewedBy,
		&v.ReviewedAt,
	)
	if err != nil {
		return nil, err
	}
	return v, nil
}
