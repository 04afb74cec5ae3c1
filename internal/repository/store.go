package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/pesio-ai/be-procurement/internal/platform/database"
)

// VendorStore persists vendors.
type VendorStore interface {
	Create(ctx context.Context, v *Vendor) error
	GetByID(ctx context.Context, id string) (*Vendor, error)
	// GetForUpdate reads the vendor and locks it against concurrent writers
	// and linkers until the transaction ends.
	GetForUpdate(ctx context.Context, id string) (*Vendor, error)
	// GetForShare reads the vendor and blocks concurrent GetForUpdate
	// callers until the transaction ends.
	GetForShare(ctx context.Context, id string) (*Vendor, error)
	List(ctx context.Context, f VendorFilter) ([]*Vendor, int64, error)
	// Update writes the editable fields of v.
	Update(ctx context.Context, v *Vendor) error
	// UpdateStatus moves a vendor from one status to another and fails with
	// an invalid-transition error if the vendor is no longer in from.
	UpdateStatus(ctx context.Context, id string, from, to VendorStatus, reviewedBy string, at time.Time) error
	// CountReferences returns how many procurement requests link the vendor.
	CountReferences(ctx context.Context, id string) (int64, error)
}

// RequestStore persists procurement requests.
type RequestStore interface {
	Create(ctx context.Context, r *ProcurementRequest) error
	GetByID(ctx context.Context, id string) (*ProcurementRequest, error)
	// GetForUpdate reads the request and locks it until the transaction ends.
	GetForUpdate(ctx context.Context, id string) (*ProcurementRequest, error)
	List(ctx context.Context, f RequestFilter) ([]*ProcurementRequest, int64, error)
	// Update writes the editable fields of a pending request.
	Update(ctx context.Context, r *ProcurementRequest) error
	// SetQuotation attaches a quotation document to a pending request.
	SetQuotation(ctx context.Context, id, url, blobID string) error
	// Transition is the conditional status update guarding the state machine:
	// it only succeeds when the stored status still equals from.
	Transition(ctx context.Context, id string, from, to RequestStatus, actorID string, at time.Time) error
}

// PaymentStore persists payments.
type PaymentStore interface {
	Create(ctx context.Context, p *Payment) error
	SumByRequest(ctx context.Context, requestID string) (decimal.Decimal, error)
	List(ctx context.Context, f PaymentFilter) ([]*Payment, int64, error)
}

// AuditStore is the append-only audit ledger.
type AuditStore interface {
	Append(ctx context.Context, e *AuditEntry) error
	List(ctx context.Context, f AuditFilter) ([]*AuditEntry, int64, error)
}

// ReportStore computes aggregate figures.
type ReportStore interface {
	Summary(ctx context.Context, paymentsSince time.Time) (*ReportSummary, error)
}

// Repositories groups the stores bound to one connection or transaction.
type Repositories struct {
	Vendors  VendorStore
	Requests RequestStore
	Payments PaymentStore
	Audit    AuditStore
	Reports  ReportStore
}

// Transactor hands out repositories, either for lock-free reads or bound to
// a single atomic transaction.
type Transactor interface {
	Reads() *Repositories
	InTransaction(ctx context.Context, fn func(repos *Repositories) error) error
}

// Store is the postgres Transactor.
type Store struct {
	db    *database.DB
	reads *Repositories
}

// NewStore creates a postgres-backed store.
func NewStore(db *database.DB) *Store {
	return &Store{db: db, reads: newRepositories(db)}
}

// Reads returns repositories bound to the pool.
func (s *Store) Reads() *Repositories {
	return s.reads
}

// InTransaction runs fn with repositories bound to one pgx transaction.
func (s *Store) InTransaction(ctx context.Context, fn func(repos *Repositories) error) error {
	return s.db.InTransaction(ctx, func(tx pgx.Tx) error {
		return fn(newRepositories(tx))
	})
}

func newRepositories(q database.Querier) *Repositories {
	return &Repositories{
		Vendors:  NewVendorRepository(q),
		Requests: NewRequestRepository(q),
		Payments: NewPaymentRepository(q),
		Audit:    NewAuditRepository(q),
		Reports:  NewReportRepository(q),
	}
}

// pageBounds applies the default and maximum page size.
func pageBounds(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// PageBounds is exported for alternative store implementations.
func PageBounds(limit, offset int) (int, int) {
	return pageBounds(limit, offset)
}
