// Package memstore is an in-memory repository.Transactor used by tests and by
// the server when STORAGE_BACKEND=memory. Transactions are serialized by a
// single mutex and rolled back by restoring a snapshot.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pesio-ai/be-procurement/internal/platform/errors"
	"github.com/pesio-ai/be-procurement/internal/repository"
)

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Store keeps all entities in memory.
type Store struct {
	mu       sync.Mutex
	st       *state
	now      func() time.Time
	auditErr error
	reads    *repository.Repositories
}

type state struct {
	vendors     map[string]*repository.Vendor
	vendorOrder []string
	requests    map[string]*repository.ProcurementRequest
	reqOrder    []string
	payments    []*repository.Payment
	audit       []*repository.AuditEntry
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		st: &state{
			vendors:  make(map[string]*repository.Vendor),
			requests: make(map[string]*repository.ProcurementRequest),
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.reads = s.repositories(s.locked)
	return s
}

// FailAuditWith makes every subsequent audit append return err. Pass nil to
// restore normal behaviour.
func (s *Store) FailAuditWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auditErr = err
}

// Reads returns repositories that lock the store per call.
func (s *Store) Reads() *repository.Repositories {
	return s.reads
}

// InTransaction runs fn while holding the store lock. Any error restores the
// state captured before fn ran.
func (s *Store) InTransaction(ctx context.Context, fn func(repos *repository.Repositories) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	defer func() {
		if p := recover(); p != nil {
			s.st = snapshot
			panic(p)
		}
		if err != nil {
			s.st = snapshot
		}
	}()

	return fn(s.repositories(s.unlocked))
}

type access func(fn func(st *state) error) error

func (s *Store) locked(fn func(st *state) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.st)
}

func (s *Store) unlocked(fn func(st *state) error) error {
	return fn(s.st)
}

func (s *Store) repositories(a access) *repository.Repositories {
	return &repository.Repositories{
		Vendors:  &vendorStore{s: s, do: a},
		Requests: &requestStore{s: s, do: a},
		Payments: &paymentStore{s: s, do: a},
		Audit:    &auditStore{s: s, do: a},
		Reports:  &reportStore{do: a},
	}
}

func (st *state) clone() *state {
	c := &state{
		vendors:     make(map[string]*repository.Vendor, len(st.vendors)),
		vendorOrder: append([]string(nil), st.vendorOrder...),
		requests:    make(map[string]*repository.ProcurementRequest, len(st.requests)),
		reqOrder:    append([]string(nil), st.reqOrder...),
		payments:    append([]*repository.Payment(nil), st.payments...),
		audit:       append([]*repository.AuditEntry(nil), st.audit...),
	}
	for id, v := range st.vendors {
		cp := *v
		c.vendors[id] = &cp
	}
	for id, r := range st.requests {
		cp := *r
		c.requests[id] = &cp
	}
	return c
}

func page(total, limit, offset int) (int, int) {
	limit, offset = repository.PageBounds(limit, offset)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return offset, end
}

// ── vendors ──────────────────────────────────────────────────────────────────

type vendorStore struct {
	s  *Store
	do access
}

func (r *vendorStore) Create(ctx context.Context, v *repository.Vendor) error {
	return r.do(func(st *state) error {
		now := r.s.now().UTC()
		v.ID = uuid.NewString()
		v.CreatedAt = now
		v.UpdatedAt = now
		cp := *v
		st.vendors[v.ID] = &cp
		st.vendorOrder = append(st.vendorOrder, v.ID)
		return nil
	})
}

func (r *vendorStore) GetByID(ctx context.Context, id string) (*repository.Vendor, error) {
	var out *repository.Vendor
	err := r.do(func(st *state) error {
		v, ok := st.vendors[id]
		if !ok {
			return errors.NotFound("vendor", id)
		}
		cp := *v
		out = &cp
		return nil
	})
	return out, err
}

// GetForUpdate and GetForShare rely on the store lock held by transactions.
func (r *vendorStore) GetForUpdate(ctx context.Context, id string) (*repository.Vendor, error) {
	return r.GetByID(ctx, id)
}

func (r *vendorStore) GetForShare(ctx context.Context, id string) (*repository.Vendor, error) {
	return r.GetByID(ctx, id)
}

func (r *vendorStore) List(ctx context.Context, f repository.VendorFilter) ([]*repository.Vendor, int64, error) {
	var out []*repository.Vendor
	var total int64
	err := r.do(func(st *state) error {
		matched := make([]*repository.Vendor, 0)
		for i := len(st.vendorOrder) - 1; i >= 0; i-- {
			v := st.vendors[st.vendorOrder[i]]
			if f.Status != nil && v.Status != *f.Status {
				continue
			}
			cp := *v
			matched = append(matched, &cp)
		}
		total = int64(len(matched))
		from, to := page(len(matched), f.Limit, f.Offset)
		out = matched[from:to]
		return nil
	})
	return out, total, err
}

func (r *vendorStore) Update(ctx context.Context, v *repository.Vendor) error {
	return r.do(func(st *state) error {
		cur, ok := st.vendors[v.ID]
		if !ok {
			return errors.NotFound("vendor", v.ID)
		}
		v.UpdatedAt = r.s.now().UTC()
		cp := *v
		cp.Status = cur.Status
		cp.CreatedBy = cur.CreatedBy
		cp.CreatedAt = cur.CreatedAt
		cp.ReviewedBy = cur.ReviewedBy
		cp.ReviewedAt = cur.ReviewedAt
		st.vendors[v.ID] = &cp
		return nil
	})
}

func (r *vendorStore) UpdateStatus(ctx context.Context, id string, from, to repository.VendorStatus, reviewedBy string, at time.Time) error {
	return r.do(func(st *state) error {
		v, ok := st.vendors[id]
		if !ok || v.Status != from {
			return errors.InvalidTransition(fmt.Sprintf("vendor %s is no longer %s", id, from))
		}
		v.Status = to
		v.ReviewedBy = &reviewedBy
		v.ReviewedAt = &at
		v.UpdatedBy = &reviewedBy
		v.UpdatedAt = at
		return nil
	})
}

func (r *vendorStore) CountReferences(ctx context.Context, id string) (int64, error) {
	var n int64
	err := r.do(func(st *state) error {
		for _, req := range st.requests {
			if req.VendorID != nil && *req.VendorID == id {
				n++
			}
		}
		return nil
	})
	return n, err
}

// ── procurement requests ─────────────────────────────────────────────────────

type requestStore struct {
	s  *Store
	do access
}

func (r *requestStore) Create(ctx context.Context, req *repository.ProcurementRequest) error {
	return r.do(func(st *state) error {
		if req.VendorID != nil {
			if _, ok := st.vendors[*req.VendorID]; !ok {
				return errors.New(errors.ErrCodeInternal, "vendor_id violates foreign key")
			}
		}
		now := r.s.now().UTC()
		req.ID = uuid.NewString()
		req.CreatedAt = now
		req.UpdatedAt = now
		cp := *req
		st.requests[req.ID] = &cp
		st.reqOrder = append(st.reqOrder, req.ID)
		return nil
	})
}

func (r *requestStore) GetByID(ctx context.Context, id string) (*repository.ProcurementRequest, error) {
	var out *repository.ProcurementRequest
	err := r.do(func(st *state) error {
		req, ok := st.requests[id]
		if !ok {
			return errors.NotFound("procurement request", id)
		}
		cp := *req
		out = &cp
		return nil
	})
	return out, err
}

// GetForUpdate needs no extra locking: transactions already hold the store lock.
func (r *requestStore) GetForUpdate(ctx context.Context, id string) (*repository.ProcurementRequest, error) {
	return r.GetByID(ctx, id)
}

func (r *requestStore) List(ctx context.Context, f repository.RequestFilter) ([]*repository.ProcurementRequest, int64, error) {
	var out []*repository.ProcurementRequest
	var total int64
	err := r.do(func(st *state) error {
		matched := make([]*repository.ProcurementRequest, 0)
		for i := len(st.reqOrder) - 1; i >= 0; i-- {
			req := st.requests[st.reqOrder[i]]
			if f.Status != nil && req.Status != *f.Status {
				continue
			}
			if f.VendorID != nil && (req.VendorID == nil || *req.VendorID != *f.VendorID) {
				continue
			}
			if f.CreatedBy != nil && req.CreatedBy != *f.CreatedBy {
				continue
			}
			cp := *req
			matched = append(matched, &cp)
		}
		total = int64(len(matched))
		from, to := page(len(matched), f.Limit, f.Offset)
		out = matched[from:to]
		return nil
	})
	return out, total, err
}

func (r *requestStore) Update(ctx context.Context, req *repository.ProcurementRequest) error {
	return r.do(func(st *state) error {
		cur, ok := st.requests[req.ID]
		if !ok {
			return errors.NotFound("procurement request", req.ID)
		}
		if cur.Status != repository.RequestPending {
			return errors.InvalidTransition(fmt.Sprintf("procurement request %s is no longer pending", req.ID))
		}
		req.UpdatedAt = r.s.now().UTC()
		cur.Item = req.Item
		cur.Description = req.Description
		cur.Quantity = req.Quantity
		cur.Amount = req.Amount
		cur.Urgent = req.Urgent
		cur.NeededBy = req.NeededBy
		cur.VendorID = req.VendorID
		cur.UpdatedAt = req.UpdatedAt
		return nil
	})
}

func (r *requestStore) SetQuotation(ctx context.Context, id, url, blobID string) error {
	return r.do(func(st *state) error {
		cur, ok := st.requests[id]
		if !ok || cur.Status != repository.RequestPending {
			return errors.InvalidTransition(fmt.Sprintf("procurement request %s is no longer pending", id))
		}
		cur.QuotationURL = &url
		if blobID != "" {
			cur.QuotationBlobID = &blobID
		} else {
			cur.QuotationBlobID = nil
		}
		cur.UpdatedAt = r.s.now().UTC()
		return nil
	})
}

func (r *requestStore) Transition(ctx context.Context, id string, from, to repository.RequestStatus, actorID string, at time.Time) error {
	return r.do(func(st *state) error {
		cur, ok := st.requests[id]
		if !ok || cur.Status != from {
			return errors.InvalidTransition(fmt.Sprintf("procurement request %s is no longer %s", id, from))
		}
		cur.Status = to
		cur.UpdatedAt = at
		switch to {
		case repository.RequestApproved:
			cur.ApprovedBy = &actorID
			cur.ApprovedAt = &at
		case repository.RequestRejected:
			cur.RejectedBy = &actorID
			cur.RejectedAt = &at
		}
		return nil
	})
}

// ── payments ─────────────────────────────────────────────────────────────────

type paymentStore struct {
	s  *Store
	do access
}

func (r *paymentStore) Create(ctx context.Context, p *repository.Payment) error {
	return r.do(func(st *state) error {
		if _, ok := st.requests[p.RequestID]; !ok {
			return errors.New(errors.ErrCodeInternal, "request_id violates foreign key")
		}
		p.ID = uuid.NewString()
		p.CreatedAt = r.s.now().UTC()
		cp := *p
		st.payments = append(st.payments, &cp)
		return nil
	})
}

func (r *paymentStore) SumByRequest(ctx context.Context, requestID string) (decimal.Decimal, error) {
	total := decimal.Zero
	err := r.do(func(st *state) error {
		for _, p := range st.payments {
			if p.RequestID == requestID {
				total = total.Add(p.Amount)
			}
		}
		return nil
	})
	return total, err
}

func (r *paymentStore) List(ctx context.Context, f repository.PaymentFilter) ([]*repository.Payment, int64, error) {
	var out []*repository.Payment
	var total int64
	err := r.do(func(st *state) error {
		matched := make([]*repository.Payment, 0)
		for i := len(st.payments) - 1; i >= 0; i-- {
			p := st.payments[i]
			if f.RequestID != nil && p.RequestID != *f.RequestID {
				continue
			}
			cp := *p
			matched = append(matched, &cp)
		}
		total = int64(len(matched))
		from, to := page(len(matched), f.Limit, f.Offset)
		out = matched[from:to]
		return nil
	})
	return out, total, err
}

// ── audit ────────────────────────────────────────────────────────────────────

type auditStore struct {
	s  *Store
	do access
}

func (r *auditStore) Append(ctx context.Context, e *repository.AuditEntry) error {
	return r.do(func(st *state) error {
		if r.s.auditErr != nil {
			return errors.Wrap(r.s.auditErr, errors.ErrCodeInternal, "failed to append audit entry")
		}
		e.ID = uuid.NewString()
		e.CreatedAt = r.s.now().UTC()
		cp := *e
		st.audit = append(st.audit, &cp)
		return nil
	})
}

func (r *auditStore) List(ctx context.Context, f repository.AuditFilter) ([]*repository.AuditEntry, int64, error) {
	var out []*repository.AuditEntry
	var total int64
	err := r.do(func(st *state) error {
		matched := make([]*repository.AuditEntry, 0)
		for i := len(st.audit) - 1; i >= 0; i-- {
			e := st.audit[i]
			if f.EntityType != nil && e.EntityType != *f.EntityType {
				continue
			}
			if f.EntityID != nil && e.EntityID != *f.EntityID {
				continue
			}
			if f.Action != nil && e.Action != *f.Action {
				continue
			}
			if f.ActorID != nil && (e.ActorID == nil || *e.ActorID != *f.ActorID) {
				continue
			}
			cp := *e
			matched = append(matched, &cp)
		}
		total = int64(len(matched))
		from, to := page(len(matched), f.Limit, f.Offset)
		out = matched[from:to]
		return nil
	})
	return out, total, err
}

// ── reports ──────────────────────────────────────────────────────────────────

type reportStore struct {
	do access
}

func (r *reportStore) Summary(ctx context.Context, paymentsSince time.Time) (*repository.ReportSummary, error) {
	summary := &repository.ReportSummary{
		RequestsByStatus: map[repository.RequestStatus]int64{
			repository.RequestPending:  0,
			repository.RequestApproved: 0,
			repository.RequestRejected: 0,
			repository.RequestPaid:     0,
		},
		TotalPaid:       decimal.Zero,
		MonthlyPayments: make([]repository.MonthlyTotal, 0),
	}

	err := r.do(func(st *state) error {
		for _, req := range st.requests {
			summary.RequestsByStatus[req.Status]++
			summary.TotalRequests++
		}
		for _, v := range st.vendors {
			summary.TotalVendors++
			if v.Status == repository.VendorApproved {
				summary.ApprovedVendors++
			}
		}

		months := make(map[string]decimal.Decimal)
		for _, p := range st.payments {
			summary.TotalPaid = summary.TotalPaid.Add(p.Amount)
			if p.CreatedAt.Before(paymentsSince) {
				continue
			}
			key := p.CreatedAt.UTC().Format("2006-01")
			months[key] = months[key].Add(p.Amount)
		}
		for month, total := range months {
			summary.MonthlyPayments = append(summary.MonthlyPayments, repository.MonthlyTotal{Month: month, Total: total})
		}
		sort.Slice(summary.MonthlyPayments, func(i, j int) bool {
			return summary.MonthlyPayments[i].Month < summary.MonthlyPayments[j].Month
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}
