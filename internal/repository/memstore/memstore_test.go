package memstore

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pesio-ai/be-procurement/internal/platform/errors"
	"github.com/pesio-ai/be-procurement/internal/repository"
)

var _ repository.Transactor = (*Store)(nil)

func TestInTransactionRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := New()

	boom := stderrors.New("boom")
	err := s.InTransaction(ctx, func(repos *repository.Repositories) error {
		v := &repository.Vendor{Name: "Acme", Status: repository.VendorPending, CreatedBy: "u1"}
		if err := repos.Vendors.Create(ctx, v); err != nil {
			return err
		}
		return boom
	})
	if !stderrors.Is(err, boom) {
		t.Fatalf("InTransaction() error = %v, want boom", err)
	}

	_, total, err := s.Reads().Vendors.List(ctx, repository.VendorFilter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if total != 0 {
		t.Errorf("vendors after rollback = %d, want 0", total)
	}
}

func TestTransitionIsConditional(t *testing.T) {
	ctx := context.Background()
	s := New()
	repos := s.Reads()

	req := &repository.ProcurementRequest{
		Item:      "Printer",
		Quantity:  1,
		Amount:    decimal.NewFromInt(1000),
		Currency:  "NGN",
		Status:    repository.RequestPending,
		CreatedBy: "p1",
	}
	if err := repos.Requests.Create(ctx, req); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	at := time.Now()
	if err := repos.Requests.Transition(ctx, req.ID, repository.RequestPending, repository.RequestApproved, "d1", at); err != nil {
		t.Fatalf("first Transition() error = %v", err)
	}
	err := repos.Requests.Transition(ctx, req.ID, repository.RequestPending, repository.RequestRejected, "d1", at)
	if !errors.IsCode(err, errors.ErrCodeConflict) {
		t.Fatalf("second Transition() error = %v, want CONFLICT", err)
	}

	got, err := repos.Requests.GetByID(ctx, req.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Status != repository.RequestApproved || got.ApprovedBy == nil || *got.ApprovedBy != "d1" {
		t.Errorf("request = %+v, want approved by d1", got)
	}
	if got.RejectedBy != nil {
		t.Errorf("RejectedBy = %v, want nil", *got.RejectedBy)
	}
}

func TestListNewestFirstWithPaging(t *testing.T) {
	ctx := context.Background()
	s := New()
	for _, name := range []string{"a", "b", "c"} {
		v := &repository.Vendor{Name: name, Status: repository.VendorPending, CreatedBy: "u"}
		if err := s.Reads().Vendors.Create(ctx, v); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	tests := []struct {
		name   string
		limit  int
		offset int
		want   []string
	}{
		{"all", 0, 0, []string{"c", "b", "a"}},
		{"first page", 2, 0, []string{"c", "b"}},
		{"second page", 2, 2, []string{"a"}},
		{"past the end", 2, 10, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, total, err := s.Reads().Vendors.List(ctx, repository.VendorFilter{Limit: tt.limit, Offset: tt.offset})
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if total != 3 {
				t.Errorf("total = %d, want 3", total)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("len = %d, want %d", len(got), len(tt.want))
			}
			for i, v := range got {
				if v.Name != tt.want[i] {
					t.Errorf("got[%d] = %s, want %s", i, v.Name, tt.want[i])
				}
			}
		})
	}
}

func TestFailAuditWith(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.FailAuditWith(stderrors.New("disk full"))

	err := s.Reads().Audit.Append(ctx, &repository.AuditEntry{EntityType: "vendor", EntityID: "x", Action: repository.AuditCreate})
	if err == nil {
		t.Fatal("Append() error = nil, want failure")
	}

	s.FailAuditWith(nil)
	if err := s.Reads().Audit.Append(ctx, &repository.AuditEntry{EntityType: "vendor", EntityID: "x", Action: repository.AuditCreate}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
}

func TestSummaryGroupsPaymentsByMonth(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	s := New(WithClock(func() time.Time { return now }))
	repos := s.Reads()

	req := &repository.ProcurementRequest{Item: "Desk", Quantity: 1, Amount: decimal.NewFromInt(300), Currency: "NGN", Status: repository.RequestApproved, CreatedBy: "p"}
	if err := repos.Requests.Create(ctx, req); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	pay := func(amount int64) {
		t.Helper()
		p := &repository.Payment{RequestID: req.ID, Amount: decimal.NewFromInt(amount), PayerRole: repository.RoleFinance, PayerID: "f"}
		if err := repos.Payments.Create(ctx, p); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}
	pay(100)
	now = time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	pay(50)
	pay(25)

	summary, err := repos.Reports.Summary(ctx, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if !summary.TotalPaid.Equal(decimal.NewFromInt(175)) {
		t.Errorf("TotalPaid = %s, want 175", summary.TotalPaid)
	}
	if summary.RequestsByStatus[repository.RequestApproved] != 1 || summary.TotalRequests != 1 {
		t.Errorf("RequestsByStatus = %v", summary.RequestsByStatus)
	}
	if len(summary.MonthlyPayments) != 2 {
		t.Fatalf("MonthlyPayments = %v, want 2 months", summary.MonthlyPayments)
	}
	if summary.MonthlyPayments[0].Month != "2026-03" || !summary.MonthlyPayments[0].Total.Equal(decimal.NewFromInt(100)) {
		t.Errorf("March = %+v", summary.MonthlyPayments[0])
	}
	if summary.MonthlyPayments[1].Month != "2026-04" || !summary.MonthlyPayments[1].Total.Equal(decimal.NewFromInt(75)) {
		t.Errorf("April = %+v", summary.MonthlyPayments[1])
	}
}
