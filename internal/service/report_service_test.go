package service

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/pesio-ai/be-procurement/internal/platform/errors"
	"github.com/pesio-ai/be-procurement/internal/repository"
)

func TestReportSummary(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, envOptions{})

	if _, err := env.vendors.CreateVendor(ctx, procurementActor, &CreateVendorInput{Name: "Acme"}); err != nil {
		t.Fatalf("CreateVendor() error = %v", err)
	}
	paidReq := env.approvedRequest(t, "1000")
	if _, err := env.payments.RecordPayment(ctx, financeActor, &RecordPaymentInput{RequestID: paidReq.ID, Amount: amount("1000")}); err != nil {
		t.Fatalf("RecordPayment() error = %v", err)
	}
	env.createRequest(t, "50")

	if _, err := env.reports.Summary(ctx, procurementActor, 6); !errors.IsCode(err, errors.ErrCodeForbidden) {
		t.Errorf("Summary(procurement) error = %v, want FORBIDDEN", err)
	}
	if _, err := env.reports.Summary(ctx, directorActor, 100); !errors.IsCode(err, errors.ErrCodeInvalidInput) {
		t.Errorf("Summary(100 months) error = %v, want INVALID_INPUT", err)
	}

	summary, err := env.reports.Summary(ctx, financeActor, 0)
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if summary.TotalRequests != 2 || summary.RequestsByStatus[repository.RequestPaid] != 1 || summary.RequestsByStatus[repository.RequestPending] != 1 {
		t.Errorf("requests = %d %v", summary.TotalRequests, summary.RequestsByStatus)
	}
	if summary.TotalVendors != 1 || summary.ApprovedVendors != 0 {
		t.Errorf("vendors = %d approved = %d", summary.TotalVendors, summary.ApprovedVendors)
	}
	if !summary.TotalPaid.Equal(amount("1000")) {
		t.Errorf("TotalPaid = %s, want 1000", summary.TotalPaid)
	}
	if len(summary.MonthlyPayments) != 1 || !summary.MonthlyPayments[0].Total.Equal(amount("1000")) {
		t.Errorf("MonthlyPayments = %+v", summary.MonthlyPayments)
	}
}

func TestExportXLSX(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, envOptions{})
	req := env.approvedRequest(t, "50")
	if _, err := env.payments.RecordPayment(ctx, financeActor, &RecordPaymentInput{RequestID: req.ID, Amount: amount("40.10")}); err != nil {
		t.Fatalf("RecordPayment() error = %v", err)
	}

	data, err := env.reports.ExportXLSX(ctx, directorActor, 3)
	if err != nil {
		t.Fatalf("ExportXLSX() error = %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer f.Close()

	title, err := f.GetCellValue("Summary", "A1")
	if err != nil {
		t.Fatalf("GetCellValue() error = %v", err)
	}
	if title != "Procurement Summary" {
		t.Errorf("A1 = %q", title)
	}
	label, _ := f.GetCellValue("Summary", "A5")
	value, _ := f.GetCellValue("Summary", "B5")
	if label != "Total requests" || value != "1" {
		t.Errorf("row 5 = %q %q, want Total requests 1", label, value)
	}

	label, _ = f.GetCellValue("Summary", "A12")
	raw, _ := f.GetCellValue("Summary", "B12", excelize.Options{RawCellValue: true})
	if label != "Total paid" || raw != "40.10" {
		t.Errorf("row 12 = %q %q, want Total paid 40.10", label, raw)
	}
	styleID, err := f.GetCellStyle("Summary", "B12")
	if err != nil {
		t.Fatalf("GetCellStyle() error = %v", err)
	}
	style, err := f.GetStyle(styleID)
	if err != nil || style.NumFmt != 4 {
		t.Errorf("B12 number format = %+v, %v; want 4", style, err)
	}
}

func TestWindowStart(t *testing.T) {
	tests := []struct {
		now    time.Time
		months int
		want   time.Time
	}{
		{time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC), 1, time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)},
		{time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC), 6, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)},
		{time.Date(2026, 2, 28, 8, 0, 0, 0, time.UTC), 3, time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		if got := windowStart(tt.now, tt.months); !got.Equal(tt.want) {
			t.Errorf("windowStart(%s, %d) = %s, want %s", tt.now, tt.months, got, tt.want)
		}
	}
}

func TestAuditServiceList(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, envOptions{})
	req := env.createRequest(t, "100")
	if _, err := env.requests.Approve(ctx, directorActor, req.ID); err != nil {
		t.Fatalf("Approve() error = %v", err)
	}

	if _, _, err := env.audit.List(ctx, financeActor, repository.AuditFilter{}); !errors.IsCode(err, errors.ErrCodeForbidden) {
		t.Errorf("List(finance) error = %v, want FORBIDDEN", err)
	}

	entries, total, err := env.audit.List(ctx, auditActor, repository.AuditFilter{EntityID: &req.ID})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if total != 2 || entries[0].Action != repository.AuditStatusChanged || entries[1].Action != repository.AuditCreate {
		t.Fatalf("entries = %+v, want newest first status_changed then create", entries)
	}
	if entries[0].ActorRole == nil || *entries[0].ActorRole != string(repository.RoleDirector) {
		t.Errorf("ActorRole = %v, want director", entries[0].ActorRole)
	}

	appendAudit(ctx, env.audit.log, env.store.Reads().Audit,
		newAuditEntry(directorActor, repository.EntityProcurementRequest, req.ID, repository.AuditDelete, map[string]any{"note": "x"}, nil))
	action := repository.AuditDelete
	_, total, err = env.audit.List(ctx, directorActor, repository.AuditFilter{Action: &action})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if total != 1 {
		t.Errorf("delete entries = %d, want 1", total)
	}
}
