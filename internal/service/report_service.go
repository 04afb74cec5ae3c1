package service

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/pesio-ai/be-procurement/internal/platform/errors"
	"github.com/pesio-ai/be-procurement/internal/platform/logger"
	"github.com/pesio-ai/be-procurement/internal/repository"
	"github.com/pesio-ai/be-procurement/internal/workflow"
)

var reportReaders = []repository.Role{repository.RoleDirector, repository.RoleFinance, repository.RoleAudit}

// DefaultReportMonths is the payment history window used when none is given.
const DefaultReportMonths = 6

// ReportService builds dashboard figures and spreadsheet exports.
type ReportService struct {
	store repository.Transactor
	log   *logger.Logger
	now   func() time.Time
}

// NewReportService creates a new report service.
func NewReportService(store repository.Transactor, log *logger.Logger) *ReportService {
	return &ReportService{store: store, log: log, now: time.Now}
}

// Summary returns request, vendor and payment aggregates with monthly
// payment totals for the last months calendar months, current one included.
func (s *ReportService) Summary(ctx context.Context, actor repository.Actor, months int) (*repository.ReportSummary, error) {
	if err := workflow.RequireRole(actor, reportReaders...); err != nil {
		return nil, err
	}
	if months <= 0 {
		months = DefaultReportMonths
	}
	if months > 36 {
		return nil, errors.InvalidInput("months", "must be at most 36")
	}
	return s.store.Reads().Reports.Summary(ctx, windowStart(s.now().UTC(), months))
}

// ExportXLSX renders the summary as an Excel workbook.
func (s *ReportService) ExportXLSX(ctx context.Context, actor repository.Actor, months int) ([]byte, error) {
	summary, err := s.Summary(ctx, actor, months)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Summary"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to create report sheet")
	}

	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 16},
		Alignment: &excelize.Alignment{Horizontal: "left", Vertical: "center"},
	})
	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})

	// #,##0.00
	moneyStyle, _ := f.NewStyle(&excelize.Style{NumFmt: 4})

	f.SetCellValue(sheet, "A1", "Procurement Summary")
	f.SetCellStyle(sheet, "A1", "A1", titleStyle)
	f.SetRowHeight(sheet, 1, 30)
	f.SetCellValue(sheet, "A2", fmt.Sprintf("Generated: %s", s.now().UTC().Format("2006-01-02 15:04:05")))
	f.SetColWidth(sheet, "A", "B", 24)

	row := 4
	put := func(label string, value any) {
		f.SetCellValue(sheet, fmt.Sprintf("A%d", row), label)
		f.SetCellValue(sheet, fmt.Sprintf("B%d", row), value)
		row++
	}
	// Money is written as its exact two-decimal text; the cell stays numeric.
	putMoney := func(label string, value decimal.Decimal) {
		cell := fmt.Sprintf("B%d", row)
		f.SetCellValue(sheet, fmt.Sprintf("A%d", row), label)
		f.SetCellDefault(sheet, cell, value.StringFixed(2))
		f.SetCellStyle(sheet, cell, cell, moneyStyle)
		row++
	}

	f.SetCellValue(sheet, fmt.Sprintf("A%d", row), "Metric")
	f.SetCellValue(sheet, fmt.Sprintf("B%d", row), "Value")
	f.SetCellStyle(sheet, fmt.Sprintf("A%d", row), fmt.Sprintf("B%d", row), headerStyle)
	row++

	put("Total requests", summary.TotalRequests)
	for _, status := range []repository.RequestStatus{
		repository.RequestPending, repository.RequestApproved, repository.RequestRejected, repository.RequestPaid,
	} {
		put("Requests "+string(status), summary.RequestsByStatus[status])
	}
	put("Total vendors", summary.TotalVendors)
	put("Approved vendors", summary.ApprovedVendors)
	putMoney("Total paid", summary.TotalPaid)

	row++
	f.SetCellValue(sheet, fmt.Sprintf("A%d", row), "Month")
	f.SetCellValue(sheet, fmt.Sprintf("B%d", row), "Payments")
	f.SetCellStyle(sheet, fmt.Sprintf("A%d", row), fmt.Sprintf("B%d", row), headerStyle)
	row++
	for _, m := range summary.MonthlyPayments {
		putMoney(m.Month, m.Total)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to write workbook")
	}

	s.log.Info().
		Str("actor_id", actor.ID).
		Int("bytes", buf.Len()).
		Msg("Report exported")

	return buf.Bytes(), nil
}

// windowStart returns the first instant of the month months-1 before now.
func windowStart(now time.Time, months int) time.Time {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return first.AddDate(0, -(months - 1), 0)
}
