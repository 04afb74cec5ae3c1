package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pesio-ai/be-procurement/internal/platform/database"
	"github.com/pesio-ai/be-procurement/internal/platform/errors"
)

// ReportRepository computes aggregates straight from the tables.
type ReportRepository struct {
	db database.Querier
}

// NewReportRepository creates a new report repository
func NewReportRepository(db database.Querier) *ReportRepository {
	return &ReportRepository{db: db}
}

// Summary returns request counts per status, vendor totals, the total paid
// and per-month payment totals for payments made on or after paymentsSince.
func (r *ReportRepository) Summary(ctx context.Context, paymentsSince time.Time) (*ReportSummary, error) {
	summary := &ReportSummary{
		RequestsByStatus: map[RequestStatus]int64{
			RequestPending:  0,
			RequestApproved: 0,
			RequestRejected: 0,
			RequestPaid:     0,
		},
		TotalPaid:       decimal.Zero,
		MonthlyPayments: make([]MonthlyTotal, 0),
	}

	rows, err := r.db.Query(ctx, `SELECT status, COUNT(*) FROM procurement_requests GROUP BY status`)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to count requests by status")
	}
	for rows.Next() {
		var status RequestStatus
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close()
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan status count")
		}
		summary.RequestsByStatus[status] = n
		summary.TotalRequests += n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to count requests by status")
	}

	err = r.db.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE status = 'approved')
		FROM vendors
	`).Scan(&summary.TotalVendors, &summary.ApprovedVendors)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to count vendors")
	}

	err = r.db.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM payments`).Scan(&summary.TotalPaid)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to total payments")
	}

	rows, err = r.db.Query(ctx, `
		SELECT to_char(date_trunc('month', created_at AT TIME ZONE 'UTC'), 'YYYY-MM') AS month,
		       SUM(amount)
		FROM payments
		WHERE created_at >= $1
		GROUP BY month
		ORDER BY month
	`, paymentsSince)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to total monthly payments")
	}
	defer rows.Close()
	for rows.Next() {
		var m MonthlyTotal
		if err := rows.Scan(&m.Month, &m.Total); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan monthly total")
		}
		summary.MonthlyPayments = append(summary.MonthlyPayments, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to total monthly payments")
	}

	return summary, nil
}
