package reports

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/gymledger/pkg/apperr"
	"github.com/platinummonkey/gymledger/pkg/catalog"
	"github.com/platinummonkey/gymledger/pkg/observability"
)

const tracerName = "github.com/platinummonkey/gymledger/pkg/reports"

// Dashboard is the month-scoped summary for one owner
type Dashboard struct {
	RevenueThisMonth         decimal.Decimal `json:"revenueThisMonth"`
	TotalAdmissionsThisMonth int64           `json:"totalAdmissionsThisMonth"`
	ExpiringSubscriptions    int64           `json:"expiringSubscriptions"`
	NetDueAmount             decimal.Decimal `json:"netDueAmount"`
	Expense                  decimal.Decimal `json:"expense"`
}

// Aggregator computes dashboards with read-only queries. Nothing is cached:
// every figure is derived from the stored ledger.
type Aggregator struct {
	db      *sql.DB
	timeout time.Duration
	metrics *observability.Metrics
}

// NewAggregator creates an Aggregator. db may be a read replica.
func NewAggregator(db *sql.DB, timeout time.Duration, metrics *observability.Metrics) *Aggregator {
	return &Aggregator{db: db, timeout: timeout, metrics: metrics}
}

// Dashboard computes the five figures for the UTC month containing now.
// They are read concurrently; any failure or the timeout fails the whole
// report.
func (a *Aggregator) Dashboard(ctx context.Context, ownerID int64, now time.Time) (d *Dashboard, err error) {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, tracerName, "reports.Dashboard", attribute.Int64("owner.id", ownerID))
	defer func() {
		observability.EndSpan(span, err)
		a.metrics.ObserveDashboard(ctx, time.Since(start), err)
	}()

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	monthStart, monthEnd := MonthWindow(now)
	d = &Dashboard{}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.sum(gctx, &d.RevenueThisMonth, "revenue",
			`SELECT COALESCE(SUM(amount), 0) FROM payments WHERE created_by = $1 AND payment_date BETWEEN $2 AND $3`,
			ownerID, monthStart, monthEnd)
	})
	g.Go(func() error {
		err := a.db.QueryRowContext(gctx,
			`SELECT COUNT(*) FROM members WHERE created_by = $1 AND join_date BETWEEN $2 AND $3`,
			ownerID, monthStart, monthEnd,
		).Scan(&d.TotalAdmissionsThisMonth)
		if err != nil {
			return fmt.Errorf("failed to count admissions: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return a.sum(gctx, &d.NetDueAmount, "net due",
			`SELECT COALESCE(SUM(due_amount), 0) FROM members WHERE created_by = $1`,
			ownerID)
	})
	g.Go(func() error {
		n, err := a.countExpiring(gctx, ownerID, monthEnd)
		d.ExpiringSubscriptions = n
		return err
	})
	g.Go(func() error {
		return a.sum(gctx, &d.Expense, "expenses",
			`SELECT COALESCE(SUM(amount), 0) FROM expenses WHERE created_by = $1 AND expense_date BETWEEN $2 AND $3`,
			ownerID, monthStart, monthEnd)
	})

	if err := g.Wait(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, apperr.Internal("dashboard timed out", err)
		}
		return nil, err
	}
	return d, nil
}

func (a *Aggregator) sum(ctx context.Context, dest *decimal.Decimal, what, query string, args ...interface{}) error {
	if err := a.db.QueryRowContext(ctx, query, args...).Scan(dest); err != nil {
		return fmt.Errorf("failed to sum %s: %w", what, err)
	}
	return nil
}

// countExpiring projects each member's plan onto its join date. Members who
// joined after the month ended cannot expire inside it and are skipped.
func (a *Aggregator) countExpiring(ctx context.Context, ownerID int64, monthEnd time.Time) (int64, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT m.join_date, p.duration_type, p.duration
		FROM members m
		JOIN plans p ON p.id = m.plan_id
		WHERE m.created_by = $1 AND m.join_date <= $2`,
		ownerID, monthEnd)
	if err != nil {
		return 0, fmt.Errorf("failed to load subscriptions: %w", err)
	}
	defer rows.Close()

	from, to := ExpiringWindow(monthEnd)
	var n int64
	for rows.Next() {
		var (
			joinDate time.Time
			unit     string
			duration int
		)
		if err := rows.Scan(&joinDate, &unit, &duration); err != nil {
			return 0, fmt.Errorf("failed to scan subscription: %w", err)
		}
		if within(ExpiryDate(joinDate.UTC(), catalog.DurationUnit(unit), duration), from, to) {
			n++
		}
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("failed to load subscriptions: %w", err)
	}
	return n, nil
}

// ListOwners returns every owner with members or expenses
func (a *Aggregator) ListOwners(ctx context.Context) ([]int64, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT created_by FROM members
		UNION
		SELECT created_by FROM expenses
		ORDER BY 1`)
	if err != nil {
		return nil, fmt.Errorf("failed to list owners: %w", err)
	}
	defer rows.Close()

	var owners []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan owner: %w", err)
		}
		owners = append(owners, id)
	}
	return owners, rows.Err()
}
