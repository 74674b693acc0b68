package ledger

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/platinummonkey/gymledger/pkg/observability"
)

const reconcileQuery = `
	SELECT m.id, m.created_by, m.collected_amount, COALESCE(SUM(p.amount), 0)
	FROM members m
	LEFT JOIN payments p ON p.member_id = m.id
	%s
	GROUP BY m.id, m.created_by, m.collected_amount
	HAVING m.collected_amount <> COALESCE(SUM(p.amount), 0)
	ORDER BY m.id
`

// Reconcile lists the owner's members whose collected amount is not the
// sum of their payments. With transactional writes the list should always
// be empty; anything here came from outside the ledger.
func (s *PostgresService) Reconcile(ctx context.Context, ownerID int64) (found []*Discrepancy, err error) {
	ctx, span := observability.StartSpan(ctx, tracerName, "ledger.Reconcile", attribute.Int64("owner.id", ownerID))
	defer func() { observability.EndSpan(span, err) }()

	return s.reconcile(ctx, fmt.Sprintf(reconcileQuery, "WHERE m.created_by = $1"), ownerID)
}

// ReconcileAll checks every owner and publishes the discrepancy gauge
func (s *PostgresService) ReconcileAll(ctx context.Context) (found []*Discrepancy, err error) {
	ctx, span := observability.StartSpan(ctx, tracerName, "ledger.ReconcileAll")
	defer func() { observability.EndSpan(span, err) }()

	found, err = s.reconcile(ctx, fmt.Sprintf(reconcileQuery, ""))
	if err != nil {
		return nil, err
	}
	s.metrics.SetDiscrepancies(len(found))
	return found, nil
}

func (s *PostgresService) reconcile(ctx context.Context, query string, args ...interface{}) ([]*Discrepancy, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to reconcile ledger: %w", err)
	}
	defer rows.Close()

	found := []*Discrepancy{}
	for rows.Next() {
		d := &Discrepancy{}
		if err := rows.Scan(&d.MemberID, &d.CreatedBy, &d.Collected, &d.PaymentsTotal); err != nil {
			return nil, fmt.Errorf("failed to scan discrepancy: %w", err)
		}
		d.Difference = d.Collected.Sub(d.PaymentsTotal)
		found = append(found, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to reconcile ledger: %w", err)
	}
	return found, nil
}
