package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/platinummonkey/gymledger/pkg/apperr"
	"github.com/platinummonkey/gymledger/pkg/httputil"
	"github.com/platinummonkey/gymledger/pkg/observability"
)

// Rejection reasons reported on the ledger rejections metric
const (
	reasonNoDue             = "no_due"
	reasonNonPositiveAmount = "non_positive_amount"
	reasonSubCentAmount     = "sub_cent_amount"
	reasonExceedsDue        = "exceeds_due"
	reasonConcurrentUpdate  = "concurrent_update"
)

// RecordPayment applies a partial payment to a member's due balance.
//
// The member update is a conditional decrement (due_amount >= amount) in
// the same transaction as the payment insert, so two concurrent payments
// can never drive the balance below zero: the loser matches no row and is
// rejected as InvalidState.
func (s *PostgresService) RecordPayment(ctx context.Context, ownerID int64, req *RecordPaymentRequest) (result *MemberPayment, err error) {
	ctx, span := observability.StartSpan(ctx, tracerName, "ledger.RecordPayment", attribute.Int64("owner.id", ownerID))
	defer func() { observability.EndSpan(span, err) }()

	if req == nil {
		return nil, apperr.Validation("request body is required")
	}
	span.SetAttributes(attribute.Int64("member.id", req.MemberID), attribute.Int64("plan.id", req.Plan))

	member, err := s.loadMember(ctx, s.db, ownerID, req.MemberID)
	if err != nil {
		return nil, err
	}

	plan, err := s.resolvePlan(ctx, ownerID, req.Plan)
	if err != nil {
		return nil, err
	}

	amount := req.Amount
	switch {
	case !member.DueAmount.IsPositive():
		s.reject(ctx, reasonNoDue)
		return nil, apperr.InvalidState("member %d has no outstanding due", member.ID)
	case !amount.IsPositive():
		s.reject(ctx, reasonNonPositiveAmount)
		return nil, apperr.Validation("amount must be positive")
	}
	if err := httputil.CheckCents("amount", amount); err != nil {
		s.reject(ctx, reasonSubCentAmount)
		return nil, err
	}
	if amount.GreaterThan(member.DueAmount) {
		s.reject(ctx, reasonExceedsDue)
		return nil, apperr.InvalidState("amount %s exceeds outstanding due %s", amount.StringFixed(2), member.DueAmount.StringFixed(2))
	}

	paymentDate := s.now()
	if strings.TrimSpace(req.PaymentDate) != "" {
		if paymentDate, err = httputil.ParseDate("paymentDate", req.PaymentDate); err != nil {
			return nil, err
		}
	}

	payment := &Payment{
		CreatedBy:   ownerID,
		MemberID:    member.ID,
		PlanID:      plan.ID,
		Amount:      amount,
		PaymentDate: paymentDate,
	}

	var updated *Member
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		updated, err = scanMember(tx.QueryRowContext(ctx, `
			UPDATE members
			SET collected_amount = collected_amount + $1, due_amount = due_amount - $1, updated_at = NOW()
			WHERE id = $2 AND created_by = $3 AND due_amount >= $1
			RETURNING `+memberColumns,
			amount, member.ID, ownerID,
		))
		if errors.Is(err, sql.ErrNoRows) {
			s.reject(ctx, reasonConcurrentUpdate)
			return apperr.InvalidState("amount %s exceeds outstanding due", amount.StringFixed(2))
		}
		if err != nil {
			return fmt.Errorf("failed to update member balance: %w", err)
		}

		return insertPayment(ctx, tx, payment)
	})
	if err != nil {
		return nil, err
	}

	if err := s.attachPlans(ctx, updated); err != nil {
		return nil, err
	}
	s.metrics.RecordPayment(ctx, amount.InexactFloat64())

	observability.FromContext(ctx).WithFields(map[string]interface{}{
		"member_id":  updated.ID,
		"payment_id": payment.ID,
		"amount":     amount.StringFixed(2),
		"due":        updated.DueAmount.StringFixed(2),
	}).Info("Payment recorded")

	return &MemberPayment{Member: updated, Payment: payment}, nil
}

func (s *PostgresService) reject(ctx context.Context, reason string) {
	s.metrics.RecordRejection(ctx, "record_payment", reason)
}
