package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/platinummonkey/gymledger/pkg/apperr"
	"github.com/platinummonkey/gymledger/pkg/httputil"
	"github.com/platinummonkey/gymledger/pkg/catalog"
	"github.com/platinummonkey/gymledger/pkg/observability"
	"github.com/platinummonkey/gymledger/pkg/storage/postgres"
)

const tracerName = "github.com/platinummonkey/gymledger/pkg/ledger"

const memberColumns = `id, created_by, name, contact, email, gender, address, batch, plan_id, join_date,
	admission_amount, discount, collected_amount, due_amount, created_at, updated_at`

const paymentColumns = `id, created_by, member_id, plan_id, amount, payment_date, created_at`

// PostgresService implements Service on PostgreSQL. Every multi-row write
// runs in a single transaction.
type PostgresService struct {
	db      *sql.DB
	plans   catalog.Service
	metrics *observability.Metrics
	now     func() time.Time
}

// NewPostgresService creates a new PostgresService
func NewPostgresService(db *sql.DB, plans catalog.Service, metrics *observability.Metrics) *PostgresService {
	return &PostgresService{
		db:      db,
		plans:   plans,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// CreateMember validates the request, resolves the plan and writes the
// member together with its admission payment.
func (s *PostgresService) CreateMember(ctx context.Context, ownerID int64, req *CreateMemberRequest) (result *MemberPayment, err error) {
	ctx, span := observability.StartSpan(ctx, tracerName, "ledger.CreateMember", attribute.Int64("owner.id", ownerID))
	defer func() { observability.EndSpan(span, err) }()

	m, err := newMember(ownerID, req)
	if err != nil {
		return nil, err
	}

	if err := s.checkUnique(ctx, m.Contact, m.Email); err != nil {
		return nil, err
	}

	plan, err := s.resolvePlan(ctx, ownerID, m.PlanID)
	if err != nil {
		return nil, err
	}

	m.DueAmount = m.AdmissionAmount.Add(plan.Amount).Sub(m.CollectedAmount).Sub(m.Discount)
	if m.DueAmount.IsNegative() {
		return nil, apperr.Validation("collectedAmount plus discount exceeds the admission and plan amount by %s", m.DueAmount.Neg().StringFixed(2))
	}

	payment := &Payment{
		CreatedBy:   ownerID,
		PlanID:      plan.ID,
		Amount:      m.CollectedAmount,
		PaymentDate: s.now(),
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			INSERT INTO members (created_by, name, contact, email, gender, address, batch, plan_id, join_date,
				admission_amount, discount, collected_amount, due_amount)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			RETURNING id, created_at, updated_at`,
			m.CreatedBy, m.Name, m.Contact, m.Email, m.Gender, m.Address, m.Batch, m.PlanID, m.JoinDate,
			m.AdmissionAmount, m.Discount, m.CollectedAmount, m.DueAmount,
		).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
		if postgres.IsUniqueViolation(err) {
			return apperr.Conflict("a member with this contact or email already exists")
		}
		if err != nil {
			return fmt.Errorf("failed to insert member: %w", err)
		}

		payment.MemberID = m.ID
		return insertPayment(ctx, tx, payment)
	})
	if err != nil {
		return nil, err
	}

	m.Plan = plan
	s.metrics.RecordMemberCreated()
	s.metrics.RecordPayment(ctx, payment.Amount.InexactFloat64())

	observability.FromContext(ctx).WithFields(map[string]interface{}{
		"member_id": m.ID,
		"plan_id":   plan.ID,
		"due":       m.DueAmount.StringFixed(2),
	}).Info("Member created")

	return &MemberPayment{Member: m, Payment: payment}, nil
}

func newMember(ownerID int64, req *CreateMemberRequest) (*Member, error) {
	if req == nil {
		return nil, apperr.Validation("request body is required")
	}

	var missing []string
	required := []struct{ name, value string }{
		{"name", req.Name},
		{"contact", req.Contact},
		{"email", req.Email},
		{"gender", req.Gender},
		{"batch", req.Batch},
		{"joinDate", req.JoinDate},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if req.Plan <= 0 {
		missing = append(missing, "plan")
	}
	if req.AdmissionAmount == nil {
		missing = append(missing, "admissionAmount")
	}
	if req.CollectedAmount == nil {
		missing = append(missing, "collectedAmount")
	}
	if len(missing) > 0 {
		return nil, apperr.Validation("missing required fields: %s", strings.Join(missing, ", "))
	}

	joinDate, err := httputil.ParseDate("joinDate", req.JoinDate)
	if err != nil {
		return nil, err
	}

	discount := decimal.Zero
	if req.Discount != nil {
		discount = *req.Discount
	}

	amounts := []struct {
		field string
		value decimal.Decimal
	}{
		{"admissionAmount", *req.AdmissionAmount},
		{"discount", discount},
		{"collectedAmount", *req.CollectedAmount},
	}
	for _, a := range amounts {
		if err := httputil.CheckCents(a.field, a.value); err != nil {
			return nil, err
		}
	}

	switch {
	case req.AdmissionAmount.IsNegative():
		return nil, apperr.Validation("admissionAmount must not be negative")
	case discount.IsNegative():
		return nil, apperr.Validation("discount must not be negative")
	case !req.CollectedAmount.IsPositive():
		return nil, apperr.Validation("collectedAmount must be positive")
	}

	return &Member{
		CreatedBy:       ownerID,
		Name:            strings.TrimSpace(req.Name),
		Contact:         strings.TrimSpace(req.Contact),
		Email:           strings.ToLower(strings.TrimSpace(req.Email)),
		Gender:          strings.TrimSpace(req.Gender),
		Address:         strings.TrimSpace(req.Address),
		Batch:           strings.TrimSpace(req.Batch),
		PlanID:          req.Plan,
		JoinDate:        joinDate,
		AdmissionAmount: *req.AdmissionAmount,
		Discount:        discount,
		CollectedAmount: *req.CollectedAmount,
	}, nil
}

// checkUnique gives a precise Conflict message; the unique indexes still
// catch concurrent inserts.
func (s *PostgresService) checkUnique(ctx context.Context, contact, email string) error {
	var existingContact, existingEmail string
	err := s.db.QueryRowContext(ctx,
		`SELECT contact, email FROM members WHERE contact = $1 OR email = $2 LIMIT 1`,
		contact, email,
	).Scan(&existingContact, &existingEmail)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil
	case err != nil:
		return fmt.Errorf("failed to check member uniqueness: %w", err)
	case existingContact == contact:
		return apperr.Conflict("a member with contact %s already exists", contact)
	default:
		return apperr.Conflict("a member with email %s already exists", email)
	}
}

// resolvePlan hides other owners' plans as NotFound
func (s *PostgresService) resolvePlan(ctx context.Context, ownerID, planID int64) (*catalog.Plan, error) {
	plan, err := s.plans.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	if plan.CreatedBy != ownerID {
		return nil, apperr.NotFound("plan %d not found", planID)
	}
	return plan, nil
}

// GetMember returns the owner's member with its plan
func (s *PostgresService) GetMember(ctx context.Context, ownerID, id int64) (m *Member, err error) {
	ctx, span := observability.StartSpan(ctx, tracerName, "ledger.GetMember", attribute.Int64("member.id", id))
	defer func() { observability.EndSpan(span, err) }()

	m, err = s.loadMember(ctx, s.db, ownerID, id)
	if err != nil {
		return nil, err
	}
	if err := s.attachPlans(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// ListMembers returns the owner's members ordered by id
func (s *PostgresService) ListMembers(ctx context.Context, ownerID int64) (members []*Member, err error) {
	ctx, span := observability.StartSpan(ctx, tracerName, "ledger.ListMembers", attribute.Int64("owner.id", ownerID))
	defer func() { observability.EndSpan(span, err) }()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+memberColumns+` FROM members WHERE created_by = $1 ORDER BY id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	members = []*Member{}
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}

	if err := s.attachPlans(ctx, members...); err != nil {
		return nil, err
	}
	return members, nil
}

// GetMemberWithPaymentHistory returns the member and its payments by id
func (s *PostgresService) GetMemberWithPaymentHistory(ctx context.Context, ownerID, id int64) (result *MemberWithHistory, err error) {
	ctx, span := observability.StartSpan(ctx, tracerName, "ledger.GetMemberWithPaymentHistory", attribute.Int64("member.id", id))
	defer func() { observability.EndSpan(span, err) }()

	m, err := s.GetMember(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE member_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	history := []*Payment{}
	for rows.Next() {
		p := &Payment{}
		if err := rows.Scan(&p.ID, &p.CreatedBy, &p.MemberID, &p.PlanID, &p.Amount, &p.PaymentDate, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		history = append(history, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}

	return &MemberWithHistory{Member: m, PaymentHistory: history}, nil
}

// DeleteMember removes a member that has no payments
func (s *PostgresService) DeleteMember(ctx context.Context, ownerID, id int64) (err error) {
	ctx, span := observability.StartSpan(ctx, tracerName, "ledger.DeleteMember", attribute.Int64("member.id", id))
	defer func() { observability.EndSpan(span, err) }()

	res, err := s.db.ExecContext(ctx, `DELETE FROM members WHERE id = $1 AND created_by = $2`, id, ownerID)
	if postgres.IsForeignKeyViolation(err) {
		return apperr.Conflict("member %d has recorded payments and cannot be deleted", id)
	}
	if err != nil {
		return fmt.Errorf("failed to delete member: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete member: %w", err)
	}
	if n == 0 {
		return apperr.NotFound("member %d not found", id)
	}
	return nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func (s *PostgresService) loadMember(ctx context.Context, q queryRower, ownerID, id int64) (*Member, error) {
	m, err := scanMember(q.QueryRowContext(ctx,
		`SELECT `+memberColumns+` FROM members WHERE id = $1 AND created_by = $2`, id, ownerID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("member %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	return m, nil
}

// attachPlans resolves each member's plan through the catalog (cached)
func (s *PostgresService) attachPlans(ctx context.Context, members ...*Member) error {
	resolved := make(map[int64]*catalog.Plan)
	for _, m := range members {
		plan, ok := resolved[m.PlanID]
		if !ok {
			var err error
			plan, err = s.plans.GetPlan(ctx, m.PlanID)
			if err != nil {
				return fmt.Errorf("failed to resolve plan %d for member %d: %w", m.PlanID, m.ID, err)
			}
			resolved[m.PlanID] = plan
		}
		m.Plan = plan
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMember(row rowScanner) (*Member, error) {
	m := &Member{}
	err := row.Scan(
		&m.ID, &m.CreatedBy, &m.Name, &m.Contact, &m.Email, &m.Gender, &m.Address, &m.Batch,
		&m.PlanID, &m.JoinDate, &m.AdmissionAmount, &m.Discount, &m.CollectedAmount, &m.DueAmount,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func insertPayment(ctx context.Context, tx *sql.Tx, p *Payment) error {
	err := tx.QueryRowContext(ctx, `
		INSERT INTO payments (created_by, member_id, plan_id, amount, payment_date)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		p.CreatedBy, p.MemberID, p.PlanID, p.Amount, p.PaymentDate,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	return nil
}

// withTx runs fn in a transaction. Nothing fn wrote survives an error; if
// the rollback itself fails the result is Internal.
func (s *PostgresService) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Internal("failed to begin transaction", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return apperr.Internal("failed to roll back transaction", errors.Join(err, rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return apperr.Internal("failed to commit transaction", err)
	}
	return nil
}
