// Package expenses records gym expenses. The dashboard reads them for the
// monthly expense total; they have no relationship to members or payments.
package expenses

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/platinummonkey/gymledger/pkg/apperr"
	"github.com/platinummonkey/gymledger/pkg/httputil"
	"github.com/platinummonkey/gymledger/pkg/observability"
)

const tracerName = "github.com/platinummonkey/gymledger/pkg/expenses"

// Expense is a single expense entry
type Expense struct {
	ID          int64           `json:"id"`
	CreatedBy   int64           `json:"createdBy"`
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	Date        time.Time       `json:"date"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// CreateExpenseRequest is the body of POST /expense. Date defaults to now.
type CreateExpenseRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	Date        string          `json:"date"`
}

// Service manages expenses
type Service interface {
	CreateExpense(ctx context.Context, ownerID int64, req *CreateExpenseRequest) (*Expense, error)
	ListExpenses(ctx context.Context, ownerID int64) ([]*Expense, error)
}

// PostgresService implements Service on PostgreSQL
type PostgresService struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresService creates a new PostgresService
func NewPostgresService(db *sql.DB) *PostgresService {
	return &PostgresService{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// CreateExpense inserts an expense
func (s *PostgresService) CreateExpense(ctx context.Context, ownerID int64, req *CreateExpenseRequest) (e *Expense, err error) {
	ctx, span := observability.StartSpan(ctx, tracerName, "expenses.CreateExpense", attribute.Int64("owner.id", ownerID))
	defer func() { observability.EndSpan(span, err) }()

	if req == nil {
		return nil, apperr.Validation("request body is required")
	}
	if err := httputil.CheckCents("amount", req.Amount); err != nil {
		return nil, err
	}
	if !req.Amount.IsPositive() {
		return nil, apperr.Validation("amount must be positive")
	}
	if strings.TrimSpace(req.Category) == "" {
		return nil, apperr.Validation("category is required")
	}

	date := s.now()
	if strings.TrimSpace(req.Date) != "" {
		if date, err = httputil.ParseDate("date", req.Date); err != nil {
			return nil, err
		}
	}

	e = &Expense{
		CreatedBy:   ownerID,
		Amount:      req.Amount,
		Category:    strings.TrimSpace(req.Category),
		Description: strings.TrimSpace(req.Description),
		Date:        date,
	}

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO expenses (created_by, amount, category, description, expense_date)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		e.CreatedBy, e.Amount, e.Category, e.Description, e.Date,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create expense: %w", err)
	}
	return e, nil
}

// ListExpenses returns the owner's expenses, newest first
func (s *PostgresService) ListExpenses(ctx context.Context, ownerID int64) (list []*Expense, err error) {
	ctx, span := observability.StartSpan(ctx, tracerName, "expenses.ListExpenses", attribute.Int64("owner.id", ownerID))
	defer func() { observability.EndSpan(span, err) }()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_by, amount, category, description, expense_date, created_at
		FROM expenses
		WHERE created_by = $1
		ORDER BY expense_date DESC, id DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}
	defer rows.Close()

	list = []*Expense{}
	for rows.Next() {
		e := &Expense{}
		if err := rows.Scan(&e.ID, &e.CreatedBy, &e.Amount, &e.Category, &e.Description, &e.Date, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		list = append(list, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}
	return list, nil
}
