package catalog

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
	"github.com/platinummonkey/gymledger/pkg/storage/postgres"
)

const tracerName = "github.com/platinummonkey/gymledger/pkg/catalog"

const planColumns = `id, name, duration_type, duration, amount, created_by, created_at`

// PostgresService implements Service on PostgreSQL
type PostgresService struct {
	db *sql.DB
}

// NewPostgresService creates a new PostgresService
func NewPostgresService(db *sql.DB) *PostgresService {
	return &PostgresService{db: db}
}

func validatePlan(req *CreatePlanRequest) (DurationUnit, error) {
	if req == nil {
		return "", apperr.Validation("request body is required")
	}
	if strings.TrimSpace(req.Name) == "" {
		return "", apperr.Validation("name is required")
	}
	unit, ok := ParseDurationUnit(req.DurationType)
	if !ok {
		return "", apperr.Validation("durationType must be one of day, month")
	}
	if req.Duration <= 0 {
		return "", apperr.Validation("duration must be positive")
	}
	if err := httputil.CheckCents("amount", req.Amount); err != nil {
		return "", err
	}
	if req.Amount.IsNegative() {
		return "", apperr.Validation("amount must not be negative")
	}
	return unit, nil
}

// CreatePlan inserts a plan. An identical (name, unit, duration, amount)
// plan for the same owner is a Conflict.
func (s *PostgresService) CreatePlan(ctx context.Context, ownerID int64, req *CreatePlanRequest) (plan *Plan, err error) {
	ctx, span := observability.StartSpan(ctx, tracerName, "catalog.CreatePlan", attribute.Int64("owner.id", ownerID))
	defer func() { observability.EndSpan(span, err) }()

	unit, err := validatePlan(req)
	if err != nil {
		return nil, err
	}

	plan = &Plan{
		Name:         strings.TrimSpace(req.Name),
		DurationType: unit,
		Duration:     req.Duration,
		Amount:       req.Amount,
		CreatedBy:    ownerID,
	}

	query := `
		INSERT INTO plans (created_by, name, duration_type, duration, amount)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	err = s.db.QueryRowContext(ctx, query, plan.CreatedBy, plan.Name, plan.DurationType, plan.Duration, plan.Amount).
		Scan(&plan.ID, &plan.CreatedAt)
	if postgres.IsUniqueViolation(err) {
		return nil, apperr.Conflict("plan %q (%d %s, %s) already exists", plan.Name, plan.Duration, plan.DurationType, plan.Amount.StringFixed(2))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create plan: %w", err)
	}

	return plan, nil
}

// GetPlan returns a plan by id
func (s *PostgresService) GetPlan(ctx context.Context, id int64) (plan *Plan, err error) {
	ctx, span := observability.StartSpan(ctx, tracerName, "catalog.GetPlan", attribute.Int64("plan.id", id))
	defer func() { observability.EndSpan(span, err) }()

	query := `SELECT ` + planColumns + ` FROM plans WHERE id = $1`
	plan, err = scanPlan(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("plan %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	return plan, nil
}

// ListPlans returns the owner's plans ordered by id
func (s *PostgresService) ListPlans(ctx context.Context, ownerID int64) (plans []*Plan, err error) {
	ctx, span := observability.StartSpan(ctx, tracerName, "catalog.ListPlans", attribute.Int64("owner.id", ownerID))
	defer func() { observability.EndSpan(span, err) }()

	query := `SELECT ` + planColumns + ` FROM plans WHERE created_by = $1 ORDER BY id`
	rows, err := s.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	defer rows.Close()

	plans = []*Plan{}
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		plans = append(plans, plan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	return plans, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPlan(row rowScanner) (*Plan, error) {
	p := &Plan{}
	if err := row.Scan(&p.ID, &p.Name, &p.DurationType, &p.Duration, &p.Amount, &p.CreatedBy, &p.CreatedAt); err != nil {
		return nil, err
	}
	return p, nil
}
