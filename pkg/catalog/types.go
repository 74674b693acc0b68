package catalog

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DurationUnit is the unit of a plan's duration
type DurationUnit string

const (
	DurationDay   DurationUnit = "day"
	DurationMonth DurationUnit = "month"
)

// ParseDurationUnit accepts singular or plural spellings in any case.
// It returns false for anything else.
func ParseDurationUnit(s string) (DurationUnit, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "day", "days":
		return DurationDay, true
	case "month", "months":
		return DurationMonth, true
	default:
		return "", false
	}
}

// Plan is an immutable fee/duration definition
type Plan struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	DurationType DurationUnit    `json:"durationType"`
	Duration     int             `json:"duration"`
	Amount       decimal.Decimal `json:"amount"`
	CreatedBy    int64           `json:"createdBy"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// CreatePlanRequest is the body of POST /plan
type CreatePlanRequest struct {
	Name         string          `json:"name"`
	DurationType string          `json:"durationType"`
	Duration     int             `json:"duration"`
	Amount       decimal.Decimal `json:"amount"`
}

// Service is the plan catalog
type Service interface {
	CreatePlan(ctx context.Context, ownerID int64, req *CreatePlanRequest) (*Plan, error)
	GetPlan(ctx context.Context, id int64) (*Plan, error)
	ListPlans(ctx context.Context, ownerID int64) ([]*Plan, error)
}
