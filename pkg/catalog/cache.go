package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/platinummonkey/gymledger/pkg/observability"
	"github.com/platinummonkey/gymledger/pkg/storage/postgres"
)

// CacheConfig configures CachedService
type CacheConfig struct {
	L1Size int
	L1TTL  time.Duration
	L2TTL  time.Duration
}

// CachedService reads plans through an in-process LRU and, when redis is
// set, a shared Redis layer. Plans never change after creation so entries
// are only ever added.
type CachedService struct {
	Service

	l1      *expirable.LRU[int64, Plan]
	l2      *postgres.RedisClient
	l2TTL   time.Duration
	metrics *observability.Metrics
	logger  *observability.Logger
}

// NewCachedService wraps next. redis may be nil.
func NewCachedService(next Service, cfg CacheConfig, redis *postgres.RedisClient, metrics *observability.Metrics, logger *observability.Logger) *CachedService {
	return &CachedService{
		Service: next,
		l1:      expirable.NewLRU[int64, Plan](cfg.L1Size, nil, cfg.L1TTL),
		l2:      redis,
		l2TTL:   cfg.L2TTL,
		metrics: metrics,
		logger:  logger,
	}
}

func planKey(id int64) string {
	return fmt.Sprintf("plan:%d", id)
}

// CreatePlan creates through the wrapped service and primes the L1 cache
func (c *CachedService) CreatePlan(ctx context.Context, ownerID int64, req *CreatePlanRequest) (*Plan, error) {
	plan, err := c.Service.CreatePlan(ctx, ownerID, req)
	if err != nil {
		return nil, err
	}
	c.l1.Add(plan.ID, *plan)
	return plan, nil
}

// GetPlan returns a copy of the cached plan or loads it
func (c *CachedService) GetPlan(ctx context.Context, id int64) (*Plan, error) {
	if plan, ok := c.l1.Get(id); ok {
		c.metrics.RecordCacheHit(ctx, "l1")
		return &plan, nil
	}
	c.metrics.RecordCacheMiss(ctx, "l1")

	if c.l2 != nil {
		var plan Plan
		found, err := c.l2.GetJSON(ctx, planKey(id), &plan)
		switch {
		case err != nil:
			c.logger.WithError(err).WithField("plan_id", id).Warn("Plan cache read failed")
		case found:
			c.metrics.RecordCacheHit(ctx, "l2")
			c.l1.Add(id, plan)
			return &plan, nil
		default:
			c.metrics.RecordCacheMiss(ctx, "l2")
		}
	}

	plan, err := c.Service.GetPlan(ctx, id)
	if err != nil {
		return nil, err
	}

	c.l1.Add(id, *plan)
	if c.l2 != nil {
		if err := c.l2.SetJSON(ctx, planKey(id), plan, c.l2TTL); err != nil {
			c.logger.WithError(err).WithField("plan_id", id).Warn("Plan cache write failed")
		}
	}
	return plan, nil
}
