// Package catalog manages subscription plans.
//
// Plans are immutable once created: there is no update or delete. A plan is
// unique per owner by (name, duration unit, duration, amount).
//
// PostgresService is the store; CachedService decorates any Service with a
// read-through cache for GetPlan:
//
//	L1: expirable in-process LRU (hashicorp/golang-lru)
//	L2: Redis, optional, shared between instances
//
// Since plans never change, cache entries are never invalidated and only
// age out by TTL.
package catalog
