// Package contextkeys provides centralized context key definitions
//
// All context keys used across the service are defined here so that the
// producer (middleware) and the consumers (handlers, logger) agree on them.
//
// USAGE PATTERN:
//
//	import "github.com/platinummonkey/gymledger/pkg/contextkeys"
//	ctx = contextkeys.WithOwnerID(ctx, principal.OwnerID)
//	ownerID, ok := contextkeys.GetOwnerID(ctx)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// OwnerIDKey contains the authenticated owner (gym admin) identity
	// Set by: middleware.AuthMiddleware (pkg/middleware/auth.go)
	// Required by: every ledger, catalog, expense and dashboard handler
	// Type: int64
	OwnerIDKey Key = "owner_id"

	// RequestIDKey contains request ID string (UUID)
	// Set by: httputil.RequestIDMiddleware
	// Used by: Logger, error responses
	// Type: string
	RequestIDKey Key = "request_id"

	// LoggerKey contains *observability.Logger
	// Set by: cmd/gymledger when wiring the request logger
	// Used by: Handlers that need structured logging with request context
	// Type: *observability.Logger
	LoggerKey Key = "logger"
)

// WithOwnerID adds the authenticated owner ID to the context
func WithOwnerID(ctx context.Context, ownerID int64) context.Context {
	return context.WithValue(ctx, OwnerIDKey, ownerID)
}

// GetOwnerID retrieves the owner ID from context
func GetOwnerID(ctx context.Context) (int64, bool) {
	ownerID, ok := ctx.Value(OwnerIDKey).(int64)
	return ownerID, ok
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithLogger adds logger to the context
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}
