// Package middleware provides HTTP middleware for bearer authentication and
// rate limiting.
//
// # Middleware Components
//
// AuthMiddleware: bearer token authentication
//
//	authMw := middleware.NewAuthMiddleware(auth.NewHMACAuthenticator(secret, issuer, ttl))
//	router.Use(authMw.Handler)
//	// Verifies the token and stores the owner id in the request context
//
// RateLimitMiddleware: fixed window limits per owner
//
//	limiter := middleware.NewRedisRateLimiter(redisClient, cfg, "")
//	router.Use(middleware.NewRateLimitMiddleware(limiter).Handler)
//
// Without Redis, NewMemoryRateLimiter keeps the windows in process.
// Limiter errors fail open.
//
// # Related Packages
//
//   - pkg/auth: token verification
//   - pkg/contextkeys: owner id context key
package middleware
