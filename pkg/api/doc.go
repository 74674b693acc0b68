// Package api provides the HTTP REST API for gymledger.
//
// # Architecture
//
// The API is built on gorilla/mux with one handler group per domain, each
// registering its own routes:
//
//   - PlanHandlers: POST /plan, GET /plan/{ownerId}
//   - MemberHandlers: POST|GET /member, GET|DELETE /member/{id},
//     GET /member/{id}/payments, GET /ledger/reconcile
//   - PaymentHandlers: POST /payment
//   - ExpenseHandlers: POST|GET /expense
//   - DashboardHandlers: GET /dashboard
//
// Every route requires a bearer token. The authenticated owner scopes every
// read and write.
//
// # Middleware
//
// Outside the router: OpenTelemetry (otelhttp), request id, access logging,
// panic recovery and CORS. Inside the router, for matched routes only:
// Prometheus HTTP metrics, JSON content type, body size limit,
// authentication and optional rate limiting.
//
// # Responses
//
// Success bodies are {"message", "data"} envelopes, except GET /dashboard
// which returns the dashboard object itself. Errors are {"status",
// "message"} with the status taken from the apperr kind.
//
// # Related Packages
//
//   - pkg/httputil: envelopes and request parsing
//   - pkg/middleware: authentication and rate limiting
//   - pkg/ledger, pkg/catalog, pkg/expenses, pkg/reports: services
package api
