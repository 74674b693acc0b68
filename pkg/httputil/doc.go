// Package httputil provides the JSON envelopes, request parsing and common
// middleware shared by every API handler.
//
// # Response Envelopes
//
// Success:
//
//	httputil.WriteSuccess(w, "Members fetched", members)   // 200 {"message": ..., "data": ...}
//	httputil.WriteCreated(w, "Plan created", plan)         // 201
//
// Errors carry the status code in the body as well:
//
//	httputil.WriteError(w, r, err) // {"status": 409, "message": "contact already registered"}
//
// WriteError derives the status from the apperr kind. Internal errors are
// logged with the request id and answered with "internal server error".
//
// # Request Parsing
//
//	var req ledger.RecordPaymentRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // error response already written
//	}
//
//	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
//
// # Middleware
//
//	httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware,
//		httputil.CORSMiddleware(origins),
//		httputil.MaxBytesMiddleware(1<<20),
//	)
//
// # Related Packages
//
//   - pkg/middleware: bearer authentication and rate limiting
//   - pkg/apperr: error kinds and status mapping
package httputil
