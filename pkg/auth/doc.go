// Package auth verifies bearer tokens and produces the authenticated owner.
//
// # Overview
//
// Every API request carries "Authorization: Bearer <token>". The token is
// an HS256 JWT whose subject is the owner (gym admin) id. Token issuance
// and refresh belong to an external identity service; Issue exists for
// tests and the gymledger-token developer tool.
//
//	a := auth.NewHMACAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
//	token, _ := a.Issue(42)
//	principal, err := a.Authenticate(ctx, token) // principal.OwnerID == 42
//
// Authenticate returns an apperr Unauthorized error for anything it
// cannot verify: bad signature, wrong algorithm, wrong issuer, expired
// token, or a subject that is not a positive integer.
//
// # Related Packages
//
//   - pkg/middleware: stamps Principal.OwnerID into the request context
//   - pkg/contextkeys: owner id context key
package auth
