package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/platinummonkey/gymledger/pkg/apperr"
)

// Principal is the authenticated caller
type Principal struct {
	OwnerID int64
}

// Authenticator turns a bearer token into a Principal
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*Principal, error)
}

// HMACAuthenticator verifies HS256 tokens signed with a shared secret
type HMACAuthenticator struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewHMACAuthenticator creates an HMACAuthenticator. An empty issuer skips
// the issuer check.
func NewHMACAuthenticator(secret, issuer string, ttl time.Duration) *HMACAuthenticator {
	return &HMACAuthenticator{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue signs a token for ownerID that expires after the configured TTL
func (a *HMACAuthenticator) Issue(ownerID int64) (string, error) {
	if ownerID <= 0 {
		return "", fmt.Errorf("owner id must be positive, got %d", ownerID)
	}

	now := a.now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(ownerID, 10),
		Issuer:    a.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, nil
}

// Authenticate verifies token and returns its owner
func (a *HMACAuthenticator) Authenticate(ctx context.Context, token string) (*Principal, error) {
	if token == "" {
		return nil, apperr.Unauthorized("missing token")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperr.Unauthorized("token expired")
		}
		return nil, apperr.Unauthorized("invalid token")
	}

	ownerID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || ownerID <= 0 {
		return nil, apperr.Unauthorized("invalid token subject")
	}

	return &Principal{OwnerID: ownerID}, nil
}
