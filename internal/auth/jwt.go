// Package auth resolves the caller identity from bearer tokens issued by the upstream auth layer.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

var (
	ErrEmptyToken    = errors.New("auth: empty token")
	ErrEmptySecret   = errors.New("auth: empty secret")
	ErrMissingTenant = errors.New("auth: missing tenant_id")
	ErrMissingUser   = errors.New("auth: missing user_id")
)

// Claims carried by ledger bearer tokens.
type Claims struct {
	TenantID int64 `json:"tenant_id"`
	UserID   int64 `json:"user_id"`
	jwt.RegisteredClaims
}

// Identity converts the claims into the request identity.
func (c *Claims) Identity() shared.Identity {
	return shared.Identity{TenantID: c.TenantID, UserID: c.UserID}
}

// ParseToken validates an HS256 token and returns its claims.
func ParseToken(tokenString string, secret []byte) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrEmptyToken
	}
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	claims := &Claims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("auth: invalid signing method")
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("auth: invalid token")
	}
	if claims.TenantID <= 0 {
		return nil, ErrMissingTenant
	}
	if claims.UserID <= 0 {
		return nil, ErrMissingUser
	}
	return claims, nil
}

// IssueToken signs a token for the identity. Used by ledgerctl for operator and test access.
func IssueToken(id shared.Identity, secret []byte, ttl time.Duration, now time.Time) (string, error) {
	if len(secret) == 0 {
		return "", ErrEmptySecret
	}
	claims := Claims{
		TenantID: id.TenantID,
		UserID:   id.UserID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
