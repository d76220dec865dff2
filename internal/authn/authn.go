// Package authn provides the pluggable seam the control plane uses to
// resolve an inbound request's caller identity. User authentication
// itself is out of scope for the control plane — real deployments sit
// behind a collaborating identity service that issues bearer tokens —
// but the control plane still needs something to verify those tokens
// against in a standalone deployment or in tests. JWTAuthenticator is
// that stand-in default.
package authn

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jordanhubbard/refactorctl/internal/ctlerrors"
)

// Identity is the resolved caller of an HTTP request.
type Identity struct {
	UserID string
	Role   string
}

// Authenticator resolves a bearer token into an Identity. Implementations
// must return ctlerrors.ErrUnauthenticated for any invalid, expired, or
// missing token.
type Authenticator interface {
	Authenticate(ctx context.Context, bearerToken string) (Identity, error)
}

// FromRequest extracts the bearer token from an Authorization header and
// authenticates it.
func FromRequest(ctx context.Context, a Authenticator, r *http.Request) (Identity, error) {
	header := r.Header.Get("Authorization")
	token := strings.TrimPrefix(header, "Bearer ")
	if token == header { // prefix absent
		return Identity{}, fmt.Errorf("%w: missing bearer token", ctlerrors.ErrUnauthenticated)
	}
	return a.Authenticate(ctx, token)
}

// claims is the JWT payload JWTAuthenticator expects, matching the
// {user_id, role} shape a collaborating identity service would issue.
type claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// JWTAuthenticator validates HS256 JWTs signed with a shared secret. It
// never issues tokens itself; token issuance belongs to the external
// identity service this package stands in for.
type JWTAuthenticator struct {
	secret []byte
}

// NewJWTAuthenticator builds a JWTAuthenticator. secret must match the
// identity service's signing key.
func NewJWTAuthenticator(secret string) *JWTAuthenticator {
	return &JWTAuthenticator{secret: []byte(secret)}
}

func (a *JWTAuthenticator) Authenticate(_ context.Context, token string) (Identity, error) {
	c := &claims{}
	parsed, err := jwt.ParseWithClaims(token, c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil || !parsed.Valid {
		return Identity{}, fmt.Errorf("%w: %v", ctlerrors.ErrUnauthenticated, err)
	}
	if c.ExpiresAt != nil && time.Now().After(c.ExpiresAt.Time) {
		return Identity{}, fmt.Errorf("%w: token expired", ctlerrors.ErrUnauthenticated)
	}
	return Identity{UserID: c.UserID, Role: c.Role}, nil
}

// Issue mints a token for tests and single-process deployments without
// a real identity service. Production deployments never call this: the
// collaborating identity service owns token issuance.
func (a *JWTAuthenticator) Issue(userID, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	c := &claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Subject:   userID,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(a.secret)
}
