package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/golang-jwt/jwt/v4"
)

const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

type identityKey struct{}

// Identity is the authenticated caller taken from the bearer token.
type Identity struct {
	UserID string
	Role   string
}

func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// CanActFor reports whether the caller may touch resources owned by userID.
func (i Identity) CanActFor(userID string) bool {
	return i.IsAdmin() || i.UserID == userID
}

type tokenClaims struct {
	ID       string `json:"id"`
	UserType string `json:"user_type,omitempty"`
	jwt.RegisteredClaims
}

type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

// Middleware rejects requests without a valid HS256 bearer token.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scheme, raw, _ := strings.Cut(r.Header.Get("Authorization"), " ")
		if !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(raw) == "" {
			respondError(w, r, http.StatusUnauthorized, "unauthorized", "authorization token required")
			return
		}

		identity, err := a.parse(strings.TrimSpace(raw))
		if err != nil {
			respondError(w, r, http.StatusUnauthorized, "unauthorized", "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), identityKey{}, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Authenticator) parse(raw string) (Identity, error) {
	var claims tokenClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Identity{}, err
	}
	if !domain.ValidID(claims.ID) {
		return Identity{}, errors.New("token subject is not a user id")
	}

	role := RoleCustomer
	if strings.EqualFold(claims.UserType, RoleAdmin) {
		role = RoleAdmin
	}
	return Identity{UserID: claims.ID, Role: role}, nil
}

// Sign issues a token for the identity. Used by tests and local tooling.
func (a *Authenticator) Sign(identity Identity, claims jwt.RegisteredClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		ID:               identity.UserID,
		UserType:         identity.Role,
		RegisteredClaims: claims,
	})
	return token.SignedString(a.secret)
}

func identityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(Identity)
	return identity, ok
}
