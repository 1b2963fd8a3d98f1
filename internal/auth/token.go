// Package auth verifies access tokens issued by the external identity
// collaborator. Issuance lives elsewhere; this side only checks the
// signature and extracts a stable subject (the caller's wallet hash).
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken means the token is missing, expired, or failed
// signature verification.
var ErrInvalidToken = errors.New("invalid or expired token")

const cookieName = "accessToken"

type Verifier struct {
	secret []byte
	admins map[string]struct{}
}

// NewVerifier creates a token verifier. admins lists the subjects allowed
// to call adjudication and dismissal endpoints.
func NewVerifier(secret string, admins []string) (*Verifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("token secret is empty")
	}
	set := make(map[string]struct{}, len(admins))
	for _, a := range admins {
		a = strings.TrimSpace(a)
		if a != "" {
			set[a] = struct{}{}
		}
	}
	return &Verifier{secret: []byte(secret), admins: set}, nil
}

// Subject verifies the token and returns its subject claim.
func (v *Verifier) Subject(token string) (string, error) {
	if token == "" {
		return "", ErrInvalidToken
	}
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !parsed.Valid {
		return "", ErrInvalidToken
	}
	sub, err := parsed.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", ErrInvalidToken
	}
	return sub, nil
}

// IsAdmin reports whether the subject may perform admin-gated operations.
func (v *Verifier) IsAdmin(subject string) bool {
	_, ok := v.admins[subject]
	return ok
}

// FromRequest extracts the raw token from the Authorization header or,
// failing that, the access token cookie.
func FromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	if c, err := r.Cookie(cookieName); err == nil {
		return c.Value
	}
	return ""
}
