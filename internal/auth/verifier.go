// Package auth resolves bearer tokens to user identities. Tokens are HMAC
// signed JWTs minted by the identity provider; the subject claim carries the
// user id.
package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/gigboard/gigboard/internal/platform/errors"
)

// Verifier validates signed tokens and extracts the acting user.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a verifier over a shared signing secret.
func NewVerifier(secret string) (*Verifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("signing secret is required")
	}
	return &Verifier{secret: []byte(secret)}, nil
}

// Authenticate returns the user id carried by token.
func (v *Verifier) Authenticate(_ context.Context, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", apperrors.New(apperrors.CodeTokenInvalid, "token is required")
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeTokenInvalid, "parse token", err)
	}

	subject, err := parsed.Claims.GetSubject()
	if err != nil || strings.TrimSpace(subject) == "" {
		return "", apperrors.New(apperrors.CodeTokenInvalid, "token subject is required")
	}
	return strings.TrimSpace(subject), nil
}

// ActorFromHeader extracts the bearer token from an Authorization header
// value and resolves it. The header must use the Bearer scheme.
func (v *Verifier) ActorFromHeader(ctx context.Context, header string) (string, error) {
	header = strings.TrimSpace(header)
	after, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return "", apperrors.New(apperrors.CodeTokenInvalid, "bearer token is required")
	}
	return v.Authenticate(ctx, after)
}
