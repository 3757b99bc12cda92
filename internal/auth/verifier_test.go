package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/gigboard/gigboard/internal/platform/errors"
)

const testSecret = "test-signing-secret"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func assertTokenInvalid(t *testing.T, err error) {
	t.Helper()
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) || appErr.Code != apperrors.CodeTokenInvalid {
		t.Fatalf("expected CodeTokenInvalid, got %v", err)
	}
}

func TestAuthenticateValidToken(t *testing.T) {
	t.Parallel()

	verifier, err := NewVerifier(testSecret)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	token := signToken(t, testSecret, jwt.MapClaims{
		"sub": "u1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	userID, err := verifier.Authenticate(context.Background(), token)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if userID != "u1" {
		t.Fatalf("user = %q, want u1", userID)
	}
}

func TestAuthenticateRejectsBadTokens(t *testing.T) {
	t.Parallel()

	verifier, err := NewVerifier(testSecret)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	_, err = verifier.Authenticate(context.Background(), "")
	assertTokenInvalid(t, err)

	_, err = verifier.Authenticate(context.Background(), "not-a-jwt")
	assertTokenInvalid(t, err)

	wrongKey := signToken(t, "other-secret", jwt.MapClaims{"sub": "u1"})
	_, err = verifier.Authenticate(context.Background(), wrongKey)
	assertTokenInvalid(t, err)

	expired := signToken(t, testSecret, jwt.MapClaims{
		"sub": "u1",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	_, err = verifier.Authenticate(context.Background(), expired)
	assertTokenInvalid(t, err)

	noSubject := signToken(t, testSecret, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	_, err = verifier.Authenticate(context.Background(), noSubject)
	assertTokenInvalid(t, err)
}

func TestActorFromHeader(t *testing.T) {
	t.Parallel()

	verifier, err := NewVerifier(testSecret)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	token := signToken(t, testSecret, jwt.MapClaims{"sub": "u2"})
	userID, err := verifier.ActorFromHeader(context.Background(), "Bearer "+token)
	if err != nil {
		t.Fatalf("actor from header: %v", err)
	}
	if userID != "u2" {
		t.Fatalf("user = %q, want u2", userID)
	}

	_, err = verifier.ActorFromHeader(context.Background(), token)
	assertTokenInvalid(t, err)

	_, err = verifier.ActorFromHeader(context.Background(), "")
	assertTokenInvalid(t, err)
}

func TestNewVerifierRequiresSecret(t *testing.T) {
	t.Parallel()

	if _, err := NewVerifier("  "); err == nil {
		t.Fatal("expected error for empty secret")
	}
}
