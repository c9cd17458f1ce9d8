package jwtutil

import (
	"errors"
	"testing"
	"time"
)

func TestTokenRoundTrip(t *testing.T) {
	token, err := GenerateToken("secret", time.Hour, 42, "ada")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	claims, err := ParseToken("secret", token)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.UserID != 42 || claims.Username != "ada" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestParseTokenRejects(t *testing.T) {
	valid, err := GenerateToken("secret", time.Hour, 1, "ada")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	expired, err := GenerateToken("secret", -time.Minute, 1, "ada")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	anonymous, err := GenerateToken("secret", time.Hour, 0, "")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	for name, testcase := range map[string]struct {
		secret string
		token  string
	}{
		"wrong secret": {secret: "other", token: valid},
		"expired":      {secret: "secret", token: expired},
		"no user":      {secret: "secret", token: anonymous},
		"garbage":      {secret: "secret", token: "not.a.token"},
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseToken(testcase.secret, testcase.token); !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestGenerateTokenRequiresSecret(t *testing.T) {
	if _, err := GenerateToken("", time.Hour, 1, "ada"); err == nil {
		t.Fatalf("expected error for empty secret")
	}
}
