package jwtutil

import (
	"testing"
	"time"
)

func TestGenerateAndParse(t *testing.T) {
	token, err := GenerateToken("secret", time.Now().Add(time.Hour), "sess-1", 7)
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}
	claims, err := ParseToken("secret", token)
	if err != nil {
		t.Fatalf("ParseToken error: %v", err)
	}
	if claims.SessionID() != "sess-1" || claims.UserID != 7 {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestParseRejectsWrongSecret(t *testing.T) {
	token, err := GenerateToken("secret", time.Now().Add(time.Hour), "sess-1", 7)
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}
	if _, err := ParseToken("other", token); err == nil {
		t.Fatalf("expected signature error")
	}
}

func TestParseRejectsExpired(t *testing.T) {
	token, err := GenerateToken("secret", time.Now().Add(-time.Minute), "sess-1", 7)
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}
	if _, err := ParseToken("secret", token); err == nil {
		t.Fatalf("expected expiry error")
	}
}

func TestGenerateRequiresSecret(t *testing.T) {
	if _, err := GenerateToken("", time.Now().Add(time.Hour), "s", 1); err == nil {
		t.Fatalf("expected error for empty secret")
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := ParseToken("secret", "not-a-token"); err == nil {
		t.Fatalf("expected error")
	}
}
