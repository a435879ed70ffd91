package util

import (
	"strings"
	"testing"
)

func TestNewID(t *testing.T) {
	id := NewID("sid")
	if !strings.HasPrefix(id, "sid_") || len(id) != len("sid_")+32 {
		t.Fatalf("NewID(sid) = %q", id)
	}
	if bare := NewID(""); len(bare) != 32 || strings.Contains(bare, "_") {
		t.Fatalf("NewID(\"\") = %q", bare)
	}
	if NewID("x") == NewID("x") {
		t.Fatal("ids must not repeat")
	}
}

func TestNewSecret(t *testing.T) {
	secret := NewSecret(32)
	if len(secret) != 43 {
		t.Fatalf("expected 43 chars for 32 bytes, got %d (%q)", len(secret), secret)
	}
	if strings.ContainsAny(secret, "+/=") {
		t.Fatalf("secret is not url safe: %q", secret)
	}
}
