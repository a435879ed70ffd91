package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func testSigner(secret string) *Signer {
	return NewSigner(secret).WithClock(func() time.Time { return fixedNow })
}

func validClaims() Claims {
	return Claims{
		Sub:      "17",
		Name:     "Avery",
		Username: "avery",
		SID:      "sid_1",
		JTI:      "jti-1",
		Exp:      fixedNow.Add(time.Hour).Unix(),
	}
}

func TestIssueAndParse(t *testing.T) {
	signer := testSigner("secret")
	issued, err := signer.Issue(validClaims())
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if !strings.HasPrefix(issued, "adr1.") || strings.Count(issued, ".") != 2 {
		t.Fatalf("unexpected token layout %q", issued)
	}
	claims, err := signer.Parse(issued)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if claims != validClaims() {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestIssueRejectsIncompleteClaims(t *testing.T) {
	claims := validClaims()
	claims.SID = ""
	if _, err := testSigner("secret").Issue(claims); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestParseRejectsExpired(t *testing.T) {
	signer := testSigner("secret")
	claims := validClaims()
	claims.Exp = fixedNow.Unix()
	issued, err := signer.Issue(claims)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if _, err := signer.Parse(issued); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken at the expiry instant, got %v", err)
	}
}

func TestParseRejectsTampering(t *testing.T) {
	issued, err := testSigner("secret").Issue(validClaims())
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if _, err := testSigner("other").Parse(issued); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for wrong secret, got %v", err)
	}
	parts := strings.Split(issued, ".")
	cases := map[string]string{
		"edited payload": parts[0] + "." + parts[1] + "x." + parts[2],
		"other version":  "adr0." + parts[1] + "." + parts[2],
		"garbage":        "garbage",
		"empty":          "",
	}
	for name, token := range cases {
		if _, err := testSigner("secret").Parse(token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("%s: expected ErrInvalidToken, got %v", name, err)
		}
	}
}

func TestHashToken(t *testing.T) {
	if HashToken("abc") != HashToken("abc") || HashToken("abc") == HashToken("abd") {
		t.Fatal("HashToken must be deterministic and distinguish inputs")
	}
	if got := HashToken("abc"); got != "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad" {
		t.Fatalf("HashToken(abc) = %s", got)
	}
}
