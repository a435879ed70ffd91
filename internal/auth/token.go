package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// tokenVersion prefixes every access token so the format can change without
// old tokens parsing as new ones.
const tokenVersion = "adr1"

// Claims identify the GitLab user behind an API session. SID ties the access
// token to the refresh session and the stored GitLab credential.
type Claims struct {
	Sub      string `json:"sub"`
	Name     string `json:"name"`
	Username string `json:"username"`
	SID      string `json:"sid"`
	JTI      string `json:"jti"`
	Exp      int64  `json:"exp"`
}

func (c Claims) ExpiresAt() time.Time {
	return time.Unix(c.Exp, 0)
}

func (c Claims) complete() bool {
	return c.Sub != "" && c.SID != "" && c.JTI != "" && c.Exp != 0
}

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("expired token")
)

// Signer issues and verifies HMAC-SHA256 access tokens of the form
// adr1.<base64url claims>.<base64url mac>.
type Signer struct {
	secret []byte
	now    func() time.Time
}

func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret), now: time.Now}
}

func (s *Signer) WithClock(now func() time.Time) *Signer {
	s.now = now
	return s
}

func (s *Signer) Issue(claims Claims) (string, error) {
	if !claims.complete() {
		return "", fmt.Errorf("issue token: %w: missing claims", ErrInvalidToken)
	}
	raw, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("marshal claims: %w", err)
	}
	signed := tokenVersion + "." + base64.RawURLEncoding.EncodeToString(raw)
	return signed + "." + s.mac(signed), nil
}

func (s *Signer) Parse(token string) (Claims, error) {
	cut := strings.LastIndexByte(token, '.')
	if cut < 0 {
		return Claims{}, ErrInvalidToken
	}
	signed, mac := token[:cut], token[cut+1:]
	if !hmac.Equal([]byte(mac), []byte(s.mac(signed))) {
		return Claims{}, ErrInvalidToken
	}
	version, payload, ok := strings.Cut(signed, ".")
	if !ok || version != tokenVersion {
		return Claims{}, ErrInvalidToken
	}
	raw, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return Claims{}, ErrInvalidToken
	}

	var claims Claims
	if err := json.Unmarshal(raw, &claims); err != nil || !claims.complete() {
		return Claims{}, ErrInvalidToken
	}
	if !s.now().Before(claims.ExpiresAt()) {
		return Claims{}, ErrExpiredToken
	}
	return claims, nil
}

func (s *Signer) mac(signed string) string {
	h := hmac.New(sha256.New, s.secret)
	_, _ = h.Write([]byte(signed))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

// HashToken is the storage key of a refresh token; the raw value is never
// persisted.
func HashToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
