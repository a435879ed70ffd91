package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

var ErrSealedData = errors.New("sealed data cannot be opened")

type CredentialKind string

const (
	CredentialOAuth CredentialKind = "oauth"
	CredentialPAT   CredentialKind = "pat"
)

// Credential is the GitLab token held on behalf of a session.
type Credential struct {
	Kind         CredentialKind `json:"kind"`
	AccessToken  string         `json:"access_token"`
	RefreshToken string         `json:"refresh_token,omitempty"`
	Expiry       time.Time      `json:"expiry,omitempty"`
}

func (c Credential) CanRefresh() bool {
	return c.Kind == CredentialOAuth && c.RefreshToken != ""
}

// Sealer encrypts credentials at rest with NaCl secretbox. The key is derived
// from an operator-provided secret.
type Sealer struct {
	key [32]byte
}

func NewSealer(secret string) *Sealer {
	return &Sealer{key: sha256.Sum256([]byte(secret))}
}

func (s *Sealer) Seal(cred Credential) ([]byte, error) {
	plain, err := json.Marshal(cred)
	if err != nil {
		return nil, fmt.Errorf("marshal credential: %w", err)
	}
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("read nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], plain, &nonce, &s.key), nil
}

func (s *Sealer) Open(sealed []byte) (Credential, error) {
	if len(sealed) < nonceSize+secretbox.Overhead {
		return Credential{}, ErrSealedData
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	plain, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &s.key)
	if !ok {
		return Credential{}, ErrSealedData
	}
	var cred Credential
	if err := json.Unmarshal(plain, &cred); err != nil {
		return Credential{}, fmt.Errorf("unmarshal credential: %w", err)
	}
	return cred, nil
}
