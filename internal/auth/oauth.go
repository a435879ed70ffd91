package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// Scopes requested from GitLab; write_repository is needed to commit ADRs.
var Scopes = []string{"api", "read_user", "read_repository", "write_repository"}

var (
	ErrOAuthDisabled = errors.New("oauth is not configured")
	ErrNoRefresh     = errors.New("credential cannot be refreshed")
)

// OAuth runs the authorization-code flow against a GitLab instance.
type OAuth struct {
	config oauth2.Config
}

func NewOAuth(gitlabURL, clientID, clientSecret, redirectURL string) *OAuth {
	base := strings.TrimRight(gitlabURL, "/")
	return &OAuth{config: oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   base + "/oauth/authorize",
			TokenURL:  base + "/oauth/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}}
}

func (o *OAuth) Enabled() bool {
	return o != nil && o.config.ClientID != ""
}

// NewState returns a random CSRF nonce for the authorize redirect.
func NewState() string {
	return uuid.NewString()
}

func (o *OAuth) AuthCodeURL(state string) string {
	return o.config.AuthCodeURL(state)
}

func (o *OAuth) Exchange(ctx context.Context, code string) (Credential, error) {
	if !o.Enabled() {
		return Credential{}, ErrOAuthDisabled
	}
	token, err := o.config.Exchange(ctx, code)
	if err != nil {
		return Credential{}, fmt.Errorf("exchange authorization code: %w", err)
	}
	return fromToken(token), nil
}

// Refresh trades a refresh token for a new token pair.
func (o *OAuth) Refresh(ctx context.Context, refreshToken string) (Credential, error) {
	if !o.Enabled() {
		return Credential{}, ErrOAuthDisabled
	}
	if refreshToken == "" {
		return Credential{}, ErrNoRefresh
	}
	token, err := o.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return Credential{}, fmt.Errorf("refresh gitlab token: %w", err)
	}
	cred := fromToken(token)
	if cred.RefreshToken == "" {
		cred.RefreshToken = refreshToken
	}
	return cred, nil
}

func fromToken(token *oauth2.Token) Credential {
	return Credential{
		Kind:         CredentialOAuth,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry,
	}
}

// CredentialSource serves a session's GitLab token and refreshes OAuth
// credentials on demand. Saved receives every refreshed credential; Failed is
// called when a refresh is rejected so the caller can drop the credential.
type CredentialSource struct {
	mu     sync.Mutex
	cred   Credential
	oauth  *OAuth
	Saved  func(context.Context, Credential) error
	Failed func(context.Context)
}

func NewCredentialSource(cred Credential, oauth *OAuth) *CredentialSource {
	return &CredentialSource{cred: cred, oauth: oauth}
}

func (s *CredentialSource) Token(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cred.AccessToken, nil
}

func (s *CredentialSource) Refresh(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.cred.CanRefresh() || !s.oauth.Enabled() {
		return "", ErrNoRefresh
	}
	next, err := s.oauth.Refresh(ctx, s.cred.RefreshToken)
	if err != nil {
		if s.Failed != nil {
			s.Failed(ctx)
		}
		return "", err
	}
	s.cred = next
	if s.Saved != nil {
		if err := s.Saved(ctx, next); err != nil {
			return "", fmt.Errorf("save refreshed credential: %w", err)
		}
	}
	return next.AccessToken, nil
}

func (s *CredentialSource) Credential() Credential {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cred
}
