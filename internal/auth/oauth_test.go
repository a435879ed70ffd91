package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func tokenServer(t *testing.T, grants *[]url.Values) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/oauth/token" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if err := r.ParseForm(); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		*grants = append(*grants, r.PostForm)
		w.Header().Set("Content-Type", "application/json")
		switch r.PostForm.Get("grant_type") {
		case "authorization_code":
			if r.PostForm.Get("code") != "good-code" {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
				return
			}
			_, _ = w.Write([]byte(`{"access_token":"at-1","refresh_token":"rt-1","token_type":"Bearer","expires_in":7200}`))
		case "refresh_token":
			if r.PostForm.Get("refresh_token") != "rt-1" {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
				return
			}
			_, _ = w.Write([]byte(`{"access_token":"at-2","refresh_token":"rt-2","token_type":"Bearer","expires_in":7200}`))
		}
	}))
}

func TestAuthCodeURL(t *testing.T) {
	o := NewOAuth("https://gitlab.example.com/", "client", "secret", "https://adr.example.com/api/auth/callback")
	raw := o.AuthCodeURL("state-123")
	parsed, err := url.Parse(raw)
	require.NoError(t, err)
	require.Equal(t, "/oauth/authorize", parsed.Path)
	q := parsed.Query()
	require.Equal(t, "client", q.Get("client_id"))
	require.Equal(t, "code", q.Get("response_type"))
	require.Equal(t, "state-123", q.Get("state"))
	require.Equal(t, "api read_user read_repository write_repository", q.Get("scope"))
	require.Equal(t, "https://adr.example.com/api/auth/callback", q.Get("redirect_uri"))
}

func TestExchangeAndRefresh(t *testing.T) {
	var grants []url.Values
	srv := tokenServer(t, &grants)
	defer srv.Close()

	o := NewOAuth(srv.URL, "client", "secret", "http://localhost/cb")
	ctx := context.Background()

	cred, err := o.Exchange(ctx, "good-code")
	require.NoError(t, err)
	require.Equal(t, CredentialOAuth, cred.Kind)
	require.Equal(t, "at-1", cred.AccessToken)
	require.Equal(t, "rt-1", cred.RefreshToken)
	require.False(t, cred.Expiry.IsZero())
	require.Equal(t, "client", grants[0].Get("client_id"), "client credentials travel in the body")

	_, err = o.Exchange(ctx, "bad-code")
	require.Error(t, err)

	next, err := o.Refresh(ctx, "rt-1")
	require.NoError(t, err)
	require.Equal(t, "at-2", next.AccessToken)
	require.Equal(t, "rt-2", next.RefreshToken)
}

func TestCredentialSourceRefresh(t *testing.T) {
	var grants []url.Values
	srv := tokenServer(t, &grants)
	defer srv.Close()
	o := NewOAuth(srv.URL, "client", "secret", "http://localhost/cb")
	ctx := context.Background()

	var saved []Credential
	source := NewCredentialSource(Credential{Kind: CredentialOAuth, AccessToken: "at-1", RefreshToken: "rt-1"}, o)
	source.Saved = func(_ context.Context, c Credential) error {
		saved = append(saved, c)
		return nil
	}
	token, err := source.Refresh(ctx)
	require.NoError(t, err)
	require.Equal(t, "at-2", token)
	require.Len(t, saved, 1)
	current, _ := source.Token(ctx)
	require.Equal(t, "at-2", current)

	// rt-2 is unknown to the server: the refresh fails and the failure hook runs
	failed := false
	source.Failed = func(context.Context) { failed = true }
	_, err = source.Refresh(ctx)
	require.Error(t, err)
	require.True(t, failed)
}

func TestPATSourceDoesNotRefresh(t *testing.T) {
	source := NewCredentialSource(Credential{Kind: CredentialPAT, AccessToken: "glpat"}, NewOAuth("http://x", "c", "s", ""))
	_, err := source.Refresh(context.Background())
	require.True(t, errors.Is(err, ErrNoRefresh))
}

func TestSealRoundTrip(t *testing.T) {
	sealer := NewSealer("k1")
	cred := Credential{Kind: CredentialPAT, AccessToken: "glpat-secret"}
	sealed, err := sealer.Seal(cred)
	require.NoError(t, err)
	require.False(t, strings.Contains(string(sealed), "glpat-secret"))

	opened, err := sealer.Open(sealed)
	require.NoError(t, err)
	require.Equal(t, cred.AccessToken, opened.AccessToken)

	_, err = NewSealer("k2").Open(sealed)
	require.ErrorIs(t, err, ErrSealedData)
	_, err = sealer.Open([]byte("short"))
	require.ErrorIs(t, err, ErrSealedData)
}

func TestNewStateIsUnique(t *testing.T) {
	require.NotEqual(t, NewState(), NewState())
}
