package gitlab

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ErrCannotRefresh is returned by token sources without a refresh grant.
var ErrCannotRefresh = errors.New("token cannot be refreshed")

// TokenSource supplies the bearer token for GitLab calls. Refresh is called at
// most once per request, after GitLab answered 401.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Refresh(ctx context.Context) (string, error)
}

// StaticToken is a personal access token: it never refreshes.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) { return string(t), nil }

func (t StaticToken) Refresh(context.Context) (string, error) { return "", ErrCannotRefresh }

// Transport adds the bearer token and replays a request once with a refreshed
// token when GitLab rejects the first attempt with 401. A failed refresh
// hands back the original 401 response.
type Transport struct {
	Source TokenSource
	Base   http.RoundTripper
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	token, err := t.Source.Token(ctx)
	if err != nil {
		closeBody(req)
		return nil, err
	}
	req = req.Clone(ctx)
	if err := rewindable(req); err != nil {
		return nil, err
	}

	resp, err := t.base().RoundTrip(withToken(req, token))
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}
	refreshed, err := t.Source.Refresh(ctx)
	if err != nil || refreshed == "" {
		return resp, nil
	}

	retry := withToken(req, refreshed)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return resp, nil
		}
		retry.Body = body
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return t.base().RoundTrip(retry)
}

func withToken(req *http.Request, token string) *http.Request {
	clone := req.Clone(req.Context())
	clone.Header.Del("PRIVATE-TOKEN")
	clone.Header.Set("Authorization", "Bearer "+token)
	return clone
}

// rewindable buffers a request body that cannot be re-read so the request
// can be replayed after a refresh. File writes are small JSON payloads.
func rewindable(req *http.Request) error {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return nil
	}
	data, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return fmt.Errorf("buffer request body: %w", err)
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	req.Body, _ = req.GetBody()
	return nil
}

func closeBody(req *http.Request) {
	if req.Body != nil {
		req.Body.Close()
	}
}
