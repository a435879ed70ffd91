package app

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"adrmanager/internal/adr"
	"adrmanager/internal/rbac"
)

func newTestServer(t *testing.T) (*HTTPServer, *Service, *fakeGitLab) {
	t.Helper()
	svc, hub := newTestService(t)
	return NewHTTPServer(svc, "*"), svc, hub
}

func doRequest(t *testing.T, server *HTTPServer, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	return rr
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), target); err != nil {
		t.Fatalf("decode response: %v body=%s", err, rr.Body.String())
	}
}

func patLogin(t *testing.T, server *HTTPServer, token string) map[string]any {
	t.Helper()
	rr := doRequest(t, server, http.MethodPost, "/api/auth/pat", "", map[string]string{"token": token})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var payload map[string]any
	decodeJSON(t, rr, &payload)
	return payload
}

func TestHealthEndpoint(t *testing.T) {
	server, _, _ := newTestServer(t)

	rr := doRequest(t, server, http.MethodGet, "/api/health", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected X-Request-ID header")
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("unexpected CORS header %q", rr.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestReadyEndpoint(t *testing.T) {
	server, _, _ := newTestServer(t)

	rr := doRequest(t, server, http.MethodGet, "/api/ready", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var payload struct {
		Status string                    `json:"status"`
		Checks map[string]map[string]any `json:"checks"`
	}
	decodeJSON(t, rr, &payload)
	if payload.Status != "ready" || payload.Checks["search"]["status"] != "fallback" || payload.Checks["archive"]["status"] != "disabled" {
		t.Fatalf("unexpected readiness %+v", payload)
	}
}

func TestOptionsPreflight(t *testing.T) {
	server, _, _ := newTestServer(t)

	rr := doRequest(t, server, http.MethodOptions, "/api/adrs", "", nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rr.Code)
	}
}

func TestSessionEndpoints(t *testing.T) {
	server, _, _ := newTestServer(t)

	rr := doRequest(t, server, http.MethodGet, "/api/session", "", nil)
	var anon map[string]any
	decodeJSON(t, rr, &anon)
	if anon["authenticated"] != false {
		t.Fatalf("expected anonymous session, got %v", anon)
	}

	login := patLogin(t, server, "glpat-avery")
	token := login["token"].(string)
	if login["userName"] != "Avery Martin" || login["refreshToken"] == "" {
		t.Fatalf("unexpected login payload %v", login)
	}

	rr = doRequest(t, server, http.MethodGet, "/api/session", token, nil)
	var current map[string]any
	decodeJSON(t, rr, &current)
	if current["authenticated"] != true || current["username"] != "avery" {
		t.Fatalf("unexpected session payload %v", current)
	}

	rr = doRequest(t, server, http.MethodPost, "/api/session/refresh", "", map[string]string{"refreshToken": login["refreshToken"].(string)})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var refreshed map[string]any
	decodeJSON(t, rr, &refreshed)

	rr = doRequest(t, server, http.MethodPost, "/api/session/refresh", "", map[string]string{"refreshToken": login["refreshToken"].(string)})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 for a rotated refresh token, got %d", rr.Code)
	}

	newToken := refreshed["token"].(string)
	rr = doRequest(t, server, http.MethodPost, "/api/session/logout", newToken, map[string]string{"refreshToken": refreshed["refreshToken"].(string)})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	rr = doRequest(t, server, http.MethodGet, "/api/projects", newToken, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 after logout, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestPATLoginRejectsBadToken(t *testing.T) {
	server, _, _ := newTestServer(t)

	rr := doRequest(t, server, http.MethodPost, "/api/auth/pat", "", map[string]string{"token": "glpat-nobody"})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d body=%s", rr.Code, rr.Body.String())
	}
	var payload map[string]any
	decodeJSON(t, rr, &payload)
	if payload["code"] != "INVALID_TOKEN" {
		t.Fatalf("unexpected error payload %v", payload)
	}
}

func TestLoginRedirectWithoutOAuth(t *testing.T) {
	server, _, _ := newTestServer(t)

	rr := doRequest(t, server, http.MethodGet, "/api/auth/login", "", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	server, _, _ := newTestServer(t)

	for _, path := range []string{"/api/adrs", "/api/config", "/api/dashboard", "/api/search?q=x"} {
		rr := doRequest(t, server, http.MethodGet, path, "", nil)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected status 401, got %d", path, rr.Code)
		}
	}
	rr := doRequest(t, server, http.MethodGet, "/api/adrs", "not-a-token", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 for garbage token, got %d", rr.Code)
	}
}

func TestConfigRoutes(t *testing.T) {
	server, _, _ := newTestServer(t)
	token := patLogin(t, server, "glpat-avery")["token"].(string)

	rr := doRequest(t, server, http.MethodGet, "/api/adrs", token, nil)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409 before configuration, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doRequest(t, server, http.MethodPut, "/api/config", token, map[string]any{"gitlab": map[string]string{"projectId": "42"}})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var payload struct {
		Configured bool `json:"configured"`
		Config     struct {
			GitLab struct {
				ProjectName string `json:"projectName"`
			} `json:"gitlab"`
		} `json:"config"`
	}
	decodeJSON(t, rr, &payload)
	if !payload.Configured || payload.Config.GitLab.ProjectName != "decisions" {
		t.Fatalf("unexpected config payload %s", rr.Body.String())
	}

	rr = doRequest(t, server, http.MethodGet, "/api/projects", token, nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "platform/decisions") {
		t.Fatalf("unexpected projects response %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doRequest(t, server, http.MethodDelete, "/api/config", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	rr = doRequest(t, server, http.MethodGet, "/api/dashboard", token, nil)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409 after reset, got %d", rr.Code)
	}
}

func TestADRRoutes(t *testing.T) {
	server, _, _ := newTestServer(t)
	token := patLogin(t, server, "glpat-avery")["token"].(string)
	doRequest(t, server, http.MethodPut, "/api/config", token, map[string]any{"gitlab": map[string]string{"projectId": "42"}})

	rr := doRequest(t, server, http.MethodPost, "/api/adrs", token, map[string]any{
		"title":   "Use PostgreSQL",
		"tags":    []string{"database", "storage"},
		"context": "We need a relational store.",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	var created adr.ADR
	decodeJSON(t, rr, &created)
	if created.ID == "" || created.Slug != "use-postgresql" {
		t.Fatalf("unexpected created record %+v", created.Record)
	}

	rr = doRequest(t, server, http.MethodPost, "/api/adrs", token, map[string]any{"title": "   "})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422 for blank title, got %d", rr.Code)
	}

	rr = doRequest(t, server, http.MethodPut, "/api/adrs/"+created.ID, token, map[string]any{
		"updates": map[string]any{"status": "accepted"},
		"changes": "Approved",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var updated adr.ADR
	decodeJSON(t, rr, &updated)
	if updated.Version != "1.1" || len(updated.History) != 1 {
		t.Fatalf("unexpected update %+v", updated)
	}

	rr = doRequest(t, server, http.MethodGet, "/api/adrs?status=accepted&tags=storage,unknown", token, nil)
	var list struct {
		ADRs  []adr.ADR `json:"adrs"`
		Total int       `json:"total"`
	}
	decodeJSON(t, rr, &list)
	if list.Total != 1 {
		t.Fatalf("expected 1 filtered adr, got %d body=%s", list.Total, rr.Body.String())
	}

	rr = doRequest(t, server, http.MethodGet, "/api/adrs?status=rejected", token, nil)
	decodeJSON(t, rr, &list)
	if list.Total != 0 {
		t.Fatalf("expected no rejected adrs, got %d", list.Total)
	}

	rr = doRequest(t, server, http.MethodGet, "/api/adrs/"+created.ID+"/history", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doRequest(t, server, http.MethodGet, "/api/git/status", token, nil)
	var status adr.RepoStatus
	decodeJSON(t, rr, &status)
	if status.Branch != "main" || status.TotalCommits < 3 || status.LastCommit == nil {
		t.Fatalf("unexpected git status %+v", status)
	}

	rr = doRequest(t, server, http.MethodGet, "/api/git/commits/"+status.LastCommit.ID+"/diff", token, nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), created.ID+".json") {
		t.Fatalf("unexpected diff response %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doRequest(t, server, http.MethodDelete, "/api/adrs/"+created.ID, token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	rr = doRequest(t, server, http.MethodGet, "/api/adrs/"+created.ID, token, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 after delete, got %d", rr.Code)
	}
}

func TestADRExportRoute(t *testing.T) {
	server, _, _ := newTestServer(t)
	token := patLogin(t, server, "glpat-avery")["token"].(string)
	doRequest(t, server, http.MethodPut, "/api/config", token, map[string]any{"gitlab": map[string]string{"projectId": "42"}})

	rr := doRequest(t, server, http.MethodPost, "/api/adrs", token, map[string]any{"title": "Use PostgreSQL"})
	var created adr.ADR
	decodeJSON(t, rr, &created)

	rr = doRequest(t, server, http.MethodGet, "/api/adrs/"+created.ID+"/export?format=md", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if got := rr.Header().Get("Content-Disposition"); got != `attachment; filename="use-postgresql.md"` {
		t.Fatalf("unexpected Content-Disposition %q", got)
	}
	if !strings.Contains(rr.Body.String(), "# ADR-"+created.ID+" - Use PostgreSQL") {
		t.Fatalf("unexpected markdown body %s", rr.Body.String())
	}

	rr = doRequest(t, server, http.MethodGet, "/api/adrs/"+created.ID+"/export?format=odt", token, nil)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422 for unknown format, got %d", rr.Code)
	}

	rr = doRequest(t, server, http.MethodGet, "/api/export", token, nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Header().Get("Content-Disposition"), "adr-export-") {
		t.Fatalf("unexpected repository export %d headers=%v", rr.Code, rr.Header())
	}
	var dump adr.RepositoryExport
	decodeJSON(t, rr, &dump)
	if len(dump.Repository.ADRs) != 1 {
		t.Fatalf("expected 1 exported adr, got %d", len(dump.Repository.ADRs))
	}

	rr = doRequest(t, server, http.MethodGet, "/api/export/archives", token, nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503 without archive storage, got %d", rr.Code)
	}
}

func TestViewerWriteIsForbidden(t *testing.T) {
	server, _, hub := newTestServer(t)
	token := patLogin(t, server, "glpat-avery")["token"].(string)
	doRequest(t, server, http.MethodPut, "/api/config", token, map[string]any{"gitlab": map[string]string{"projectId": "42"}})
	hub.setLevel(rbac.AccessReporter)

	rr := doRequest(t, server, http.MethodPost, "/api/adrs", token, map[string]any{"title": "Nope"})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d body=%s", rr.Code, rr.Body.String())
	}
	rr = doRequest(t, server, http.MethodPost, "/api/search/reindex", token, nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503 without search engine, got %d", rr.Code)
	}
}

func TestSearchRoute(t *testing.T) {
	server, _, _ := newTestServer(t)
	token := patLogin(t, server, "glpat-avery")["token"].(string)
	doRequest(t, server, http.MethodPut, "/api/config", token, map[string]any{"gitlab": map[string]string{"projectId": "42"}})
	doRequest(t, server, http.MethodPost, "/api/adrs", token, map[string]any{"title": "Adopt Kafka", "decision": "Events go through Kafka."})
	doRequest(t, server, http.MethodPost, "/api/adrs", token, map[string]any{"title": "Use PostgreSQL"})

	rr := doRequest(t, server, http.MethodGet, "/api/search?q=kafka", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var payload struct {
		Total  int    `json:"total"`
		Source string `json:"source"`
	}
	decodeJSON(t, rr, &payload)
	if payload.Total != 1 || payload.Source != "fallback" {
		t.Fatalf("unexpected search payload %s", rr.Body.String())
	}

	rr = doRequest(t, server, http.MethodGet, "/api/search?q=kafka&limit=abc", token, nil)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", rr.Code)
	}
}

func TestUnknownRoute(t *testing.T) {
	server, _, _ := newTestServer(t)
	token := patLogin(t, server, "glpat-avery")["token"].(string)

	rr := doRequest(t, server, http.MethodGet, "/api/nothing-here", token, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}
