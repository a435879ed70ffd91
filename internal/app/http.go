package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"adrmanager/internal/adr"
	"adrmanager/internal/appconfig"
	"adrmanager/internal/archive"
	"adrmanager/internal/auth"
	"adrmanager/internal/export"
	"adrmanager/internal/gitlab"
	"adrmanager/internal/search"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
	logger     *slog.Logger
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin, logger: service.logger}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		s.handleReady(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/auth/login" {
		target, err := s.service.LoginURL(r.Context(), r.URL.Query().Get("redirect"))
		if err != nil {
			s.fail(w, err)
			return
		}
		http.Redirect(w, r, target, http.StatusFound)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/auth/callback" {
		s.handleOAuthCallback(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/pat" {
		var body struct {
			Token string `json:"token"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		session, err := s.service.LoginWithToken(r.Context(), body.Token)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sessionPayload(session))
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/session" {
		token := bearerToken(r)
		if token == "" {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "userName": nil})
			return
		}
		session, err := s.service.SessionFromToken(r.Context(), token)
		if err != nil {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "userName": nil})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"authenticated": true,
			"userName":      session.UserName,
			"username":      session.Username,
			"userId":        session.UserID,
			"expiresAt":     session.ExpiresAt.UTC().Format(time.RFC3339),
		})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/session/refresh" {
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		session, err := s.service.Refresh(r.Context(), body.RefreshToken)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Refresh token invalid", nil)
			return
		}
		writeJSON(w, http.StatusOK, sessionPayload(session))
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/session/logout" {
		session := Session{}
		if token := bearerToken(r); token != "" {
			if parsed, err := s.service.SessionFromToken(r.Context(), token); err == nil {
				session = parsed
			}
		}
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		_ = decodeBody(r, &body)
		_ = s.service.Logout(r.Context(), session, body.RefreshToken)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	parts := splitPath(r.URL.Path)

	switch {
	case r.URL.Path == "/api/config":
		s.handleConfig(w, r, session)
		return
	case r.Method == http.MethodGet && r.URL.Path == "/api/projects":
		projects, err := s.service.Projects(r.Context(), session)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"projects": projects})
		return
	case r.Method == http.MethodGet && r.URL.Path == "/api/dashboard":
		dashboard, err := s.service.Dashboard(r.Context(), session)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, dashboard)
		return
	case r.Method == http.MethodGet && r.URL.Path == "/api/search":
		s.handleSearch(w, r, session)
		return
	case r.Method == http.MethodPost && r.URL.Path == "/api/search/reindex":
		count, err := s.service.Reindex(r.Context(), session)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"indexed": count})
		return
	case r.Method == http.MethodGet && r.URL.Path == "/api/git/status":
		status, err := s.service.GitStatus(r.Context(), session)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, status)
		return
	case r.Method == http.MethodGet && len(parts) == 5 && parts[1] == "git" && parts[2] == "commits" && parts[4] == "diff":
		diffs, err := s.service.CommitDiff(r.Context(), session, parts[3])
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sha": parts[3], "diffs": diffs})
		return
	case len(parts) >= 2 && parts[1] == "export":
		s.handleRepositoryExport(w, r, session, parts)
		return
	case len(parts) >= 2 && parts[1] == "adrs":
		s.handleADRs(w, r, session, parts)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"sessions": map[string]any{"status": "ok"},
		"search":   map[string]any{"status": "fallback"},
		"archive":  map[string]any{"status": "disabled"},
	}

	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["sessions"] = map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	}
	if s.service.SearchAvailable() {
		checks["search"] = map[string]any{"status": "ok"}
	}
	if s.service.ArchiveEnabled() {
		checks["archive"] = map[string]any{"status": "ok"}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

// handleOAuthCallback finishes the login and hands the tokens to the frontend
// in the URL fragment, which browsers never send to servers.
func (s *HTTPServer) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if errCode := query.Get("error"); errCode != "" {
		writeError(w, http.StatusUnauthorized, "OAUTH_DENIED", firstNonEmpty(query.Get("error_description"), errCode), nil)
		return
	}
	session, redirect, err := s.service.CompleteOAuth(r.Context(), query.Get("code"), query.Get("state"))
	if err != nil {
		s.fail(w, err)
		return
	}
	fragment := url.Values{}
	fragment.Set("token", session.Token)
	fragment.Set("refreshToken", session.RefreshToken)
	fragment.Set("userName", session.UserName)
	http.Redirect(w, r, redirect+"#"+fragment.Encode(), http.StatusFound)
}

func (s *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request, session Session) {
	var (
		cfg appconfig.AppConfig
		err error
	)
	switch r.Method {
	case http.MethodGet:
		cfg, err = s.service.Config(r.Context(), session)
	case http.MethodPut:
		var body struct {
			GitLab appconfig.GitLab `json:"gitlab"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		cfg, err = s.service.UpdateConfig(r.Context(), session, body.GitLab)
	case http.MethodDelete:
		cfg, err = s.service.ResetConfig(r.Context(), session)
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"config": cfg, "configured": cfg.IsConfigured()})
}

func (s *HTTPServer) handleADRs(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	ctx := r.Context()

	if len(parts) == 2 {
		switch r.Method {
		case http.MethodGet:
			items, err := s.service.ListADRs(ctx, session, filterFromQuery(r.URL.Query()))
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"adrs": items, "total": len(items)})
		case http.MethodPost:
			var input adr.Record
			if err := decodeBody(r, &input); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			created, err := s.service.CreateADR(ctx, session, input)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, created)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	id := parts[2]

	if len(parts) == 3 {
		switch r.Method {
		case http.MethodGet:
			item, err := s.service.GetADR(ctx, session, id)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, item)
		case http.MethodPut:
			var body struct {
				Updates json.RawMessage `json:"updates"`
				Changes string          `json:"changes"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			if len(body.Updates) == 0 {
				writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "updates is required", nil)
				return
			}
			updated, err := s.service.UpdateADR(ctx, session, id, body.Updates, body.Changes)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, updated)
		case http.MethodDelete:
			if err := s.service.DeleteADR(ctx, session, id); err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true, "id": id})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if len(parts) == 4 && r.Method == http.MethodGet && parts[3] == "history" {
		entries, err := s.service.History(ctx, session, id)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": id, "history": entries})
		return
	}

	if len(parts) == 4 && r.Method == http.MethodGet && parts[3] == "export" {
		format, err := export.ParseFormat(r.URL.Query().Get("format"))
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "format must be one of md, html, pdf, docx", nil)
			return
		}
		result, err := s.service.ExportADR(ctx, session, id, format)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeFile(w, result.Filename, result.MimeType, result.Data)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleRepositoryExport(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	ctx := r.Context()
	switch {
	case len(parts) == 2 && r.Method == http.MethodGet:
		payload, err := s.service.ExportRepository(ctx, session)
		if err != nil {
			s.fail(w, err)
			return
		}
		name := fmt.Sprintf("adr-export-%s.json", time.Now().UTC().Format("2006-01-02"))
		writeFile(w, name, "application/json", payload)
	case len(parts) == 3 && parts[2] == "archives" && r.Method == http.MethodGet:
		entries, err := s.service.ListArchives(ctx, session)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"archives": entries})
	case len(parts) == 3 && parts[2] == "archives" && r.Method == http.MethodPost:
		entry, err := s.service.ArchiveRepository(ctx, session)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, entry)
	case len(parts) == 4 && parts[2] == "archives" && r.Method == http.MethodGet:
		data, err := s.service.GetArchive(ctx, session, parts[3])
		if err != nil {
			s.fail(w, err)
			return
		}
		writeFile(w, parts[3], "application/json", data)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request, session Session) {
	values := r.URL.Query()
	filter := filterFromQuery(values)
	q := search.Query{
		Text:     strings.TrimSpace(values.Get("q")),
		Status:   filter.Status,
		Author:   filter.Author,
		Tags:     filter.Tags,
		DateFrom: filter.DateFrom,
		DateTo:   filter.DateTo,
		Limit:    20,
	}
	if q.Text == "" {
		q.Text = filter.Search
	}
	if raw := strings.TrimSpace(values.Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "limit must be an integer", nil)
			return
		}
		q.Limit = parsed
	}
	if raw := strings.TrimSpace(values.Get("offset")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "offset must be an integer", nil)
			return
		}
		q.Offset = parsed
	}

	payload, err := s.service.Search(r.Context(), session, q)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func filterFromQuery(values url.Values) adr.Filter {
	f := adr.Filter{
		Search:   strings.TrimSpace(values.Get("search")),
		Status:   strings.TrimSpace(values.Get("status")),
		Author:   strings.TrimSpace(values.Get("author")),
		DateFrom: strings.TrimSpace(values.Get("dateFrom")),
		DateTo:   strings.TrimSpace(values.Get("dateTo")),
	}
	for _, raw := range values["tags"] {
		for _, tag := range strings.Split(raw, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				f.Tags = append(f.Tags, tag)
			}
		}
	}
	return f
}

func sessionPayload(session Session) map[string]any {
	return map[string]any{
		"token":        session.Token,
		"refreshToken": session.RefreshToken,
		"userName":     session.UserName,
		"username":     session.Username,
		"userId":       session.UserID,
		"expiresAt":    session.ExpiresAt.UTC().Format(time.RFC3339),
	}
}

func (s *HTTPServer) fail(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "code", code, "error", err)
	}
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Session{}, false
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return Session{}, false
		}
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
		return Session{}, false
	}
	return session, true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		s.logger.Info("request",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", writer.status,
			"duration_ms", time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Access-Control-Expose-Headers", "Content-Disposition, X-Request-ID")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeFile(w http.ResponseWriter, filename, mimeType string, data []byte) {
	w.Header().Set("Content-Disposition", "attachment; filename=\""+filename+"\"")
	w.Header().Set("Content-Type", mimeType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	switch {
	case errors.Is(err, adr.ErrNotFound), errors.Is(err, archive.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, adr.ErrConflict):
		return http.StatusConflict, "CONFLICT", err.Error(), nil
	case errors.Is(err, adr.ErrInvalid), errors.Is(err, archive.ErrInvalidName):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil
	case errors.Is(err, export.ErrUnsupportedFormat):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil
	case errors.Is(err, export.ErrPDFDependencyMissing), errors.Is(err, export.ErrDOCXDependencyMissing):
		return http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", err.Error(), nil
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	var gitlabErr *gitlab.ErrorResponse
	if errors.As(err, &gitlabErr) {
		switch gitlabErr.StatusCode {
		case http.StatusUnauthorized:
			return http.StatusUnauthorized, "GITLAB_UNAUTHORIZED", "GitLab rejected the credential", nil
		case http.StatusForbidden:
			return http.StatusForbidden, "FORBIDDEN", "GitLab denied access", nil
		case http.StatusNotFound:
			return http.StatusNotFound, "NOT_FOUND", "GitLab resource not found", nil
		default:
			return http.StatusBadGateway, "GITLAB_ERROR", gitlabErr.Message, map[string]any{"status": gitlabErr.StatusCode}
		}
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
