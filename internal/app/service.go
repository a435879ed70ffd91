package app

import (
	"context"
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
	"adrmanager/internal/config"
	"adrmanager/internal/export"
	"adrmanager/internal/gitlab"
	"adrmanager/internal/rbac"
	"adrmanager/internal/search"
	"adrmanager/internal/store"
	"adrmanager/internal/util"
)

const oauthStateTTL = 10 * time.Minute

type Session struct {
	Token        string
	RefreshToken string
	SessionID    string
	UserID       string
	UserName     string
	Username     string
	JTI          string
	ExpiresAt    time.Time
}

func (s Session) identity() adr.Identity {
	name := s.UserName
	if name == "" {
		name = s.Username
	}
	return adr.Identity{Name: name}
}

// SessionStore is implemented by session.RedisStore and store.PostgresStore.
type SessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash string, sess store.Session, expiresAt time.Time) error
	ConsumeRefreshSession(ctx context.Context, tokenHash string) (store.Session, error)
	RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error
	IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error)
	SaveCredential(ctx context.Context, sessionID string, sealed []byte, expiresAt time.Time) error
	LoadCredential(ctx context.Context, sessionID string) ([]byte, error)
	DeleteCredential(ctx context.Context, sessionID string) error
	SaveOAuthState(ctx context.Context, state string, data store.OAuthState, ttl time.Duration) error
	ConsumeOAuthState(ctx context.Context, state string) (store.OAuthState, error)
	LoadAppConfig(ctx context.Context, userID string) (appconfig.AppConfig, error)
	SaveAppConfig(ctx context.Context, userID string, cfg appconfig.AppConfig) error
	DeleteAppConfig(ctx context.Context, userID string) error
	Ping(ctx context.Context) error
}

// GitLab is what a session can do on the GitLab instance.
type GitLab interface {
	CurrentUser(ctx context.Context) (gitlab.User, error)
	Projects(ctx context.Context) ([]gitlab.Project, error)
	Project(ctx context.Context, projectID string) (gitlab.Project, error)
	Backend(projectID string) adr.Backend
}

// Connector builds a GitLab client authenticated by source.
type Connector func(source gitlab.TokenSource) (GitLab, error)

type gitlabClient struct {
	*gitlab.Client
}

func (c gitlabClient) Backend(projectID string) adr.Backend {
	return c.ProjectFiles(projectID)
}

func NewConnector(gitlabURL string, timeout time.Duration) Connector {
	return func(source gitlab.TokenSource) (GitLab, error) {
		client, err := gitlab.NewClient(gitlabURL, source, timeout)
		if err != nil {
			return nil, err
		}
		return gitlabClient{Client: client}, nil
	}
}

type Service struct {
	cfg      config.Config
	store    SessionStore
	connect  Connector
	oauth    *auth.OAuth
	sealer   *auth.Sealer
	signer   *auth.Signer
	search   *search.Service
	archive  *archive.Archive
	exporter *export.Service
	logger   *slog.Logger
	now      func() time.Time
}

func New(cfg config.Config, sessions SessionStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cfg:      cfg,
		store:    sessions,
		connect:  NewConnector(cfg.GitLabURL, cfg.GitLabTimeout),
		oauth:    auth.NewOAuth(cfg.GitLabURL, cfg.GitLabClientID, cfg.GitLabClientSecret, cfg.GitLabRedirectURL),
		sealer:   auth.NewSealer(cfg.SealKey),
		signer:   auth.NewSigner(cfg.JWTSecret),
		search:   search.NewService(nil, logger),
		exporter: export.NewService(export.ParseLanguage(cfg.ExportLang)),
		logger:   logger,
		now:      time.Now,
	}
}

func (s *Service) WithConnector(connect Connector) *Service {
	s.connect = connect
	return s
}

func (s *Service) WithSearch(svc *search.Service) *Service {
	s.search = svc
	return s
}

// WithArchive enables repository archives; nil leaves them disabled.
func (s *Service) WithArchive(a *archive.Archive) *Service {
	s.archive = a
	return s
}

func (s *Service) WithOAuth(o *auth.OAuth) *Service {
	s.oauth = o
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) SearchAvailable() bool {
	return s.search.Available()
}

func (s *Service) ArchiveEnabled() bool {
	return s.archive != nil
}

// LoginURL stores a fresh state nonce and returns the GitLab authorize URL.
func (s *Service) LoginURL(ctx context.Context, redirectTo string) (string, error) {
	if !s.oauth.Enabled() {
		return "", errUnavailable("OAUTH_DISABLED", "GitLab OAuth is not configured")
	}
	state := auth.NewState()
	pending := store.OAuthState{RedirectTo: s.safeRedirect(redirectTo), CreatedAt: time.Now()}
	if err := s.store.SaveOAuthState(ctx, state, pending, oauthStateTTL); err != nil {
		return "", fmt.Errorf("save oauth state: %w", err)
	}
	return s.oauth.AuthCodeURL(state), nil
}

// CompleteOAuth checks the state nonce, exchanges the code and opens a
// session. It also returns where the browser should go next.
func (s *Service) CompleteOAuth(ctx context.Context, code, state string) (Session, string, error) {
	if strings.TrimSpace(code) == "" || strings.TrimSpace(state) == "" {
		return Session{}, "", domainError(http.StatusBadRequest, "INVALID_CALLBACK", "code and state are required", nil)
	}
	pending, err := s.store.ConsumeOAuthState(ctx, state)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Session{}, "", domainError(http.StatusBadRequest, "INVALID_STATE", "OAuth state is invalid or expired", nil)
		}
		return Session{}, "", fmt.Errorf("consume oauth state: %w", err)
	}
	cred, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		s.logger.Warn("oauth code exchange failed", "error", err)
		return Session{}, "", domainError(http.StatusUnauthorized, "OAUTH_FAILED", "Authorization code exchange failed", nil)
	}
	session, err := s.establish(ctx, cred)
	if err != nil {
		return Session{}, "", err
	}
	redirect := pending.RedirectTo
	if redirect == "" {
		redirect = s.cfg.FrontendURL
	}
	return session, redirect, nil
}

// LoginWithToken opens a session from a GitLab personal access token.
func (s *Service) LoginWithToken(ctx context.Context, token string) (Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Session{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "token is required", nil)
	}
	session, err := s.establish(ctx, auth.Credential{Kind: auth.CredentialPAT, AccessToken: token})
	if err != nil {
		if gitlab.IsUnauthorized(err) {
			return Session{}, domainError(http.StatusUnauthorized, "INVALID_TOKEN", "invalid personal access token", nil)
		}
		return Session{}, err
	}
	return session, nil
}

func (s *Service) establish(ctx context.Context, cred auth.Credential) (Session, error) {
	client, err := s.connect(auth.NewCredentialSource(cred, s.oauth))
	if err != nil {
		return Session{}, err
	}
	user, err := client.CurrentUser(ctx)
	if err != nil {
		return Session{}, fmt.Errorf("fetch gitlab user: %w", err)
	}
	record := store.Session{
		ID:          util.NewID("sid"),
		UserID:      strconv.FormatInt(user.ID, 10),
		Username:    user.Username,
		DisplayName: firstNonEmpty(user.Name, user.Username),
		CreatedAt:   time.Now(),
	}
	if err := s.saveCredential(ctx, record.ID, cred); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, record)
}

func (s *Service) saveCredential(ctx context.Context, sessionID string, cred auth.Credential) error {
	sealed, err := s.sealer.Seal(cred)
	if err != nil {
		return fmt.Errorf("seal credential: %w", err)
	}
	if err := s.store.SaveCredential(ctx, sessionID, sealed, time.Now().Add(s.cfg.RefreshTTL)); err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	return nil
}

func (s *Service) issueSession(ctx context.Context, record store.Session) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := s.signer.Issue(auth.Claims{
		Sub:      record.UserID,
		Name:     record.DisplayName,
		Username: record.Username,
		SID:      record.ID,
		JTI:      jti,
		Exp:      expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewSecret(32)
	if err := s.store.SaveRefreshSession(ctx, auth.HashToken(refresh), record, now.Add(s.cfg.RefreshTTL)); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		SessionID:    record.ID,
		UserID:       record.UserID,
		UserName:     record.DisplayName,
		Username:     record.Username,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

// Refresh rotates the refresh token. A session whose GitLab credential was
// dropped cannot be refreshed.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	if refreshToken == "" {
		return Session{}, auth.ErrInvalidToken
	}
	tokenHash := auth.HashToken(refreshToken)
	record, err := s.store.ConsumeRefreshSession(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Session{}, auth.ErrInvalidToken
		}
		return Session{}, err
	}
	if _, err := s.store.LoadCredential(ctx, record.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Session{}, auth.ErrInvalidToken
		}
		return Session{}, err
	}
	return s.issueSession(ctx, record)
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := s.signer.Parse(token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	return Session{
		Token:     token,
		SessionID: claims.SID,
		UserID:    claims.Sub,
		UserName:  claims.Name,
		Username:  claims.Username,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

// Logout revokes the access token and refresh token and drops the GitLab
// credential. Failures are logged; logout always succeeds for the caller.
func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	sessionID := session.SessionID
	if session.JTI != "" {
		if err := s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt); err != nil {
			s.logger.Warn("revoke access token", "error", err)
		}
	}
	if refreshToken != "" {
		tokenHash := auth.HashToken(refreshToken)
		record, err := s.store.ConsumeRefreshSession(ctx, tokenHash)
		switch {
		case err == nil:
			if sessionID == "" {
				sessionID = record.ID
			}
		case !errors.Is(err, store.ErrNotFound):
			s.logger.Warn("revoke refresh session", "error", err)
		}
	}
	if sessionID != "" {
		if err := s.store.DeleteCredential(ctx, sessionID); err != nil {
			s.logger.Warn("delete gitlab credential", "session_id", sessionID, "error", err)
		}
	}
	return nil
}

func (s *Service) gitlabFor(ctx context.Context, session Session) (GitLab, error) {
	sealed, err := s.store.LoadCredential(ctx, session.SessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, errGitLabSession()
		}
		return nil, fmt.Errorf("load credential: %w", err)
	}
	cred, err := s.sealer.Open(sealed)
	if err != nil {
		s.dropCredential(ctx, session.SessionID, err)
		return nil, errGitLabSession()
	}
	source := auth.NewCredentialSource(cred, s.oauth)
	source.Saved = func(ctx context.Context, next auth.Credential) error {
		return s.saveCredential(ctx, session.SessionID, next)
	}
	source.Failed = func(ctx context.Context) {
		s.dropCredential(ctx, session.SessionID, auth.ErrNoRefresh)
	}
	return s.connect(source)
}

func (s *Service) dropCredential(ctx context.Context, sessionID string, reason error) {
	s.logger.Warn("dropping gitlab credential", "session_id", sessionID, "reason", reason)
	if err := s.store.DeleteCredential(ctx, sessionID); err != nil {
		s.logger.Warn("delete gitlab credential", "session_id", sessionID, "error", err)
	}
}

func errGitLabSession() *DomainError {
	return domainError(http.StatusUnauthorized, "GITLAB_SESSION_EXPIRED", "GitLab session expired, sign in again", nil)
}

// Workspace is the configured project as seen by one session.
type Workspace struct {
	Config  appconfig.AppConfig
	Project gitlab.Project
	Role    rbac.Role
	ADRs    *adr.Service
}

func (w *Workspace) ProjectID() string {
	return w.Config.GitLab.ProjectID
}

// workspace resolves the caller's configured project and checks that their
// GitLab access level allows action.
func (s *Service) workspace(ctx context.Context, session Session, action rbac.Action) (*Workspace, error) {
	cfg, err := s.store.LoadAppConfig(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("load app config: %w", err)
	}
	if !cfg.IsConfigured() {
		return nil, errConfigRequired()
	}
	gl, err := s.gitlabFor(ctx, session)
	if err != nil {
		return nil, err
	}
	project, err := gl.Project(ctx, cfg.GitLab.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("load project %s: %w", cfg.GitLab.ProjectID, err)
	}
	role := rbac.FromAccessLevel(project.AccessLevel())
	if !rbac.Can(role, action) {
		return nil, errForbidden(string(action))
	}
	adrs := adr.NewService(gl.Backend(cfg.GitLab.ProjectID), cfg.GitLab.ADRPath, cfg.GitLab.Branch, s.logger).WithClock(s.now)
	return &Workspace{Config: cfg, Project: project, Role: role, ADRs: adrs}, nil
}

func (s *Service) Config(ctx context.Context, session Session) (appconfig.AppConfig, error) {
	cfg, err := s.store.LoadAppConfig(ctx, session.UserID)
	if err != nil {
		return appconfig.AppConfig{}, fmt.Errorf("load app config: %w", err)
	}
	return cfg, nil
}

// UpdateConfig merges partial into the stored config. A new project id is
// checked against GitLab and fills in the project name and path.
func (s *Service) UpdateConfig(ctx context.Context, session Session, partial appconfig.GitLab) (appconfig.AppConfig, error) {
	current, err := s.Config(ctx, session)
	if err != nil {
		return appconfig.AppConfig{}, err
	}
	partial.ProjectID = strings.TrimSpace(partial.ProjectID)
	if partial.ProjectID != "" {
		gl, err := s.gitlabFor(ctx, session)
		if err != nil {
			return appconfig.AppConfig{}, err
		}
		project, err := gl.Project(ctx, partial.ProjectID)
		if err != nil {
			return appconfig.AppConfig{}, fmt.Errorf("load project %s: %w", partial.ProjectID, err)
		}
		if !rbac.Can(rbac.FromAccessLevel(project.AccessLevel()), rbac.ActionRead) {
			return appconfig.AppConfig{}, errForbidden(string(rbac.ActionRead))
		}
		if partial.ProjectName == "" {
			partial.ProjectName = project.Name
		}
		if partial.ProjectPath == "" {
			partial.ProjectPath = project.PathWithNamespace
		}
		if partial.Branch == "" && !current.Initialized && project.DefaultBranch != "" {
			partial.Branch = project.DefaultBranch
		}
	}
	next := appconfig.Merge(current, partial)
	if !next.IsConfigured() {
		return appconfig.AppConfig{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "projectId is required", nil)
	}
	if err := s.store.SaveAppConfig(ctx, session.UserID, next); err != nil {
		return appconfig.AppConfig{}, fmt.Errorf("save app config: %w", err)
	}
	return next, nil
}

func (s *Service) ResetConfig(ctx context.Context, session Session) (appconfig.AppConfig, error) {
	if err := s.store.DeleteAppConfig(ctx, session.UserID); err != nil {
		return appconfig.AppConfig{}, fmt.Errorf("reset app config: %w", err)
	}
	return appconfig.Default(), nil
}

type ProjectView struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	NameWithNamespace string `json:"nameWithNamespace"`
	PathWithNamespace string `json:"pathWithNamespace"`
	WebURL            string `json:"webUrl"`
	DefaultBranch     string `json:"defaultBranch"`
}

func (s *Service) Projects(ctx context.Context, session Session) ([]ProjectView, error) {
	gl, err := s.gitlabFor(ctx, session)
	if err != nil {
		return nil, err
	}
	projects, err := gl.Projects(ctx)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	views := make([]ProjectView, 0, len(projects))
	for _, p := range projects {
		views = append(views, ProjectView{
			ID:                strconv.FormatInt(p.ID, 10),
			Name:              p.Name,
			NameWithNamespace: p.NameWithNamespace,
			PathWithNamespace: p.PathWithNamespace,
			WebURL:            p.WebURL,
			DefaultBranch:     p.DefaultBranch,
		})
	}
	return views, nil
}

func (s *Service) Dashboard(ctx context.Context, session Session) (adr.Dashboard, error) {
	ws, err := s.workspace(ctx, session, rbac.ActionRead)
	if err != nil {
		return adr.Dashboard{}, err
	}
	return ws.ADRs.Dashboard(ctx)
}

func (s *Service) ListADRs(ctx context.Context, session Session, filter adr.Filter) ([]adr.ADR, error) {
	ws, err := s.workspace(ctx, session, rbac.ActionRead)
	if err != nil {
		return nil, err
	}
	if filter.IsZero() {
		return ws.ADRs.List(ctx)
	}
	return ws.ADRs.Filter(ctx, filter)
}

func (s *Service) GetADR(ctx context.Context, session Session, id string) (adr.ADR, error) {
	ws, err := s.workspace(ctx, session, rbac.ActionRead)
	if err != nil {
		return adr.ADR{}, err
	}
	return ws.ADRs.Get(ctx, id)
}

func (s *Service) CreateADR(ctx context.Context, session Session, input adr.Record) (adr.ADR, error) {
	ws, err := s.workspace(ctx, session, rbac.ActionWrite)
	if err != nil {
		return adr.ADR{}, err
	}
	created, err := ws.ADRs.Create(ctx, input, session.identity())
	if err != nil {
		return adr.ADR{}, err
	}
	s.search.IndexADR(ws.ProjectID(), created)
	return created, nil
}

func (s *Service) UpdateADR(ctx context.Context, session Session, id string, updates json.RawMessage, changes string) (adr.ADR, error) {
	ws, err := s.workspace(ctx, session, rbac.ActionWrite)
	if err != nil {
		return adr.ADR{}, err
	}
	updated, err := ws.ADRs.Update(ctx, id, updates, changes, session.identity())
	if err != nil {
		return adr.ADR{}, err
	}
	s.search.IndexADR(ws.ProjectID(), updated)
	return updated, nil
}

func (s *Service) DeleteADR(ctx context.Context, session Session, id string) error {
	ws, err := s.workspace(ctx, session, rbac.ActionWrite)
	if err != nil {
		return err
	}
	if err := ws.ADRs.Delete(ctx, id, session.identity()); err != nil {
		return err
	}
	s.search.DeleteADR(ws.ProjectID(), id)
	return nil
}

func (s *Service) History(ctx context.Context, session Session, id string) ([]adr.HistoryEntry, error) {
	ws, err := s.workspace(ctx, session, rbac.ActionRead)
	if err != nil {
		return nil, err
	}
	return ws.ADRs.History(ctx, id)
}

func (s *Service) ExportADR(ctx context.Context, session Session, id string, format export.Format) (*export.Result, error) {
	ws, err := s.workspace(ctx, session, rbac.ActionRead)
	if err != nil {
		return nil, err
	}
	record, err := ws.ADRs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.exporter.Export(ctx, record.Record, format)
}

func (s *Service) GitStatus(ctx context.Context, session Session) (adr.RepoStatus, error) {
	ws, err := s.workspace(ctx, session, rbac.ActionRead)
	if err != nil {
		return adr.RepoStatus{}, err
	}
	return ws.ADRs.Status(ctx)
}

func (s *Service) CommitDiff(ctx context.Context, session Session, sha string) ([]adr.FileDiff, error) {
	ws, err := s.workspace(ctx, session, rbac.ActionRead)
	if err != nil {
		return nil, err
	}
	return ws.ADRs.CommitDiff(ctx, sha)
}

func (s *Service) ExportRepository(ctx context.Context, session Session) ([]byte, error) {
	ws, err := s.workspace(ctx, session, rbac.ActionRead)
	if err != nil {
		return nil, err
	}
	return ws.ADRs.ExportRepository(ctx)
}

func (s *Service) ArchiveRepository(ctx context.Context, session Session) (archive.Entry, error) {
	if s.archive == nil {
		return archive.Entry{}, errUnavailable("ARCHIVE_DISABLED", "Export archives are not configured")
	}
	ws, err := s.workspace(ctx, session, rbac.ActionWrite)
	if err != nil {
		return archive.Entry{}, err
	}
	payload, err := ws.ADRs.ExportRepository(ctx)
	if err != nil {
		return archive.Entry{}, err
	}
	return s.archive.Save(ctx, ws.ProjectID(), payload, s.now())
}

func (s *Service) ListArchives(ctx context.Context, session Session) ([]archive.Entry, error) {
	if s.archive == nil {
		return nil, errUnavailable("ARCHIVE_DISABLED", "Export archives are not configured")
	}
	ws, err := s.workspace(ctx, session, rbac.ActionRead)
	if err != nil {
		return nil, err
	}
	return s.archive.List(ctx, ws.ProjectID())
}

func (s *Service) GetArchive(ctx context.Context, session Session, name string) ([]byte, error) {
	if s.archive == nil {
		return nil, errUnavailable("ARCHIVE_DISABLED", "Export archives are not configured")
	}
	ws, err := s.workspace(ctx, session, rbac.ActionRead)
	if err != nil {
		return nil, err
	}
	return s.archive.Get(ctx, ws.ProjectID(), name)
}

func (s *Service) Search(ctx context.Context, session Session, q search.Query) (search.Response, error) {
	ws, err := s.workspace(ctx, session, rbac.ActionRead)
	if err != nil {
		return search.Response{}, err
	}
	q.ProjectID = ws.ProjectID()
	return s.search.Search(ctx, q, ws.ADRs)
}

func (s *Service) Reindex(ctx context.Context, session Session) (int, error) {
	if !s.search.Available() {
		return 0, errUnavailable("SEARCH_UNAVAILABLE", "Search engine is not available")
	}
	ws, err := s.workspace(ctx, session, rbac.ActionAdmin)
	if err != nil {
		return 0, err
	}
	return s.search.Reindex(ctx, ws.ProjectID(), ws.ADRs)
}

// safeRedirect keeps post-login redirects on the frontend: relative paths or
// URLs on the configured frontend origin.
func (s *Service) safeRedirect(target string) string {
	target = strings.TrimSpace(target)
	if target == "" {
		return ""
	}
	// Browsers read "\" as "/" and drop tabs and newlines, so "/\host" and
	// "/\t/host" would leave the origin.
	for _, r := range target {
		if r == '\\' || r < 0x20 || r == 0x7f {
			return ""
		}
	}
	got, err := url.Parse(target)
	if err != nil {
		return ""
	}
	if got.Scheme == "" && got.Host == "" {
		if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") {
			return ""
		}
		return target
	}
	want, err := url.Parse(s.cfg.FrontendURL)
	if err != nil || want.Host == "" {
		return ""
	}
	resolved := want.ResolveReference(got)
	if resolved.Scheme != want.Scheme || resolved.Host != want.Host || got.User != nil {
		return ""
	}
	return target
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
