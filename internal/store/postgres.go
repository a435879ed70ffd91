package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"adrmanager/internal/appconfig"
)

// PostgresStore keeps sessions, sealed credentials, OAuth states and
// per-user application config in Postgres. It is used when no Redis is
// configured.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash string, session Session, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, session_id, user_id, username, display_name, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (token_hash) DO UPDATE SET
			session_id=EXCLUDED.session_id,
			user_id=EXCLUDED.user_id,
			username=EXCLUDED.username,
			display_name=EXCLUDED.display_name,
			expires_at=EXCLUDED.expires_at,
			revoked_at=NULL
	`, tokenHash, session.ID, session.UserID, session.Username, session.DisplayName, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

// ConsumeRefreshSession marks a live refresh session revoked and returns it.
// The conditional UPDATE lets only one of two concurrent callers win.
func (s *PostgresStore) ConsumeRefreshSession(ctx context.Context, tokenHash string) (Session, error) {
	const query = `
		UPDATE refresh_sessions SET revoked_at = NOW()
		WHERE token_hash = $1
			AND revoked_at IS NULL
			AND expires_at > NOW()
		RETURNING session_id, user_id, username, display_name, created_at
	`
	var session Session
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(
		&session.ID, &session.UserID, &session.Username, &session.DisplayName, &session.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("consume refresh session: %w", err)
	}
	return session, nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

func (s *PostgresStore) SaveCredential(ctx context.Context, sessionID string, sealed []byte, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO gitlab_credentials (session_id, sealed, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_id) DO UPDATE SET sealed=EXCLUDED.sealed, expires_at=EXCLUDED.expires_at, updated_at=NOW()
	`, sessionID, sealed, expiresAt)
	if err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	return nil
}

func (s *PostgresStore) LoadCredential(ctx context.Context, sessionID string) ([]byte, error) {
	var sealed []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT sealed FROM gitlab_credentials WHERE session_id=$1 AND expires_at > NOW()
	`, sessionID).Scan(&sealed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}
	return sealed, nil
}

func (s *PostgresStore) DeleteCredential(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM gitlab_credentials WHERE session_id=$1`, sessionID); err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveOAuthState(ctx context.Context, state string, data OAuthState, ttl time.Duration) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO oauth_states (state, redirect_to, expires_at) VALUES ($1, $2, $3)
	`, state, data.RedirectTo, time.Now().Add(ttl))
	if err != nil {
		return fmt.Errorf("save oauth state: %w", err)
	}
	return nil
}

// ConsumeOAuthState deletes the state and returns it; a state can be
// consumed once.
func (s *PostgresStore) ConsumeOAuthState(ctx context.Context, state string) (OAuthState, error) {
	var data OAuthState
	var expiresAt time.Time
	err := s.db.QueryRowContext(ctx, `
		DELETE FROM oauth_states WHERE state=$1 RETURNING redirect_to, expires_at
	`, state).Scan(&data.RedirectTo, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return OAuthState{}, ErrNotFound
	}
	if err != nil {
		return OAuthState{}, fmt.Errorf("consume oauth state: %w", err)
	}
	if !expiresAt.After(time.Now()) {
		return OAuthState{}, ErrNotFound
	}
	return data, nil
}

func (s *PostgresStore) LoadAppConfig(ctx context.Context, userID string) (appconfig.AppConfig, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `SELECT config FROM app_configs WHERE user_id=$1`, userID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return appconfig.Default(), nil
	}
	if err != nil {
		return appconfig.AppConfig{}, fmt.Errorf("load app config: %w", err)
	}
	var cfg appconfig.AppConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return appconfig.AppConfig{}, fmt.Errorf("decode app config: %w", err)
	}
	return cfg.WithDefaults(), nil
}

func (s *PostgresStore) SaveAppConfig(ctx context.Context, userID string, cfg appconfig.AppConfig) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode app config: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO app_configs (user_id, config) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET config=EXCLUDED.config, updated_at=NOW()
	`, userID, raw)
	if err != nil {
		return fmt.Errorf("save app config: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteAppConfig(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM app_configs WHERE user_id=$1`, userID); err != nil {
		return fmt.Errorf("delete app config: %w", err)
	}
	return nil
}

// PurgeExpired drops rows past their expiry; Redis does this through TTLs.
func (s *PostgresStore) PurgeExpired(ctx context.Context) error {
	for _, stmt := range []string{
		`DELETE FROM refresh_sessions WHERE expires_at <= NOW() OR revoked_at IS NOT NULL`,
		`DELETE FROM revoked_access_tokens WHERE expires_at <= NOW()`,
		`DELETE FROM gitlab_credentials WHERE expires_at <= NOW()`,
		`DELETE FROM oauth_states WHERE expires_at <= NOW()`,
	} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("purge expired rows: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
