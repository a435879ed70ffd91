package store

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"adrmanager/internal/appconfig"
	"adrmanager/internal/util"
)

func openIntegrationStore(t *testing.T) *PostgresStore {
	t.Helper()
	databaseURL := os.Getenv("ADR_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("ADR_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	db, err := Open(ctx, databaseURL)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := ApplyMigrations(ctx, db, Migrations()); err != nil {
		t.Fatalf("ApplyMigrations() error = %v", err)
	}
	// applying twice is a no-op
	if err := ApplyMigrations(ctx, db, Migrations()); err != nil {
		t.Fatalf("second ApplyMigrations() error = %v", err)
	}
	s := NewPostgresStore(db)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPostgresRefreshSessionLifecycle(t *testing.T) {
	s := openIntegrationStore(t)
	ctx := context.Background()
	hash := util.NewID("hash")
	session := Session{ID: util.NewID("sid"), UserID: "17", Username: "avery", DisplayName: "Avery"}

	if err := s.SaveRefreshSession(ctx, hash, session, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("SaveRefreshSession() error = %v", err)
	}
	got, err := s.ConsumeRefreshSession(ctx, hash)
	if err != nil {
		t.Fatalf("ConsumeRefreshSession() error = %v", err)
	}
	if got.ID != session.ID || got.Username != "avery" {
		t.Fatalf("unexpected session %+v", got)
	}
	if _, err := s.ConsumeRefreshSession(ctx, hash); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on reuse, got %v", err)
	}

	expired := util.NewID("hash")
	if err := s.SaveRefreshSession(ctx, expired, session, time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("SaveRefreshSession() error = %v", err)
	}
	if _, err := s.ConsumeRefreshSession(ctx, expired); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for expired session, got %v", err)
	}
}

func TestPostgresConcurrentConsumeHasOneWinner(t *testing.T) {
	s := openIntegrationStore(t)
	ctx := context.Background()
	hash := util.NewID("hash")
	if err := s.SaveRefreshSession(ctx, hash, Session{ID: util.NewID("sid"), UserID: "17"}, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("SaveRefreshSession() error = %v", err)
	}

	const callers = 8
	var wg sync.WaitGroup
	var winners atomic.Int32
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.ConsumeRefreshSession(ctx, hash); err == nil {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()
	if got := winners.Load(); got != 1 {
		t.Fatalf("winners = %d, want 1", got)
	}
}

func TestPostgresOAuthStateIsSingleUse(t *testing.T) {
	s := openIntegrationStore(t)
	ctx := context.Background()
	state := util.NewID("state")
	if err := s.SaveOAuthState(ctx, state, OAuthState{RedirectTo: "/adrs"}, time.Minute); err != nil {
		t.Fatalf("SaveOAuthState() error = %v", err)
	}
	got, err := s.ConsumeOAuthState(ctx, state)
	if err != nil || got.RedirectTo != "/adrs" {
		t.Fatalf("ConsumeOAuthState() = %+v, %v", got, err)
	}
	if _, err := s.ConsumeOAuthState(ctx, state); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on reuse, got %v", err)
	}
}

func TestPostgresCredentialsAndConfig(t *testing.T) {
	s := openIntegrationStore(t)
	ctx := context.Background()
	sid := util.NewID("sid")
	if err := s.SaveCredential(ctx, sid, []byte{1, 2, 3}, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("SaveCredential() error = %v", err)
	}
	sealed, err := s.LoadCredential(ctx, sid)
	if err != nil || len(sealed) != 3 {
		t.Fatalf("LoadCredential() = %v, %v", sealed, err)
	}
	if err := s.DeleteCredential(ctx, sid); err != nil {
		t.Fatalf("DeleteCredential() error = %v", err)
	}
	if _, err := s.LoadCredential(ctx, sid); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	user := util.NewID("user")
	cfg, err := s.LoadAppConfig(ctx, user)
	if err != nil || cfg.IsConfigured() {
		t.Fatalf("LoadAppConfig() default = %+v, %v", cfg, err)
	}
	next := appconfig.Merge(cfg, appconfig.GitLab{ProjectID: "42"})
	if err := s.SaveAppConfig(ctx, user, next); err != nil {
		t.Fatalf("SaveAppConfig() error = %v", err)
	}
	cfg, err = s.LoadAppConfig(ctx, user)
	if err != nil || !cfg.IsConfigured() {
		t.Fatalf("LoadAppConfig() = %+v, %v", cfg, err)
	}
	if err := s.DeleteAppConfig(ctx, user); err != nil {
		t.Fatalf("DeleteAppConfig() error = %v", err)
	}
	if err := s.PurgeExpired(ctx); err != nil {
		t.Fatalf("PurgeExpired() error = %v", err)
	}
}
