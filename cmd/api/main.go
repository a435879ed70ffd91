package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"adrmanager/internal/app"
	"adrmanager/internal/archive"
	"adrmanager/internal/config"
	"adrmanager/internal/search"
	"adrmanager/internal/session"
	"adrmanager/internal/store"
)

const purgeInterval = 15 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "error", err)
		os.Exit(1)
	}
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	if cfg.InsecureDevSecret {
		logger.Warn("INSECURE: signing tokens and sealing GitLab credentials with the built-in development secret; set ADR_JWT_SECRET and ADR_SEAL_KEY before exposing this server")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var sessions app.SessionStore
	if strings.TrimSpace(cfg.RedisURL) != "" {
		logger.Info("using redis for session storage")
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			fatal(logger, "redis connection failed", err)
		}
		defer redisStore.Close()
		sessions = redisStore
	} else {
		logger.Info("using postgres for session storage")
		db, err := store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			fatal(logger, "database connection failed", err)
		}
		defer db.Close()
		if err := store.ApplyMigrations(ctx, db, store.Migrations()); err != nil {
			fatal(logger, "migrations failed", err)
		}
		pgStore := store.NewPostgresStore(db)
		go purgeLoop(ctx, pgStore, logger)
		sessions = pgStore
	}

	var engine search.Engine
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meili := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
		defer meili.Close()
		engine = meili
	}

	service := app.New(cfg, sessions, logger).WithSearch(search.NewService(engine, logger))

	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		archives, err := archive.NewMinio(ctx, archive.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			// archives are optional; the rest of the API still works
			logger.Warn("export archives disabled", "error", err)
		} else {
			service.WithArchive(archives)
		}
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("ADR manager API listening", "addr", cfg.Addr, "oauth", cfg.OAuthEnabled())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal(logger, "server failed", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func purgeLoop(ctx context.Context, pg *store.PostgresStore, logger *slog.Logger) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := pg.PurgeExpired(ctx); err != nil {
				logger.Warn("purge expired sessions", "error", err)
			}
		}
	}
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}
