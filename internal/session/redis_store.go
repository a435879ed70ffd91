// Package session provides the Redis session store: refresh sessions, sealed
// GitLab credentials, OAuth states, revoked access tokens and per-user
// application config.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"adrmanager/internal/appconfig"
	"adrmanager/internal/store"

	"github.com/redis/go-redis/v9"
)

const (
	refreshPrefix = "refresh:"
	credPrefix    = "cred:"
	statePrefix   = "oauth_state:"
	revokedPrefix = "revoked:"
	configPrefix  = "appconfig:"

	defaultRefreshTTL = 30 * 24 * time.Hour
)

// RedisStore implements session storage using Redis
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis-backed session store
func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

// NewRedisStoreWithClient creates a store from an existing Redis client
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func ttlUntil(expiresAt time.Time, fallback time.Duration) time.Duration {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return fallback
	}
	return ttl
}

func (s *RedisStore) SaveRefreshSession(ctx context.Context, tokenHash string, sess store.Session, expiresAt time.Time) error {
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now()
	}
	jsonData, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := s.client.Set(ctx, refreshPrefix+tokenHash, jsonData, ttlUntil(expiresAt, defaultRefreshTTL)).Err(); err != nil {
		return fmt.Errorf("save refresh token: %w", err)
	}
	return nil
}

// ConsumeRefreshSession returns the session behind a refresh token hash and
// deletes it in the same command, so a token can be redeemed only once.
func (s *RedisStore) ConsumeRefreshSession(ctx context.Context, tokenHash string) (store.Session, error) {
	jsonData, err := s.client.GetDel(ctx, refreshPrefix+tokenHash).Bytes()
	if errors.Is(err, redis.Nil) {
		return store.Session{}, store.ErrNotFound
	}
	if err != nil {
		return store.Session{}, fmt.Errorf("consume refresh token: %w", err)
	}

	var sess store.Session
	if err := json.Unmarshal(jsonData, &sess); err != nil {
		return store.Session{}, fmt.Errorf("unmarshal session: %w", err)
	}
	return sess, nil
}

// RevokeAccessToken blocks a jti until the access token would have expired.
func (s *RedisStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	if err := s.client.Set(ctx, revokedPrefix+jti, "1", ttlUntil(exp, time.Minute)).Err(); err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *RedisStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := s.client.Exists(ctx, revokedPrefix+jti).Result()
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return n > 0, nil
}

func (s *RedisStore) SaveCredential(ctx context.Context, sessionID string, sealed []byte, expiresAt time.Time) error {
	if err := s.client.Set(ctx, credPrefix+sessionID, sealed, ttlUntil(expiresAt, defaultRefreshTTL)).Err(); err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	return nil
}

func (s *RedisStore) LoadCredential(ctx context.Context, sessionID string) ([]byte, error) {
	sealed, err := s.client.Get(ctx, credPrefix+sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}
	return sealed, nil
}

func (s *RedisStore) DeleteCredential(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, credPrefix+sessionID).Err(); err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	return nil
}

func (s *RedisStore) SaveOAuthState(ctx context.Context, state string, data store.OAuthState, ttl time.Duration) error {
	if data.CreatedAt.IsZero() {
		data.CreatedAt = time.Now()
	}
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal oauth state: %w", err)
	}
	if err := s.client.Set(ctx, statePrefix+state, jsonData, ttl).Err(); err != nil {
		return fmt.Errorf("save oauth state: %w", err)
	}
	return nil
}

// ConsumeOAuthState reads and deletes the state atomically so a callback can
// only succeed once.
func (s *RedisStore) ConsumeOAuthState(ctx context.Context, state string) (store.OAuthState, error) {
	jsonData, err := s.client.GetDel(ctx, statePrefix+state).Bytes()
	if errors.Is(err, redis.Nil) {
		return store.OAuthState{}, store.ErrNotFound
	}
	if err != nil {
		return store.OAuthState{}, fmt.Errorf("consume oauth state: %w", err)
	}
	var data store.OAuthState
	if err := json.Unmarshal(jsonData, &data); err != nil {
		return store.OAuthState{}, fmt.Errorf("unmarshal oauth state: %w", err)
	}
	return data, nil
}

func (s *RedisStore) LoadAppConfig(ctx context.Context, userID string) (appconfig.AppConfig, error) {
	jsonData, err := s.client.Get(ctx, configPrefix+userID).Bytes()
	if errors.Is(err, redis.Nil) {
		return appconfig.Default(), nil
	}
	if err != nil {
		return appconfig.AppConfig{}, fmt.Errorf("load app config: %w", err)
	}
	var cfg appconfig.AppConfig
	if err := json.Unmarshal(jsonData, &cfg); err != nil {
		return appconfig.AppConfig{}, fmt.Errorf("decode app config: %w", err)
	}
	return cfg.WithDefaults(), nil
}

// SaveAppConfig stores the config without expiry, like browser local storage.
func (s *RedisStore) SaveAppConfig(ctx context.Context, userID string, cfg appconfig.AppConfig) error {
	jsonData, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode app config: %w", err)
	}
	if err := s.client.Set(ctx, configPrefix+userID, jsonData, 0).Err(); err != nil {
		return fmt.Errorf("save app config: %w", err)
	}
	return nil
}

func (s *RedisStore) DeleteAppConfig(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, configPrefix+userID).Err(); err != nil {
		return fmt.Errorf("delete app config: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks if Redis is reachable
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
