// Package redis implements repository.TokenRepository on Redis.
//
// WHEN TO USE IT?
// The sqlite store is enough for a single instance. When several instances
// sit behind a load balancer, a browser can land on any of them, so the token
// of each client has to live somewhere they all share. TOKEN_STORE=redis
// switches to this package.
//
// EXPIRY:
// Every key carries a TTL that is refreshed on each read and write. Redis
// drops idle clients by itself, which is why PurgeIdle has nothing to do.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sakif/devfolio-web/internal/apperror"
	"github.com/sakif/devfolio-web/internal/repository"
)

// TokenKeyPrefix namespaces the token keys so the database can be shared.
const TokenKeyPrefix = "devfolio:token:"

// Store keeps one sealed token per client under TokenKeyPrefix+clientID.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

var _ repository.TokenRepository = (*Store)(nil)

// NewClient creates a Redis client from a URL and pings it.
// URL format: redis://[:password@]host:port[/db]
func NewClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return client, nil
}

// NewStore returns a Store whose keys expire after ttl without activity.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

func tokenKey(clientID string) string {
	return TokenKeyPrefix + clientID
}

// GetToken reads the token and slides its TTL forward.
func (s *Store) GetToken(ctx context.Context, clientID string) (string, error) {
	token, err := s.client.GetEx(ctx, tokenKey(clientID), s.ttl).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", apperror.NotFound("client token", clientID)
		}
		return "", fmt.Errorf("redis: getting token for client %s: %w", clientID, err)
	}
	return token, nil
}

func (s *Store) SaveToken(ctx context.Context, clientID, token string) error {
	if clientID == "" {
		return apperror.ValidationFailed("client_id", "client id must not be empty")
	}
	if err := s.client.Set(ctx, tokenKey(clientID), token, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis: saving token for client %s: %w", clientID, err)
	}
	return nil
}

func (s *Store) DeleteToken(ctx context.Context, clientID string) error {
	if err := s.client.Del(ctx, tokenKey(clientID)).Err(); err != nil {
		return fmt.Errorf("redis: deleting token for client %s: %w", clientID, err)
	}
	return nil
}

// PurgeIdle is a no-op: key TTLs already expire idle clients.
func (s *Store) PurgeIdle(context.Context, time.Time) (int64, error) {
	return 0, nil
}
