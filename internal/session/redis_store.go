package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultSessionPrefix = "session:token:"

// RedisStore persists sessions in Redis so they survive restarts of the
// sync layer and are shared across its instances.
type RedisStore struct {
	client    redis.Cmdable
	keyPrefix string
}

// NewRedisStore constructs the store.
func NewRedisStore(client redis.Cmdable, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultSessionPrefix
	}
	return &RedisStore{client: client, keyPrefix: prefix}
}

// Token retrieves the user's upstream token.
func (r *RedisStore) Token(ctx context.Context, userID string) (string, error) {
	token, err := r.client.Get(ctx, r.keyPrefix+userID).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNoSession
	}
	if err != nil {
		return "", fmt.Errorf("redis get session: %w", err)
	}
	return token, nil
}

// Save stores the token with the given ttl. A zero ttl keeps the session
// until it is deleted.
func (r *RedisStore) Save(ctx context.Context, userID, token string, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.keyPrefix+userID, token, ttl).Err(); err != nil {
		return fmt.Errorf("redis set session: %w", err)
	}
	return nil
}

// Delete removes the user's session.
func (r *RedisStore) Delete(ctx context.Context, userID string) error {
	if err := r.client.Del(ctx, r.keyPrefix+userID).Err(); err != nil {
		return fmt.Errorf("redis del session: %w", err)
	}
	return nil
}
