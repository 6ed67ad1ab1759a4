package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var _ Storage = (*RedisStorage)(nil)

// RedisStorage keeps the session in Redis, keyed per device.
type RedisStorage struct {
	client *redis.Client
	key    string
}

// NewRedisStorage connects to redisURL and checks the connection.
func NewRedisStorage(ctx context.Context, redisURL, deviceID string) (*RedisStorage, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	key := StorageKey
	if deviceID != "" {
		key = fmt.Sprintf("%s:%s", StorageKey, deviceID)
	}
	return &RedisStorage{client: client, key: key}, nil
}

func (rs *RedisStorage) Load(ctx context.Context) (*Session, error) {
	data, err := rs.client.Get(ctx, rs.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("[RedisStorage.Load] get: %w", err)
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("[RedisStorage.Load] decode session: %w", err)
	}
	return &session, nil
}

func (rs *RedisStorage) Save(ctx context.Context, session *Session) error {
	if session == nil {
		return errors.New("[RedisStorage.Save] session is required")
	}
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("[RedisStorage.Save] encode session: %w", err)
	}
	// No TTL: the refresh token outlives the access token expiry.
	if err := rs.client.Set(ctx, rs.key, data, 0).Err(); err != nil {
		return fmt.Errorf("[RedisStorage.Save] set: %w", err)
	}
	return nil
}

func (rs *RedisStorage) Clear(ctx context.Context) error {
	if err := rs.client.Del(ctx, rs.key).Err(); err != nil {
		return fmt.Errorf("[RedisStorage.Clear] del: %w", err)
	}
	return nil
}

// Close releases the Redis connection pool.
func (rs *RedisStorage) Close() error {
	return rs.client.Close()
}
