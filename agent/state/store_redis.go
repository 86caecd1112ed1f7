package state

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type RedisConfig struct {
	Addr     string `envconfig:"ADDR" split_words:"true" default:"localhost:6379"`
	Password string `envconfig:"PASSWORD" split_words:"true"`
	DB       int    `envconfig:"DB" split_words:"true" default:"0"`
}

// RedisStore persists SessionState in a Redis server through go-redis.
type RedisStore struct {
	client   redis.Cmdable
	closer   func() error
	settings storeSettings
}

func NewRedisStore(ctx context.Context, cfg RedisConfig, opts ...StoreOption) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	store, err := NewRedisStoreWithClient(client, opts...)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	store.closer = client.Close
	return store, nil
}

// NewRedisStoreWithClient wraps an existing client; the caller owns its lifecycle.
func NewRedisStoreWithClient(client redis.Cmdable, opts ...StoreOption) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("redis client is nil")
	}
	settings := applyStoreOptions(opts)
	if settings.ttl < 0 {
		return nil, errors.New("ttl must be >= 0")
	}
	return &RedisStore{client: client, settings: settings}, nil
}

func (s *RedisStore) Load(ctx context.Context, sessionID string) (*SessionState, error) {
	key, err := sessionKey(s.settings.keyPrefix, sessionID)
	if err != nil {
		return nil, err
	}
	raw, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return decodeState(raw)
}

func (s *RedisStore) Save(ctx context.Context, st *SessionState) error {
	payload, err := encodeState(st)
	if err != nil {
		return err
	}
	key, err := sessionKey(s.settings.keyPrefix, st.SessionID)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, key, payload, s.settings.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	key, err := sessionKey(s.settings.keyPrefix, sessionID)
	if err != nil {
		return err
	}
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	if s == nil || s.closer == nil {
		return nil
	}
	return s.closer()
}
