package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/falai-dev/falai-go/core"
)

// RedisOption customizes a Redis-backed repository.
type RedisOption func(*redisConfig)

type redisConfig struct {
	prefix string
	ttl    time.Duration
}

// WithKeyPrefix overrides the default "falai" key prefix.
func WithKeyPrefix(prefix string) RedisOption {
	return func(c *redisConfig) { c.prefix = prefix }
}

// WithTTL expires stored sessions and histories after d. Zero keeps them
// forever.
func WithTTL(d time.Duration) RedisOption {
	return func(c *redisConfig) { c.ttl = d }
}

func newRedisConfig(opts []RedisOption) redisConfig {
	cfg := redisConfig{prefix: "falai"}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// RedisSessionRepository stores session snapshots as JSON strings.
type RedisSessionRepository struct {
	client redis.UniversalClient
	cfg    redisConfig
}

var _ SessionRepository = (*RedisSessionRepository)(nil)

// NewRedisSessionRepository creates a session store on an existing client.
func NewRedisSessionRepository(client redis.UniversalClient, opts ...RedisOption) *RedisSessionRepository {
	return &RedisSessionRepository{client: client, cfg: newRedisConfig(opts)}
}

func (r *RedisSessionRepository) key(id string) string {
	return fmt.Sprintf("%s:session:%s", r.cfg.prefix, id)
}

func (r *RedisSessionRepository) Create(ctx context.Context, s *core.Session) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	ok, err := r.client.SetNX(ctx, r.key(s.ID), payload, r.cfg.ttl).Result()
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, s.ID)
	}
	return nil
}

func (r *RedisSessionRepository) FindByID(ctx context.Context, id string) (*core.Session, error) {
	payload, err := r.client.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	var s core.Session
	if err := json.Unmarshal(payload, &s); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &s, nil
}

func (r *RedisSessionRepository) Update(ctx context.Context, s *core.Session) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := r.client.Set(ctx, r.key(s.ID), payload, r.cfg.ttl).Err(); err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

func (r *RedisSessionRepository) UpdateCollectedData(ctx context.Context, id string, update map[string]any) error {
	s, err := r.FindByID(ctx, id)
	if err != nil {
		return err
	}
	s.MergeData(update)
	return r.Update(ctx, s)
}

func (r *RedisSessionRepository) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, r.key(id)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// RedisMessageRepository stores each session's history as a Redis list of
// JSON-encoded messages.
type RedisMessageRepository struct {
	client redis.UniversalClient
	cfg    redisConfig
}

var _ MessageRepository = (*RedisMessageRepository)(nil)

// NewRedisMessageRepository creates a message store on an existing client.
func NewRedisMessageRepository(client redis.UniversalClient, opts ...RedisOption) *RedisMessageRepository {
	return &RedisMessageRepository{client: client, cfg: newRedisConfig(opts)}
}

func (r *RedisMessageRepository) key(sessionID string) string {
	return fmt.Sprintf("%s:messages:%s", r.cfg.prefix, sessionID)
}

func (r *RedisMessageRepository) Create(ctx context.Context, sessionID string, msg core.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	key := r.key(sessionID)
	if err := r.client.RPush(ctx, key, payload).Err(); err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	if r.cfg.ttl > 0 {
		if err := r.client.Expire(ctx, key, r.cfg.ttl).Err(); err != nil {
			return fmt.Errorf("refresh message ttl: %w", err)
		}
	}
	return nil
}

func (r *RedisMessageRepository) FindBySessionID(ctx context.Context, sessionID string) ([]core.Message, error) {
	raw, err := r.client.LRange(ctx, r.key(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	msgs := make([]core.Message, 0, len(raw))
	for _, item := range raw {
		var msg core.Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, fmt.Errorf("unmarshal message: %w", err)
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

func (r *RedisMessageRepository) DeleteBySessionID(ctx context.Context, sessionID string) error {
	if err := r.client.Del(ctx, r.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	return nil
}
