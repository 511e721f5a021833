package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
)

const (
	sessionPrefix = "session:"
	maxTxRetries  = 5
)

var ErrSessionConflict = errors.New("session changed concurrently")

// RedisSessionStore keeps sessions as JSON strings with a sliding TTL.
type RedisSessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSessionStore connects to redisURL and pings it.
func NewRedisSessionStore(ctx context.Context, redisURL string, ttl time.Duration) (*RedisSessionStore, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required for the redis session backend")
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse REDIS_URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisSessionStoreWithClient(client, ttl), nil
}

func NewRedisSessionStoreWithClient(client *redis.Client, ttl time.Duration) *RedisSessionStore {
	if ttl <= 0 {
		ttl = SessionTTL
	}
	return &RedisSessionStore{client: client, ttl: ttl}
}

// key generates a Redis key for the given user ID
func (r *RedisSessionStore) key(id string) string {
	return sessionPrefix + id
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (r *RedisSessionStore) load(ctx context.Context, c getter, id string) (*Session, error) {
	data, err := c.Get(ctx, r.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}
		return nil, fmt.Errorf("failed to get session data: %w", err)
	}

	var s Session
	if err := sonic.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session data: %w", err)
	}
	return &s, nil
}

func (r *RedisSessionStore) Get(ctx context.Context, id string) (*Session, error) {
	return r.load(ctx, r.client, id)
}

func (r *RedisSessionStore) Save(ctx context.Context, s *Session) error {
	if s == nil || s.UserID == "" {
		return fmt.Errorf("user id cannot be empty")
	}
	c := s.Clone()
	touch(c, time.Now())
	data, err := sonic.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal session data: %w", err)
	}
	if err := r.client.Set(ctx, r.key(c.UserID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set session data: %w", err)
	}
	return nil
}

func (r *RedisSessionStore) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, r.key(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Update runs fn inside a WATCH transaction and retries when another writer got there first.
func (r *RedisSessionStore) Update(ctx context.Context, id string, fn func(*Session) error) (*Session, error) {
	key := r.key(id)
	var result *Session

	txf := func(tx *redis.Tx) error {
		s, err := r.load(ctx, tx, id)
		if errors.Is(err, ErrSessionNotFound) {
			s = &Session{UserID: id}
		} else if err != nil {
			return err
		}
		if err := fn(s); err != nil {
			return err
		}
		s.UserID = id
		touch(s, time.Now())

		data, err := sonic.Marshal(s)
		if err != nil {
			return fmt.Errorf("failed to marshal session data: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, r.ttl)
			return nil
		})
		if err == nil {
			result = s
		}
		return err
	}

	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err := r.client.Watch(ctx, txf, key)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: %s after %d attempts", ErrSessionConflict, id, maxTxRetries)
}

// Count scans the session keyspace.
func (r *RedisSessionStore) Count(ctx context.Context) (int, error) {
	var (
		cursor uint64
		total  int
	)
	for {
		keys, next, err := r.client.Scan(ctx, cursor, sessionPrefix+"*", 500).Result()
		if err != nil {
			return 0, fmt.Errorf("failed to scan sessions: %w", err)
		}
		total += len(keys)
		if next == 0 {
			return total, nil
		}
		cursor = next
	}
}

// TTL gets remaining TTL for a session
func (r *RedisSessionStore) TTL(ctx context.Context, id string) (time.Duration, error) {
	ttl, err := r.client.TTL(ctx, r.key(id)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get TTL: %w", err)
	}
	return ttl, nil
}

func (r *RedisSessionStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisSessionStore) Close() error {
	return r.client.Close()
}
