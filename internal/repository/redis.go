package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient creates and pings a Redis client with optional password auth.
func NewRedisClient(ctx context.Context, addr, password string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("repository: redis ping: %w", err)
	}
	return rdb, nil
}

// releaseScript deletes the guard only when the caller still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisInFlight is an in-flight guard shared by every instance of the service.
// Entries expire after ttl so a crashed worker cannot lock a requester out.
type RedisInFlight struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisInFlight(rdb redis.UniversalClient, prefix string, ttl time.Duration) (*RedisInFlight, error) {
	if rdb == nil {
		return nil, errors.New("repository: redis client must not be nil")
	}
	if ttl <= 0 {
		return nil, errors.New("repository: in-flight ttl must be positive")
	}
	return &RedisInFlight{rdb: rdb, prefix: strings.TrimSuffix(prefix, ":"), ttl: ttl}, nil
}

func (g *RedisInFlight) key(requesterID string) string {
	return g.prefix + ":inflight:" + requesterID
}

func (g *RedisInFlight) Acquire(ctx context.Context, requesterID, token string) (bool, error) {
	ok, err := g.rdb.SetNX(ctx, g.key(requesterID), token, g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("repository: acquire in-flight: %w", err)
	}
	return ok, nil
}

func (g *RedisInFlight) Release(ctx context.Context, requesterID, token string) error {
	if err := releaseScript.Run(ctx, g.rdb, []string{g.key(requesterID)}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("repository: release in-flight: %w", err)
	}
	return nil
}

// RedisTopics keeps pending topics between the topic message and the count callback.
type RedisTopics struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisTopics(rdb redis.UniversalClient, prefix string, ttl time.Duration) (*RedisTopics, error) {
	if rdb == nil {
		return nil, errors.New("repository: redis client must not be nil")
	}
	return &RedisTopics{rdb: rdb, prefix: strings.TrimSuffix(prefix, ":"), ttl: ttl}, nil
}

func (s *RedisTopics) key(requesterID string) string {
	return s.prefix + ":topic:" + requesterID
}

func (s *RedisTopics) Save(ctx context.Context, requesterID, topic string) error {
	if err := s.rdb.Set(ctx, s.key(requesterID), topic, s.ttl).Err(); err != nil {
		return fmt.Errorf("repository: save topic: %w", err)
	}
	return nil
}

func (s *RedisTopics) Take(ctx context.Context, requesterID string) (string, bool, error) {
	topic, err := s.rdb.GetDel(ctx, s.key(requesterID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("repository: take topic: %w", err)
	}
	return topic, true, nil
}
