package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/parish-tools/rosterbot/internal/models"
)

const sessionKeyPrefix = "session:"

// RedisStore keeps sessions in Redis with the inactivity timeout as key TTL.
// Expiry sweeping is left to Redis itself.
type RedisStore struct {
	client  *redis.Client
	timeout time.Duration
}

// NewRedisStore builds a Redis-backed session store.
func NewRedisStore(client *redis.Client, timeout time.Duration) *RedisStore {
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return &RedisStore{client: client, timeout: timeout}
}

// Get returns the session, refreshing the TTL on read. A missing key yields
// a fresh idle session.
func (s *RedisStore) Get(ctx context.Context, userID int64) (*models.Session, error) {
	key := s.key(userID)
	val, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return models.NewSession(userID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session %d: %w", userID, err)
	}

	var session models.Session
	if err := json.Unmarshal([]byte(val), &session); err != nil {
		// A corrupted payload resets the conversation rather than wedging it.
		return models.NewSession(userID), nil
	}

	session.Touch()
	if err := s.client.Expire(ctx, key, s.timeout).Err(); err != nil {
		return nil, fmt.Errorf("extend session %d: %w", userID, err)
	}
	return &session, nil
}

// Save persists the session under the inactivity TTL.
func (s *RedisStore) Save(ctx context.Context, session *models.Session) error {
	session.Touch()
	val, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session %d: %w", session.UserID, err)
	}
	if err := s.client.Set(ctx, s.key(session.UserID), val, s.timeout).Err(); err != nil {
		return fmt.Errorf("save session %d: %w", session.UserID, err)
	}
	return nil
}

// Clear drops the session key.
func (s *RedisStore) Clear(ctx context.Context, userID int64) error {
	if err := s.client.Del(ctx, s.key(userID)).Err(); err != nil {
		return fmt.Errorf("clear session %d: %w", userID, err)
	}
	return nil
}

// SweepExpired is a no-op: key TTLs already expire idle sessions.
func (s *RedisStore) SweepExpired(context.Context) (int, error) {
	return 0, nil
}

// Close releases the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) key(userID int64) string {
	return sessionKeyPrefix + strconv.FormatInt(userID, 10)
}
