package rules

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore backs the velocity/pattern store with Redis. History lives in
// per-user lists (LPUSH + LTRIM keeps them bounded), location and profile
// state in plain keys as JSON. No multi-key atomicity is attempted; the
// engine's contract does not require it.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis using a redis:// URL.
func NewRedisStore(url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &RedisStore{client: redis.NewClient(opts)}, nil
}

// NewRedisStoreFromClient wraps an existing client (for tests).
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Ping checks connectivity, for health endpoints.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func velocityKey(userID string) string { return "user:" + userID + ":velocity" }
func locationKey(userID string) string { return "user:" + userID + ":location" }
func profileKey(userID string) string  { return "user:" + userID + ":profile" }

// AppendVelocity pushes entry, trims the list to limit, and reads it back
// most-recent-first.
func (s *RedisStore) AppendVelocity(ctx context.Context, userID string, entry VelocityEntry, limit int) ([]VelocityEntry, error) {
	payload, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("marshal velocity entry: %w", err)
	}

	key := velocityKey(userID)
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, key, payload)
	pipe.LTrim(ctx, key, 0, int64(limit-1))
	rangeCmd := pipe.LRange(ctx, key, 0, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("velocity pipeline: %w", err)
	}

	raw := rangeCmd.Val()
	entries := make([]VelocityEntry, 0, len(raw))
	for _, item := range raw {
		var e VelocityEntry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			return nil, fmt.Errorf("decode velocity entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// LocationState returns the user's location state, or nil when unseen.
func (s *RedisStore) LocationState(ctx context.Context, userID string) (*LocationState, error) {
	raw, err := s.client.Get(ctx, locationKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get location: %w", err)
	}

	var state LocationState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, fmt.Errorf("decode location: %w", err)
	}
	return &state, nil
}

// SetLocationState replaces the user's location state.
func (s *RedisStore) SetLocationState(ctx context.Context, userID string, state LocationState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal location: %w", err)
	}
	if err := s.client.Set(ctx, locationKey(userID), payload, 0).Err(); err != nil {
		return fmt.Errorf("set location: %w", err)
	}
	return nil
}

// SpendingProfile returns the user's profile, or nil when absent.
func (s *RedisStore) SpendingProfile(ctx context.Context, userID string) (*SpendingProfile, error) {
	raw, err := s.client.Get(ctx, profileKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}

	var profile SpendingProfile
	if err := json.Unmarshal([]byte(raw), &profile); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	return &profile, nil
}

// SetSpendingProfile replaces the user's profile.
func (s *RedisStore) SetSpendingProfile(ctx context.Context, userID string, profile SpendingProfile) error {
	payload, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	if err := s.client.Set(ctx, profileKey(userID), payload, 0).Err(); err != nil {
		return fmt.Errorf("set profile: %w", err)
	}
	return nil
}
