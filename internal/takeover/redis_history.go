package takeover

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const historyKeyPrefix = "fraudguard:login_history:"

// RedisHistory stores per-user attempt rings as Redis lists, newest first.
// Each append trims to HistoryCap and refreshes the TTL, so idle users'
// histories expire on their own.
type RedisHistory struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisHistory creates a Redis-backed history. ttl <= 0 disables expiry.
func NewRedisHistory(client *redis.Client, ttl time.Duration) *RedisHistory {
	return &RedisHistory{client: client, ttl: ttl}
}

func historyKey(userID string) string { return historyKeyPrefix + userID }

func (r *RedisHistory) List(ctx context.Context, userID string) ([]Attempt, error) {
	raw, err := r.client.LRange(ctx, historyKey(userID), 0, HistoryCap-1).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange login history: %w", err)
	}
	// Stored newest first; return chronological.
	out := make([]Attempt, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var a Attempt
		if err := json.Unmarshal([]byte(raw[i]), &a); err != nil {
			return nil, fmt.Errorf("decode login attempt: %w", err)
		}
		out = append(out, a)
	}
	return out, nil
}

func (r *RedisHistory) Append(ctx context.Context, attempt Attempt) error {
	payload, err := json.Marshal(attempt)
	if err != nil {
		return fmt.Errorf("encode login attempt: %w", err)
	}
	key := historyKey(attempt.UserID)
	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, key, payload)
	pipe.LTrim(ctx, key, 0, HistoryCap-1)
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append login history: %w", err)
	}
	return nil
}
