package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/classpage/backend/internal/models"
)

const (
	historyKey       = "chat:history"
	welcomeKeyPrefix = "chat:welcome:"
)

type RedisClient struct {
	client *redis.Client
	ctx    context.Context
}

// NewRedisClient creates a new Redis client
func NewRedisClient(addr, password string, db int) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx := context.Background()

	// Test connection
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisClient{
		client: client,
		ctx:    ctx,
	}, nil
}

// Close closes the Redis connection
func (r *RedisClient) Close() error {
	return r.client.Close()
}

// History cache

// GetHistory returns the cached history response for the given limit, or
// nil if there is no cached entry.
func (r *RedisClient) GetHistory(limit int) ([]models.ChatMessage, error) {
	key := fmt.Sprintf("%s:%d", historyKey, limit)
	data, err := r.client.Get(r.ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cached history: %w", err)
	}

	var messages []models.ChatMessage
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, fmt.Errorf("failed to decode cached history: %w", err)
	}
	return messages, nil
}

// SetHistory caches a history response for the given limit.
func (r *RedisClient) SetHistory(limit int, messages []models.ChatMessage, ttl time.Duration) error {
	data, err := json.Marshal(messages)
	if err != nil {
		return err
	}
	key := fmt.Sprintf("%s:%d", historyKey, limit)
	return r.client.Set(r.ctx, key, data, ttl).Err()
}

// InvalidateHistory drops every cached history response. Called after each
// persisted message so page loads never see a stale tail for long.
func (r *RedisClient) InvalidateHistory() error {
	iter := r.client.Scan(r.ctx, 0, historyKey+":*", 0).Iterator()
	for iter.Next(r.ctx) {
		if err := r.client.Del(r.ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

// Welcome dedup

// MarkWelcomeSent records that a welcome with the given text was just sent
// and reports whether this caller won the marker. SET NX with the window as
// TTL; a false return means an identical welcome went out within the window.
func (r *RedisClient) MarkWelcomeSent(text string, window time.Duration) (bool, error) {
	ok, err := r.client.SetNX(r.ctx, welcomeKeyPrefix+text, 1, window).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark welcome: %w", err)
	}
	return ok, nil
}
