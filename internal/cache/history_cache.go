package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"juris-rag/internal/model"
)

const (
	DefaultHistoryTTL = 60 * time.Second
	DefaultDirtyTTL   = 5 * time.Second
)

// HistoryCache keeps a short-lived copy of each session's chat history in Redis.
// Every write sets a dirty marker so readers go to the database until the
// persist worker has caught up and the marker expires.
type HistoryCache struct {
	client     *redisv9.Client
	historyTTL time.Duration
	dirtyTTL   time.Duration
}

func NewHistoryCache(client *redisv9.Client, historyTTL, dirtyTTL time.Duration) *HistoryCache {
	if historyTTL <= 0 {
		historyTTL = DefaultHistoryTTL
	}
	if dirtyTTL <= 0 {
		dirtyTTL = DefaultDirtyTTL
	}
	return &HistoryCache{
		client:     client,
		historyTTL: historyTTL,
		dirtyTTL:   dirtyTTL,
	}
}

// Get returns the cached history. ok is false on a miss or while the session is dirty.
func (c *HistoryCache) Get(ctx context.Context, sessionID string) ([]model.Message, bool, error) {
	var (
		dirtyCmd   *redisv9.IntCmd
		historyCmd *redisv9.StringCmd
	)
	_, err := c.client.Pipelined(ctx, func(pipe redisv9.Pipeliner) error {
		dirtyCmd = pipe.Exists(ctx, dirtyKey(sessionID))
		historyCmd = pipe.Get(ctx, historyKey(sessionID))
		return nil
	})
	if err != nil && !errors.Is(err, redisv9.Nil) {
		return nil, false, fmt.Errorf("redis get history failed: %w", err)
	}
	if dirtyCmd.Val() > 0 {
		return nil, false, nil
	}
	raw, err := historyCmd.Bytes()
	if errors.Is(err, redisv9.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get history failed: %w", err)
	}

	var messages []model.Message
	if err := json.Unmarshal(raw, &messages); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached history failed: %w", err)
	}
	return messages, true, nil
}

// Set stores history unless a write has marked the session dirty meanwhile.
func (c *HistoryCache) Set(ctx context.Context, sessionID string, messages []model.Message) error {
	dirty, err := c.client.Exists(ctx, dirtyKey(sessionID)).Result()
	if err != nil {
		return fmt.Errorf("redis check dirty marker failed: %w", err)
	}
	if dirty > 0 {
		return nil
	}
	payload, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("marshal history cache failed: %w", err)
	}
	if err := c.client.Set(ctx, historyKey(sessionID), payload, c.historyTTL).Err(); err != nil {
		return fmt.Errorf("redis set history failed: %w", err)
	}
	return nil
}

// Invalidate drops the cached history and marks the session dirty.
func (c *HistoryCache) Invalidate(ctx context.Context, sessionID string) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redisv9.Pipeliner) error {
		pipe.Set(ctx, dirtyKey(sessionID), "1", c.dirtyTTL)
		pipe.Del(ctx, historyKey(sessionID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis invalidate history failed: %w", err)
	}
	return nil
}

// Evict drops the cached history without touching the dirty marker.
func (c *HistoryCache) Evict(ctx context.Context, sessionID string) error {
	if err := c.client.Del(ctx, historyKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("redis delete history failed: %w", err)
	}
	return nil
}

func (c *HistoryCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func historyKey(sessionID string) string {
	return "juris:chat:history:" + sessionID
}

func dirtyKey(sessionID string) string {
	return "juris:chat:history:dirty:" + sessionID
}
