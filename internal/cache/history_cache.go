package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"rolechat/internal/model"
)

const versionTTL = 24 * time.Hour

// HistoryCache keeps a per-user copy of the conversation history. Every write
// to the history bumps a per-user version, and a snapshot is only stored when
// the version it was read under is still current.
type HistoryCache struct {
	client     *redisv9.Client
	historyTTL time.Duration
}

func NewHistoryCache(client *redisv9.Client, historyTTL time.Duration) *HistoryCache {
	if historyTTL <= 0 {
		historyTTL = 5 * time.Minute
	}
	return &HistoryCache{
		client:     client,
		historyTTL: historyTTL,
	}
}

func (c *HistoryCache) GetHistory(ctx context.Context, userID uint) ([]model.ChatMessage, bool, error) {
	raw, err := c.client.Get(ctx, c.historyKey(userID)).Bytes()
	if errors.Is(err, redisv9.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get history failed: %w", err)
	}

	messages := []model.ChatMessage{}
	if err := json.Unmarshal(raw, &messages); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached history failed: %w", err)
	}
	return messages, true, nil
}

// Version returns the current history version for userID. Callers read it
// before loading the history from the database and hand it to SetHistory.
func (c *HistoryCache) Version(ctx context.Context, userID uint) (int64, error) {
	version, err := c.readVersion(ctx, c.client, userID)
	if err != nil {
		return 0, fmt.Errorf("redis get history version failed: %w", err)
	}
	return version, nil
}

// SetHistory stores messages only when the version is still the one the
// snapshot was read under. A skipped write is not an error.
func (c *HistoryCache) SetHistory(ctx context.Context, userID uint, version int64, messages []model.ChatMessage) error {
	payload, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("marshal history cache failed: %w", err)
	}

	historyKey := c.historyKey(userID)
	txf := func(tx *redisv9.Tx) error {
		current, err := c.readVersion(ctx, tx, userID)
		if err != nil {
			return err
		}
		if current != version {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redisv9.Pipeliner) error {
			pipe.Set(ctx, historyKey, payload, c.historyTTL)
			return nil
		})
		return err
	}

	err = c.client.Watch(ctx, txf, c.versionKey(userID))
	if errors.Is(err, redisv9.TxFailedErr) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("redis set history failed: %w", err)
	}
	return nil
}

// Invalidate bumps the version and drops the cached history in one
// transaction, so any snapshot read before the call can no longer be stored.
func (c *HistoryCache) Invalidate(ctx context.Context, userID uint) error {
	versionKey := c.versionKey(userID)
	_, err := c.client.TxPipelined(ctx, func(pipe redisv9.Pipeliner) error {
		pipe.Incr(ctx, versionKey)
		pipe.Expire(ctx, versionKey, versionTTL)
		pipe.Del(ctx, c.historyKey(userID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis invalidate history failed: %w", err)
	}
	return nil
}

type stringGetter interface {
	Get(ctx context.Context, key string) *redisv9.StringCmd
}

func (c *HistoryCache) readVersion(ctx context.Context, cmd stringGetter, userID uint) (int64, error) {
	version, err := cmd.Get(ctx, c.versionKey(userID)).Int64()
	if errors.Is(err, redisv9.Nil) {
		return 0, nil
	}
	return version, err
}

func (c *HistoryCache) historyKey(userID uint) string {
	return fmt.Sprintf("chat:history:%d", userID)
}

func (c *HistoryCache) versionKey(userID uint) string {
	return fmt.Sprintf("chat:history:version:%d", userID)
}
