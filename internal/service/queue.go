package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/algoprep-backend/internal/config"
	"github.com/stemsi/algoprep-backend/internal/model"
)

// Enqueuer hands a job to one of the background workers.
type Enqueuer interface {
	Enqueue(ctx context.Context, queue string, payload any) error
}

// RedisEnqueuer RPUSHes JSON payloads onto the worker lists.
type RedisEnqueuer struct {
	rdb *redis.Client
}

func NewRedisEnqueuer(rdb *redis.Client) *RedisEnqueuer {
	return &RedisEnqueuer{rdb: rdb}
}

func (q *RedisEnqueuer) Enqueue(ctx context.Context, queue string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", queue, err)
	}
	return q.rdb.RPush(ctx, queue, data).Err()
}

// ActiveSessionMarker records which interview a user is running so a second
// start is rejected across server instances.
type ActiveSessionMarker interface {
	// Claim sets the marker only when none exists and reports whether it did.
	Claim(ctx context.Context, userID int, sessionID uuid.UUID, ttl time.Duration) (bool, error)
	Release(ctx context.Context, userID int) error
}

type RedisSessionMarker struct {
	rdb *redis.Client
}

func NewRedisSessionMarker(rdb *redis.Client) *RedisSessionMarker {
	return &RedisSessionMarker{rdb: rdb}
}

func (m *RedisSessionMarker) Claim(ctx context.Context, userID int, sessionID uuid.UUID, ttl time.Duration) (bool, error) {
	return m.rdb.SetNX(ctx, config.CacheKey.UserActiveInterviewKey(userID), sessionID.String(), ttl).Result()
}

func (m *RedisSessionMarker) Release(ctx context.Context, userID int) error {
	return m.rdb.Del(ctx, config.CacheKey.UserActiveInterviewKey(userID)).Err()
}

// DraftCache is the live copy of practice drafts, read before the database.
type DraftCache interface {
	Put(ctx context.Context, d *model.CodeDraft) error
	Get(ctx context.Context, userID int, questionID string) (*model.CodeDraft, error)
}

// RedisDraftCache keeps one hash per user with a field per question.
type RedisDraftCache struct {
	rdb *redis.Client
}

func NewRedisDraftCache(rdb *redis.Client) *RedisDraftCache {
	return &RedisDraftCache{rdb: rdb}
}

func (c *RedisDraftCache) Put(ctx context.Context, d *model.CodeDraft) error {
	data, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return c.rdb.HSet(ctx, config.CacheKey.UserDraftsKey(d.UserID), d.QuestionID, data).Err()
}

// Get returns nil without error when no draft is cached.
func (c *RedisDraftCache) Get(ctx context.Context, userID int, questionID string) (*model.CodeDraft, error) {
	raw, err := c.rdb.HGet(ctx, config.CacheKey.UserDraftsKey(userID), questionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var d model.CodeDraft
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, err
	}
	return &d, nil
}
