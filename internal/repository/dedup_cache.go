package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const dedupKeyPrefix = "dedup:msg:"

type redisDedupCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDedupCache remembers processed provider message ids for ttl.
func NewRedisDedupCache(client *redis.Client, ttl time.Duration) DedupCache {
	return &redisDedupCache{
		client: client,
		ttl:    ttl,
	}
}

func (c *redisDedupCache) Seen(ctx context.Context, companyID, providerMessageID string) (bool, error) {
	err := c.client.Get(ctx, dedupKey(companyID, providerMessageID)).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check dedup key: %w", err)
	}

	return true, nil
}

func (c *redisDedupCache) Mark(ctx context.Context, companyID, providerMessageID string) error {
	if err := c.client.Set(ctx, dedupKey(companyID, providerMessageID), time.Now().Unix(), c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set dedup key: %w", err)
	}

	return nil
}

func dedupKey(companyID, providerMessageID string) string {
	return dedupKeyPrefix + companyID + ":" + providerMessageID
}

// noopDedupCache is used when Redis is disabled.
type noopDedupCache struct{}

func NewNoopDedupCache() DedupCache {
	return noopDedupCache{}
}

func (noopDedupCache) Seen(context.Context, string, string) (bool, error) { return false, nil }

func (noopDedupCache) Mark(context.Context, string, string) error { return nil }
