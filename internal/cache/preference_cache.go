// Package cache holds the Redis read-through cache for user preferences.
// Preferences are read on every dispatch, so cache misses and Redis outages
// must degrade to the database instead of failing the operation.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"notifyhub/internal/model"
)

type PreferenceCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewPreferenceCache(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *PreferenceCache {
	return &PreferenceCache{rdb: rdb, ttl: ttl, logger: logger}
}

func prefKey(userID int64) string {
	return fmt.Sprintf("pref:%d", userID)
}

// Get returns the cached preference for a user, or (nil, false) on miss or
// Redis failure.
func (c *PreferenceCache) Get(ctx context.Context, userID int64) (*model.Preference, bool) {
	data, err := c.rdb.Get(ctx, prefKey(userID)).Bytes()
	if err != nil {
		if err != redis.Nil && c.logger != nil {
			c.logger.Warn("Preference cache read failed, falling back to DB",
				zap.Int64("user_id", userID),
				zap.Error(err),
			)
		}
		return nil, false
	}

	var p model.Preference
	if err := json.Unmarshal(data, &p); err != nil {
		// A corrupt entry is dropped, not served.
		c.rdb.Del(ctx, prefKey(userID))
		return nil, false
	}
	return &p, true
}

// Set stores a preference row. Failures are logged and ignored.
func (c *PreferenceCache) Set(ctx context.Context, p *model.Preference) {
	data, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, prefKey(p.UserID), data, c.ttl).Err(); err != nil && c.logger != nil {
		c.logger.Warn("Preference cache write failed",
			zap.Int64("user_id", p.UserID),
			zap.Error(err),
		)
	}
}

// Invalidate drops the cached row after a preference update.
func (c *PreferenceCache) Invalidate(ctx context.Context, userID int64) {
	if err := c.rdb.Del(ctx, prefKey(userID)).Err(); err != nil && c.logger != nil {
		c.logger.Warn("Preference cache invalidation failed",
			zap.Int64("user_id", userID),
			zap.Error(err),
		)
	}
}
