package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/clipiq/clipiq-backend/internal/logger"
)

// RankingCache holds short-lived ranking artifacts (trending lists, stat
// snapshots). Every method is fail-open at the call site: callers treat a
// miss and an error the same way and fall through to the database.
type RankingCache interface {
	GetJSON(ctx context.Context, key string, out any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

type rankingCache struct {
	log       *logger.Logger
	rdb       *goredis.Client
	keyPrefix string
}

func NewRankingCache(log *logger.Logger) (RankingCache, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	prefix := strings.TrimSpace(os.Getenv("REDIS_KEY_PREFIX"))
	if prefix == "" {
		prefix = "clipiq"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &rankingCache{
		log:       log.With("service", "RedisRankingCache"),
		rdb:       rdb,
		keyPrefix: prefix,
	}, nil
}

func (c *rankingCache) GetJSON(ctx context.Context, key string, out any) (bool, error) {
	if c == nil || c.rdb == nil {
		return false, fmt.Errorf("redis ranking cache not initialized")
	}
	raw, err := c.rdb.Get(ctx, c.qualify(key)).Bytes()
	if err == goredis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, err
	}
	return true, nil
}

func (c *rankingCache) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	if c == nil || c.rdb == nil {
		return fmt.Errorf("redis ranking cache not initialized")
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, c.qualify(key), raw, ttl).Err()
}

func (c *rankingCache) Delete(ctx context.Context, key string) error {
	if c == nil || c.rdb == nil {
		return fmt.Errorf("redis ranking cache not initialized")
	}
	return c.rdb.Del(ctx, c.qualify(key)).Err()
}

func (c *rankingCache) Close() error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}

func (c *rankingCache) qualify(key string) string {
	return c.keyPrefix + ":" + key
}
