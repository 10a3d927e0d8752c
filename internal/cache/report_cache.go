package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/andresuchdata/stocklens/internal/config"
	"github.com/andresuchdata/stocklens/internal/domain"
)

const reportKeyPrefix = "stocklens:report"

// ReportKey identifies one cacheable report computation.
type ReportKey struct {
	StartDate string
	EndDate   string
	Policy    string
	Merged    bool
}

type ReportCache interface {
	Get(ctx context.Context, key ReportKey) (*domain.Report, bool, error)
	Set(ctx context.Context, key ReportKey, report *domain.Report) error
}

type redisReportCache struct {
	client *redis.Client
	ttl    time.Duration
}

type noopReportCache struct{}

// NewReportCache returns a redis-backed cache, or a noop cache when caching
// is disabled in the config.
func NewReportCache(cfg config.CacheConfig) (ReportCache, error) {
	if !cfg.Enabled {
		return &noopReportCache{}, nil
	}

	client, ttl, err := newRedisClient(cfg)
	if err != nil {
		return nil, err
	}

	return &redisReportCache{client: client, ttl: ttl}, nil
}

func NewNoopReportCache() ReportCache {
	return &noopReportCache{}
}

func (c *redisReportCache) Get(ctx context.Context, key ReportKey) (*domain.Report, bool, error) {
	payload, err := c.client.Get(ctx, buildReportKey(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}

	var report domain.Report
	if err := json.Unmarshal(payload, &report); err != nil {
		return nil, false, fmt.Errorf("decode report cache: %w", err)
	}
	return &report, true, nil
}

func (c *redisReportCache) Set(ctx context.Context, key ReportKey, report *domain.Report) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report cache: %w", err)
	}
	return c.client.Set(ctx, buildReportKey(key), payload, c.ttl).Err()
}

func buildReportKey(key ReportKey) string {
	sum := sha1.Sum([]byte(fmt.Sprintf("%s|%s|%s|%t", key.StartDate, key.EndDate, key.Policy, key.Merged)))
	return fmt.Sprintf("%s:%s", reportKeyPrefix, hex.EncodeToString(sum[:]))
}

func (c *noopReportCache) Get(context.Context, ReportKey) (*domain.Report, bool, error) {
	return nil, false, nil
}

func (c *noopReportCache) Set(context.Context, ReportKey, *domain.Report) error {
	return nil
}
