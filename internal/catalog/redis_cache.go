package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/wolfman30/symptom-intake/internal/triage"
	"github.com/wolfman30/symptom-intake/pkg/logging"
)

const rulesCacheKey = "catalog:v1:rules"

// RedisCache caches the full rule list of a backing store in Redis.
// Lookups and writes fall through to the store when Redis misbehaves.
type RedisCache struct {
	store  Store
	redis  *redis.Client
	ttl    time.Duration
	logger *logging.Logger
}

// NewRedisCache wraps store with a Redis-backed cache.
func NewRedisCache(store Store, client *redis.Client, ttl time.Duration, logger *logging.Logger) *RedisCache {
	if store == nil {
		panic("catalog: store cannot be nil")
	}
	if client == nil {
		panic("catalog: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &RedisCache{store: store, redis: client, ttl: ttl, logger: logger}
}

func (c *RedisCache) ListRules(ctx context.Context) ([]triage.SymptomRule, error) {
	data, err := c.redis.Get(ctx, rulesCacheKey).Bytes()
	switch {
	case err == nil:
		var rules []triage.SymptomRule
		if jsonErr := json.Unmarshal(data, &rules); jsonErr == nil && len(rules) > 0 {
			return rules, nil
		}
		c.logger.Warn("discarding corrupt catalog cache entry")
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("catalog cache read failed", "error", err)
	}

	rules, err := c.store.ListRules(ctx)
	if err != nil {
		return nil, err
	}
	if len(rules) > 0 {
		c.fill(ctx, rules)
	}
	return rules, nil
}

func (c *RedisCache) FindRule(ctx context.Context, symptom string) (*triage.SymptomRule, error) {
	rules, err := c.ListRules(ctx)
	if err != nil {
		return nil, err
	}
	key := strings.TrimSpace(symptom)
	for i := range rules {
		if strings.EqualFold(rules[i].Symptom, key) {
			return &rules[i], nil
		}
	}
	return nil, nil
}

// UpsertRule writes through to the store and drops the cached list.
func (c *RedisCache) UpsertRule(ctx context.Context, rule triage.SymptomRule) error {
	if err := c.store.UpsertRule(ctx, rule); err != nil {
		return err
	}
	return c.Invalidate(ctx)
}

// Invalidate removes the cached rule list.
func (c *RedisCache) Invalidate(ctx context.Context) error {
	if err := c.redis.Del(ctx, rulesCacheKey).Err(); err != nil {
		return fmt.Errorf("catalog: invalidate cache: %w", err)
	}
	return nil
}

func (c *RedisCache) fill(ctx context.Context, rules []triage.SymptomRule) {
	data, err := json.Marshal(rules)
	if err != nil {
		c.logger.Warn("catalog cache encode failed", "error", err)
		return
	}
	if err := c.redis.Set(ctx, rulesCacheKey, data, c.ttl).Err(); err != nil {
		c.logger.Warn("catalog cache write failed", "error", err)
	}
}
