package lab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/labbit-23/labbit-main-sub000/pkg/logging"
)

// CachedStore is a Redis read-through cache in front of a Source. Cache
// failures fall through to the source.
type CachedStore struct {
	source Source
	redis  *redis.Client
	ttl    time.Duration
	logger *logging.Logger
}

func NewCachedStore(source Source, client *redis.Client, ttl time.Duration, logger *logging.Logger) *CachedStore {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &CachedStore{source: source, redis: client, ttl: ttl, logger: logger}
}

func configKey(labID string) string {
	return fmt.Sprintf("lab:config:%s", labID)
}

func phoneKey(phoneNumberID string) string {
	return fmt.Sprintf("lab:phone:%s", phoneNumberID)
}

func (c *CachedStore) Get(ctx context.Context, labID string) (*Config, error) {
	if cfg, ok := c.cached(ctx, configKey(labID)); ok {
		return cfg, nil
	}
	cfg, err := c.source.Get(ctx, labID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, cfg)
	return cfg, nil
}

func (c *CachedStore) GetByPhoneNumberID(ctx context.Context, phoneNumberID string) (*Config, error) {
	if c.redis != nil && phoneNumberID != "" {
		labID, err := c.redis.Get(ctx, phoneKey(phoneNumberID)).Result()
		if err == nil && labID != "" {
			return c.Get(ctx, labID)
		}
		if err != nil && !errors.Is(err, redis.Nil) {
			c.logger.Warn("lab cache read failed", "phone_number_id", phoneNumberID, "error", err)
		}
	}
	cfg, err := c.source.GetByPhoneNumberID(ctx, phoneNumberID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, cfg)
	return cfg, nil
}

// Invalidate drops a lab's cached entries after its configuration changes.
func (c *CachedStore) Invalidate(ctx context.Context, cfg *Config) error {
	if c.redis == nil || cfg == nil {
		return nil
	}
	keys := []string{configKey(cfg.ID)}
	if id := cfg.Messaging.PhoneNumberID; id != "" {
		keys = append(keys, phoneKey(id))
	}
	if err := c.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("lab: invalidate cache: %w", err)
	}
	return nil
}

func (c *CachedStore) cached(ctx context.Context, key string) (*Config, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("lab cache read failed", "key", key, "error", err)
		}
		return nil, false
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		c.logger.Warn("lab cache entry corrupt", "key", key, "error", err)
		return nil, false
	}
	return &cfg, true
}

func (c *CachedStore) store(ctx context.Context, cfg *Config) {
	if c.redis == nil || cfg == nil {
		return
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return
	}
	pipe := c.redis.TxPipeline()
	pipe.Set(ctx, configKey(cfg.ID), data, c.ttl)
	if id := cfg.Messaging.PhoneNumberID; id != "" {
		pipe.Set(ctx, phoneKey(id), cfg.ID, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn("lab cache write failed", "lab_id", cfg.ID, "error", err)
	}
}
