// Package cache stores short-lived byte values in memory or Redis.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/newthinker/tradebot/internal/config"
	"github.com/newthinker/tradebot/internal/core"
)

// Cache is a keyed byte store with per-key expiry.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// New builds a cache from configuration.
func New(cfg config.CacheConfig) (Cache, error) {
	switch cfg.Type {
	case "", "memory":
		return NewMemory(), nil
	case "redis":
		return NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB), nil
	default:
		return nil, core.Errorf(core.ErrConfigInvalid, "unknown cache type %q", cfg.Type)
	}
}

// GetJSON decodes a cached JSON value into dest.
func GetJSON(ctx context.Context, c Cache, key string, dest any) (bool, error) {
	data, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("cache: decode %s: %w", key, err)
	}
	return true, nil
}

// SetJSON encodes v as JSON and stores it.
func SetJSON(ctx context.Context, c Cache, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache: encode %s: %w", key, err)
	}
	return c.Set(ctx, key, data, ttl)
}
