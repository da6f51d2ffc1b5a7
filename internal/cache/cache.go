// Package cache 保存报表读路径最近一次成功的结果，供存储故障时降级返回。
package cache

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"auto-trade/internal/config"
)

// Cache 以 JSON 形式存取报表快照。
type Cache interface {
	// Get 读取 key 并解码到 dest，未命中返回 false。
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}) error
	Close() error
}

// New 按 driver 创建缓存实现。
func New(ctx context.Context, cfg config.CacheConfig, logger *zap.Logger) (Cache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	switch cfg.Driver {
	case config.CacheDriverRedis:
		return NewRedis(ctx, cfg.Redis, ttl, logger)
	case config.CacheDriverMemory, "":
		return NewMemory(ttl), nil
	default:
		return nil, fmt.Errorf("cache: 不支持的 driver %q", cfg.Driver)
	}
}

// Key 拼接带命名空间的缓存键。
func Key(parts ...string) string {
	key := "autotrade"
	for _, p := range parts {
		if p == "" {
			p = "_"
		}
		key += ":" + p
	}
	return key
}
