package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"auto-trade/internal/config"
)

// Redis 基于 go-redis 的共享缓存。
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

var _ Cache = (*Redis)(nil)

// NewRedis 连接 Redis 并检查可用性。
func NewRedis(ctx context.Context, cfg config.RedisConfig, ttl time.Duration, logger *zap.Logger) (*Redis, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 10
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     poolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("cache: 连接 Redis %s 失败: %w", cfg.Addr, err)
	}

	logger.Info("Redis 缓存已连接", zap.String("addr", cfg.Addr), zap.Int("db", cfg.DB))
	return NewRedisWithClient(client, ttl, logger), nil
}

// NewRedisWithClient 使用已有客户端创建缓存。
func NewRedisWithClient(client *redis.Client, ttl time.Duration, logger *zap.Logger) *Redis {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Redis{client: client, ttl: ttl, logger: logger}
}

// Get 读取缓存。
func (r *Redis) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache: 读取 Redis 失败: %w", err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("cache: 解码缓存失败: %w", err)
	}
	return true, nil
}

// Set 写入缓存并设置过期时间。
func (r *Redis) Set(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: 序列化缓存失败: %w", err)
	}
	if err := r.client.Set(ctx, key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("cache: 写入 Redis 失败: %w", err)
	}
	return nil
}

// Close 关闭连接。
func (r *Redis) Close() error {
	return r.client.Close()
}
