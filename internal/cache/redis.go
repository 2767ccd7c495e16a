// Package cache — кэш страниц истории.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cwrk-planet/tripchat/internal/domain"

	"github.com/redis/go-redis/v9"
)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

type RedisPageCache struct {
	client redis.UniversalClient
	prefix string
}

// NewRedis подключается к Redis и проверяет соединение.
func NewRedis(ctx context.Context, cfg RedisConfig) (*RedisPageCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisWithClient(client, cfg.Prefix), nil
}

func NewRedisWithClient(client redis.UniversalClient, prefix string) *RedisPageCache {
	if prefix == "" {
		prefix = "tripchat:history"
	}
	return &RedisPageCache{client: client, prefix: prefix}
}

// keyPart экранирует разделитель, чтобы ключ однозначно разбирался
// обратно: trip "a:b" + cursor "x" и trip "a" + cursor "b:x" не совпадают.
var keyPart = strings.NewReplacer("%", "%25", ":", "%3A")

// BuildKey: пустой before (самая новая страница) даёт пустой сегмент.
func (c *RedisPageCache) BuildKey(tripID, before string, limit int) string {
	return fmt.Sprintf("%s:%s:%s:%d", c.prefix, keyPart.Replace(tripID), keyPart.Replace(before), limit)
}

func (c *RedisPageCache) Get(ctx context.Context, key string) (*domain.Page, bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	var page domain.Page
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached page: %w", err)
	}
	return &page, true, nil
}

func (c *RedisPageCache) Set(ctx context.Context, key string, page *domain.Page, ttl time.Duration) error {
	data, err := json.Marshal(page)
	if err != nil {
		return fmt.Errorf("marshal page: %w", err)
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (c *RedisPageCache) Close() error {
	return c.client.Close()
}
