// Package cachesvc stores rendered pages and invalidates them by path.
package cachesvc

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/alumni/core"
)

const (
	keyPrefix = "alumni:page:"

	// RevalidateChannel receives every revalidated path, for other instances and consumers.
	RevalidateChannel = "alumni:revalidate"
)

func pageKey(path, variant string) string {
	return keyPrefix + path + "|" + variant
}

type RedisCache struct {
	client *redis.Client
	conf   core.RedisConfig
}

var _ core.PageCache = (*RedisCache)(nil)

func NewRedisCache(ctx context.Context, conf core.RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     conf.Addr,
		Password: conf.Password,
		DB:       conf.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "pinging redis")
	}
	return &RedisCache{client: client, conf: conf}, nil
}

func (c *RedisCache) Get(ctx context.Context, path, variant string) ([]byte, bool, error) {
	page, err := c.client.Get(ctx, pageKey(path, variant)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "getting page")
	}
	return page, true, nil
}

func (c *RedisCache) Set(ctx context.Context, path, variant string, page []byte) error {
	return errors.Wrap(c.client.Set(ctx, pageKey(path, variant), page, c.conf.PageTTL).Err(), "setting page")
}

// Revalidate drops every cached variant of the paths and announces them on RevalidateChannel.
func (c *RedisCache) Revalidate(ctx context.Context, paths ...string) error {
	for _, path := range paths {
		var (
			cursor uint64
			keys   []string
			err    error
		)
		for {
			keys, cursor, err = c.client.Scan(ctx, cursor, pageKey(path, "*"), 100).Result()
			if err != nil {
				return errors.Wrap(err, fmt.Sprintf("scanning %s", path))
			}
			if len(keys) > 0 {
				if err = c.client.Del(ctx, keys...).Err(); err != nil {
					return errors.Wrap(err, fmt.Sprintf("deleting %s", path))
				}
			}
			if cursor == 0 {
				break
			}
		}
		if err = c.client.Publish(ctx, RevalidateChannel, path).Err(); err != nil {
			return errors.Wrap(err, fmt.Sprintf("publishing %s", path))
		}
	}
	return nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
