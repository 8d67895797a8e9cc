package redisstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// AudioCache keeps rendered narration under the store prefix.
type AudioCache struct {
	rdb    *redis.Client
	prefix string
}

func NewAudioCache(rdb *redis.Client, prefix string) *AudioCache {
	if prefix == "" {
		prefix = "mindweather"
	}
	return &AudioCache{rdb: rdb, prefix: prefix}
}

func (c *AudioCache) GetAudio(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := c.rdb.Get(ctx, c.prefix+":"+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (c *AudioCache) SetAudio(ctx context.Context, key string, audio []byte, ttl time.Duration) error {
	return c.rdb.Set(ctx, c.prefix+":"+key, audio, ttl).Err()
}
