package setting

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/newsdesk/service-core/internal/setting/entity"
)

// Cache is a Redis read-through cache for single settings.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Cache{client: client, ttl: ttl, prefix: "setting:"}
}

// absentMarker records that the key has no row. A JSON setting never
// encodes to it.
const absentMarker = "-"

// Get returns ok=false when nothing is cached. A cached absence comes back
// as (nil, true, nil).
func (c *Cache) Get(ctx context.Context, key string) (*entity.Setting, bool, error) {
	b, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if string(b) == absentMarker {
		return nil, true, nil
	}
	var s entity.Setting
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, false, err
	}
	return &s, true, nil
}

func (c *Cache) Set(ctx context.Context, s *entity.Setting) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.prefix+s.Key, b, c.ttl).Err()
}

// SetAbsent caches a lookup that found no row, with the same TTL as a hit.
func (c *Cache) SetAbsent(ctx context.Context, key string) error {
	return c.client.Set(ctx, c.prefix+key, absentMarker, c.ttl).Err()
}

func (c *Cache) Invalidate(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.prefix+key).Err()
}
