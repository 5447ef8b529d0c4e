package cache

import (
	"context"
	"time"
)

// Cache is the read path used by the pipeline. There is no read-your-writes
// guarantee inside a TTL window; entries simply expire.
type Cache interface {
	GetJSON(ctx context.Context, key string, dst any) (hit bool, err error)
	SetJSON(ctx context.Context, key string, val any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}
