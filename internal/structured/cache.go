package structured

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sells-group/violation-cli/internal/model"
)

const keyPrefix = "violations:structured:"

// Cache is a read-through Redis cache in front of a Source. Redis failures
// are logged and fall through to the wrapped source.
type Cache struct {
	next Source
	rdb  redis.UniversalClient
	ttl  time.Duration
}

// NewCache wraps next with a cache whose entries live for ttl.
func NewCache(next Source, rdb redis.UniversalClient, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cache{next: next, rdb: rdb, ttl: ttl}
}

// Fetch returns cached violations for plate and state, or fetches and stores
// them. Errors are never cached.
func (c *Cache) Fetch(ctx context.Context, plate, state string) ([]model.Violation, error) {
	key := cacheKey(plate, state)
	log := zap.L().With(zap.String("key", key))

	data, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var vs []model.Violation
		if jerr := json.Unmarshal(data, &vs); jerr == nil {
			log.Debug("structured: cache hit", zap.Int("count", len(vs)))
			return vs, nil
		}
		log.Warn("structured: discarding corrupt cache entry")
	case err != redis.Nil:
		log.Warn("structured: cache read failed", zap.Error(err))
	}

	vs, err := c.next.Fetch(ctx, plate, state)
	if err != nil {
		return nil, err
	}

	if data, jerr := json.Marshal(vs); jerr == nil {
		if serr := c.rdb.Set(ctx, key, data, c.ttl).Err(); serr != nil {
			log.Warn("structured: cache write failed", zap.Error(serr))
		}
	}
	return vs, nil
}

func cacheKey(plate, state string) string {
	return keyPrefix + strings.ToUpper(strings.TrimSpace(state)) + ":" + strings.ToUpper(strings.TrimSpace(plate))
}
