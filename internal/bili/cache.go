package bili

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// statCacheTTL bounds how stale a follower count may be within and
// across digest runs.
const statCacheTTL = 10 * time.Minute

// statCache is a two-tier follower-count cache: L1 in-memory, optional
// L2 Redis. L1 is lost on restart, L2 survives. Redis being down only
// disables L2.
type statCache struct {
	l1  sync.Map // mid → statEntry
	rdb *redis.Client
	ttl time.Duration
}

type statEntry struct {
	follower  int64
	expiresAt time.Time
}

func newStatCache(redisURL string) *statCache {
	c := &statCache{ttl: statCacheTTL}
	if redisURL == "" {
		return c
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		slog.Warn("bili: invalid redis URL, stat cache L2 disabled", slog.Any("error", err))
		return c
	}
	rdb := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Warn("bili: redis unreachable, stat cache L2 disabled", slog.Any("error", err))
		return c
	}
	c.rdb = rdb
	slog.Info("bili: stat cache L2 connected", slog.String("addr", opts.Addr))
	return c
}

func redisKey(mid string) string { return "wanzi:follower:" + mid }

func (c *statCache) get(ctx context.Context, mid string) (int64, bool) {
	if v, ok := c.l1.Load(mid); ok {
		e := v.(statEntry)
		if time.Now().Before(e.expiresAt) {
			return e.follower, true
		}
		c.l1.Delete(mid)
	}

	if c.rdb == nil {
		return 0, false
	}
	s, err := c.rdb.Get(ctx, redisKey(mid)).Result()
	if err != nil {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	// promote to L1
	c.l1.Store(mid, statEntry{follower: n, expiresAt: time.Now().Add(c.ttl)})
	return n, true
}

func (c *statCache) set(ctx context.Context, mid string, follower int64) {
	c.l1.Store(mid, statEntry{follower: follower, expiresAt: time.Now().Add(c.ttl)})
	if c.rdb != nil {
		if err := c.rdb.Set(ctx, redisKey(mid), strconv.FormatInt(follower, 10), c.ttl).Err(); err != nil {
			slog.Debug("bili: stat cache L2 write failed", slog.Any("error", err))
		}
	}
}
