package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"petcare/internal/billing"
	"petcare/internal/types"
)

const (
	packageKeyPrefix = "petcare:package:"
	priceKeyPrefix   = "petcare:price:"

	// DefaultTTL applies when the configured TTL is not positive.
	DefaultTTL = 10 * time.Minute
)

var _ billing.PackageStore = (*PackageCache)(nil)

// PackageCache is a read-through cache over a PackageStore. Only hits are
// cached; unknown packages and unmapped prices always reach the store.
// Redis failures are logged and the lookup falls back to the store.
type PackageCache struct {
	next   billing.PackageStore
	rdb    redis.Cmdable
	ttl    time.Duration
	logger *slog.Logger
}

// NewPackageCache wraps next with rdb.
func NewPackageCache(next billing.PackageStore, rdb redis.Cmdable, ttl time.Duration, logger *slog.Logger) *PackageCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PackageCache{next: next, rdb: rdb, ttl: ttl, logger: logger}
}

func (c *PackageCache) GetPackage(ctx context.Context, id string) (*types.Package, error) {
	key := packageKeyPrefix + id
	val, err := c.rdb.Get(ctx, key).Result()
	switch {
	case err == nil:
		var p types.Package
		if jsonErr := json.Unmarshal([]byte(val), &p); jsonErr == nil {
			return &p, nil
		}
		c.logger.WarnContext(ctx, "discarding corrupt cached package", "key", key)
	case !errors.Is(err, redis.Nil):
		c.logger.WarnContext(ctx, "package cache read failed", "key", key, "error", err)
	}

	p, err := c.next.GetPackage(ctx, id)
	if err != nil || p == nil {
		return p, err
	}
	if data, err := json.Marshal(p); err == nil {
		c.set(ctx, key, data)
	}
	return p, nil
}

func (c *PackageCache) PackageIDForPrice(ctx context.Context, priceID string) (string, error) {
	key := priceKeyPrefix + priceID
	val, err := c.rdb.Get(ctx, key).Result()
	switch {
	case err == nil && val != "":
		return val, nil
	case err != nil && !errors.Is(err, redis.Nil):
		c.logger.WarnContext(ctx, "price cache read failed", "key", key, "error", err)
	}

	packageID, err := c.next.PackageIDForPrice(ctx, priceID)
	if err != nil || packageID == "" {
		return packageID, err
	}
	c.set(ctx, key, packageID)
	return packageID, nil
}

func (c *PackageCache) set(ctx context.Context, key string, value any) {
	if err := c.rdb.Set(ctx, key, value, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "package cache write failed", "key", key, "error", err)
	}
}
