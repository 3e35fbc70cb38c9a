package apps

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/quartzlabs/apphub/pkg/observability"
)

// DefaultCacheTTL bounds staleness for cached app lookups.
const DefaultCacheTTL = 5 * time.Minute

// cacheType labels this cache in hit/miss metrics.
const cacheType = "app"

// CachedDirectory wraps a Directory with a Redis read-through cache for
// guid lookups. Only FindByGUID is cached; list queries always hit the
// store. Writes invalidate both the app's current cache entry and, via an
// id to guid mapping, the entry for a guid that was just regenerated, so a
// retired guid cannot be served from cache.
type CachedDirectory struct {
	inner   Directory
	client  *redis.Client
	ttl     time.Duration
	metrics *observability.Metrics
}

// NewCachedDirectory wraps the directory with a Redis cache. metrics may
// be nil, in which case hits and misses are not counted.
func NewCachedDirectory(inner Directory, client *redis.Client, ttl time.Duration, metrics *observability.Metrics) *CachedDirectory {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedDirectory{inner: inner, client: client, ttl: ttl, metrics: metrics}
}

func (c *CachedDirectory) recordHit() {
	if c.metrics != nil {
		c.metrics.RecordCacheHit(cacheType)
	}
}

func (c *CachedDirectory) recordMiss() {
	if c.metrics != nil {
		c.metrics.RecordCacheMiss(cacheType)
	}
}

func keyByGUID(guid string) string { return fmt.Sprintf("app:guid:%s", guid) }
func keyByID(id int64) string      { return fmt.Sprintf("app:id:%d", id) }

// FindByGUID serves from cache when possible, falling back to the inner
// directory on a miss. Cache failures degrade to store reads.
func (c *CachedDirectory) FindByGUID(ctx context.Context, guid string) (*App, error) {
	data, err := c.client.Get(ctx, keyByGUID(guid)).Result()
	if err == nil {
		var app App
		if err := json.Unmarshal([]byte(data), &app); err == nil {
			c.recordHit()
			return &app, nil
		}
		// Corrupt entry; drop it and fall through to the store.
		c.client.Del(ctx, keyByGUID(guid))
		c.recordMiss()
	} else if err != redis.Nil {
		return c.inner.FindByGUID(ctx, guid)
	} else {
		c.recordMiss()
	}

	app, err := c.inner.FindByGUID(ctx, guid)
	if err != nil {
		return nil, err
	}
	c.cache(ctx, app)
	return app, nil
}

// FindAllByOrganization always reads through to the store.
func (c *CachedDirectory) FindAllByOrganization(ctx context.Context, orgID int64) ([]*App, error) {
	return c.inner.FindAllByOrganization(ctx, orgID)
}

// FindAllByOrganizationAndUser always reads through to the store.
func (c *CachedDirectory) FindAllByOrganizationAndUser(ctx context.Context, orgID, userID int64) ([]*App, error) {
	return c.inner.FindAllByOrganizationAndUser(ctx, orgID, userID)
}

// ExistsByNameInOrganization always reads through to the store.
func (c *CachedDirectory) ExistsByNameInOrganization(ctx context.Context, name string, orgID, excludeAppID int64) (bool, error) {
	return c.inner.ExistsByNameInOrganization(ctx, name, orgID, excludeAppID)
}

// Save persists through the inner directory and invalidates the app's
// cache entries, including the entry keyed by a previous guid.
func (c *CachedDirectory) Save(ctx context.Context, app *App) (*App, error) {
	saved, err := c.inner.Save(ctx, app)
	if err != nil {
		return nil, err
	}
	c.invalidate(ctx, saved.ID)
	c.client.Del(ctx, keyByGUID(saved.GUID))
	return saved, nil
}

// DeleteByID removes the app and its cache entries.
func (c *CachedDirectory) DeleteByID(ctx context.Context, id int64) error {
	if err := c.inner.DeleteByID(ctx, id); err != nil {
		return err
	}
	c.invalidate(ctx, id)
	return nil
}

func (c *CachedDirectory) cache(ctx context.Context, app *App) {
	data, err := json.Marshal(app)
	if err != nil {
		return
	}
	c.client.Set(ctx, keyByGUID(app.GUID), data, c.ttl)
	c.client.Set(ctx, keyByID(app.ID), app.GUID, c.ttl)
}

// invalidate drops the guid entry recorded for the app id, covering the
// case where the guid changed since the entry was written.
func (c *CachedDirectory) invalidate(ctx context.Context, id int64) {
	guid, err := c.client.GetDel(ctx, keyByID(id)).Result()
	if err == nil && guid != "" {
		c.client.Del(ctx, keyByGUID(guid))
	}
}
