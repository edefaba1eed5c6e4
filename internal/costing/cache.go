package costing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// BumpChannel carries "<tenant>" or "<tenant>:<version>" invalidation messages.
	BumpChannel = "costing.catalog.bump"

	// DefaultCacheTTL bounds staleness of a cached catalog.
	DefaultCacheTTL = 2 * time.Minute
)

// CatalogCache stores catalog snapshots in Redis under per-tenant versioned
// keys. Bumping the version orphans old snapshots; the TTL expires them.
type CatalogCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewCatalogCache instantiates the cache helper.
func NewCatalogCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *CatalogCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CatalogCache{client: client, ttl: ttl, logger: logger}
}

func versionKey(tenantID int64) string {
	return "costing:catalog:version:" + strconv.FormatInt(tenantID, 10)
}

func catalogKey(tenantID, version int64) string {
	return fmt.Sprintf("costing:catalog:%d:v%d", tenantID, version)
}

// Version returns the tenant's cache version, initialising when missing.
func (c *CatalogCache) Version(ctx context.Context, tenantID int64) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, versionKey(tenantID)).Int64()
	if errors.Is(err, redis.Nil) || (err == nil && ver <= 0) {
		if err := c.client.SetNX(ctx, versionKey(tenantID), 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, versionKey(tenantID)).Int64()
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// Fetch returns the cached catalog or populates it with loader. Redis failures
// fall back to the loader; only loader errors are returned. hit reports whether
// the snapshot came from Redis.
func (c *CatalogCache) Fetch(ctx context.Context, tenantID int64, loader func(context.Context) (Catalog, error)) (catalog Catalog, hit bool, err error) {
	if loader == nil {
		return Catalog{}, false, errors.New("costing: catalog loader required")
	}
	if c == nil || c.client == nil {
		catalog, err = loader(ctx)
		return catalog, false, err
	}
	logger := c.logger.With(slog.Int64("tenant_id", tenantID))

	ver, err := c.Version(ctx, tenantID)
	if err != nil {
		logger.Warn("catalog cache version", slog.Any("error", err))
		catalog, err = loader(ctx)
		return catalog, false, err
	}
	key := catalogKey(tenantID, ver)

	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		if err := json.Unmarshal(payload, &catalog); err == nil {
			return catalog, true, nil
		}
		logger.Warn("catalog cache decode", slog.String("key", key), slog.Any("error", err))
	} else if !errors.Is(err, redis.Nil) {
		logger.Warn("catalog cache get", slog.String("key", key), slog.Any("error", err))
	}

	catalog, err = loader(ctx)
	if err != nil {
		return Catalog{}, false, err
	}
	raw, err := json.Marshal(catalog)
	if err != nil {
		logger.Warn("catalog cache encode", slog.Any("error", err))
		return catalog, false, nil
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		logger.Warn("catalog cache set", slog.String("key", key), slog.Any("error", err))
	}
	return catalog, false, nil
}

// Bump invalidates the tenant's snapshot and publishes the new version.
func (c *CatalogCache) Bump(ctx context.Context, tenantID int64) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Incr(ctx, versionKey(tenantID)).Result()
	if err != nil {
		return 0, err
	}
	msg := strconv.FormatInt(tenantID, 10) + ":" + strconv.FormatInt(ver, 10)
	if err := c.client.Publish(ctx, BumpChannel, msg).Err(); err != nil {
		return ver, err
	}
	return ver, nil
}

// ListenForInvalidation applies bump messages published by other writers. A
// bare tenant id increments its version; "<tenant>:<version>" raises it to at
// least that version.
func (c *CatalogCache) ListenForInvalidation(ctx context.Context, channel string) error {
	if c == nil || c.client == nil {
		return nil
	}
	if channel == "" {
		channel = BumpChannel
	}
	pubsub := c.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if err := c.apply(ctx, msg.Payload); err != nil {
					c.logger.Warn("catalog cache invalidation message", slog.String("payload", msg.Payload), slog.Any("error", err))
				}
			}
		}
	}()
	return nil
}

func (c *CatalogCache) apply(ctx context.Context, payload string) error {
	tenantPart, versionPart, hasVersion := strings.Cut(strings.TrimSpace(payload), ":")
	tenantID, err := strconv.ParseInt(tenantPart, 10, 64)
	if err != nil || tenantID <= 0 {
		return fmt.Errorf("invalid tenant in %q", payload)
	}
	if !hasVersion {
		return c.client.Incr(ctx, versionKey(tenantID)).Err()
	}
	ver, err := strconv.ParseInt(versionPart, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid version in %q", payload)
	}
	current, err := c.client.Get(ctx, versionKey(tenantID)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	if current >= ver {
		return nil
	}
	return c.client.Set(ctx, versionKey(tenantID), ver, 0).Err()
}
