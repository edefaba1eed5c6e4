package app

import (
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-costing/internal/costing"
)

// NewCostingService wires the report service onto Postgres and the Redis
// catalog cache. A nil redis client disables caching.
func NewCostingService(cfg *Config, pool *pgxpool.Pool, redisClient *redis.Client, recorder costing.Recorder, logger *slog.Logger) (*costing.Service, *costing.CatalogCache) {
	var cache *costing.CatalogCache
	if redisClient != nil {
		cache = costing.NewCatalogCache(redisClient, cfg.CostingCacheTTL, logger)
	}
	svc := costing.NewService(costing.NewRepository(pool), cache, recorder, logger, costing.ServiceConfig{
		DefaultLocation: cfg.DefaultLocation(),
		Locale:          cfg.CollationLocale(),
		SalesPageSize:   cfg.CostingSalesPageSize,
	})
	return svc, cache
}
