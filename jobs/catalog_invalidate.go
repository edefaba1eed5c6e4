package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-costing/internal/jobs"
)

// CatalogInvalidator bumps a tenant's catalog cache version.
type CatalogInvalidator interface {
	InvalidateCatalog(ctx context.Context, tenantID int64) (int64, error)
}

// CatalogInvalidateJob handles TaskCatalogInvalidate.
type CatalogInvalidateJob struct {
	Invalidator CatalogInvalidator
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
}

// NewCatalogInvalidateJob wires dependencies for the invalidation handler.
func NewCatalogInvalidateJob(invalidator CatalogInvalidator, logger *slog.Logger, metrics *jobmetrics.Metrics) *CatalogInvalidateJob {
	return &CatalogInvalidateJob{Invalidator: invalidator, Logger: logger, Metrics: metrics}
}

// Handle processes catalog invalidation tasks. Malformed payloads are not
// retried; cache errors are.
func (j *CatalogInvalidateJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Invalidator == nil {
		return errors.New("catalog invalidate: handler not configured")
	}
	var payload CatalogInvalidatePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("catalog invalidate: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.TenantID <= 0 {
		return fmt.Errorf("catalog invalidate: invalid tenant id %d: %w", payload.TenantID, asynq.SkipRetry)
	}
	if payload.Source == "" {
		payload.Source = SourceTask
	}

	tracker := j.Metrics.Track(TaskCatalogInvalidate)
	version, err := j.Invalidator.InvalidateCatalog(ctx, payload.TenantID)
	if err = tracker.End(err); err != nil {
		j.logger().Error("catalog invalidation failed",
			slog.Int64("tenant_id", payload.TenantID),
			slog.String("source", payload.Source),
			slog.Any("error", err))
		return err
	}
	j.Metrics.AddInvalidation(payload.Source)
	j.logger().Info("catalog invalidated",
		slog.Int64("tenant_id", payload.TenantID),
		slog.String("source", payload.Source),
		slog.Int64("version", version))
	return nil
}

func (j *CatalogInvalidateJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
