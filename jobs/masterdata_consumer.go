package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	jobmetrics "github.com/odyssey-erp/odyssey-costing/internal/jobs"
)

// ChangeEvent is a master-data change notification.
type ChangeEvent struct {
	TenantID int64  `json:"tenant_id"`
	Table    string `json:"table"`
	Op       string `json:"op"`
}

// catalogTables are the tables whose rows make up a cached catalog.
var catalogTables = map[string]struct{}{
	"products":         {},
	"bom_edges":        {},
	"units":            {},
	"stock_categories": {},
}

// AffectsCatalog reports whether the event touches cached master data.
func (e ChangeEvent) AffectsCatalog() bool {
	_, ok := catalogTables[e.Table]
	return ok && e.TenantID > 0
}

// MessageReader is the subset of *kafka.Reader the consumer needs.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// MasterDataConsumer turns change events into catalog invalidations.
type MasterDataConsumer struct {
	reader      MessageReader
	invalidator CatalogInvalidator
	logger      *slog.Logger
	metrics     *jobmetrics.Metrics
	backoff     time.Duration
}

// NewMasterDataConsumer constructs the consumer.
func NewMasterDataConsumer(reader MessageReader, invalidator CatalogInvalidator, logger *slog.Logger, metrics *jobmetrics.Metrics) *MasterDataConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &MasterDataConsumer{
		reader:      reader,
		invalidator: invalidator,
		logger:      logger.With(slog.String("component", "masterdata_consumer")),
		metrics:     metrics,
		backoff:     time.Second,
	}
}

// Run consumes until ctx is cancelled. A message is committed once handled;
// when invalidation fails it is retried after a backoff so an outage delays
// but never drops the bump.
func (c *MasterDataConsumer) Run(ctx context.Context) error {
	defer func() { _ = c.reader.Close() }()
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("fetch change event", slog.Any("error", err))
			if !c.sleep(ctx) {
				return ctx.Err()
			}
			continue
		}

		for {
			err = c.handle(ctx, msg)
			if err == nil {
				break
			}
			c.logger.Error("invalidate from change event",
				slog.Int64("offset", msg.Offset),
				slog.Int("partition", msg.Partition),
				slog.Any("error", err))
			if !c.sleep(ctx) {
				return ctx.Err()
			}
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Warn("commit change event", slog.Int64("offset", msg.Offset), slog.Any("error", err))
		}
	}
}

func (c *MasterDataConsumer) handle(ctx context.Context, msg kafka.Message) error {
	var event ChangeEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		c.logger.Warn("skip malformed change event", slog.Int64("offset", msg.Offset), slog.Any("error", err))
		return nil
	}
	if !event.AffectsCatalog() {
		return nil
	}

	tracker := c.metrics.Track(TaskCatalogInvalidate)
	version, err := c.invalidator.InvalidateCatalog(ctx, event.TenantID)
	if err = tracker.End(err); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	c.metrics.AddInvalidation(SourceKafka)
	c.logger.Info("catalog invalidated",
		slog.Int64("tenant_id", event.TenantID),
		slog.String("table", event.Table),
		slog.String("op", event.Op),
		slog.Int64("version", version))
	return nil
}

func (c *MasterDataConsumer) sleep(ctx context.Context) bool {
	t := time.NewTimer(c.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
