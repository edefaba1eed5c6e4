package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskCatalogInvalidate drops a tenant's cached catalog snapshot.
	TaskCatalogInvalidate = "costing:catalog.invalidate"
)

// Invalidation sources recorded on metrics and logs.
const (
	SourceHTTP  = "http"
	SourceTask  = "task"
	SourceKafka = "kafka"
	SourceCLI   = "cli"
)

// CatalogInvalidatePayload identifies the tenant whose catalog changed.
type CatalogInvalidatePayload struct {
	TenantID int64  `json:"tenant_id"`
	Source   string `json:"source,omitempty"`
}

// NewCatalogInvalidateTask constructs an Asynq task.
func NewCatalogInvalidateTask(payload CatalogInvalidatePayload) (*asynq.Task, error) {
	if payload.TenantID <= 0 {
		return nil, fmt.Errorf("jobs: invalid tenant id %d", payload.TenantID)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCatalogInvalidate, data, asynq.MaxRetry(5)), nil
}
