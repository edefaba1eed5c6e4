package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/odyssey-erp/odyssey-costing/internal/jobs"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type invalidatorStub struct {
	mu      sync.Mutex
	tenants []int64
	errs    []error
}

func (s *invalidatorStub) InvalidateCatalog(ctx context.Context, tenantID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenants = append(s.tenants, tenantID)
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return 0, err
		}
	}
	return int64(len(s.tenants) + 1), nil
}

func (s *invalidatorStub) calls() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.tenants...)
}

func TestNewCatalogInvalidateTask(t *testing.T) {
	task, err := NewCatalogInvalidateTask(CatalogInvalidatePayload{TenantID: 3, Source: SourceCLI})
	require.NoError(t, err)
	require.Equal(t, TaskCatalogInvalidate, task.Type())
	require.JSONEq(t, `{"tenant_id":3,"source":"cli"}`, string(task.Payload()))

	_, err = NewCatalogInvalidateTask(CatalogInvalidatePayload{})
	require.Error(t, err)
}

func TestCatalogInvalidateJob(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)
	stub := &invalidatorStub{}
	job := NewCatalogInvalidateJob(stub, discardLogger(), metrics)

	task, err := NewCatalogInvalidateTask(CatalogInvalidatePayload{TenantID: 9})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, []int64{9}, stub.calls())

	stub.errs = []error{errors.New("redis down")}
	require.Error(t, job.Handle(context.Background(), task))

	err = job.Handle(context.Background(), asynq.NewTask(TaskCatalogInvalidate, []byte(`{`)))
	require.ErrorIs(t, err, asynq.SkipRetry)
	err = job.Handle(context.Background(), asynq.NewTask(TaskCatalogInvalidate, []byte(`{"tenant_id":0}`)))
	require.ErrorIs(t, err, asynq.SkipRetry)

	count, err := testutil.GatherAndCount(reg, "odyssey_jobs_failures_total")
	require.NoError(t, err)
	require.Equal(t, 1, count)
	count, err = testutil.GatherAndCount(reg, "odyssey_costing_catalog_invalidations_total")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

type fakeEnqueuer struct {
	tasks []*asynq.Task
	opts  [][]asynq.Option
}

func (f *fakeEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	f.tasks = append(f.tasks, task)
	f.opts = append(f.opts, opts)
	return &asynq.TaskInfo{ID: "t-1", Queue: QueueDefault, Type: task.Type()}, nil
}

func (f *fakeEnqueuer) Close() error { return nil }

func TestClientEnqueueCatalogInvalidate(t *testing.T) {
	fake := &fakeEnqueuer{}
	client := &Client{client: fake}

	info, err := client.EnqueueCatalogInvalidate(context.Background(), CatalogInvalidatePayload{TenantID: 4, Source: SourceCLI})
	require.NoError(t, err)
	require.Equal(t, QueueDefault, info.Queue)
	require.Len(t, fake.tasks, 1)
	require.Len(t, fake.opts[0], 2)

	_, err = client.EnqueueCatalogInvalidate(context.Background(), CatalogInvalidatePayload{TenantID: -1})
	require.Error(t, err)
	require.Len(t, fake.tasks, 1)
}

type inspectorStub struct {
	info *asynq.QueueInfo
	err  error
}

func (s inspectorStub) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

func TestHealthHandler(t *testing.T) {
	h := &Handler{inspector: inspectorStub{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 3, Retry: 1}}, logger: discardLogger()}
	r := chi.NewRouter()
	r.Route("/jobs", h.MountRoutes)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var stats QueueStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	require.Equal(t, 3, stats.Pending)
	require.Equal(t, 1, stats.Retry)

	h.inspector = inspectorStub{err: errors.New("redis down")}
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	stats, err := InspectQueue(nil, QueueDefault)
	require.NoError(t, err)
	require.Zero(t, stats.Pending)
	require.NotNil(t, NewHandler(nil, discardLogger()))
}

func TestNewMuxSkipsIncompleteHandlers(t *testing.T) {
	called := false
	mux := newMux([]TaskHandler{
		{Type: "", Handler: func(context.Context, *asynq.Task) error { return nil }},
		{Type: TaskCatalogInvalidate, Handler: func(context.Context, *asynq.Task) error { called = true; return nil }},
		{Type: "other", Handler: nil},
	})
	require.NoError(t, mux.ProcessTask(context.Background(), asynq.NewTask(TaskCatalogInvalidate, nil)))
	require.True(t, called)
	require.Error(t, mux.ProcessTask(context.Background(), asynq.NewTask("other", nil)))
}

