package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	mu        sync.Mutex
	messages  []kafka.Message
	committed []int64
	closed    bool
	drained   chan struct{}
}

func newFakeReader(values ...string) *fakeReader {
	r := &fakeReader{drained: make(chan struct{}, 1)}
	for i, v := range values {
		r.messages = append(r.messages, kafka.Message{Offset: int64(i), Value: []byte(v)})
	}
	return r
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.messages) > 0 {
		msg := r.messages[0]
		r.messages = r.messages[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	select {
	case r.drained <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func runConsumer(t *testing.T, reader *fakeReader, stub *invalidatorStub) {
	t.Helper()
	consumer := NewMasterDataConsumer(reader, stub, discardLogger(), nil)
	consumer.backoff = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- consumer.Run(ctx) }()

	select {
	case <-reader.drained:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not drain messages")
	}
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
	require.True(t, reader.closed)
}

func TestMasterDataConsumerInvalidatesCatalogTables(t *testing.T) {
	reader := newFakeReader(
		`{"tenant_id":1,"table":"products","op":"update"}`,
		`{"tenant_id":1,"table":"sale_line_items","op":"insert"}`,
		`not json`,
		`{"tenant_id":2,"table":"bom_edges","op":"delete"}`,
		`{"tenant_id":0,"table":"units","op":"update"}`,
	)
	stub := &invalidatorStub{}
	runConsumer(t, reader, stub)

	require.Equal(t, []int64{1, 2}, stub.calls())
	require.Equal(t, []int64{0, 1, 2, 3, 4}, reader.commits())
}

func TestMasterDataConsumerRetriesFailedInvalidation(t *testing.T) {
	reader := newFakeReader(`{"tenant_id":5,"table":"stock_categories","op":"update"}`)
	stub := &invalidatorStub{errs: []error{errors.New("redis down"), errors.New("redis down")}}
	runConsumer(t, reader, stub)

	require.Equal(t, []int64{5, 5, 5}, stub.calls())
	require.Equal(t, []int64{0}, reader.commits())
}

func TestChangeEventAffectsCatalog(t *testing.T) {
	require.True(t, ChangeEvent{TenantID: 1, Table: "units"}.AffectsCatalog())
	require.False(t, ChangeEvent{TenantID: 1, Table: "tenants"}.AffectsCatalog())
	require.False(t, ChangeEvent{Table: "units"}.AffectsCatalog())
}
