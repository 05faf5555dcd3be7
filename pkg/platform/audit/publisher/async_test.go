package publisher

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "auditd/pkg/platform/audit"
	"auditd/pkg/platform/audit/handlers/memory"
)

func TestAsync_DeliversInSubmissionOrderPerHandler(t *testing.T) {
	pub, err := New(enabledFilter(audit.TopicAuthentication, audit.TopicAccess),
		WithLogger(discardLogger()),
		WithAsyncBuffer(256),
	)
	require.NoError(t, err)

	sink := memory.New("memory")
	require.NoError(t, pub.Register(audit.TopicAuthentication, sink))
	require.NoError(t, pub.Register(audit.TopicAccess, sink))

	var want []string
	for i := range 100 {
		topic := audit.TopicAuthentication
		if i%3 == 0 {
			topic = audit.TopicAccess
		}
		rec := buildRecord(t, topic, "/")
		want = append(want, rec.ID())
		assert.Equal(t, audit.OutcomePublished, pub.Publish(context.Background(), topic, rec))
	}

	require.NoError(t, pub.Close())

	var got []string
	for _, rec := range sink.Records() {
		got = append(got, rec.ID())
	}
	assert.Equal(t, want, got)
}

func TestAsync_DrainsOnClose(t *testing.T) {
	pub, err := New(enabledFilter(audit.TopicActivity), WithLogger(discardLogger()), WithAsyncBuffer(100))
	require.NoError(t, err)
	sink := memory.New("memory")
	require.NoError(t, pub.Register(audit.TopicActivity, sink))

	for range 10 {
		pub.Publish(context.Background(), audit.TopicActivity, buildRecord(t, audit.TopicActivity, "/"))
	}
	require.NoError(t, pub.Close())

	assert.Equal(t, 10, sink.Len(), "all records should be drained on close")
}

func TestAsync_FullQueueAppliesBackPressureThenReports(t *testing.T) {
	pub, err := New(enabledFilter(audit.TopicAccess),
		WithLogger(discardLogger()),
		WithAsyncBuffer(1),
		WithEnqueueTimeout(20*time.Millisecond),
		WithHandlerTimeout(0),
	)
	require.NoError(t, err)

	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	var delivered atomic.Int32
	blocking := audit.NewHandlerFunc("blocking", func(context.Context, audit.Record) error {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-release
		delivered.Add(1)
		return nil
	})
	require.NoError(t, pub.Register(audit.TopicAccess, blocking))

	// First record occupies the worker, second fills the queue.
	assert.Equal(t, audit.OutcomePublished, pub.Publish(context.Background(), audit.TopicAccess, buildRecord(t, audit.TopicAccess, "/")))
	<-entered
	assert.Equal(t, audit.OutcomePublished, pub.Publish(context.Background(), audit.TopicAccess, buildRecord(t, audit.TopicAccess, "/")))

	start := time.Now()
	outcome := pub.Publish(context.Background(), audit.TopicAccess, buildRecord(t, audit.TopicAccess, "/"))
	assert.Equal(t, audit.OutcomePartiallyDelivered, outcome)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond, "publish should wait for queue space")

	select {
	case err := <-pub.Errors():
		assert.ErrorIs(t, err, audit.ErrQueueFull)
	case <-time.After(time.Second):
		t.Fatal("expected queue full error")
	}

	close(release)
	require.NoError(t, pub.Close())
	assert.EqualValues(t, 2, delivered.Load())
}

func TestAsync_FailuresReportedFromWorker(t *testing.T) {
	pub, err := New(enabledFilter(audit.TopicConfig), WithLogger(discardLogger()), WithAsyncBuffer(4))
	require.NoError(t, err)
	require.NoError(t, pub.Register(audit.TopicConfig, &countingHandler{name: "failing", err: assert.AnError}))
	healthy := memory.New("healthy")
	require.NoError(t, pub.Register(audit.TopicConfig, healthy))

	outcome := pub.Publish(context.Background(), audit.TopicConfig, buildRecord(t, audit.TopicConfig, "/"))
	assert.Equal(t, audit.OutcomePublished, outcome, "async outcome reflects acceptance")

	select {
	case err := <-pub.Errors():
		var derr *audit.HandlerDeliveryError
		require.ErrorAs(t, err, &derr)
		assert.Equal(t, "failing", derr.Handler)
		assert.ErrorIs(t, err, assert.AnError)
	case <-time.After(time.Second):
		t.Fatal("expected delivery error from worker")
	}

	require.NoError(t, pub.Close())
	assert.Equal(t, 1, healthy.Len())
}

func TestAsync_DeregisterDrainsLane(t *testing.T) {
	pub, err := New(enabledFilter(audit.TopicAccess), WithLogger(discardLogger()), WithAsyncBuffer(16))
	require.NoError(t, err)
	sink := memory.New("memory")
	require.NoError(t, pub.Register(audit.TopicAccess, sink))

	for range 5 {
		pub.Publish(context.Background(), audit.TopicAccess, buildRecord(t, audit.TopicAccess, "/"))
	}
	require.NoError(t, pub.Deregister(audit.TopicAccess, "memory"))

	assert.Equal(t, audit.OutcomeNoHandlers,
		pub.Publish(context.Background(), audit.TopicAccess, buildRecord(t, audit.TopicAccess, "/")))

	require.NoError(t, pub.Close())
	assert.Equal(t, 5, sink.Len())
}
