package watermill

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "auditd/pkg/platform/audit"
)

func buildRecord(t *testing.T) audit.Record {
	t.Helper()
	rec, err := audit.NewFactory(audit.WithTransactionIDs(func() string { return "tx-7" })).
		ConfigEvent().
		Realm("/alpha").
		Time(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)).
		ObjectID("audit/filters").
		Build()
	require.NoError(t, err)
	return rec
}

func TestHandler_PublishesMessage(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{Persistent: true}, watermill.NopLogger{})
	defer pubSub.Close()

	messages, err := pubSub.Subscribe(context.Background(), "audit")
	require.NoError(t, err)

	h := New("watermill", pubSub, "audit")
	rec := buildRecord(t)
	require.NoError(t, h.Handle(context.Background(), rec))

	select {
	case msg := <-messages:
		msg.Ack()
		assert.Equal(t, rec.ID(), msg.UUID)
		assert.Equal(t, "config", msg.Metadata.Get(MetadataTopic))
		assert.Equal(t, "/alpha", msg.Metadata.Get(MetadataRealm))
		assert.Equal(t, "tx-7", msg.Metadata.Get(MetadataTransactionID))

		decoded, err := audit.DecodeRecord(msg.Payload)
		require.NoError(t, err)
		assert.Equal(t, rec.ID(), decoded.ID())
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}
}

type failingPublisher struct{}

func (failingPublisher) Publish(string, ...*message.Message) error { return errors.New("not connected") }
func (failingPublisher) Close() error                              { return nil }

func TestHandler_PublishError(t *testing.T) {
	h := New("watermill", failingPublisher{}, "audit")

	err := h.Handle(context.Background(), buildRecord(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not connected")
}
