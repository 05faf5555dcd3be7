package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "auditd/pkg/platform/audit"
)

// Header names set on every produced message.
const (
	HeaderTopic = "audit-topic"
	HeaderRealm = "audit-realm"
)

// Producer is the subset of *kgo.Client used by the handler.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// Handler produces each record to a Kafka topic. Messages are keyed by
// transaction id so events of one transaction land on the same partition.
type Handler struct {
	name     string
	producer Producer
	topic    string
}

func New(name string, producer Producer, topic string) *Handler {
	return &Handler{name: name, producer: producer, topic: topic}
}

func (h *Handler) Name() string { return h.name }

func (h *Handler) Handle(ctx context.Context, rec audit.Record) error {
	payload, err := rec.MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}

	key := rec.TransactionID()
	if key == "" {
		key = rec.ID()
	}

	msg := &kgo.Record{
		Topic:     h.topic,
		Key:       []byte(key),
		Value:     payload,
		Timestamp: rec.Timestamp(),
		Headers: []kgo.RecordHeader{
			{Key: HeaderTopic, Value: []byte(rec.Topic())},
			{Key: HeaderRealm, Value: []byte(rec.Realm())},
		},
	}
	if err := h.producer.ProduceSync(ctx, msg).FirstErr(); err != nil {
		return fmt.Errorf("produce audit record to %s: %w", h.topic, err)
	}
	return nil
}

// EnsureTopics creates topics that do not exist yet.
func EnsureTopics(ctx context.Context, client *kgo.Client, partitions int32, replicas int16, topics ...string) error {
	adm := kadm.NewClient(client)
	resp, err := adm.CreateTopics(ctx, partitions, replicas, nil, topics...)
	if err != nil {
		return fmt.Errorf("create kafka topics: %w", err)
	}
	for _, t := range resp.Sorted() {
		if t.Err != nil && !errors.Is(t.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create kafka topic %s: %w", t.Topic, t.Err)
		}
	}
	return nil
}
