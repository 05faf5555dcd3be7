package watermill

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"

	audit "auditd/pkg/platform/audit"
)

// Metadata keys set on every message.
const (
	MetadataTopic         = "audit_topic"
	MetadataRealm         = "audit_realm"
	MetadataTransactionID = "audit_transaction_id"
)

// Handler publishes each record as a Watermill message. The message UUID is
// the record id so brokers with deduplication drop redeliveries.
type Handler struct {
	name      string
	publisher message.Publisher
	topic     string
}

func New(name string, publisher message.Publisher, topic string) *Handler {
	return &Handler{name: name, publisher: publisher, topic: topic}
}

func (h *Handler) Name() string { return h.name }

func (h *Handler) Handle(ctx context.Context, rec audit.Record) error {
	payload, err := rec.MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}

	msg := message.NewMessage(rec.ID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set(MetadataTopic, string(rec.Topic()))
	msg.Metadata.Set(MetadataRealm, rec.Realm())
	if tx := rec.TransactionID(); tx != "" {
		msg.Metadata.Set(MetadataTransactionID, tx)
	}
	msg.Metadata.Set(natsgo.MsgIdHdr, rec.ID())

	if err := h.publisher.Publish(h.topic, msg); err != nil {
		return fmt.Errorf("publish audit record to %s: %w", h.topic, err)
	}
	return nil
}

// NATSConfig configures a JetStream publisher.
type NATSConfig struct {
	URL           string
	MaxReconnects int
	ReconnectWait time.Duration
	TrackMsgID    bool
}

// NewNATSPublisher creates a Watermill publisher backed by NATS JetStream.
// The target stream must already exist.
func NewNATSPublisher(cfg NATSConfig, logger *slog.Logger) (message.Publisher, error) {
	wmLogger := watermill.NewSlogLogger(logger)

	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         cfg.URL,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			AutoProvision: false,
			TrackMsgId:    cfg.TrackMsgID,
			PublishOptions: []natsgo.PubOpt{
				natsgo.RetryAttempts(3),
				natsgo.RetryWait(100 * time.Millisecond),
			},
		},
	}, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("create nats publisher: %w", err)
	}
	return pub, nil
}
