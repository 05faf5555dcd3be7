package main

import (
	"context"
	"fmt"
	"log/slog"

	"auditd/internal/admin"
	"auditd/internal/platform/config"
	"auditd/internal/platform/kafka"
	"auditd/internal/platform/metrics"
	"auditd/pkg/platform/audit"
	"auditd/pkg/platform/audit/handlers/breaker"
	"auditd/pkg/platform/audit/handlers/jsonl"
	kafkasink "auditd/pkg/platform/audit/handlers/kafka"
	"auditd/pkg/platform/audit/handlers/memory"
	pgsink "auditd/pkg/platform/audit/handlers/postgres"
	"auditd/pkg/platform/audit/handlers/redisstream"
	wmsink "auditd/pkg/platform/audit/handlers/watermill"
	"auditd/pkg/platform/audit/publisher"
)

// sinkSet tracks what registerSinks opened so it can be closed after the
// publisher has drained.
type sinkSet struct {
	records admin.RecordLister
	closers []namedCloser
}

type namedCloser struct {
	name  string
	close func() error
}

func (s *sinkSet) Close(log *slog.Logger) {
	for i := len(s.closers) - 1; i >= 0; i-- {
		c := s.closers[i]
		if err := c.close(); err != nil {
			log.Error("failed to close audit sink", "sink", c.name, "error", err)
		}
	}
}

func (s *sinkSet) onClose(name string, fn func() error) {
	s.closers = append(s.closers, namedCloser{name: name, close: fn})
}

// registerSinks builds every enabled handler and registers it for its topics.
// Network sinks are wrapped in a circuit breaker when enabled. The postgres
// sink serves record queries when present, otherwise the memory sink does.
func registerSinks(ctx context.Context, cfg *config.Config, pub *publisher.Publisher, be *backends, m *metrics.Metrics, log *slog.Logger) (*sinkSet, error) {
	set := &sinkSet{}
	breakerMetrics := breaker.NewMetrics(m.Registry)

	register := func(h audit.Handler, names []string, network bool) error {
		topics, err := config.ParseTopics(names)
		if err != nil {
			return err
		}
		if network && cfg.Breaker.Enabled {
			h = breaker.Wrap(h, breaker.Config{
				FailureThreshold: cfg.Breaker.FailureThreshold,
				Cooldown:         cfg.Breaker.Cooldown,
			}, breaker.WithLogger(log), breaker.WithMetrics(breakerMetrics))
		}
		for _, topic := range topics {
			if err := pub.Register(topic, h); err != nil {
				return fmt.Errorf("register %s for %s: %w", h.Name(), topic, err)
			}
		}
		log.Info("audit sink registered", "sink", h.Name(), "topics", topics)
		return nil
	}

	fail := func(err error) (*sinkSet, error) {
		set.Close(log)
		return nil, err
	}

	sinks := cfg.Sinks
	if sinks.Memory.Enabled {
		h := memory.New("memory", memory.WithLimit(sinks.Memory.Limit))
		if err := register(h, sinks.Memory.Topics, false); err != nil {
			return fail(err)
		}
		set.records = h
	}

	if sinks.File.Enabled {
		h, err := jsonl.Open("file", sinks.File.Path)
		if err != nil {
			return fail(err)
		}
		set.onClose("file", h.Close)
		if err := register(h, sinks.File.Topics, false); err != nil {
			return fail(err)
		}
	}

	if sinks.Postgres.Enabled {
		h := pgsink.New("postgres", be.db)
		if sinks.Postgres.Migrate {
			if err := h.Migrate(ctx); err != nil {
				return fail(err)
			}
		}
		if err := register(h, sinks.Postgres.Topics, true); err != nil {
			return fail(err)
		}
		set.records = h
	}

	if sinks.Kafka.Enabled {
		client, err := kafka.NewClient(ctx, sinks.Kafka)
		if err != nil {
			return fail(err)
		}
		set.onClose("kafka", func() error { client.Close(); return nil })
		if err := kafkasink.EnsureTopics(ctx, client, sinks.Kafka.Partitions, sinks.Kafka.Replicas, sinks.Kafka.Topic); err != nil {
			return fail(err)
		}
		if err := register(kafkasink.New("kafka", client, sinks.Kafka.Topic), sinks.Kafka.Topics, true); err != nil {
			return fail(err)
		}
	}

	if sinks.RedisStream.Enabled {
		h := redisstream.New("redis_stream", be.redis.Client, sinks.RedisStream.Stream,
			redisstream.WithMaxLen(sinks.RedisStream.MaxLen))
		if err := register(h, sinks.RedisStream.Topics, true); err != nil {
			return fail(err)
		}
	}

	if sinks.NATS.Enabled {
		natsPub, err := wmsink.NewNATSPublisher(wmsink.NATSConfig{
			URL:           sinks.NATS.URL,
			MaxReconnects: sinks.NATS.MaxReconnects,
			ReconnectWait: sinks.NATS.ReconnectWait,
			TrackMsgID:    sinks.NATS.TrackMsgID,
		}, log)
		if err != nil {
			return fail(err)
		}
		set.onClose("nats", natsPub.Close)
		if err := register(wmsink.New("nats", natsPub, sinks.NATS.Subject), sinks.NATS.Topics, true); err != nil {
			return fail(err)
		}
	}

	return set, nil
}
