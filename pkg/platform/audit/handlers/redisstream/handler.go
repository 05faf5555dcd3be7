package redisstream

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	audit "auditd/pkg/platform/audit"
)

// Handler appends each record to a Redis stream as fields id, topic, realm and record.
type Handler struct {
	name   string
	client *redis.Client
	stream string
	maxLen int64
}

// Option configures the Handler.
type Option func(*Handler)

// WithMaxLen caps the stream at roughly n entries. Zero leaves it unbounded.
func WithMaxLen(n int64) Option {
	return func(h *Handler) {
		h.maxLen = n
	}
}

func New(name string, client *redis.Client, stream string, opts ...Option) *Handler {
	h := &Handler{name: name, client: client, stream: stream}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Name() string { return h.name }

func (h *Handler) Handle(ctx context.Context, rec audit.Record) error {
	payload, err := rec.MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: h.stream,
		Values: map[string]any{
			"id":     rec.ID(),
			"topic":  string(rec.Topic()),
			"realm":  rec.Realm(),
			"record": string(payload),
		},
	}
	if h.maxLen > 0 {
		args.MaxLen = h.maxLen
		args.Approx = true
	}
	if err := h.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("append audit record to stream %s: %w", h.stream, err)
	}
	return nil
}
