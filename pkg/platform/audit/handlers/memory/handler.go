package memory

import (
	"context"
	"slices"
	"sync"

	audit "auditd/pkg/platform/audit"
)

// Handler keeps delivered records in memory in arrival order. Used in tests
// and as the backing store for the admin records endpoint in single-node setups.
type Handler struct {
	name string

	mu        sync.RWMutex
	unbounded []audit.Record
	bounded   *ring
}

// Option configures the Handler.
type Option func(*Handler)

// WithLimit keeps only the most recent n records. n <= 0 means unbounded.
func WithLimit(n int) Option {
	return func(h *Handler) {
		if n > 0 {
			h.bounded = newRing(n)
		} else {
			h.bounded = nil
		}
	}
}

func New(name string, opts ...Option) *Handler {
	h := &Handler{name: name}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Name() string { return h.name }

func (h *Handler) Handle(_ context.Context, rec audit.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.bounded != nil {
		h.bounded.push(rec)
		return nil
	}
	h.unbounded = append(h.unbounded, rec)
	return nil
}

// Records returns every stored record in arrival order.
func (h *Handler) Records() []audit.Record {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]audit.Record, 0, h.lenLocked())
	for i := range h.lenLocked() {
		out = append(out, h.atLocked(i))
	}
	return out
}

// ListRecent returns up to limit of the most recent records, newest first,
// optionally restricted to topics.
func (h *Handler) ListRecent(_ context.Context, limit int, topics ...audit.Topic) ([]audit.Record, error) {
	if limit <= 0 {
		return []audit.Record{}, nil
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	n := h.lenLocked()
	out := make([]audit.Record, 0, min(limit, n))
	for i := n - 1; i >= 0 && len(out) < limit; i-- {
		if rec := h.atLocked(i); matchesTopic(rec, topics) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// ListByRealm returns records for realm in arrival order.
func (h *Handler) ListByRealm(_ context.Context, realm string) ([]audit.Record, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []audit.Record
	for i := range h.lenLocked() {
		if rec := h.atLocked(i); rec.Realm() == realm {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (h *Handler) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lenLocked()
}

// Dropped returns how many records were evicted to honour the limit.
func (h *Handler) Dropped() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.bounded == nil {
		return 0
	}
	return h.bounded.dropped
}

func (h *Handler) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.bounded != nil {
		h.bounded.reset()
	}
	h.unbounded = nil
}

func (h *Handler) lenLocked() int {
	if h.bounded != nil {
		return h.bounded.count
	}
	return len(h.unbounded)
}

func (h *Handler) atLocked(i int) audit.Record {
	if h.bounded != nil {
		return h.bounded.at(i)
	}
	return h.unbounded[i]
}

func matchesTopic(rec audit.Record, topics []audit.Topic) bool {
	return len(topics) == 0 || slices.Contains(topics, rec.Topic())
}
