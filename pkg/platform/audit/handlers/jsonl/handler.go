package jsonl

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/goccy/go-json"

	audit "auditd/pkg/platform/audit"
)

// Handler writes one JSON document per record, newline terminated.
type Handler struct {
	name   string
	mu     sync.Mutex
	writer io.Writer
	closer io.Closer
}

// New writes to w. The caller owns w.
func New(name string, w io.Writer) *Handler {
	return &Handler{name: name, writer: w}
}

// Open appends to the file at path, creating it with 0600 permissions if needed.
func Open(name, path string) (*Handler, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open audit log %s: %w", path, err)
	}
	return &Handler{name: name, writer: f, closer: f}, nil
}

func (h *Handler) Name() string { return h.name }

func (h *Handler) Handle(ctx context.Context, rec audit.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}
	data = append(data, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, err := h.writer.Write(data); err != nil {
		return fmt.Errorf("write audit record: %w", err)
	}
	return nil
}

// Close closes the underlying file when the handler was created with Open.
func (h *Handler) Close() error {
	if h.closer == nil {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closer.Close()
}
