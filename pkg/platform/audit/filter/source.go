package filter

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"time"
)

// Source loads the full set of filter decisions from configuration storage.
type Source interface {
	Load(ctx context.Context) (map[Key]bool, error)
}

// Store persists a single filter decision.
type Store interface {
	Set(ctx context.Context, key Key, enabled bool) error
}

// StaticSource serves a fixed set of decisions, typically from the config file.
type StaticSource map[Key]bool

func (s StaticSource) Load(context.Context) (map[Key]bool, error) {
	return maps.Clone(map[Key]bool(s)), nil
}

// Refresher loads decisions from a Source into a Filter.
type Refresher struct {
	filter   *Filter
	source   Source
	interval time.Duration
	logger   *slog.Logger
	onReload func(decisions int, err error)
}

// RefresherOption configures a Refresher.
type RefresherOption func(*Refresher)

// WithInterval sets how often Run reloads the source.
func WithInterval(d time.Duration) RefresherOption {
	return func(r *Refresher) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithLogger sets the logger used for reload failures.
func WithLogger(logger *slog.Logger) RefresherOption {
	return func(r *Refresher) {
		r.logger = logger
	}
}

// WithReloadHook registers a callback invoked after every reload attempt.
func WithReloadHook(fn func(decisions int, err error)) RefresherOption {
	return func(r *Refresher) {
		r.onReload = fn
	}
}

// NewRefresher creates a refresher that reloads every 30 seconds by default.
func NewRefresher(f *Filter, source Source, opts ...RefresherOption) *Refresher {
	r := &Refresher{
		filter:   f,
		source:   source,
		interval: 30 * time.Second,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Refresh loads the source once and replaces the filter snapshot. On error the
// previous snapshot is kept.
func (r *Refresher) Refresh(ctx context.Context) error {
	decisions, err := r.source.Load(ctx)
	if r.onReload != nil {
		r.onReload(len(decisions), err)
	}
	if err != nil {
		return fmt.Errorf("load audit filter: %w", err)
	}
	r.filter.Replace(decisions)
	return nil
}

// Run refreshes immediately and then on every tick until ctx is cancelled.
// Reload failures are logged and do not stop the loop.
func (r *Refresher) Run(ctx context.Context) error {
	if err := r.Refresh(ctx); err != nil {
		r.logger.ErrorContext(ctx, "audit filter refresh failed", "error", err)
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := r.Refresh(ctx); err != nil {
				r.logger.ErrorContext(ctx, "audit filter refresh failed", "error", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
