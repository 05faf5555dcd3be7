package admin

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"auditd/pkg/platform/audit"
	"auditd/pkg/platform/audit/filter"
	"auditd/pkg/platform/middleware/metadata"
	"auditd/pkg/platform/sentinel"
)

// RecordLister reads back recently stored records, newest first.
type RecordLister interface {
	ListRecent(ctx context.Context, limit int, topics ...audit.Topic) ([]audit.Record, error)
}

// ErrRecordsUnavailable is returned when no queryable sink is configured.
var ErrRecordsUnavailable = fmt.Errorf("no queryable audit sink configured: %w", sentinel.ErrUnavailable)

// Manager manages filter decisions at runtime and reads back stored records.
// Every filter change is itself audited on the config topic.
type Manager struct {
	filter  *filter.Filter
	store   filter.Store
	records RecordLister
	auditor *audit.Auditor
	realm   string
	now     func() time.Time
	logger  *slog.Logger
}

type Option func(*Manager)

// WithStore persists filter changes so they survive the next source refresh.
// Without a store, changes live only in memory.
func WithStore(store filter.Store) Option {
	return func(s *Manager) {
		s.store = store
	}
}

// WithRecords enables the records endpoint.
func WithRecords(records RecordLister) Option {
	return func(s *Manager) {
		s.records = records
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Manager) {
		s.logger = logger
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Manager) {
		s.now = now
	}
}

// NewManager builds the admin manager. configAuditor records filter changes
// in realm.
func NewManager(f *filter.Filter, configAuditor *audit.Auditor, realm string, opts ...Option) (*Manager, error) {
	if f == nil {
		return nil, errors.New("audit filter is required")
	}
	if configAuditor == nil {
		return nil, errors.New("config auditor is required")
	}
	s := &Manager{
		filter:  f,
		auditor: configAuditor,
		realm:   realm,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ListFilters returns the current decisions sorted by realm then topic.
func (s *Manager) ListFilters() ([]FilterEntry, error) {
	if !s.filter.Loaded() {
		return nil, audit.ErrFilterUnavailable
	}
	snap := s.filter.Snapshot()
	entries := make([]FilterEntry, 0, len(snap))
	for key, enabled := range snap {
		entries = append(entries, toFilterEntry(key, enabled))
	}
	slices.SortFunc(entries, func(a, b FilterEntry) int {
		return cmp.Or(cmp.Compare(a.Realm, b.Realm), cmp.Compare(a.Topic, b.Topic))
	})
	return entries, nil
}

// SetFilter persists and applies one decision, then publishes a config event
// describing the change. actor is recorded as the event's runAs.
func (s *Manager) SetFilter(ctx context.Context, actor string, key filter.Key, enabled bool) error {
	before, _ := s.filter.Check(key.Realm, key.Topic)

	if s.store != nil {
		if err := s.store.Set(ctx, key, enabled); err != nil {
			return fmt.Errorf("persist audit filter %s: %w", key, err)
		}
	}
	s.filter.Update(key.Realm, key.Topic, enabled)

	s.logger.InfoContext(ctx, "audit filter updated",
		"realm", key.Realm,
		"topic", key.Topic,
		"enabled", enabled,
		"actor", actor,
		"request_id", metadata.RequestID(ctx),
	)
	s.auditChange(ctx, actor, key, before, enabled)
	return nil
}

func (s *Manager) auditChange(ctx context.Context, actor string, key filter.Key, before, after bool) {
	if !s.auditor.IsAuditing(s.realm, audit.TopicConfig) {
		return
	}

	b := s.auditor.Event().
		Realm(s.realm).
		Time(s.now()).
		EventName("AUDIT_FILTER_CHANGE").
		ObjectID(key.String()).
		Operation("UPDATE").
		ChangedFields("enabled").
		Before(map[string]any{"enabled": before}).
		After(map[string]any{"enabled": after})
	if actor != "" {
		b.RunAs(actor)
	}
	if id := metadata.RequestID(ctx); id != "" {
		b.Context(audit.ContextRequest, id)
	}

	rec, err := b.Build()
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to build audit filter change event", "error", err)
		return
	}
	outcome := s.auditor.Publish(ctx, rec)
	s.logger.DebugContext(ctx, "audit filter change published", "outcome", outcome.String())
}

// RecentRecords returns up to limit stored records, newest first, optionally
// restricted to topics.
func (s *Manager) RecentRecords(ctx context.Context, limit int, topics ...audit.Topic) ([]audit.Record, error) {
	if s.records == nil {
		return nil, ErrRecordsUnavailable
	}
	recs, err := s.records.ListRecent(ctx, limit, topics...)
	if err != nil {
		return nil, fmt.Errorf("list recent audit records: %w", err)
	}
	return recs, nil
}
