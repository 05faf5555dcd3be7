package filter

import (
	"fmt"
	"maps"
	"strings"
	"sync/atomic"

	"auditd/pkg/platform/audit"
)

// Key identifies one filter decision.
type Key struct {
	Realm string
	Topic audit.Topic
}

// String renders the key as "<realm>|<topic>".
func (k Key) String() string {
	return k.Realm + "|" + string(k.Topic)
}

// ParseKey parses "<realm>|<topic>". It splits at the last separator since
// realms may contain "|".
func ParseKey(s string) (Key, error) {
	i := strings.LastIndex(s, "|")
	if i <= 0 || i == len(s)-1 {
		return Key{}, fmt.Errorf("malformed filter key %q", s)
	}
	topic := audit.Topic(s[i+1:])
	if !topic.Valid() {
		return Key{}, fmt.Errorf("filter key %q has unknown topic", s)
	}
	return Key{Realm: s[:i], Topic: topic}, nil
}

// Filter answers IsAuditing from an immutable snapshot that is swapped
// atomically on update. Reads take no locks. Pairs missing from the snapshot
// are not audited, and nothing is audited until a snapshot has been loaded.
type Filter struct {
	snapshot atomic.Pointer[map[Key]bool]
}

// New returns a filter with no configuration loaded.
func New() *Filter {
	return &Filter{}
}

// NewWithDecisions returns a filter loaded with a copy of decisions.
func NewWithDecisions(decisions map[Key]bool) *Filter {
	f := New()
	f.Replace(decisions)
	return f
}

// Check returns the decision for realm and topic, or ErrFilterUnavailable when
// no configuration has been loaded.
func (f *Filter) Check(realm string, topic audit.Topic) (bool, error) {
	snap := f.snapshot.Load()
	if snap == nil {
		return false, audit.ErrFilterUnavailable
	}
	return (*snap)[Key{Realm: realm, Topic: topic}], nil
}

// IsAuditing reports whether records for realm and topic should be published.
func (f *Filter) IsAuditing(realm string, topic audit.Topic) bool {
	enabled, err := f.Check(realm, topic)
	return err == nil && enabled
}

// Update sets a single decision. Concurrent updates are all applied.
func (f *Filter) Update(realm string, topic audit.Topic, enabled bool) {
	key := Key{Realm: realm, Topic: topic}
	for {
		old := f.snapshot.Load()
		next := make(map[Key]bool, 1)
		if old != nil {
			next = maps.Clone(*old)
		}
		next[key] = enabled
		if f.snapshot.CompareAndSwap(old, &next) {
			return
		}
	}
}

// Replace swaps in a copy of decisions as the whole configuration.
func (f *Filter) Replace(decisions map[Key]bool) {
	next := maps.Clone(decisions)
	if next == nil {
		next = map[Key]bool{}
	}
	f.snapshot.Store(&next)
}

// Snapshot returns a copy of the current decisions, or nil if none are loaded.
func (f *Filter) Snapshot() map[Key]bool {
	snap := f.snapshot.Load()
	if snap == nil {
		return nil
	}
	return maps.Clone(*snap)
}

// Loaded reports whether any configuration has been loaded.
func (f *Filter) Loaded() bool {
	return f.snapshot.Load() != nil
}
