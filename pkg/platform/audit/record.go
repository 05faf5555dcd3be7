package audit

import (
	"fmt"
	"maps"
	"time"

	"github.com/goccy/go-json"
)

// Record is a finalized audit event. Its fields cannot change after Build, so a
// record may be read from many goroutines and delivered to many handlers.
// Accessors return copies of nested values.
type Record struct {
	fields map[string]any
}

// IsZero reports whether r was never built.
func (r Record) IsZero() bool { return r.fields == nil }

// ID returns the unique record id assigned at Build.
func (r Record) ID() string { return r.str(FieldID) }

// Topic returns the record's topic.
func (r Record) Topic() Topic { return Topic(r.str(FieldTopic)) }

// Realm returns the realm the event occurred in.
func (r Record) Realm() string { return r.str(FieldRealm) }

// TransactionID returns the correlation id, if any.
func (r Record) TransactionID() string { return r.str(FieldTransactionID) }

// Timestamp returns when the event occurred.
func (r Record) Timestamp() time.Time {
	ts, _ := r.fields[FieldTimestamp].(time.Time)
	return ts
}

// Get returns a copy of a single field value.
func (r Record) Get(field string) (any, bool) {
	v, ok := r.fields[field]
	if !ok {
		return nil, false
	}
	return cloneValue(v), true
}

// Has reports whether field is set.
func (r Record) Has(field string) bool {
	_, ok := r.fields[field]
	return ok
}

// Len returns the number of fields set on the record.
func (r Record) Len() int { return len(r.fields) }

// Fields returns a deep copy of the record mapping.
func (r Record) Fields() map[string]any {
	out := make(map[string]any, len(r.fields))
	for k, v := range r.fields {
		out[k] = cloneValue(v)
	}
	return out
}

// Contexts returns a copy of the contexts map.
func (r Record) Contexts() map[string]string {
	c, _ := r.fields[FieldContexts].(map[string]string)
	return maps.Clone(c)
}

// Entries returns a copy of the normalized entries.
func (r Record) Entries() []map[string]any {
	e, _ := r.fields[FieldEntries].([]map[string]any)
	if e == nil {
		return nil
	}
	return cloneValue(e).([]map[string]any)
}

// MarshalJSON renders the record as a flat key/value document. Timestamps are RFC 3339.
func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.fields)
}

// DecodeRecord parses a document produced by MarshalJSON. Decoded records carry
// JSON-native types except for the timestamp, contexts and entries fields,
// which are restored to the types Build produces.
func DecodeRecord(data []byte) (Record, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return Record{}, fmt.Errorf("decode audit record: %w", err)
	}

	if s, ok := raw[FieldTimestamp].(string); ok {
		ts, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return Record{}, fmt.Errorf("decode audit record timestamp: %w", err)
		}
		raw[FieldTimestamp] = ts
	}

	if c, ok := raw[FieldContexts].(map[string]any); ok {
		contexts := make(map[string]string, len(c))
		for k, v := range c {
			contexts[k] = fmt.Sprint(v)
		}
		raw[FieldContexts] = contexts
	}

	if list, ok := raw[FieldEntries].([]any); ok {
		entries := make([]map[string]any, 0, len(list))
		for _, item := range list {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if info, ok := m[EntryInfo].(map[string]any); ok {
				converted := make(map[string]string, len(info))
				for k, v := range info {
					converted[k] = fmt.Sprint(v)
				}
				m[EntryInfo] = converted
			}
			entries = append(entries, m)
		}
		raw[FieldEntries] = entries
	}

	return Record{fields: raw}, nil
}

func (r Record) str(field string) string {
	s, _ := r.fields[field].(string)
	return s
}

// cloneValue copies the container types a builder can store.
func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]string:
		return maps.Clone(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, inner := range t {
			out[k] = cloneValue(inner)
		}
		return out
	case []map[string]any:
		out := make([]map[string]any, len(t))
		for i, m := range t {
			out[i] = cloneValue(m).(map[string]any)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	case []any:
		out := make([]any, len(t))
		for i, inner := range t {
			out[i] = cloneValue(inner)
		}
		return out
	default:
		return v
	}
}
