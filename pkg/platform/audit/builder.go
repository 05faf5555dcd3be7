package audit

import (
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mssola/useragent"
)

// Builder accumulates fields for one audit record. It is owned by a single
// goroutine and finalized exactly once by Build. Setters return the builder so
// calls can be chained; a setter given an invalid argument records the failure
// and Build reports it.
type Builder struct {
	fields map[string]any
	err    error
	built  bool
}

// NewBuilder returns an empty builder for topic. Most callers should use a
// Factory, which also fills in category defaults.
func NewBuilder(topic Topic) *Builder {
	b := &Builder{fields: make(map[string]any, 8)}
	if topic != "" {
		b.fields[FieldTopic] = string(topic)
	}
	return b
}

// Realm sets the "realm" field.
func (b *Builder) Realm(realm string) *Builder {
	return b.setString(FieldRealm, realm)
}

// Time sets the "timestamp" field.
func (b *Builder) Time(t time.Time) *Builder {
	if t.IsZero() {
		return b.fail(invalid(FieldTimestamp, "must not be zero"))
	}
	return b.set(FieldTimestamp, t)
}

// TimeMillis sets the "timestamp" field from milliseconds since the Unix epoch.
func (b *Builder) TimeMillis(ms int64) *Builder {
	if ms < 0 {
		return b.fail(invalid(FieldTimestamp, "must not be negative"))
	}
	return b.set(FieldTimestamp, time.UnixMilli(ms).UTC())
}

// EventName sets the "eventName" field.
func (b *Builder) EventName(name string) *Builder {
	return b.setString(FieldEventName, name)
}

// TransactionID sets the "transactionId" field, replacing any factory default.
func (b *Builder) TransactionID(id string) *Builder {
	return b.setString(FieldTransactionID, id)
}

// Component sets the "component" field.
func (b *Builder) Component(c Component) *Builder {
	return b.setString(FieldComponent, string(c))
}

// Context merges a single identifier into the "contexts" field.
func (b *Builder) Context(kind ContextKind, id string) *Builder {
	if kind == "" {
		return b.fail(invalid(FieldContexts, "context kind must not be empty"))
	}
	if strings.TrimSpace(id) == "" {
		return b.fail(invalid(FieldContexts, "context "+string(kind)+" must not be empty"))
	}
	return b.Contexts(map[string]string{string(kind): id})
}

// Contexts merges every key of contexts into the "contexts" field. Later calls
// overwrite overlapping keys.
func (b *Builder) Contexts(contexts map[string]string) *Builder {
	if contexts == nil {
		return b.fail(invalid(FieldContexts, "must not be nil"))
	}
	if !b.usable() {
		return b
	}
	current, _ := b.fields[FieldContexts].(map[string]string)
	if current == nil {
		current = make(map[string]string, len(contexts))
	}
	maps.Copy(current, contexts)
	b.fields[FieldContexts] = current
	return b
}

// Entry appends one normalized entry to the "entries" field. Empty module id,
// result and info are omitted; an entry with nothing set is skipped.
func (b *Builder) Entry(e Entry) *Builder {
	if !b.usable() {
		return b
	}
	m := e.normalize()
	if m == nil {
		return b
	}
	current, _ := b.fields[FieldEntries].([]map[string]any)
	b.fields[FieldEntries] = append(current, m)
	return b
}

// Entries replaces the "entries" field with the normalized form of entries.
func (b *Builder) Entries(entries []Entry) *Builder {
	if entries == nil {
		return b.fail(invalid(FieldEntries, "must not be nil"))
	}
	if !b.usable() {
		return b
	}
	normalized := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		if m := e.normalize(); m != nil {
			normalized = append(normalized, m)
		}
	}
	if len(normalized) == 0 {
		delete(b.fields, FieldEntries)
		return b
	}
	b.fields[FieldEntries] = normalized
	return b
}

// UserID sets the "userId" field.
func (b *Builder) UserID(id string) *Builder {
	return b.setString(FieldUserID, id)
}

// TrackingIDs sets the "trackingIds" field.
func (b *Builder) TrackingIDs(ids ...string) *Builder {
	return b.setStrings(FieldTrackingIDs, ids)
}

// Principals sets the "principal" field.
func (b *Builder) Principals(principals ...string) *Builder {
	return b.setStrings(FieldPrincipal, principals)
}

// Result sets the overall "result" field, e.g. SUCCESSFUL or FAILED.
func (b *Builder) Result(result string) *Builder {
	return b.setString(FieldResult, result)
}

// RunAs sets the "runAs" field: the identity the operation was performed as.
func (b *Builder) RunAs(id string) *Builder {
	return b.setString(FieldRunAs, id)
}

// ObjectID sets the "objectId" field.
func (b *Builder) ObjectID(id string) *Builder {
	return b.setString(FieldObjectID, id)
}

// Operation sets the "operation" field, e.g. CREATE, UPDATE or DELETE.
func (b *Builder) Operation(op string) *Builder {
	return b.setString(FieldOperation, op)
}

// ChangedFields sets the "changedFields" field.
func (b *Builder) ChangedFields(fields ...string) *Builder {
	return b.setStrings(FieldChangedFields, fields)
}

// Before sets the "before" field to a copy of state.
func (b *Builder) Before(state map[string]any) *Builder {
	return b.setMap(FieldBefore, state)
}

// After sets the "after" field to a copy of state.
func (b *Builder) After(state map[string]any) *Builder {
	return b.setMap(FieldAfter, state)
}

// Client sets the "client" field. The user agent is parsed into browser and
// platform names when present.
func (b *Builder) Client(ip, userAgent string) *Builder {
	if strings.TrimSpace(ip) == "" {
		return b.fail(invalid(FieldClient, "ip must not be empty"))
	}
	client := map[string]any{"ip": ip}
	if userAgent != "" {
		ua := useragent.New(userAgent)
		browser, version := ua.Browser()
		client["userAgent"] = userAgent
		client["browser"] = browser
		client["browserVersion"] = version
		client["os"] = ua.OS()
		client["mobile"] = ua.Mobile()
		client["bot"] = ua.Bot()
	}
	return b.set(FieldClient, client)
}

// HTTP sets the "http" field describing the inbound request.
func (b *Builder) HTTP(method, path string) *Builder {
	if method == "" || path == "" {
		return b.fail(invalid(FieldHTTP, "method and path must not be empty"))
	}
	return b.set(FieldHTTP, map[string]any{"method": method, "path": path})
}

// Response sets the "response" field with a status and elapsed time in milliseconds.
func (b *Builder) Response(status string, elapsed time.Duration) *Builder {
	if status == "" {
		return b.fail(invalid(FieldResponse, "status must not be empty"))
	}
	return b.set(FieldResponse, map[string]any{
		"status":        status,
		"elapsedTimeMs": elapsed.Milliseconds(),
	})
}

// Build validates required fields and returns the finalized record. The
// builder cannot be used afterwards.
func (b *Builder) Build() (Record, error) {
	if b.built {
		return Record{}, ErrInvalidState
	}
	if b.err != nil {
		return Record{}, b.err
	}

	topic, _ := b.fields[FieldTopic].(string)
	if topic == "" {
		return Record{}, missing(FieldTopic)
	}
	if !Topic(topic).Valid() {
		return Record{}, invalid(FieldTopic, "is not a known topic")
	}
	if _, ok := b.fields[FieldTimestamp]; !ok {
		return Record{}, missing(FieldTimestamp)
	}
	if _, ok := b.fields[FieldRealm]; !ok {
		return Record{}, missing(FieldRealm)
	}

	b.built = true
	fields := make(map[string]any, len(b.fields)+1)
	for k, v := range b.fields {
		fields[k] = cloneValue(v)
	}
	if _, ok := fields[FieldID]; !ok {
		fields[FieldID] = uuid.NewString()
	}
	b.fields = nil
	return Record{fields: fields}, nil
}

func (b *Builder) usable() bool {
	if b.built {
		b.fail(ErrInvalidState)
		return false
	}
	return true
}

func (b *Builder) fail(err error) *Builder {
	if b.err == nil {
		b.err = err
	}
	return b
}

func (b *Builder) set(field string, value any) *Builder {
	if !b.usable() {
		return b
	}
	b.fields[field] = value
	return b
}

func (b *Builder) setString(field, value string) *Builder {
	if strings.TrimSpace(value) == "" {
		return b.fail(invalid(field, "must not be empty"))
	}
	return b.set(field, value)
}

func (b *Builder) setStrings(field string, values []string) *Builder {
	if len(values) == 0 {
		return b.fail(invalid(field, "must not be empty"))
	}
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			return b.fail(invalid(field, "must not contain empty values"))
		}
	}
	return b.set(field, append([]string(nil), values...))
}

func (b *Builder) setMap(field string, value map[string]any) *Builder {
	if value == nil {
		return b.fail(invalid(field, "must not be nil"))
	}
	return b.set(field, cloneValue(value))
}
