package audit

import (
	"context"
	"maps"
)

// Topic classifies audit records by the handlers that receive them.
// Each topic can be enabled or disabled independently per realm.
type Topic string

const (
	// TopicAuthentication covers login attempts and authentication chain outcomes.
	TopicAuthentication Topic = "authentication"

	// TopicActivity covers session and token lifecycle changes made on behalf of a user.
	TopicActivity Topic = "activity"

	// TopicAccess covers inbound requests to protected endpoints.
	TopicAccess Topic = "access"

	// TopicConfig covers changes to realm, service and filter configuration.
	TopicConfig Topic = "config"
)

// Topics lists every known topic in a stable order.
func Topics() []Topic {
	return []Topic{TopicAuthentication, TopicActivity, TopicAccess, TopicConfig}
}

// Valid reports whether t is one of the known topics.
func (t Topic) Valid() bool {
	switch t {
	case TopicAuthentication, TopicActivity, TopicAccess, TopicConfig:
		return true
	}
	return false
}

// Component names the subsystem that produced a record.
type Component string

const (
	ComponentAuthentication Component = "Authentication"
	ComponentSession        Component = "Session"
	ComponentOAuth          Component = "OAuth"
	ComponentSAML2          Component = "SAML2"
	ComponentPolicy         Component = "Policy"
	ComponentAccess         Component = "Access"
	ComponentConfig         Component = "Config"
	ComponentAudit          Component = "Audit"
)

// ContextKind identifies the kind of identifier stored in the "contexts" field.
type ContextKind string

const (
	ContextSession ContextKind = "session"
	ContextAuth    ContextKind = "authIndex"
	ContextToken   ContextKind = "token"
	ContextRequest ContextKind = "request"
	ContextIP      ContextKind = "IP"
)

// Field names used in the record mapping.
const (
	FieldID            = "_id"
	FieldTopic         = "topic"
	FieldTimestamp     = "timestamp"
	FieldRealm         = "realm"
	FieldEventName     = "eventName"
	FieldTransactionID = "transactionId"
	FieldComponent     = "component"
	FieldContexts      = "contexts"
	FieldEntries       = "entries"

	// Authentication fields.
	FieldUserID      = "userId"
	FieldTrackingIDs = "trackingIds"
	FieldPrincipal   = "principal"
	FieldResult      = "result"

	// Activity and config fields.
	FieldRunAs         = "runAs"
	FieldObjectID      = "objectId"
	FieldOperation     = "operation"
	FieldChangedFields = "changedFields"
	FieldBefore        = "before"
	FieldAfter         = "after"

	// Access fields.
	FieldClient   = "client"
	FieldHTTP     = "http"
	FieldResponse = "response"
)

// Keys of a normalized entry map.
const (
	EntryModuleID = "moduleId"
	EntryResult   = "result"
	EntryInfo     = "info"
)

// Entry describes one authentication module's outcome within a chain.
type Entry struct {
	ModuleID string
	Result   string
	Info     map[string]string
}

// normalize drops empty fields. An entry with nothing set normalizes to nil.
func (e Entry) normalize() map[string]any {
	m := make(map[string]any, 3)
	if e.ModuleID != "" {
		m[EntryModuleID] = e.ModuleID
	}
	if e.Result != "" {
		m[EntryResult] = e.Result
	}
	if len(e.Info) > 0 {
		m[EntryInfo] = maps.Clone(e.Info)
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

// Category is the fixed configuration of one auditor: the topic it publishes
// to and the defaults its builders start with.
type Category struct {
	Name      string
	Topic     Topic
	Component Component
}

var (
	CategoryAuthentication = Category{Name: "authentication", Topic: TopicAuthentication, Component: ComponentAuthentication}
	CategoryActivity       = Category{Name: "activity", Topic: TopicActivity, Component: ComponentSession}
	CategoryAccess         = Category{Name: "access", Topic: TopicAccess, Component: ComponentAccess}
	CategoryConfig         = Category{Name: "config", Topic: TopicConfig, Component: ComponentConfig}
)

// categoryByTopic maps each topic to its category defaults.
var categoryByTopic = map[Topic]Category{
	TopicAuthentication: CategoryAuthentication,
	TopicActivity:       CategoryActivity,
	TopicAccess:         CategoryAccess,
	TopicConfig:         CategoryConfig,
}

// CategoryFor returns the category registered for topic.
func CategoryFor(topic Topic) (Category, bool) {
	c, ok := categoryByTopic[topic]
	return c, ok
}

// Outcome is the terminal state of a single publish call.
type Outcome int

const (
	// OutcomeDropped means the filter disabled auditing for the record's realm and topic.
	OutcomeDropped Outcome = iota
	// OutcomePublished means every registered handler accepted the record.
	OutcomePublished
	// OutcomePartiallyDelivered means at least one handler failed.
	OutcomePartiallyDelivered
	// OutcomeNoHandlers means auditing was enabled but nothing is registered for the topic.
	OutcomeNoHandlers
	// OutcomeRejected means the publisher was closed before the record was accepted.
	OutcomeRejected
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDropped:
		return "dropped"
	case OutcomePublished:
		return "published"
	case OutcomePartiallyDelivered:
		return "partially_delivered"
	case OutcomeNoHandlers:
		return "no_handlers"
	case OutcomeRejected:
		return "rejected"
	}
	return "unknown"
}

// Handler is a sink that stores or forwards delivered records.
// Name must be unique among the handlers registered for a topic.
type Handler interface {
	Name() string
	Handle(ctx context.Context, rec Record) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc struct {
	name string
	fn   func(ctx context.Context, rec Record) error
}

// NewHandlerFunc returns a Handler named name that calls fn.
func NewHandlerFunc(name string, fn func(ctx context.Context, rec Record) error) HandlerFunc {
	return HandlerFunc{name: name, fn: fn}
}

func (h HandlerFunc) Name() string { return h.name }

func (h HandlerFunc) Handle(ctx context.Context, rec Record) error { return h.fn(ctx, rec) }
