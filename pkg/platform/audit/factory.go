package audit

import "github.com/google/uuid"

// Factory produces a fresh Builder per event, pre-populated with the topic, a
// generated transaction id and the category's default component. It holds no
// mutable state and is safe for concurrent use.
type Factory struct {
	newTransactionID func() string
}

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithTransactionIDs overrides how transaction ids are generated.
func WithTransactionIDs(gen func() string) FactoryOption {
	return func(f *Factory) {
		f.newTransactionID = gen
	}
}

// NewFactory creates a factory that generates random UUID transaction ids.
func NewFactory(opts ...FactoryOption) *Factory {
	f := &Factory{newTransactionID: uuid.NewString}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Event returns a builder for topic. Unknown topics get no defaults and fail at Build.
func (f *Factory) Event(topic Topic) *Builder {
	b := NewBuilder(topic)
	category, ok := CategoryFor(topic)
	if !ok {
		return b
	}
	if id := f.newTransactionID(); id != "" {
		b.TransactionID(id)
	}
	return b.Component(category.Component)
}

// AuthenticationEvent returns a builder for the authentication topic.
func (f *Factory) AuthenticationEvent() *Builder { return f.Event(TopicAuthentication) }

// ActivityEvent returns a builder for the activity topic.
func (f *Factory) ActivityEvent() *Builder { return f.Event(TopicActivity) }

// AccessEvent returns a builder for the access topic.
func (f *Factory) AccessEvent() *Builder { return f.Event(TopicAccess) }

// ConfigEvent returns a builder for the config topic.
func (f *Factory) ConfigEvent() *Builder { return f.Event(TopicConfig) }
