package audit

//go:generate mockgen -source=auditor.go -destination=mocks/mocks.go -package=mocks EventFactory,EventPublisher,AuditFilter

import (
	"context"
	"errors"
)

// EventFactory creates pre-populated builders.
type EventFactory interface {
	Event(topic Topic) *Builder
}

// EventPublisher delivers built records to the handlers registered for a topic.
type EventPublisher interface {
	Publish(ctx context.Context, topic Topic, rec Record) Outcome
}

// AuditFilter decides whether records for a realm and topic should be published.
type AuditFilter interface {
	IsAuditing(realm string, topic Topic) bool
}

// Auditor is the facade for one audit category. It holds only references to
// its collaborators and is safe to share across goroutines.
type Auditor struct {
	category  Category
	factory   EventFactory
	publisher EventPublisher
	filter    AuditFilter
}

// NewAuditor wires an auditor for category.
func NewAuditor(category Category, factory EventFactory, publisher EventPublisher, filter AuditFilter) (*Auditor, error) {
	if !category.Topic.Valid() {
		return nil, invalid(FieldTopic, "auditor category has unknown topic "+string(category.Topic))
	}
	if factory == nil {
		return nil, errors.New("audit event factory is required")
	}
	if publisher == nil {
		return nil, errors.New("audit event publisher is required")
	}
	if filter == nil {
		return nil, errors.New("audit filter is required")
	}
	return &Auditor{
		category:  category,
		factory:   factory,
		publisher: publisher,
		filter:    filter,
	}, nil
}

func NewAuthenticationAuditor(factory EventFactory, publisher EventPublisher, filter AuditFilter) (*Auditor, error) {
	return NewAuditor(CategoryAuthentication, factory, publisher, filter)
}

func NewActivityAuditor(factory EventFactory, publisher EventPublisher, filter AuditFilter) (*Auditor, error) {
	return NewAuditor(CategoryActivity, factory, publisher, filter)
}

func NewAccessAuditor(factory EventFactory, publisher EventPublisher, filter AuditFilter) (*Auditor, error) {
	return NewAuditor(CategoryAccess, factory, publisher, filter)
}

func NewConfigAuditor(factory EventFactory, publisher EventPublisher, filter AuditFilter) (*Auditor, error) {
	return NewAuditor(CategoryConfig, factory, publisher, filter)
}

// Category returns the auditor's fixed category.
func (a *Auditor) Category() Category { return a.category }

// Topic returns the topic every record from this auditor is published to.
func (a *Auditor) Topic() Topic { return a.category.Topic }

// Event returns a fresh builder for the auditor's topic.
func (a *Auditor) Event() *Builder {
	return a.factory.Event(a.category.Topic)
}

// Publish hands rec to the publisher under the auditor's topic. Delivery
// failures are reported by the publisher and never returned here.
func (a *Auditor) Publish(ctx context.Context, rec Record) Outcome {
	return a.publisher.Publish(ctx, a.category.Topic, rec)
}

// IsAuditing reports whether records for realm and topic are currently enabled.
func (a *Auditor) IsAuditing(realm string, topic Topic) bool {
	return a.filter.IsAuditing(realm, topic)
}
