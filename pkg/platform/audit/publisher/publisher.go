package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	audit "auditd/pkg/platform/audit"
)

const (
	defaultHandlerTimeout = 5 * time.Second
	defaultEnqueueTimeout = 100 * time.Millisecond
	defaultErrorBuffer    = 64
)

// Publisher delivers built records to every handler registered for a topic,
// after checking the audit filter. A failing, panicking or slow handler is
// reported on the error channel and never affects other handlers or the caller.
//
// In the default synchronous mode Publish returns once every handler has
// finished or timed out. With WithAsyncBuffer each handler gets a bounded FIFO
// queue drained by its own worker, and Publish only waits for queue space.
//
// A handler is never called concurrently with itself. A call that outlives its
// timeout keeps the handler busy until it returns, so later records cannot
// overtake it.
type Publisher struct {
	filter         audit.AuditFilter
	logger         *slog.Logger
	metrics        *Metrics
	tracer         trace.Tracer
	handlerTimeout time.Duration
	asyncBuffer    int
	enqueueTimeout time.Duration

	mu     sync.RWMutex
	routes map[audit.Topic][]route
	lanes  map[string]*lane
	closed bool
	stop   chan struct{}

	errs       chan error
	errsMu     sync.RWMutex
	errsClosed bool

	wg        sync.WaitGroup
	closeOnce sync.Once
}

type route struct {
	handler audit.Handler
	lane    *lane
}

// lane serializes deliveries to one handler name across all topics it is
// registered for. queue is nil in synchronous mode.
type lane struct {
	name  string
	queue chan delivery
	busy  chan struct{}
	refs  int

	mu      sync.Mutex
	stalled bool // busy is held by a call that outlived its timeout
}

type delivery struct {
	ctx   context.Context
	topic audit.Topic
	route route
	rec   audit.Record
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithLogger sets the logger used for delivery failures.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

// WithTracer sets the tracer used for publish spans.
func WithTracer(t trace.Tracer) Option {
	return func(p *Publisher) {
		p.tracer = t
	}
}

// WithHandlerTimeout bounds each handler delivery. Zero disables the timeout.
func WithHandlerTimeout(d time.Duration) Option {
	return func(p *Publisher) {
		p.handlerTimeout = d
	}
}

// WithAsyncBuffer enables asynchronous delivery with a queue of size per handler.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		p.asyncBuffer = size
	}
}

// WithEnqueueTimeout sets how long Publish waits for space in a full handler
// queue before reporting ErrQueueFull. Zero fails immediately.
func WithEnqueueTimeout(d time.Duration) Option {
	return func(p *Publisher) {
		p.enqueueTimeout = d
	}
}

// WithErrorBuffer sets the capacity of the Errors channel.
func WithErrorBuffer(size int) Option {
	return func(p *Publisher) {
		if size >= 0 {
			p.errs = make(chan error, size)
		}
	}
}

// New creates a publisher gated by filter.
func New(filter audit.AuditFilter, opts ...Option) (*Publisher, error) {
	if filter == nil {
		return nil, errors.New("audit filter is required")
	}
	p := &Publisher{
		filter:         filter,
		logger:         slog.Default(),
		tracer:         otel.Tracer("auditd/publisher"),
		handlerTimeout: defaultHandlerTimeout,
		enqueueTimeout: defaultEnqueueTimeout,
		routes:         make(map[audit.Topic][]route),
		lanes:          make(map[string]*lane),
		stop:           make(chan struct{}),
		errs:           make(chan error, defaultErrorBuffer),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Register adds h to the handlers for topic. Handler names must be unique per topic.
func (p *Publisher) Register(topic audit.Topic, h audit.Handler) error {
	if !topic.Valid() {
		return fmt.Errorf("register audit handler: unknown topic %q", topic)
	}
	if h == nil || h.Name() == "" {
		return errors.New("register audit handler: handler with a name is required")
	}
	name := h.Name()

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return audit.ErrPublisherClosed
	}
	for _, r := range p.routes[topic] {
		if r.handler.Name() == name {
			return fmt.Errorf("%w: %s on %s", audit.ErrDuplicateHandler, name, topic)
		}
	}

	r := route{handler: h, lane: p.acquireLane(name)}
	p.routes[topic] = append(slices.Clone(p.routes[topic]), r)
	return nil
}

// Deregister removes the handler named name from topic. Records already queued
// for it are still delivered.
func (p *Publisher) Deregister(topic audit.Topic, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	routes := p.routes[topic]
	idx := slices.IndexFunc(routes, func(r route) bool { return r.handler.Name() == name })
	if idx < 0 {
		return fmt.Errorf("%w: %s on %s", audit.ErrUnknownHandler, name, topic)
	}
	removed := routes[idx]
	p.routes[topic] = slices.Delete(slices.Clone(routes), idx, idx+1)
	p.releaseLane(removed.lane)
	return nil
}

// Handlers lists the names registered for topic in registration order.
func (p *Publisher) Handlers(topic audit.Topic) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	names := make([]string, 0, len(p.routes[topic]))
	for _, r := range p.routes[topic] {
		names = append(names, r.handler.Name())
	}
	return names
}

// Errors returns the channel on which handler delivery failures are reported.
// Failures are dropped when nobody drains it. The channel is closed by Close.
func (p *Publisher) Errors() <-chan error {
	return p.errs
}

// Publish delivers rec to the handlers registered for topic when the filter
// enables auditing for the record's realm. Cancelling ctx does not retract a
// record once Publish has been called.
func (p *Publisher) Publish(ctx context.Context, topic audit.Topic, rec audit.Record) audit.Outcome {
	ctx = context.WithoutCancel(ctx)
	ctx, span := p.tracer.Start(ctx, "audit.publish", trace.WithAttributes(
		attribute.String("audit.topic", string(topic)),
		attribute.String("audit.realm", rec.Realm()),
		attribute.String("audit.record_id", rec.ID()),
	))
	defer span.End()

	outcome := p.publish(ctx, topic, rec)

	span.SetAttributes(attribute.String("audit.outcome", outcome.String()))
	if outcome == audit.OutcomePartiallyDelivered {
		span.SetStatus(codes.Error, "one or more audit handlers failed")
	}
	p.metrics.IncPublished(string(topic), outcome.String())
	return outcome
}

func (p *Publisher) publish(ctx context.Context, topic audit.Topic, rec audit.Record) audit.Outcome {
	if !p.filter.IsAuditing(rec.Realm(), topic) {
		return audit.OutcomeDropped
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.logger.WarnContext(ctx, "audit record not delivered",
			"topic", topic,
			"record_id", rec.ID(),
			"error", audit.ErrPublisherClosed,
		)
		return audit.OutcomeRejected
	}

	routes := p.routes[topic]
	if len(routes) == 0 {
		return audit.OutcomeNoHandlers
	}

	var failed atomic.Int32
	if p.asyncBuffer > 0 {
		for _, r := range routes {
			if !p.enqueue(ctx, topic, r, rec) {
				failed.Add(1)
			}
		}
	} else {
		var g errgroup.Group
		for _, r := range routes {
			g.Go(func() error {
				if err := p.deliver(ctx, topic, r, rec); err != nil {
					failed.Add(1)
				}
				return nil
			})
		}
		_ = g.Wait()
	}

	if failed.Load() > 0 {
		return audit.OutcomePartiallyDelivered
	}
	return audit.OutcomePublished
}

// enqueue applies back-pressure: it waits up to the enqueue timeout for queue
// space and reports ErrQueueFull when none frees up.
func (p *Publisher) enqueue(ctx context.Context, topic audit.Topic, r route, rec audit.Record) bool {
	d := delivery{ctx: ctx, topic: topic, route: r, rec: rec}

	select {
	case r.lane.queue <- d:
		p.metrics.SetQueueDepth(r.lane.name, len(r.lane.queue))
		return true
	default:
	}

	if p.enqueueTimeout > 0 {
		timer := time.NewTimer(p.enqueueTimeout)
		defer timer.Stop()
		select {
		case r.lane.queue <- d:
			p.metrics.SetQueueDepth(r.lane.name, len(r.lane.queue))
			return true
		case <-timer.C:
		}
	}

	p.metrics.ObserveDelivery(string(topic), r.handler.Name(), "queue_full", 0)
	p.report(ctx, &audit.HandlerDeliveryError{
		Handler:  r.handler.Name(),
		Topic:    topic,
		RecordID: rec.ID(),
		Err:      audit.ErrQueueFull,
	})
	return false
}

func (p *Publisher) deliver(ctx context.Context, topic audit.Topic, r route, rec audit.Record) error {
	h := r.handler
	start := time.Now()
	err := p.invoke(ctx, r.lane, h, rec)
	elapsed := time.Since(start)

	result := "ok"
	switch {
	case errors.Is(err, audit.ErrHandlerTimeout):
		result = "timeout"
	case err != nil:
		result = "error"
	}
	p.metrics.ObserveDelivery(string(topic), h.Name(), result, elapsed)

	if err != nil {
		p.report(ctx, &audit.HandlerDeliveryError{
			Handler:  h.Name(),
			Topic:    topic,
			RecordID: rec.ID(),
			Err:      err,
		})
	}
	return err
}

// invoke runs the handler under the delivery timeout once the lane is free.
// Waiting for the previous call counts against the timeout. A handler that
// ignores its context keeps the lane until it returns, so at most one
// abandoned call per handler is outstanding.
func (p *Publisher) invoke(ctx context.Context, l *lane, h audit.Handler, rec audit.Record) error {
	if p.handlerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.handlerTimeout)
		defer cancel()
	}

	if err := p.acquire(ctx, l); err != nil {
		return err
	}

	var finished bool
	done := make(chan error, 1)
	go func() {
		err := safeHandle(ctx, h, rec)
		l.mu.Lock()
		finished = true
		l.stalled = false
		l.mu.Unlock()
		l.release()
		done <- err
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		l.mu.Lock()
		if finished {
			l.mu.Unlock()
			return <-done
		}
		l.stalled = true
		l.mu.Unlock()
		p.metrics.IncAbandoned(h.Name())
		return fmt.Errorf("%w after %s", audit.ErrHandlerTimeout, p.handlerTimeout)
	}
}

// acquire waits for the lane. Once the publisher is closing it only gives up
// on a lane held by an abandoned call.
func (p *Publisher) acquire(ctx context.Context, l *lane) error {
	select {
	case l.busy <- struct{}{}:
		return nil
	default:
	}

	select {
	case l.busy <- struct{}{}:
		return nil
	case <-ctx.Done():
		return p.waitTimeout()
	case <-p.stop:
		if l.abandoned() {
			return fmt.Errorf("%w: previous delivery still running", audit.ErrPublisherClosed)
		}
	}

	select {
	case l.busy <- struct{}{}:
		return nil
	case <-ctx.Done():
		return p.waitTimeout()
	}
}

func (p *Publisher) waitTimeout() error {
	return fmt.Errorf("%w waiting for previous delivery after %s", audit.ErrHandlerTimeout, p.handlerTimeout)
}

func (l *lane) release() {
	<-l.busy
}

func (l *lane) abandoned() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stalled
}

// waitIdle blocks until the previous call to the lane's handler has returned.
// Once the publisher is closing it stops waiting for an abandoned call.
func (l *lane) waitIdle(stop <-chan struct{}) {
	select {
	case l.busy <- struct{}{}:
		l.release()
		return
	case <-stop:
	}
	if l.abandoned() {
		return
	}
	l.busy <- struct{}{}
	l.release()
}

// runLane delivers queued records in order. A record's timeout only starts
// once the previous call has returned, so a slow call fails just its own record.
func (p *Publisher) runLane(l *lane) {
	defer p.wg.Done()
	for d := range l.queue {
		p.metrics.SetQueueDepth(l.name, len(l.queue))
		l.waitIdle(p.stop)
		_ = p.deliver(d.ctx, d.topic, d.route, d.rec)
	}
}

// Close stops accepting records, waits for queued deliveries to finish and
// closes the Errors channel. Records queued behind a handler call that is still
// running past its timeout fail with ErrPublisherClosed. It is safe to call
// more than once.
func (p *Publisher) Close() error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		for _, l := range p.lanes {
			if l.queue != nil {
				close(l.queue)
			}
		}
		p.lanes = nil
		close(p.stop)
		p.mu.Unlock()

		p.wg.Wait()

		p.errsMu.Lock()
		p.errsClosed = true
		close(p.errs)
		p.errsMu.Unlock()
	})
	return nil
}
