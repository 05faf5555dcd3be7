// Package breaker wraps an audit handler in a circuit breaker so an unhealthy
// sink fails fast instead of holding every delivery until its timeout.
package breaker

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	gobreaker "github.com/sony/gobreaker/v2"

	audit "auditd/pkg/platform/audit"
)

// Config controls when the circuit opens and how long it stays open.
type Config struct {
	// FailureThreshold is the number of consecutive failures that opens the circuit.
	FailureThreshold uint32
	// Cooldown is how long the circuit stays open before a trial delivery.
	Cooldown time.Duration
	// HalfOpenRequests is how many trial deliveries are allowed while half-open.
	HalfOpenRequests uint32
}

func (c Config) withDefaults() Config {
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 5
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 30 * time.Second
	}
	if c.HalfOpenRequests == 0 {
		c.HalfOpenRequests = 1
	}
	return c
}

// Metrics reports breaker state per handler: 0 closed, 1 half-open, 2 open.
type Metrics struct {
	State *prometheus.GaugeVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		State: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "auditd_handler_circuit_state",
			Help: "Circuit breaker state per audit handler (0=closed, 1=half-open, 2=open)",
		}, []string{"handler"}),
	}
}

func (m *Metrics) setState(handler string, s gobreaker.State) {
	if m == nil {
		return
	}
	m.State.WithLabelValues(handler).Set(float64(s))
}

// Handler delegates to the wrapped handler while the circuit is closed.
// While open, deliveries fail immediately with gobreaker.ErrOpenState.
type Handler struct {
	next audit.Handler
	cb   *gobreaker.CircuitBreaker[struct{}]
}

// Option configures the Handler.
type Option func(*options)

type options struct {
	logger  *slog.Logger
	metrics *Metrics
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// Wrap returns next guarded by a circuit breaker. The wrapper keeps next's name.
func Wrap(next audit.Handler, cfg Config, opts ...Option) *Handler {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	cfg = cfg.withDefaults()
	name := next.Name()

	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.HalfOpenRequests,
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			o.logger.Warn("audit handler circuit state changed",
				"handler", name,
				"from", from.String(),
				"to", to.String(),
			)
			o.metrics.setState(name, to)
		},
	})
	o.metrics.setState(name, gobreaker.StateClosed)

	return &Handler{next: next, cb: cb}
}

func (h *Handler) Name() string { return h.next.Name() }

func (h *Handler) Handle(ctx context.Context, rec audit.Record) error {
	_, err := h.cb.Execute(func() (struct{}, error) {
		return struct{}{}, h.next.Handle(ctx, rec)
	})
	return err
}

// State returns the current circuit state.
func (h *Handler) State() gobreaker.State {
	return h.cb.State()
}
