// Package circuitbreaker wraps github.com/sony/gobreaker with the
// Prometheus instrumentation and logging an Application uses to guard an
// outbound call (an upstream origin fetch, a backend RPC) against
// cascading failure.
package circuitbreaker

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Config describes one named breaker.
type Config struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
	// TestMode skips Prometheus registration, for unit tests that build
	// many breakers with the same name against one shared registry.
	TestMode bool
}

type gauges struct {
	state    prometheus.Gauge
	failures prometheus.Counter
	trips    prometheus.Counter
}

// Breaker guards a single named operation.
type Breaker struct {
	name    string
	logger  *zap.Logger
	gauges  *gauges
	breaker *gobreaker.CircuitBreaker
}

// New builds a Breaker and, unless cfg.TestMode is set, registers its
// state/failure/trip metrics on registry.
func New(cfg Config, logger *zap.Logger, registry *prometheus.Registry) (*Breaker, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("circuitbreaker: name cannot be empty")
	}

	b := &Breaker{name: cfg.Name, logger: logger}

	if registry != nil && !cfg.TestMode {
		labels := prometheus.Labels{"name": cfg.Name}
		b.gauges = &gauges{
			state: prometheus.NewGauge(prometheus.GaugeOpts{
				Name:        "coregate_circuit_breaker_state",
				Help:        "Current breaker state (0=closed, 1=half-open, 2=open)",
				ConstLabels: labels,
			}),
			failures: prometheus.NewCounter(prometheus.CounterOpts{
				Name:        "coregate_circuit_breaker_failures_total",
				Help:        "Total number of failed calls observed by the breaker",
				ConstLabels: labels,
			}),
			trips: prometheus.NewCounter(prometheus.CounterOpts{
				Name:        "coregate_circuit_breaker_trips_total",
				Help:        "Total number of times the breaker tripped open",
				ConstLabels: labels,
			}),
		}
		registry.MustRegister(b.gauges.state, b.gauges.failures, b.gauges.trips)
	}

	b.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			trip := counts.ConsecutiveFailures >= cfg.FailureThreshold
			if trip {
				logger.Info("circuit breaker tripping",
					zap.String("name", cfg.Name),
					zap.Uint32("consecutive_failures", counts.ConsecutiveFailures),
					zap.Uint32("threshold", cfg.FailureThreshold))
			}
			return trip
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("circuit breaker state changed",
				zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
			if b.gauges == nil {
				return
			}
			switch to {
			case gobreaker.StateOpen:
				b.gauges.state.Set(2)
				b.gauges.trips.Inc()
			case gobreaker.StateHalfOpen:
				b.gauges.state.Set(1)
			case gobreaker.StateClosed:
				b.gauges.state.Set(0)
			}
		},
	})

	return b, nil
}

// Execute runs operation through the breaker. When the breaker is open it
// returns ErrCircuitOpen without calling operation.
func (b *Breaker) Execute(operation func() error) error {
	_, err := b.breaker.Execute(func() (interface{}, error) {
		if err := operation(); err != nil {
			if b.gauges != nil {
				b.gauges.failures.Inc()
			}
			b.logger.Debug("guarded operation failed", zap.String("name", b.name), zap.Error(err))
			return nil, err
		}
		return nil, nil
	})

	if err == gobreaker.ErrOpenState {
		b.logger.Debug("circuit breaker is open, call rejected", zap.String("name", b.name))
		return ErrCircuitOpen
	}
	return err
}

// State returns the breaker's current gobreaker state.
func (b *Breaker) State() gobreaker.State {
	return b.breaker.State()
}

// Counts returns the breaker's current gobreaker counts.
func (b *Breaker) Counts() gobreaker.Counts {
	return b.breaker.Counts()
}
