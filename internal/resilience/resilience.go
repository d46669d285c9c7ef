// Package resilience provides the circuit breaker that guards calls to Pyrus.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned without calling the operation while the breaker is open.
var ErrCircuitOpen = gobreaker.ErrOpenState

// ErrTooManyRequests is returned when the half-open probe quota is used up.
var ErrTooManyRequests = gobreaker.ErrTooManyRequests

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateHalfOpen
	StateOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

func mapState(state gobreaker.State) CircuitState {
	switch state {
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	case gobreaker.StateOpen:
		return StateOpen
	default:
		return StateClosed
	}
}

// Config configures a CircuitBreaker.
type Config struct {
	Name string
	// MaxFailures consecutive failures open the circuit.
	MaxFailures uint32
	// OpenTimeout is how long the circuit stays open before a probe is let through.
	OpenTimeout time.Duration
	// HalfOpenLimit is the number of probes allowed while half-open.
	HalfOpenLimit uint32
	// IsFailure classifies an error; nil counts every error except context cancellation.
	IsFailure func(err error) bool
	Logger    *slog.Logger
}

// CircuitBreaker stops calling a dependency that keeps failing.
type CircuitBreaker struct {
	cb *gobreaker.CircuitBreaker
}

// New creates a circuit breaker. Zero values fall back to 5 failures and a 30s open period.
func New(cfg Config) *CircuitBreaker {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if cfg.HalfOpenLimit == 0 {
		cfg.HalfOpenLimit = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	isFailure := cfg.IsFailure
	if isFailure == nil {
		isFailure = func(error) bool { return true }
	}
	log := cfg.Logger.With("component", "circuit_breaker", "name", cfg.Name)

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.HalfOpenLimit,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			if err == nil || errors.Is(err, context.Canceled) {
				return true
			}
			return !isFailure(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("Circuit breaker state changed", "from", mapState(from), "to", mapState(to))
		},
	}

	return &CircuitBreaker{cb: gobreaker.NewCircuitBreaker(settings)}
}

// Execute runs operation unless the circuit is open.
func (b *CircuitBreaker) Execute(operation func() error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, operation()
	})
	return err
}

// State returns the current state.
func (b *CircuitBreaker) State() CircuitState {
	return mapState(b.cb.State())
}

// IsOpen reports whether err was produced by the breaker rejecting a call.
func IsOpen(err error) bool {
	return errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrTooManyRequests)
}
