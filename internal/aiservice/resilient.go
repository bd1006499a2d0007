package aiservice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/cashflow-tracker/internal/metrics"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// Operation names used for breakers, metrics and logs.
const (
	OpInsights = "insights"
	OpChat     = "chat"
)

// BreakerConfig configures the circuit breaker of each operation.
type BreakerConfig struct {
	// MaxRequests is the number of trial calls allowed while half-open.
	MaxRequests uint32
	// Interval is the cyclic period after which closed-state counts reset.
	Interval time.Duration
	// Timeout is how long the breaker stays open before going half-open.
	Timeout time.Duration
	// ConsecutiveFailures trips the breaker. Zero means 5.
	ConsecutiveFailures uint32
}

// ResilientConfig configures Resilient.
type ResilientConfig struct {
	InsightsTimeout time.Duration
	ChatTimeout     time.Duration
	Breaker         BreakerConfig
}

// DefaultResilientConfig mirrors the service defaults.
func DefaultResilientConfig() ResilientConfig {
	return ResilientConfig{
		InsightsTimeout: 20 * time.Second,
		ChatTimeout:     15 * time.Second,
		Breaker: BreakerConfig{
			MaxRequests:         1,
			Interval:            60 * time.Second,
			Timeout:             30 * time.Second,
			ConsecutiveFailures: 5,
		},
	}
}

// Resilient wraps a Delegate with a deadline and a circuit breaker per
// operation. Calls are never retried.
type Resilient struct {
	next            Delegate
	insightsTimeout time.Duration
	chatTimeout     time.Duration
	insightsCB      *gobreaker.CircuitBreaker
	chatCB          *gobreaker.CircuitBreaker
	metrics         metrics.Collector
	log             zerolog.Logger
}

// NewResilient wraps next. A nil collector records nothing.
func NewResilient(next Delegate, cfg ResilientConfig, collector metrics.Collector, log zerolog.Logger) *Resilient {
	if collector == nil {
		collector = metrics.NoOpCollector{}
	}
	r := &Resilient{
		next:            next,
		insightsTimeout: cfg.InsightsTimeout,
		chatTimeout:     cfg.ChatTimeout,
		metrics:         collector,
		log:             log.With().Str("component", "aiservice").Logger(),
	}
	r.insightsCB = r.newBreaker(OpInsights, cfg.Breaker)
	r.chatCB = r.newBreaker(OpChat, cfg.Breaker)

	r.log.Info().
		Dur("insights_timeout", cfg.InsightsTimeout).
		Dur("chat_timeout", cfg.ChatTimeout).
		Uint32("max_requests", cfg.Breaker.MaxRequests).
		Dur("circuit_interval", cfg.Breaker.Interval).
		Dur("circuit_timeout", cfg.Breaker.Timeout).
		Msg("AI delegate initialized")
	return r
}

func (r *Resilient) newBreaker(op string, cfg BreakerConfig) *gobreaker.CircuitBreaker {
	trip := cfg.ConsecutiveFailures
	if trip == 0 {
		trip = 5
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        op,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= trip
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			r.log.Warn().
				Str("operation", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")

			var state metrics.CircuitState
			switch to {
			case gobreaker.StateClosed:
				state = metrics.CircuitClosed
			case gobreaker.StateHalfOpen:
				state = metrics.CircuitHalfOpen
			case gobreaker.StateOpen:
				state = metrics.CircuitOpen
			}
			r.metrics.RecordCircuitState(name, state)
		},
	})
}

func (r *Resilient) Insights(ctx context.Context, req InsightsRequest) (*InsightsReply, error) {
	out, err := r.execute(ctx, OpInsights, r.insightsCB, r.insightsTimeout, func(ctx context.Context) (any, error) {
		return r.next.Insights(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return out.(*InsightsReply), nil
}

func (r *Resilient) Chat(ctx context.Context, req ChatRequest) (*ChatReply, error) {
	out, err := r.execute(ctx, OpChat, r.chatCB, r.chatTimeout, func(ctx context.Context) (any, error) {
		return r.next.Chat(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return out.(*ChatReply), nil
}

// State reports the breaker state of an operation.
func (r *Resilient) State(op string) gobreaker.State {
	if op == OpChat {
		return r.chatCB.State()
	}
	return r.insightsCB.State()
}

func (r *Resilient) execute(ctx context.Context, op string, cb *gobreaker.CircuitBreaker, timeout time.Duration, call func(context.Context) (any, error)) (any, error) {
	start := time.Now()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	out, err := cb.Execute(func() (interface{}, error) {
		return call(ctx)
	})
	duration := time.Since(start)

	switch {
	case err == nil:
		r.metrics.RecordAIRequest(op, metrics.OutcomeSuccess, duration)
		return out, nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		r.metrics.RecordAIRequest(op, metrics.OutcomeCircuitOpen, duration)
		r.log.Warn().Str("operation", op).Msg("Circuit breaker open, request rejected")
		return nil, fmt.Errorf("%s: %w", op, ErrCircuitOpen)
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		r.metrics.RecordAIRequest(op, metrics.OutcomeTimeout, duration)
		r.log.Warn().
			Str("operation", op).
			Dur("timeout", timeout).
			Dur("elapsed", duration).
			Msg("AI delegate timeout")
		return nil, fmt.Errorf("%s: %w: %v", op, ErrTimeout, err)
	default:
		r.metrics.RecordAIRequest(op, metrics.OutcomeError, duration)
		r.log.Warn().Err(err).Str("operation", op).Dur("duration", duration).Msg("AI delegate failed")
		return nil, err
	}
}

var _ Delegate = (*Resilient)(nil)
