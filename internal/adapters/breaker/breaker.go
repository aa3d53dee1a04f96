package breaker

import (
	"context"
	"time"

	"github.com/mikey/reply-triage/internal/core"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// BreakerClassifier wraps an IntentClassifier with a circuit breaker so a
// failing provider sheds load quickly instead of burning the infer timeout
// on every message in a batch.
type BreakerClassifier struct {
	backend core.IntentClassifier
	cb      *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewBreakerClassifier creates a circuit-breaking wrapper around a classifier
func NewBreakerClassifier(backend core.IntentClassifier, maxFailures uint32, cooldown time.Duration, logger *zap.Logger) *BreakerClassifier {
	settings := gobreaker.Settings{
		Name:     "intent-classifier",
		Interval: time.Minute,
		Timeout:  cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}

	return &BreakerClassifier{
		backend: backend,
		cb:      gobreaker.NewCircuitBreaker(settings),
		logger:  logger,
	}
}

// Infer delegates to the backend through the circuit breaker. An open
// breaker surfaces as a transient error, which the fallback policy absorbs.
func (b *BreakerClassifier) Infer(ctx context.Context, req *core.InferenceRequest) (*core.InferenceResult, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		return b.backend.Infer(ctx, req)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, &core.TransientError{Op: "circuit breaker", Err: err}
		}
		return nil, err
	}
	return result.(*core.InferenceResult), nil
}

// Healthy reports the backend's health, short-circuiting when the breaker is open
func (b *BreakerClassifier) Healthy(ctx context.Context) error {
	if b.cb.State() == gobreaker.StateOpen {
		return &core.TransientError{Op: "circuit breaker", Err: gobreaker.ErrOpenState}
	}
	return b.backend.Healthy(ctx)
}

// State returns the current breaker state for diagnostics
func (b *BreakerClassifier) State() string {
	return b.cb.State().String()
}
