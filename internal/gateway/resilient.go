package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/diapredict/diapredict/internal/domain"
)

const tracerName = "github.com/diapredict/diapredict/internal/gateway"

// ResilientGenerator wraps a Generator with an outbound rate limit, a
// circuit breaker and bounded retries for transient failures. The limiter
// and breaker are shared by all requests.
type ResilientGenerator struct {
	next       Generator
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	maxRetries int
	backoff    time.Duration
	logger     *logrus.Logger
	tracer     trace.Tracer
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewResilientGenerator wraps next with the policies configured in cfg. A
// zero rate limit disables limiting; a disabled circuit breaker is skipped.
func NewResilientGenerator(next Generator, cfg *domain.AIConfig, logger *logrus.Logger) *ResilientGenerator {
	r := &ResilientGenerator{
		next:       next,
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.RetryBackoff,
		logger:     logger,
		tracer:     otel.Tracer(tracerName),
		sleep:      sleepContext,
	}

	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	if cfg.CircuitBreaker.Enabled {
		r.breaker = newBreaker(next.Name(), cfg.CircuitBreaker, logger)
	}

	return r
}

func newBreaker(name string, cfg domain.CircuitBreakerConfig, logger *logrus.Logger) *gobreaker.CircuitBreaker {
	minRequests := cfg.MinRequests
	if minRequests == 0 {
		minRequests = 3
	}
	ratio := cfg.FailureRatio
	if ratio <= 0 {
		ratio = 0.6
	}

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= minRequests && failureRatio >= ratio
		},
		// Only provider-side failures count against the breaker
		IsSuccessful: func(err error) bool {
			return err == nil || !Classify(err).Transient()
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})
}

// Name returns the wrapped provider name
func (r *ResilientGenerator) Name() string { return r.next.Name() }

// Model returns the wrapped model name
func (r *ResilientGenerator) Model() string { return r.next.Model() }

// Generate calls the wrapped generator, retrying transient failures with
// exponential backoff
func (r *ResilientGenerator) Generate(ctx context.Context, req *Request) (*Response, error) {
	ctx, span := r.tracer.Start(ctx, "gateway."+r.next.Name()+".generate",
		trace.WithAttributes(
			attribute.String("ai.provider", r.next.Name()),
			attribute.String("ai.model", r.next.Model()),
		))
	defer span.End()

	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			delay := r.backoff << (attempt - 1)
			span.AddEvent("retry", trace.WithAttributes(
				attribute.Int("attempt", attempt),
				attribute.Int64("backoff_ms", delay.Milliseconds()),
			))
			if err := r.sleep(ctx, delay); err != nil {
				lastErr = domain.NewAIServiceError(r.next.Name(), domain.FailureTimeout, err)
				break
			}
		}

		start := time.Now()
		resp, err := r.attempt(ctx, req)
		if err == nil {
			span.SetAttributes(attribute.Int("ai.attempts", attempt+1))
			return resp, nil
		}
		lastErr = err

		class := Classify(err)
		r.logger.WithFields(logrus.Fields{
			"provider":   r.next.Name(),
			"attempt":    attempt + 1,
			"class":      string(class),
			"elapsed_ms": time.Since(start).Milliseconds(),
			"error":      err.Error(),
		}).Warn("AI provider call failed")

		if !class.Transient() || ctx.Err() != nil {
			break
		}
	}

	span.RecordError(lastErr)
	span.SetStatus(codes.Error, string(Classify(lastErr)))
	return nil, lastErr
}

func (r *ResilientGenerator) attempt(ctx context.Context, req *Request) (*Response, error) {
	name := r.next.Name()

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, domain.NewAIServiceError(name, domain.FailureTimeout, err)
		}
	}

	if r.breaker == nil {
		resp, err := r.next.Generate(ctx, req)
		return resp, wrap(name, err)
	}

	out, err := r.breaker.Execute(func() (interface{}, error) {
		return r.next.Generate(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, domain.NewAIServiceError(name, domain.FailureUnavailable, err)
		}
		return nil, wrap(name, err)
	}
	return out.(*Response), nil
}

// BreakerState returns the circuit breaker state, or "disabled"
func (r *ResilientGenerator) BreakerState() string {
	if r.breaker == nil {
		return "disabled"
	}
	return r.breaker.State().String()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
