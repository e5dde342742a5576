// Package moderation decides whether a chat message may be forwarded upstream.
//
// The Gate makes a single, deadline-bounded call to a moderation backend and
// fails open: when the backend cannot answer, the message is allowed and the
// failure is reported as OutcomeFailOpen instead of an error.
package moderation

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/capitalize-ai/chat-proxy/pkg/logger"
	"github.com/capitalize-ai/chat-proxy/pkg/metrics"
)

// DefaultTimeout bounds a moderation round trip.
const DefaultTimeout = 2 * time.Second

// Outcome names how a Decision was reached.
type Outcome string

const (
	// OutcomeAllowed means the backend answered and did not block.
	OutcomeAllowed Outcome = "allowed"
	// OutcomeBlocked means the backend answered and blocked the message.
	OutcomeBlocked Outcome = "blocked"
	// OutcomeSkipped means no check was made (empty text or no backend).
	OutcomeSkipped Outcome = "skipped"
	// OutcomeFailOpen means the backend failed and the message was allowed.
	OutcomeFailOpen Outcome = "fail_open"
)

// Decision is the gate's verdict for one message.
type Decision struct {
	Blocked bool
	Reason  string
	Outcome Outcome
	// Err is the backend failure behind OutcomeFailOpen.
	Err error
}

// Verdict is a backend's answer.
type Verdict struct {
	Blocked bool
	Reason  string
}

// Checker is a moderation backend.
type Checker interface {
	Check(ctx context.Context, text string) (Verdict, error)
	Name() string
}

// Gate wraps a Checker with a deadline and the fail-open policy.
type Gate struct {
	checker Checker
	timeout time.Duration
	logger  *logger.Logger
	tracer  trace.Tracer
}

// NewGate creates a gate. A nil checker disables moderation.
func NewGate(checker Checker, timeout time.Duration, log *logger.Logger) *Gate {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Gate{
		checker: checker,
		timeout: timeout,
		logger:  log,
		tracer:  otel.Tracer("github.com/capitalize-ai/chat-proxy/internal/moderation"),
	}
}

// Provider returns the backend name, or "none" when moderation is disabled.
func (g *Gate) Provider() string {
	if g.checker == nil {
		return "none"
	}
	return g.checker.Name()
}

// Check returns the decision for text. It never blocks because of a backend failure.
func (g *Gate) Check(ctx context.Context, text string) Decision {
	provider := g.Provider()

	if text == "" || g.checker == nil {
		metrics.RecordModeration(provider, string(OutcomeSkipped), 0)
		return Decision{Outcome: OutcomeSkipped}
	}

	ctx, span := g.tracer.Start(ctx, "moderation.check",
		trace.WithAttributes(attribute.String("moderation.provider", provider)),
	)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	verdict, err := g.checker.Check(ctx, text)
	elapsed := time.Since(start)

	if err != nil {
		g.logger.Warn("moderation check failed, allowing request",
			zap.String("provider", provider),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, "fail open")
		metrics.RecordModeration(provider, string(OutcomeFailOpen), elapsed.Seconds())
		return Decision{Outcome: OutcomeFailOpen, Err: err}
	}

	span.SetAttributes(attribute.Bool("moderation.blocked", verdict.Blocked))

	if verdict.Blocked {
		metrics.RecordModeration(provider, string(OutcomeBlocked), elapsed.Seconds())
		return Decision{Blocked: true, Reason: verdict.Reason, Outcome: OutcomeBlocked}
	}

	metrics.RecordModeration(provider, string(OutcomeAllowed), elapsed.Seconds())
	return Decision{Outcome: OutcomeAllowed}
}
