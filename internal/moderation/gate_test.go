package moderation

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/chat-proxy/pkg/logger"
)

// fakeChecker records calls and returns a canned answer.
type fakeChecker struct {
	verdict Verdict
	err     error
	block   bool // wait for ctx cancellation
	calls   int
}

func (f *fakeChecker) Name() string { return "fake" }

func (f *fakeChecker) Check(ctx context.Context, text string) (Verdict, error) {
	f.calls++
	if f.block {
		<-ctx.Done()
		return Verdict{}, ctx.Err()
	}
	return f.verdict, f.err
}

func TestGate_EmptyTextSkipsBackend(t *testing.T) {
	checker := &fakeChecker{verdict: Verdict{Blocked: true}}
	gate := NewGate(checker, time.Second, logger.Nop())

	d := gate.Check(context.Background(), "")

	assert.Equal(t, OutcomeSkipped, d.Outcome)
	assert.False(t, d.Blocked)
	assert.Zero(t, checker.calls)
}

func TestGate_NilCheckerSkips(t *testing.T) {
	gate := NewGate(nil, time.Second, logger.Nop())

	d := gate.Check(context.Background(), "hello")

	assert.Equal(t, OutcomeSkipped, d.Outcome)
	assert.False(t, d.Blocked)
	assert.Equal(t, "none", gate.Provider())
}

func TestGate_Verdicts(t *testing.T) {
	t.Run("allowed", func(t *testing.T) {
		checker := &fakeChecker{}
		d := NewGate(checker, time.Second, logger.Nop()).Check(context.Background(), "hello")

		assert.Equal(t, OutcomeAllowed, d.Outcome)
		assert.False(t, d.Blocked)
		assert.Empty(t, d.Reason)
		assert.Equal(t, 1, checker.calls)
	})

	t.Run("blocked", func(t *testing.T) {
		checker := &fakeChecker{verdict: Verdict{Blocked: true, Reason: "Matched: x"}}
		d := NewGate(checker, time.Second, logger.Nop()).Check(context.Background(), "bad words")

		assert.Equal(t, OutcomeBlocked, d.Outcome)
		assert.True(t, d.Blocked)
		assert.Equal(t, "Matched: x", d.Reason)
		assert.Equal(t, 1, checker.calls)
	})
}

func TestGate_FailsOpenOnError(t *testing.T) {
	cause := errors.New("connection refused")
	checker := &fakeChecker{err: cause}

	d := NewGate(checker, time.Second, logger.Nop()).Check(context.Background(), "hello")

	assert.Equal(t, OutcomeFailOpen, d.Outcome)
	assert.False(t, d.Blocked)
	assert.ErrorIs(t, d.Err, cause)
	assert.Equal(t, 1, checker.calls)
}

func TestGate_FailsOpenOnDeadline(t *testing.T) {
	checker := &fakeChecker{block: true}

	start := time.Now()
	d := NewGate(checker, 50*time.Millisecond, logger.Nop()).Check(context.Background(), "hello")

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, OutcomeFailOpen, d.Outcome)
	assert.False(t, d.Blocked)
	assert.ErrorIs(t, d.Err, context.DeadlineExceeded)
}

func TestGate_DefaultTimeout(t *testing.T) {
	gate := NewGate(&fakeChecker{}, 0, logger.Nop())
	assert.Equal(t, DefaultTimeout, gate.timeout)
}

// Slow moderation service: the request proceeds as if allowed.
func TestGate_SlowHTTPServiceFailsOpen(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(3 * time.Second):
		}
		w.Write([]byte(`{"blocked":true,"word":"x"}`))
	}))
	defer srv.Close()

	gate := NewGate(NewHTTPChecker(srv.URL, nil), 100*time.Millisecond, logger.Nop())

	start := time.Now()
	d := gate.Check(context.Background(), "hello")

	require.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, OutcomeFailOpen, d.Outcome)
	assert.False(t, d.Blocked)
}
