package aggregator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/fraudgate/internal/circuitbreaker"
	"github.com/mbd888/fraudgate/internal/rules"
	"github.com/mbd888/fraudgate/internal/transaction"
)

type fakeRuleSource struct {
	verdict *rules.Verdict
	err     error
	delay   time.Duration
	calls   int
}

func (f *fakeRuleSource) Evaluate(ctx context.Context, _ transaction.Transaction) (*rules.Verdict, error) {
	f.calls++
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.verdict, f.err
}

type fakeMLSource struct {
	probability float64
	err         error
	delay       time.Duration
	calls       int
}

func (f *fakeMLSource) Predict(ctx context.Context, _ transaction.Transaction) (float64, error) {
	f.calls++
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return f.probability, f.err
}

func cleanVerdict() *rules.Verdict {
	return &rules.Verdict{IsFraud: false, FraudScore: 5, RiskLevel: rules.RiskLow}
}

func TestDispatchBothFulfilled(t *testing.T) {
	d := NewDispatcher(
		&fakeRuleSource{verdict: cleanVerdict()},
		&fakeMLSource{probability: 0.3},
		time.Second, nil,
	)

	ruleRes, mlRes := d.Dispatch(context.Background(), transaction.Transaction{UserID: "u1"})

	assert.Equal(t, StatusFulfilled, ruleRes.Status)
	require.NotNil(t, ruleRes.Verdict)
	assert.Equal(t, 5, ruleRes.Verdict.FraudScore)
	assert.Equal(t, StatusFulfilled, mlRes.Status)
	assert.Equal(t, 0.3, mlRes.Probability)
}

func TestDispatchRuleFailureDoesNotAffectML(t *testing.T) {
	d := NewDispatcher(
		&fakeRuleSource{err: errors.New("connection refused")},
		&fakeMLSource{probability: 0.9},
		time.Second, nil,
	)

	ruleRes, mlRes := d.Dispatch(context.Background(), transaction.Transaction{UserID: "u1"})

	assert.Equal(t, StatusFailed, ruleRes.Status)
	assert.Error(t, ruleRes.Err)
	assert.Equal(t, StatusFulfilled, mlRes.Status)
	assert.Equal(t, 0.9, mlRes.Probability)
}

func TestDispatchTimeoutIsPerSource(t *testing.T) {
	d := NewDispatcher(
		&fakeRuleSource{verdict: cleanVerdict()},
		&fakeMLSource{probability: 0.9, delay: 500 * time.Millisecond},
		50*time.Millisecond, nil,
	)

	start := time.Now()
	ruleRes, mlRes := d.Dispatch(context.Background(), transaction.Transaction{UserID: "u1"})

	assert.Equal(t, StatusFulfilled, ruleRes.Status)
	assert.Equal(t, StatusTimedOut, mlRes.Status)
	assert.ErrorIs(t, mlRes.Err, context.DeadlineExceeded)
	// The join waits for the timeout, not for the slow call to finish.
	assert.Less(t, time.Since(start), 400*time.Millisecond)
}

func TestDispatchBothFail(t *testing.T) {
	d := NewDispatcher(
		&fakeRuleSource{err: errors.New("down")},
		&fakeMLSource{err: errors.New("down")},
		time.Second, nil,
	)

	ruleRes, mlRes := d.Dispatch(context.Background(), transaction.Transaction{UserID: "u1"})

	assert.Equal(t, StatusFailed, ruleRes.Status)
	assert.Equal(t, StatusFailed, mlRes.Status)
}

func TestDispatchCircuitBreakerShortCircuits(t *testing.T) {
	ruleSrc := &fakeRuleSource{err: errors.New("down")}
	breaker := circuitbreaker.New(2, time.Minute)
	d := NewDispatcher(ruleSrc, &fakeMLSource{probability: 0.2}, time.Second, breaker)

	// Two failures trip the rule engine breaker.
	d.Dispatch(context.Background(), transaction.Transaction{UserID: "u1"})
	d.Dispatch(context.Background(), transaction.Transaction{UserID: "u1"})
	require.Equal(t, circuitbreaker.StateOpen, breaker.State(SourceRuleEngine))

	callsBefore := ruleSrc.calls
	ruleRes, mlRes := d.Dispatch(context.Background(), transaction.Transaction{UserID: "u1"})

	assert.Equal(t, StatusFailed, ruleRes.Status)
	assert.ErrorIs(t, ruleRes.Err, ErrCircuitOpen)
	assert.Equal(t, callsBefore, ruleSrc.calls) // source not touched
	// The oracle's breaker is independent.
	assert.Equal(t, StatusFulfilled, mlRes.Status)
}
