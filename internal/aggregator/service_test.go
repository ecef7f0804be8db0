package aggregator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/fraudgate/internal/rules"
	"github.com/mbd888/fraudgate/internal/transaction"
)

func strptr(s string) *string { return &s }

func newTestService(ruleSrc RuleSource, mlSrc MLSource, sinks ...Sink) *Service {
	d := NewDispatcher(ruleSrc, mlSrc, time.Second, nil)
	return NewService(d, NewScorer(NoJitter()), sinks...)
}

func TestDecideBothFulfilled(t *testing.T) {
	svc := newTestService(
		&fakeRuleSource{verdict: &rules.Verdict{
			IsFraud:    true,
			Reason:     strptr("Very Large Transaction Detected"),
			FraudScore: 85,
			RiskLevel:  rules.RiskHigh,
		}},
		&fakeMLSource{probability: 0.9},
	)

	v := svc.Decide(context.Background(), transaction.Transaction{UserID: "u1", Amount: 120000})

	// 0.7*0.9 + 0.3*0.85 = 0.885
	assert.InDelta(t, 0.885, v.HybridScore, 1e-9)
	assert.Equal(t, VerdictFraud, v.Verdict)
	assert.True(t, v.RuleVerdict)
	assert.Equal(t, 85, v.FraudScore)
	assert.Equal(t, rules.RiskHigh, v.RiskLevel)
	require.NotNil(t, v.Reason)
	assert.Equal(t, "Very Large Transaction Detected", *v.Reason)
	assert.InDelta(t, 0.77, v.Confidence, 1e-9)
}

func TestDecideRuleFallback(t *testing.T) {
	svc := newTestService(
		&fakeRuleSource{err: errors.New("connection refused")},
		&fakeMLSource{probability: 0.8},
	)

	v := svc.Decide(context.Background(), transaction.Transaction{UserID: "u1"})

	// Rule fallback: not fraud, score 0, LOW; score = 0.7*0.8 = 0.56.
	assert.False(t, v.RuleVerdict)
	assert.Equal(t, 0, v.FraudScore)
	assert.Equal(t, rules.RiskLow, v.RiskLevel)
	assert.InDelta(t, 0.56, v.HybridScore, 1e-9)
	assert.Equal(t, VerdictFraud, v.Verdict)
	require.NotNil(t, v.Reason)
	assert.Equal(t, ReasonMLSignal, *v.Reason)
}

func TestDecideMLFallback(t *testing.T) {
	svc := newTestService(
		&fakeRuleSource{verdict: &rules.Verdict{
			IsFraud:    true,
			Reason:     strptr("Rapid High-Value Spending Detected"),
			FraudScore: 110,
			RiskLevel:  rules.RiskHigh,
		}},
		&fakeMLSource{err: errors.New("model down")},
	)

	v := svc.Decide(context.Background(), transaction.Transaction{UserID: "u1"})

	// ML fallback to 0; rule score saturates: 0.3*1.0 = 0.3.
	assert.Equal(t, 0.0, v.MLProbability)
	assert.InDelta(t, 0.3, v.HybridScore, 1e-9)
	assert.Equal(t, VerdictNotFraud, v.Verdict)
	assert.True(t, v.RuleVerdict)
	// The rule engine flagged it, so its reason is kept even though the
	// fused verdict is not fraud.
	require.NotNil(t, v.Reason)
	assert.Equal(t, "Rapid High-Value Spending Detected", *v.Reason)
}

func TestDecideBothFail(t *testing.T) {
	svc := newTestService(
		&fakeRuleSource{err: errors.New("down")},
		&fakeMLSource{err: errors.New("down")},
	)

	v := svc.Decide(context.Background(), transaction.Transaction{UserID: "u1"})

	assert.Equal(t, 0.0, v.HybridScore)
	assert.Equal(t, VerdictNotFraud, v.Verdict)
	assert.Nil(t, v.Reason)
	assert.InDelta(t, 1.0, v.Confidence, 1e-9)
}

type captureSink struct {
	mu       sync.Mutex
	verdicts []*HybridVerdict
	done     chan struct{}
}

func (c *captureSink) Publish(_ context.Context, _ transaction.Transaction, v *HybridVerdict) {
	c.mu.Lock()
	c.verdicts = append(c.verdicts, v)
	c.mu.Unlock()
	c.done <- struct{}{}
}

func TestDecideFansOutToSinks(t *testing.T) {
	sink := &captureSink{done: make(chan struct{}, 1)}
	svc := newTestService(
		&fakeRuleSource{verdict: cleanVerdict()},
		&fakeMLSource{probability: 0.1},
		sink,
	)

	v := svc.Decide(context.Background(), transaction.Transaction{UserID: "u1"})

	select {
	case <-sink.done:
	case <-time.After(time.Second):
		t.Fatal("sink was not notified")
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.verdicts, 1)
	assert.Equal(t, v, sink.verdicts[0])
}
