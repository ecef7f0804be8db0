package aggregator

import (
	"context"
	"errors"
	"time"

	"github.com/mbd888/fraudgate/internal/circuitbreaker"
	"github.com/mbd888/fraudgate/internal/metrics"
	"github.com/mbd888/fraudgate/internal/rules"
	"github.com/mbd888/fraudgate/internal/traces"
	"github.com/mbd888/fraudgate/internal/transaction"
)

// ErrCircuitOpen marks a source call short-circuited by its breaker.
var ErrCircuitOpen = errors.New("circuit open for decision source")

// RuleSource produces a rule verdict for a transaction.
type RuleSource interface {
	Evaluate(ctx context.Context, tx transaction.Transaction) (*rules.Verdict, error)
}

// MLSource produces a fraud probability for a transaction.
type MLSource interface {
	Predict(ctx context.Context, tx transaction.Transaction) (float64, error)
}

// Dispatcher issues the two decision source calls concurrently, each under
// its own timeout, and waits for both to settle. Neither outcome, including
// failure, short-circuits the other.
type Dispatcher struct {
	rules   RuleSource
	oracle  MLSource
	timeout time.Duration
	breaker *circuitbreaker.Breaker
}

// NewDispatcher creates a dispatcher with a per-source call timeout.
func NewDispatcher(ruleSrc RuleSource, mlSrc MLSource, timeout time.Duration, breaker *circuitbreaker.Breaker) *Dispatcher {
	if breaker == nil {
		breaker = circuitbreaker.New(5, 30*time.Second)
	}
	return &Dispatcher{
		rules:   ruleSrc,
		oracle:  mlSrc,
		timeout: timeout,
		breaker: breaker,
	}
}

// Dispatch runs both sources and returns once both have settled. Timeouts
// apply per call: a slow oracle never delays a fast rule verdict beyond the
// shared join. The channels are buffered so a result arriving after the
// caller's context dies is dropped, not written back late.
func (d *Dispatcher) Dispatch(ctx context.Context, tx transaction.Transaction) (RuleResult, MLResult) {
	ruleCh := make(chan RuleResult, 1)
	mlCh := make(chan MLResult, 1)

	go func() {
		ruleCh <- d.callRules(ctx, tx)
	}()
	go func() {
		mlCh <- d.callOracle(ctx, tx)
	}()

	return <-ruleCh, <-mlCh
}

func (d *Dispatcher) callRules(ctx context.Context, tx transaction.Transaction) RuleResult {
	if !d.breaker.Allow(SourceRuleEngine) {
		metrics.SourceFailuresTotal.WithLabelValues(SourceRuleEngine, "circuit_open").Inc()
		return RuleResult{Status: StatusFailed, Err: ErrCircuitOpen}
	}

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	callCtx, span := traces.StartSpan(callCtx, "dispatch.rule_engine", traces.Source(SourceRuleEngine))
	defer span.End()

	verdict, err := d.rules.Evaluate(callCtx, tx)
	switch {
	case err == nil:
		d.breaker.RecordSuccess(SourceRuleEngine)
		return RuleResult{Status: StatusFulfilled, Verdict: verdict}
	case errors.Is(err, context.DeadlineExceeded):
		d.breaker.RecordFailure(SourceRuleEngine)
		metrics.SourceFailuresTotal.WithLabelValues(SourceRuleEngine, "timeout").Inc()
		return RuleResult{Status: StatusTimedOut, Err: err}
	default:
		d.breaker.RecordFailure(SourceRuleEngine)
		metrics.SourceFailuresTotal.WithLabelValues(SourceRuleEngine, "error").Inc()
		return RuleResult{Status: StatusFailed, Err: err}
	}
}

func (d *Dispatcher) callOracle(ctx context.Context, tx transaction.Transaction) MLResult {
	if !d.breaker.Allow(SourceMLOracle) {
		metrics.SourceFailuresTotal.WithLabelValues(SourceMLOracle, "circuit_open").Inc()
		return MLResult{Status: StatusFailed, Err: ErrCircuitOpen}
	}

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	callCtx, span := traces.StartSpan(callCtx, "dispatch.ml_oracle", traces.Source(SourceMLOracle))
	defer span.End()

	probability, err := d.oracle.Predict(callCtx, tx)
	switch {
	case err == nil:
		d.breaker.RecordSuccess(SourceMLOracle)
		return MLResult{Status: StatusFulfilled, Probability: probability}
	case errors.Is(err, context.DeadlineExceeded):
		d.breaker.RecordFailure(SourceMLOracle)
		metrics.SourceFailuresTotal.WithLabelValues(SourceMLOracle, "timeout").Inc()
		return MLResult{Status: StatusTimedOut, Err: err}
	default:
		d.breaker.RecordFailure(SourceMLOracle)
		metrics.SourceFailuresTotal.WithLabelValues(SourceMLOracle, "error").Inc()
		return MLResult{Status: StatusFailed, Err: err}
	}
}
