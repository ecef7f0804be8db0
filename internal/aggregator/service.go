package aggregator

import (
	"context"
	"math"

	"github.com/mbd888/fraudgate/internal/logging"
	"github.com/mbd888/fraudgate/internal/metrics"
	"github.com/mbd888/fraudgate/internal/rules"
	"github.com/mbd888/fraudgate/internal/transaction"
)

// Sink receives every decided verdict after the response is on its way.
// Implementations (audit trail, alert webhooks, the realtime stream) run on
// their own goroutine with a detached context and must tolerate being
// best-effort.
type Sink interface {
	Publish(ctx context.Context, tx transaction.Transaction, verdict *HybridVerdict)
}

// Service decides hybrid verdicts: dispatch, fallback, fuse, fan out.
type Service struct {
	dispatcher *Dispatcher
	scorer     *Scorer
	sinks      []Sink
}

// NewService creates the verdict service.
func NewService(dispatcher *Dispatcher, scorer *Scorer, sinks ...Sink) *Service {
	return &Service{
		dispatcher: dispatcher,
		scorer:     scorer,
		sinks:      sinks,
	}
}

// Decide produces the hybrid verdict for one transaction. Source failures
// are resolved by fallback defaults (rule: not fraud, score 0, LOW; ml:
// probability 0), never by failing the request.
func (s *Service) Decide(ctx context.Context, tx transaction.Transaction) *HybridVerdict {
	log := logging.L(ctx)

	ruleRes, mlRes := s.dispatcher.Dispatch(ctx, tx)

	ruleVerdict := false
	fraudScore := 0
	riskLevel := rules.RiskLow
	var ruleReason *string

	if ruleRes.Status == StatusFulfilled {
		ruleVerdict = ruleRes.Verdict.IsFraud
		fraudScore = ruleRes.Verdict.FraudScore
		riskLevel = ruleRes.Verdict.RiskLevel
		ruleReason = ruleRes.Verdict.Reason
	} else {
		log.Warn("rule engine unavailable, defaulting to not fraud",
			"status", ruleRes.Status, "error", ruleRes.Err)
	}

	mlProbability := 0.0
	if mlRes.Status == StatusFulfilled {
		mlProbability = mlRes.Probability
	} else {
		log.Warn("ml oracle unavailable, defaulting to 0 probability",
			"status", mlRes.Status, "error", mlRes.Err)
	}

	score := s.scorer.Score(fraudScore, mlProbability)

	verdict := VerdictNotFraud
	if score > 0.5 {
		verdict = VerdictFraud
	}

	var reason *string
	switch {
	case ruleVerdict:
		reason = ruleReason
	case verdict == VerdictFraud:
		r := ReasonMLSignal
		reason = &r
	}

	hv := &HybridVerdict{
		Verdict:       verdict,
		RuleVerdict:   ruleVerdict,
		MLProbability: mlProbability,
		HybridScore:   score,
		FraudScore:    fraudScore,
		RiskLevel:     riskLevel,
		Reason:        reason,
		Confidence:    math.Abs(score-0.5) * 2,
	}

	metrics.VerdictsTotal.WithLabelValues(verdict).Inc()
	metrics.HybridScore.Observe(score)

	log.Info("verdict decided",
		"user", tx.UserID,
		"verdict", verdict,
		"hybrid_score", score,
		"fraud_score", fraudScore,
		"risk_level", riskLevel,
		"rule_status", ruleRes.Status,
		"ml_status", mlRes.Status,
	)

	// Sinks outlive the request but not its correlation metadata.
	sinkCtx := context.WithoutCancel(ctx)
	for _, sink := range s.sinks {
		go sink.Publish(sinkCtx, tx, hv)
	}

	return hv
}
