// Package aggregator fuses the rule engine and ML oracle signals into a
// single hybrid fraud verdict.
//
// Both decision sources are consulted concurrently per transaction. Either
// one failing is a normal outcome resolved by fallback defaults, never an
// error for the request as a whole.
package aggregator

import (
	"github.com/mbd888/fraudgate/internal/rules"
)

// Status classifies how a decision source call settled.
type Status string

const (
	StatusFulfilled Status = "fulfilled"
	StatusFailed    Status = "failed"
	StatusTimedOut  Status = "timed_out"
)

// Decision source keys, also used as circuit breaker and metric labels.
const (
	SourceRuleEngine = "rule_engine"
	SourceMLOracle   = "ml_oracle"
)

// Published verdict values.
const (
	VerdictFraud    = "Fraud"
	VerdictNotFraud = "Not Fraud"
)

// ReasonMLSignal is attached when the rule engine did not flag the
// transaction but the fused score still crossed the fraud line.
const ReasonMLSignal = "High ML Probability"

// RuleResult is the settled outcome of the rule engine call.
type RuleResult struct {
	Status  Status
	Verdict *rules.Verdict // nil unless Status is StatusFulfilled
	Err     error
}

// MLResult is the settled outcome of the ML oracle call.
type MLResult struct {
	Status      Status
	Probability float64 // zero unless Status is StatusFulfilled
	Err         error
}

// HybridVerdict is the gateway's response for one transaction. It is built
// fresh per request and never persisted by the gateway itself.
type HybridVerdict struct {
	Verdict       string          `json:"verdict"`
	RuleVerdict   bool            `json:"rule_verdict"`
	MLProbability float64         `json:"ml_probability"`
	HybridScore   float64         `json:"hybrid_score"`
	FraudScore    int             `json:"fraud_score"`
	RiskLevel     rules.RiskLevel `json:"risk_level"`
	Reason        *string         `json:"reason"`
	Confidence    float64         `json:"confidence"`
}
