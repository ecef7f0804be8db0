// Package rules implements the stateful fraud rule engine.
//
// Every transaction is evaluated against 4 additive heuristics: amount tier,
// transaction velocity, location change recency, and deviation from the
// user's spending profile. Contributions accumulate into an integer fraud
// score; the boolean verdict and the coarse risk tier are both derived from
// it. Per-user behavioral state lives in a velocity/pattern store keyed by
// user ID.
package rules

import (
	"context"
	"errors"
	"time"
)

// RiskLevel is the coarse risk classification derived from the fraud score.
// Its bands do not line up with the boolean fraud threshold.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskElevated RiskLevel = "ELEVATED"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
)

const (
	// FraudThreshold is the score at or above which a transaction is flagged.
	FraudThreshold = 60

	// VelocityHistorySize caps the per-user velocity history.
	VelocityHistorySize = 10
)

// Verdict is the rule engine's result for a single transaction.
type Verdict struct {
	IsFraud    bool      `json:"is_fraud_rule"`
	Reason     *string   `json:"reason"`
	FraudScore int       `json:"fraud_score"`
	RiskLevel  RiskLevel `json:"risk_level"`
}

// VelocityEntry is one recorded transaction in a user's velocity history.
type VelocityEntry struct {
	Timestamp time.Time `json:"ts"`
	Amount    float64   `json:"amount"`
}

// LocationState is a user's last-seen location and when it last changed.
type LocationState struct {
	Location  string    `json:"location"`
	ChangedAt time.Time `json:"changedAt"`
}

// SpendingProfile is a user's running spending aggregate.
type SpendingProfile struct {
	TotalAmount float64 `json:"totalAmount"`
	Count       int64   `json:"count"`
}

// Average returns the mean transaction amount, or 0 for an empty profile.
func (p SpendingProfile) Average() float64 {
	if p.Count == 0 {
		return 0
	}
	return p.TotalAmount / float64(p.Count)
}

// ErrStoreUnavailable marks a failure to reach the velocity/pattern store.
// It fails the whole evaluation; the gateway resolves it via fallback.
var ErrStoreUnavailable = errors.New("velocity/pattern store unavailable")

// Store is the velocity/pattern store contract: per-user bounded history
// plus scalar state. Any backing store satisfying it suffices; there is no
// cross-key atomicity, which the design accepts (concurrent evaluations for
// one user may interleave).
type Store interface {
	// AppendVelocity pushes entry onto the user's history, trims it to
	// limit entries, and returns the history most-recent-first including
	// the new entry.
	AppendVelocity(ctx context.Context, userID string, entry VelocityEntry, limit int) ([]VelocityEntry, error)

	// LocationState returns the user's location state, or nil when the
	// user has never been seen.
	LocationState(ctx context.Context, userID string) (*LocationState, error)

	// SetLocationState replaces the user's location state.
	SetLocationState(ctx context.Context, userID string, state LocationState) error

	// SpendingProfile returns the user's spending profile, or nil when the
	// user has no recorded transactions.
	SpendingProfile(ctx context.Context, userID string) (*SpendingProfile, error)

	// SetSpendingProfile replaces the user's spending profile.
	SetSpendingProfile(ctx context.Context, userID string, profile SpendingProfile) error
}

// riskLevel maps a fraud score to its tier.
func riskLevel(score int) RiskLevel {
	switch {
	case score >= 80:
		return RiskHigh
	case score >= 50:
		return RiskMedium
	case score >= 20:
		return RiskElevated
	default:
		return RiskLow
	}
}
