package rules

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mbd888/fraudgate/internal/metrics"
)

// Reason strings appended by the heuristics. Conjoined with " and " when
// several fire on one transaction.
const (
	reasonVeryLargeAmount = "Very Large Transaction Detected"
	reasonLargeAmount     = "Large Transaction Detected"
	reasonVeryHighFreq    = "Very High Frequency Transactions Detected"
	reasonHighFreq        = "High Frequency Transactions Detected"
	reasonElevatedFreq    = "Elevated Transaction Frequency Detected"
	reasonRapidSpending   = "Rapid High-Value Spending Detected"
	reasonLocationChange  = "Unusual Location Change Detected"
	reasonSpendingPattern = "Unusual Spending Pattern Detected"
)

// Engine evaluates transactions against the four weighted heuristics,
// reading and updating per-user state in the store.
type Engine struct {
	store Store
}

// NewEngine creates a rule engine backed by the given velocity/pattern store.
func NewEngine(store Store) *Engine {
	return &Engine{store: store}
}

// Evaluate scores one transaction. State reads reflect the world before this
// transaction's own writes: each heuristic reads its key, scores, then
// updates. A store failure fails the whole evaluation (wrapped in
// ErrStoreUnavailable); partial scores are never returned.
func (e *Engine) Evaluate(ctx context.Context, userID string, amount float64, location string, now time.Time) (*Verdict, error) {
	score := 0
	var reasons []string

	add := func(pts int, reason string) {
		if pts <= 0 {
			return
		}
		score += pts
		if reason != "" {
			reasons = append(reasons, reason)
		}
	}

	add(amountScore(amount))

	pts, reason, err := e.velocityScore(ctx, userID, amount, now)
	if err != nil {
		return nil, err
	}
	add(pts, reason)

	pts, reason, err = e.locationScore(ctx, userID, location, now)
	if err != nil {
		return nil, err
	}
	add(pts, reason)

	pts, reason, err = e.spendingScore(ctx, userID, amount)
	if err != nil {
		return nil, err
	}
	add(pts, reason)

	v := &Verdict{
		IsFraud:    score >= FraudThreshold,
		FraudScore: score,
		RiskLevel:  riskLevel(score),
	}
	if len(reasons) > 0 {
		joined := strings.Join(reasons, " and ")
		v.Reason = &joined
	}

	metrics.RuleEvaluationsTotal.WithLabelValues(string(v.RiskLevel)).Inc()
	return v, nil
}

// amountScore is a monotonic step function of the transaction amount.
// Exactly one bracket applies.
func amountScore(amount float64) (int, string) {
	switch {
	case amount > 100000:
		return 85, reasonVeryLargeAmount
	case amount > 50000:
		return 70, reasonVeryLargeAmount
	case amount > 25000:
		return 50, reasonLargeAmount
	case amount > 10000:
		return 35, reasonLargeAmount
	case amount > 5000:
		return 20, ""
	case amount > 1000:
		return 10, ""
	case amount > 100:
		return 5, ""
	default:
		return 0, ""
	}
}

// velocityScore appends the transaction to the user's bounded history and
// scores two independent checks: the span covering the 5 most recent
// transactions, and the value of the 3 most recent relative to their span.
// Both contributions are additive.
func (e *Engine) velocityScore(ctx context.Context, userID string, amount float64, now time.Time) (int, string, error) {
	entries, err := e.store.AppendVelocity(ctx, userID, VelocityEntry{Timestamp: now, Amount: amount}, VelocityHistorySize)
	if err != nil {
		metrics.StoreErrorsTotal.WithLabelValues("append_velocity").Inc()
		return 0, "", fmt.Errorf("%w: append velocity for %s: %v", ErrStoreUnavailable, userID, err)
	}

	pts := 0
	reason := ""

	// Frequency: time covered by the 5 most recent transactions.
	if len(entries) >= 5 {
		span := entries[0].Timestamp.Sub(entries[4].Timestamp)
		switch {
		case span < 30*time.Second:
			pts, reason = 60, reasonVeryHighFreq
		case span < 60*time.Second:
			pts, reason = 40, reasonHighFreq
		case span < 300*time.Second:
			pts, reason = 20, reasonElevatedFreq
		}
	}

	// Burst value: total of the 3 most recent vs the span covering them.
	// Independent of and additive with the frequency check.
	if len(entries) >= 3 {
		total := entries[0].Amount + entries[1].Amount + entries[2].Amount
		span := entries[0].Timestamp.Sub(entries[2].Timestamp)

		burst := 0
		switch {
		case total > 50000 && span < 300*time.Second:
			burst = 50
		case total > 20000 && span < 300*time.Second:
			burst = 35
		case total > 10000 && span < 600*time.Second:
			burst = 20
		}
		if burst > 0 {
			pts += burst
			if reason == "" {
				reason = reasonRapidSpending
			} else {
				reason = reason + " and " + reasonRapidSpending
			}
		}
	}

	return pts, reason, nil
}

// locationScore compares the transaction's location against the user's last
// seen one. A change scores by how recently the previous change happened;
// the state is updated afterwards whether or not the change scored. A
// first-ever location never scores.
func (e *Engine) locationScore(ctx context.Context, userID, location string, now time.Time) (int, string, error) {
	state, err := e.store.LocationState(ctx, userID)
	if err != nil {
		metrics.StoreErrorsTotal.WithLabelValues("get_location").Inc()
		return 0, "", fmt.Errorf("%w: load location for %s: %v", ErrStoreUnavailable, userID, err)
	}

	if state == nil {
		if err := e.store.SetLocationState(ctx, userID, LocationState{Location: location, ChangedAt: now}); err != nil {
			metrics.StoreErrorsTotal.WithLabelValues("set_location").Inc()
			return 0, "", fmt.Errorf("%w: store location for %s: %v", ErrStoreUnavailable, userID, err)
		}
		return 0, "", nil
	}

	if state.Location == location {
		// Same place: the change timestamp is left alone.
		return 0, "", nil
	}

	pts := 0
	switch elapsed := now.Sub(state.ChangedAt); {
	case elapsed < 5*time.Minute:
		pts = 45
	case elapsed < 30*time.Minute:
		pts = 30
	case elapsed < time.Hour:
		pts = 15
	case elapsed < 2*time.Hour:
		pts = 5
	}

	if err := e.store.SetLocationState(ctx, userID, LocationState{Location: location, ChangedAt: now}); err != nil {
		metrics.StoreErrorsTotal.WithLabelValues("set_location").Inc()
		return 0, "", fmt.Errorf("%w: store location for %s: %v", ErrStoreUnavailable, userID, err)
	}

	reason := ""
	if pts > 0 {
		reason = reasonLocationChange
	}
	return pts, reason, nil
}

// spendingScore compares the amount against the user's running average. The
// profile is updated after scoring, so a transaction never measures itself
// against a profile that already includes it.
func (e *Engine) spendingScore(ctx context.Context, userID string, amount float64) (int, string, error) {
	profile, err := e.store.SpendingProfile(ctx, userID)
	if err != nil {
		metrics.StoreErrorsTotal.WithLabelValues("get_profile").Inc()
		return 0, "", fmt.Errorf("%w: load profile for %s: %v", ErrStoreUnavailable, userID, err)
	}

	pts := 0
	if profile != nil && profile.Count > 0 {
		avg := profile.Average()
		switch {
		case amount > avg*5 && amount > 1000:
			pts = 40
		case amount > avg*3 && amount > 1000:
			pts = 25
		case amount > avg*2 && amount > 500:
			pts = 15
		case amount > avg*1.5 && amount > 200:
			pts = 8
		}
	}

	updated := SpendingProfile{TotalAmount: amount, Count: 1}
	if profile != nil {
		updated = SpendingProfile{TotalAmount: profile.TotalAmount + amount, Count: profile.Count + 1}
	}
	if err := e.store.SetSpendingProfile(ctx, userID, updated); err != nil {
		metrics.StoreErrorsTotal.WithLabelValues("set_profile").Inc()
		return 0, "", fmt.Errorf("%w: store profile for %s: %v", ErrStoreUnavailable, userID, err)
	}

	reason := ""
	if pts > 0 {
		reason = reasonSpendingPattern
	}
	return pts, reason, nil
}
