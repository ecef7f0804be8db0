// Package audit keeps the verdict audit trail.
//
// The gateway itself never blocks on the trail: records are written on the
// sink goroutine after the response is sent, with a short retry, and a
// write failure costs the record, not the request.
package audit

import (
	"context"
	"errors"
	"time"

	"github.com/mbd888/fraudgate/internal/aggregator"
	"github.com/mbd888/fraudgate/internal/idgen"
	"github.com/mbd888/fraudgate/internal/logging"
	"github.com/mbd888/fraudgate/internal/metrics"
	"github.com/mbd888/fraudgate/internal/retry"
	"github.com/mbd888/fraudgate/internal/transaction"
)

// ErrNotFound is returned when no records exist for a query.
var ErrNotFound = errors.New("audit record not found")

// Record is one decided verdict as persisted.
type Record struct {
	ID            string    `json:"id"`
	CorrelationID string    `json:"correlation_id"`
	UserID        string    `json:"user_id"`
	Amount        float64   `json:"amount"`
	Location      string    `json:"location"`
	Type          string    `json:"type"`
	Verdict       string    `json:"verdict"`
	RuleVerdict   bool      `json:"rule_verdict"`
	MLProbability float64   `json:"ml_probability"`
	HybridScore   float64   `json:"hybrid_score"`
	FraudScore    int       `json:"fraud_score"`
	RiskLevel     string    `json:"risk_level"`
	Reason        *string   `json:"reason"`
	Confidence    float64   `json:"confidence"`
	CreatedAt     time.Time `json:"created_at"`
}

// Store persists verdict records.
type Store interface {
	Create(ctx context.Context, r *Record) error
	ListByUser(ctx context.Context, userID string, limit int) ([]*Record, error)
	Get(ctx context.Context, id string) (*Record, error)
}

// Recorder adapts a Store to the verdict sink contract.
type Recorder struct {
	store Store
}

// NewRecorder creates an audit sink over the given store.
func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store}
}

// Publish writes the verdict to the trail, retrying transient failures.
func (r *Recorder) Publish(ctx context.Context, tx transaction.Transaction, v *aggregator.HybridVerdict) {
	rec := &Record{
		ID:            idgen.WithPrefix("vd_"),
		CorrelationID: logging.GetCorrelationID(ctx),
		UserID:        tx.UserID,
		Amount:        tx.Amount,
		Location:      tx.Location,
		Type:          tx.Type,
		Verdict:       v.Verdict,
		RuleVerdict:   v.RuleVerdict,
		MLProbability: v.MLProbability,
		HybridScore:   v.HybridScore,
		FraudScore:    v.FraudScore,
		RiskLevel:     string(v.RiskLevel),
		Reason:        v.Reason,
		Confidence:    v.Confidence,
		CreatedAt:     time.Now().UTC(),
	}

	writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	err := retry.Do(writeCtx, 3, 200*time.Millisecond, func() error {
		return r.store.Create(writeCtx, rec)
	})
	if err != nil {
		metrics.StoreErrorsTotal.WithLabelValues("audit_create").Inc()
		logging.L(ctx).Error("audit write failed", "record", rec.ID, "error", err)
	}
}
