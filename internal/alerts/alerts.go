// Package alerts pushes high-risk verdicts to an operator-configured
// webhook.
//
// Only verdicts that cross the alert bar (fraud, or HIGH risk from the rule
// engine) go out. Delivery is best-effort with a short retry; the webhook
// being down never affects verdict latency.
package alerts

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mbd888/fraudgate/internal/aggregator"
	"github.com/mbd888/fraudgate/internal/idgen"
	"github.com/mbd888/fraudgate/internal/logging"
	"github.com/mbd888/fraudgate/internal/metrics"
	"github.com/mbd888/fraudgate/internal/retry"
	"github.com/mbd888/fraudgate/internal/rules"
	"github.com/mbd888/fraudgate/internal/transaction"
)

// Alert is the webhook payload for one flagged transaction.
type Alert struct {
	ID            string  `json:"id"`
	CorrelationID string  `json:"correlation_id,omitempty"`
	UserID        string  `json:"user_id"`
	Amount        float64 `json:"amount"`
	Location      string  `json:"location"`
	Verdict       string  `json:"verdict"`
	HybridScore   float64 `json:"hybrid_score"`
	FraudScore    int     `json:"fraud_score"`
	RiskLevel     string  `json:"risk_level"`
	Reason        *string `json:"reason"`
	Confidence    float64 `json:"confidence"`
	Timestamp     int64   `json:"timestamp"`
}

// Notifier sends alert webhooks. It satisfies the verdict sink contract.
type Notifier struct {
	url    string
	secret string
	client *http.Client
}

// NewNotifier creates an alert notifier. The secret, when set, signs each
// payload with HMAC-SHA256 in the X-Fraudgate-Signature header.
func NewNotifier(url, secret string) *Notifier {
	return &Notifier{
		url:    url,
		secret: secret,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// shouldAlert is the alert bar: a fused fraud verdict, or the rule engine
// rating the transaction HIGH even when the fused score stayed under the
// line.
func shouldAlert(v *aggregator.HybridVerdict) bool {
	return v.Verdict == aggregator.VerdictFraud || v.RiskLevel == rules.RiskHigh
}

// Publish delivers an alert for verdicts that cross the bar.
func (n *Notifier) Publish(ctx context.Context, tx transaction.Transaction, v *aggregator.HybridVerdict) {
	if !shouldAlert(v) {
		return
	}

	alert := Alert{
		ID:            idgen.WithPrefix("al_"),
		CorrelationID: logging.GetCorrelationID(ctx),
		UserID:        tx.UserID,
		Amount:        tx.Amount,
		Location:      tx.Location,
		Verdict:       v.Verdict,
		HybridScore:   v.HybridScore,
		FraudScore:    v.FraudScore,
		RiskLevel:     string(v.RiskLevel),
		Reason:        v.Reason,
		Confidence:    v.Confidence,
		Timestamp:     time.Now().Unix(),
	}

	payload, err := json.Marshal(alert)
	if err != nil {
		logging.L(ctx).Error("marshal alert", "error", err)
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	err = retry.Do(sendCtx, 3, 500*time.Millisecond, func() error {
		return n.send(sendCtx, payload)
	})
	if err != nil {
		metrics.AlertDeliveriesTotal.WithLabelValues("failed").Inc()
		logging.L(ctx).Error("alert delivery failed", "alert", alert.ID, "error", err)
		return
	}

	metrics.AlertDeliveriesTotal.WithLabelValues("delivered").Inc()
	logging.L(ctx).Info("alert delivered", "alert", alert.ID, "user", tx.UserID, "risk_level", alert.RiskLevel)
}

func (n *Notifier) send(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if n.secret != "" {
		req.Header.Set("X-Fraudgate-Signature", Sign(payload, n.secret))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		// Receiver rejected the payload; retrying will not help.
		return retry.Permanent(fmt.Errorf("webhook rejected alert: status %d", resp.StatusCode))
	}
	return fmt.Errorf("webhook returned status %d", resp.StatusCode)
}

// Sign computes the hex HMAC-SHA256 of the payload. Receivers recompute it
// to verify alerts came from the gateway.
func Sign(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}
