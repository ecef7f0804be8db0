package alerts

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/fraudgate/internal/aggregator"
	"github.com/mbd888/fraudgate/internal/transaction"
)

func fraudVerdict() *aggregator.HybridVerdict {
	reason := "Very High Frequency Transactions Detected"
	return &aggregator.HybridVerdict{
		Verdict:     aggregator.VerdictFraud,
		RuleVerdict: true,
		HybridScore: 0.8,
		FraudScore:  85,
		RiskLevel:   "HIGH",
		Reason:      &reason,
		Confidence:  0.6,
	}
}

func cleanVerdict() *aggregator.HybridVerdict {
	return &aggregator.HybridVerdict{
		Verdict:     aggregator.VerdictNotFraud,
		HybridScore: 0.1,
		RiskLevel:   "LOW",
		Confidence:  0.8,
	}
}

func TestPublishDeliversSignedAlert(t *testing.T) {
	type received struct {
		body      []byte
		signature string
	}
	got := make(chan received, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got <- received{body: body, signature: r.Header.Get("X-Fraudgate-Signature")}
	}))
	defer srv.Close()

	n := NewNotifier(srv.URL, "alert-secret")
	n.Publish(context.Background(), transaction.Transaction{UserID: "user-1", Amount: 99000, Location: "NYC"}, fraudVerdict())

	select {
	case r := <-got:
		assert.Equal(t, Sign(r.body, "alert-secret"), r.signature)

		var alert Alert
		require.NoError(t, json.Unmarshal(r.body, &alert))
		assert.Equal(t, "user-1", alert.UserID)
		assert.Equal(t, aggregator.VerdictFraud, alert.Verdict)
		assert.Equal(t, 85, alert.FraudScore)
		assert.NotEmpty(t, alert.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("alert was not delivered")
	}
}

func TestPublishSkipsCleanVerdicts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	n := NewNotifier(srv.URL, "")
	n.Publish(context.Background(), transaction.Transaction{UserID: "user-1"}, cleanVerdict())

	assert.Equal(t, int32(0), calls.Load())
}

func TestPublishAlertsOnHighRiskEvenWhenNotFraud(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	// Rule engine said HIGH but the ML fallback dragged the fused score
	// under the line; operators still want to hear about it.
	v := cleanVerdict()
	v.RiskLevel = "HIGH"
	v.FraudScore = 95

	n := NewNotifier(srv.URL, "")
	n.Publish(context.Background(), transaction.Transaction{UserID: "user-1"}, v)

	assert.Equal(t, int32(1), calls.Load())
}

func TestPublishRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
	}))
	defer srv.Close()

	n := NewNotifier(srv.URL, "")
	n.Publish(context.Background(), transaction.Transaction{UserID: "user-1"}, fraudVerdict())

	assert.Equal(t, int32(3), calls.Load())
}

func TestPublishDoesNotRetryRejections(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	n := NewNotifier(srv.URL, "")
	n.Publish(context.Background(), transaction.Transaction{UserID: "user-1"}, fraudVerdict())

	assert.Equal(t, int32(1), calls.Load())
}
