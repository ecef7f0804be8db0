package aggregator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/fraudgate/internal/transaction"
)

func TestRuleClientEvaluate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/rule/verdict", r.URL.Path)

		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "user-1", req["userId"])
		assert.Equal(t, float64(30000), req["amount"])
		assert.Equal(t, "NYC", req["location"])
		assert.NotEmpty(t, req["timestamp"])
		// Balance fields are not the rule engine's business.
		assert.NotContains(t, req, "oldbalanceOrg")

		json.NewEncoder(w).Encode(map[string]interface{}{
			"is_fraud_rule": false,
			"reason":        "Large Transaction Detected",
			"fraud_score":   50,
			"risk_level":    "MEDIUM",
		})
	}))
	defer srv.Close()

	v, err := NewRuleClient(srv.URL).Evaluate(context.Background(), transaction.Transaction{
		UserID:   "user-1",
		Amount:   30000,
		Location: "NYC",
	})

	require.NoError(t, err)
	assert.False(t, v.IsFraud)
	assert.Equal(t, 50, v.FraudScore)
	assert.Equal(t, "MEDIUM", string(v.RiskLevel))
	require.NotNil(t, v.Reason)
	assert.Equal(t, "Large Transaction Detected", *v.Reason)
}

func TestRuleClientErrorStatuses(t *testing.T) {
	for _, status := range []int{http.StatusBadRequest, http.StatusInternalServerError, http.StatusServiceUnavailable} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))

		_, err := NewRuleClient(srv.URL).Evaluate(context.Background(), transaction.Transaction{UserID: "u1"})
		assert.Error(t, err)
		srv.Close()
	}
}
