package rules

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRouter(store Store) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	v1 := r.Group("/api/v1")
	NewHandler(NewEngine(store)).RegisterRoutes(v1)
	return r
}

func postVerdict(t *testing.T, r *gin.Engine, body map[string]interface{}) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/rule/verdict", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestVerdictEndpoint(t *testing.T) {
	r := setupTestRouter(NewMemoryStore())

	w := postVerdict(t, r, map[string]interface{}{
		"userId":   "user-1",
		"amount":   30000,
		"location": "NYC",
	})

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		IsFraudRule bool    `json:"is_fraud_rule"`
		Reason      *string `json:"reason"`
		FraudScore  int     `json:"fraud_score"`
		RiskLevel   string  `json:"risk_level"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.False(t, resp.IsFraudRule)
	assert.Equal(t, 50, resp.FraudScore)
	assert.Equal(t, "MEDIUM", resp.RiskLevel)
	require.NotNil(t, resp.Reason)
	assert.Equal(t, "Large Transaction Detected", *resp.Reason)
}

func TestVerdictEndpointNullReason(t *testing.T) {
	r := setupTestRouter(NewMemoryStore())

	w := postVerdict(t, r, map[string]interface{}{
		"userId":   "user-1",
		"amount":   50,
		"location": "NYC",
	})

	require.Equal(t, http.StatusOK, w.Code)

	// The reason key must be present and explicitly null, not omitted.
	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	reason, ok := raw["reason"]
	require.True(t, ok)
	assert.Equal(t, "null", string(reason))
}

func TestVerdictEndpointMissingFields(t *testing.T) {
	tests := []struct {
		name  string
		body  map[string]interface{}
		field string
	}{
		{"no userId", map[string]interface{}{"amount": 100, "location": "NYC"}, "userId"},
		{"no amount", map[string]interface{}{"userId": "u1", "location": "NYC"}, "amount"},
		{"zero amount", map[string]interface{}{"userId": "u1", "amount": 0, "location": "NYC"}, "amount"},
		{"no location", map[string]interface{}{"userId": "u1", "amount": 100}, "location"},
		{"userId reported first", map[string]interface{}{}, "userId"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := setupTestRouter(NewMemoryStore())

			w := postVerdict(t, r, tt.body)

			require.Equal(t, http.StatusBadRequest, w.Code)

			var resp map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, "Missing required field: "+tt.field, resp["message"])
		})
	}
}

func TestVerdictEndpointMalformedJSON(t *testing.T) {
	r := setupTestRouter(NewMemoryStore())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/rule/verdict", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestVerdictEndpointStoreDown(t *testing.T) {
	r := setupTestRouter(&failingStore{err: errors.New("connection refused")})

	w := postVerdict(t, r, map[string]interface{}{
		"userId":   "user-1",
		"amount":   100,
		"location": "NYC",
	})

	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "store_unavailable", resp["error"])
}

func TestVerdictEndpointTimestampUsed(t *testing.T) {
	r := setupTestRouter(NewMemoryStore())

	// Two rapid same-user calls with controlled timestamps 2 minutes apart
	// and a location change: the supplied timestamps, not the wall clock,
	// drive the recency scoring.
	w := postVerdict(t, r, map[string]interface{}{
		"userId":    "user-1",
		"amount":    50,
		"location":  "NYC",
		"timestamp": baseTime,
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = postVerdict(t, r, map[string]interface{}{
		"userId":    "user-1",
		"amount":    50,
		"location":  "London",
		"timestamp": baseTime.Add(2 * time.Minute),
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		FraudScore int `json:"fraud_score"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 45, resp.FraudScore)
}

func TestVerdictEndpointLocationSanitized(t *testing.T) {
	r := setupTestRouter(NewMemoryStore())

	// A padded variant of a known location is the same location once
	// trimmed, so the second call must not score a location change.
	w := postVerdict(t, r, map[string]interface{}{
		"userId":    "user-1",
		"amount":    50,
		"location":  "NYC",
		"timestamp": baseTime,
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = postVerdict(t, r, map[string]interface{}{
		"userId":    "user-1",
		"amount":    50,
		"location":  "  NYC  ",
		"timestamp": baseTime.Add(2 * time.Minute),
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		FraudScore int `json:"fraud_score"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.FraudScore)
}

func TestVerdictEndpointWhitespaceLocationRejected(t *testing.T) {
	r := setupTestRouter(NewMemoryStore())

	w := postVerdict(t, r, map[string]interface{}{
		"userId":   "user-1",
		"amount":   50,
		"location": "   ",
	})

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "location")
}
