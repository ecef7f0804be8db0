// Package oracle is the HTTP client for the ML fraud probability service.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mbd888/fraudgate/internal/logging"
	"github.com/mbd888/fraudgate/internal/transaction"
)

const maxResponseSize = 1 << 20 // 1MB

// Client calls the ML oracle's /predict endpoint.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates an ML oracle client. The per-dispatch deadline comes
// from the caller's context, so no client-level timeout is set.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
	}
}

// prediction is the oracle's response shape.
type prediction struct {
	FraudProbability float64 `json:"fraud_probability"`
}

// features is the model input: the transaction's numeric movement plus its
// type. Identity fields (userId, location) are rule engine territory and
// are not sent to the model.
type features struct {
	Type           string  `json:"type"`
	Amount         float64 `json:"amount"`
	OldBalanceOrig float64 `json:"oldbalanceOrg"`
	NewBalanceOrig float64 `json:"newbalanceOrig"`
	OldBalanceDest float64 `json:"oldbalanceDest"`
	NewBalanceDest float64 `json:"newbalanceDest"`
}

// Predict sends the transaction's model features to the oracle and returns
// the fraud probability in [0, 1].
func (c *Client) Predict(ctx context.Context, tx transaction.Transaction) (float64, error) {
	body, err := json.Marshal(features{
		Type:           tx.Type,
		Amount:         tx.Amount,
		OldBalanceOrig: tx.OldBalanceOrig,
		NewBalanceOrig: tx.NewBalanceOrig,
		OldBalanceDest: tx.OldBalanceDest,
		NewBalanceDest: tx.NewBalanceDest,
	})
	if err != nil {
		return 0, fmt.Errorf("marshal features: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict", bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if cid := logging.GetCorrelationID(ctx); cid != "" {
		req.Header.Set(logging.CorrelationHeader, cid)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("oracle request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return 0, fmt.Errorf("read oracle response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("oracle returned HTTP %d", resp.StatusCode)
	}

	var pred prediction
	if err := json.Unmarshal(respBody, &pred); err != nil {
		return 0, fmt.Errorf("decode oracle response: %w", err)
	}
	if pred.FraudProbability < 0 || pred.FraudProbability > 1 {
		return 0, fmt.Errorf("oracle probability %v out of range", pred.FraudProbability)
	}

	logging.L(ctx).Debug("oracle prediction",
		"probability", pred.FraudProbability,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return pred.FraudProbability, nil
}
