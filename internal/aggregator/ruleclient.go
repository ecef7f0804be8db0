package aggregator

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
	"github.com/mbd888/fraudgate/internal/rules"
	"github.com/mbd888/fraudgate/internal/transaction"
)

const maxResponseSize = 1 << 20 // 1MB

// RuleClient calls the rule engine service over HTTP. It satisfies
// RuleSource.
type RuleClient struct {
	baseURL string
	client  *http.Client
}

// NewRuleClient creates a rule engine client. Deadlines come from the
// dispatch context.
func NewRuleClient(baseURL string) *RuleClient {
	return &RuleClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
	}
}

// ruleRequest is the rule engine's input. Only the identity-bearing fields
// go to the rule engine; balances are oracle territory. The timestamp pins
// the evaluation instant to the gateway's clock.
type ruleRequest struct {
	UserID    string    `json:"userId"`
	Amount    float64   `json:"amount"`
	Location  string    `json:"location"`
	Timestamp time.Time `json:"timestamp"`
}

// Evaluate posts the transaction to the rule engine and decodes its verdict.
func (c *RuleClient) Evaluate(ctx context.Context, tx transaction.Transaction) (*rules.Verdict, error) {
	body, err := json.Marshal(ruleRequest{
		UserID:    tx.UserID,
		Amount:    tx.Amount,
		Location:  tx.Location,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal rule request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/rule/verdict", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if cid := logging.GetCorrelationID(ctx); cid != "" {
		req.Header.Set(logging.CorrelationHeader, cid)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rule engine request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read rule engine response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rule engine returned HTTP %d", resp.StatusCode)
	}

	var verdict rules.Verdict
	if err := json.Unmarshal(respBody, &verdict); err != nil {
		return nil, fmt.Errorf("decode rule engine response: %w", err)
	}
	return &verdict, nil
}
