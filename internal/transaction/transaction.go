// Package transaction defines the transaction record the gateway scores.
//
// Field names follow the upstream PaySim-style dataset convention
// (oldbalanceOrg, newbalanceOrig), which is what callers already send.
package transaction

// Transaction is a single payment event submitted for a fraud verdict.
// It arrives once per request and is never persisted by the gateway itself.
type Transaction struct {
	UserID         string  `json:"userId"`
	Amount         float64 `json:"amount"`
	Location       string  `json:"location"`
	Type           string  `json:"type"`
	OldBalanceOrig float64 `json:"oldbalanceOrg"`
	NewBalanceOrig float64 `json:"newbalanceOrig"`
	OldBalanceDest float64 `json:"oldbalanceDest"`
	NewBalanceDest float64 `json:"newbalanceDest"`
}

// requiredFields lists the fields a verdict request must carry, in the
// order they are reported when missing.
var requiredFields = []string{
	"userId", "amount", "location", "type", "oldbalanceOrg", "newbalanceOrig",
}

// Validate returns the name of the first missing or zero-valued required
// field, or "" when the transaction is complete. Zero counts as missing
// for the numeric fields.
func (t *Transaction) Validate() string {
	present := map[string]bool{
		"userId":         t.UserID != "",
		"amount":         t.Amount != 0,
		"location":       t.Location != "",
		"type":           t.Type != "",
		"oldbalanceOrg":  t.OldBalanceOrig != 0,
		"newbalanceOrig": t.NewBalanceOrig != 0,
	}
	for _, f := range requiredFields {
		if !present[f] {
			return f
		}
	}
	return ""
}
