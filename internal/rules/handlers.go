package rules

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/fraudgate/internal/logging"
	"github.com/mbd888/fraudgate/internal/traces"
	"github.com/mbd888/fraudgate/internal/validation"
)

// Handler provides the rule engine HTTP surface.
type Handler struct {
	engine *Engine
}

// NewHandler creates a rule engine handler.
func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

// RegisterRoutes sets up the rule verdict routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/rule/verdict", h.Verdict)
}

// verdictRequest is the rule evaluation input. The timestamp is optional;
// the gateway supplies one so both decision sources see the same instant.
type verdictRequest struct {
	UserID    string     `json:"userId"`
	Amount    float64    `json:"amount"`
	Location  string     `json:"location"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// Verdict handles POST /api/v1/rule/verdict
func (h *Handler) Verdict(c *gin.Context) {
	var req verdictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Request body must be valid JSON",
		})
		return
	}

	// Location tokens become store values; trim and bound them so a padded
	// variant of a known location is not scored as a change.
	location := validation.SanitizeString(req.Location, validation.MaxLocationLength)

	missing := ""
	switch {
	case req.UserID == "":
		missing = "userId"
	case req.Amount == 0:
		missing = "amount"
	case location == "":
		missing = "location"
	}
	if missing != "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": "Missing required field: " + missing,
		})
		return
	}

	now := time.Now()
	if req.Timestamp != nil {
		now = *req.Timestamp
	}

	ctx, span := traces.StartSpan(c.Request.Context(), "rules.evaluate",
		traces.UserID(req.UserID),
		traces.Amount(req.Amount),
	)
	defer span.End()

	verdict, err := h.engine.Evaluate(ctx, req.UserID, req.Amount, location, now)
	if err != nil {
		if errors.Is(err, ErrStoreUnavailable) {
			logging.L(ctx).Error("evaluation failed, store unreachable", "user", req.UserID, "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error":   "store_unavailable",
				"message": "Velocity/pattern store is unreachable",
			})
			return
		}
		logging.L(ctx).Error("evaluation failed", "user", req.UserID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Rule evaluation failed",
		})
		return
	}

	logging.L(ctx).Info("rule verdict",
		"user", req.UserID,
		"fraud_score", verdict.FraudScore,
		"risk_level", verdict.RiskLevel,
		"is_fraud", verdict.IsFraud,
	)

	c.JSON(http.StatusOK, verdict)
}
