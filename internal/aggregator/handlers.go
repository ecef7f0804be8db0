package aggregator

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/fraudgate/internal/logging"
	"github.com/mbd888/fraudgate/internal/traces"
	"github.com/mbd888/fraudgate/internal/transaction"
	"github.com/mbd888/fraudgate/internal/validation"
)

// Handler provides the gateway's verdict HTTP surface.
type Handler struct {
	svc *Service
}

// NewHandler creates a verdict handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes sets up the verdict routes on an authenticated group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/verdict", h.Verdict)
}

// Verdict handles POST /api/v1/verdict
func (h *Handler) Verdict(c *gin.Context) {
	var tx transaction.Transaction
	if err := c.ShouldBindJSON(&tx); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Request body must be valid JSON",
		})
		return
	}

	if field := tx.Validate(); field != "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": "Missing required field: " + field,
		})
		return
	}
	if !validation.IsValidUserID(tx.UserID) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": "Invalid userId",
		})
		return
	}

	ctx, span := traces.StartSpan(c.Request.Context(), "aggregator.decide",
		traces.UserID(tx.UserID),
		traces.Amount(tx.Amount),
		traces.CorrelationID(logging.GetCorrelationID(c.Request.Context())),
	)
	defer span.End()

	verdict := h.svc.Decide(ctx, tx)

	span.SetAttributes(traces.Verdict(verdict.Verdict))
	c.JSON(http.StatusOK, verdict)
}
