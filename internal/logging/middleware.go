package logging

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/fraudgate/internal/idgen"
)

// CorrelationHeader carries the correlation identifier across services.
const CorrelationHeader = "X-Correlation-ID"

// CorrelationMiddleware attaches a correlation ID to the request context and
// echoes it on the response. Client-supplied IDs are kept so one identifier
// follows a transaction through the gateway and both decision sources.
func CorrelationMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := c.GetHeader(CorrelationHeader)
		if correlationID == "" {
			correlationID = idgen.New()
		}

		ctx := WithCorrelationID(c.Request.Context(), correlationID)
		ctx = WithLogger(ctx, logger)
		c.Request = c.Request.WithContext(ctx)

		c.Header(CorrelationHeader, correlationID)

		c.Next()
	}
}

// RequestLogger logs one line per completed request, levelled by status.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := L(c.Request.Context())

		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}
