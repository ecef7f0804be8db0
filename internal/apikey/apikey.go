// Package apikey guards the gateway's verdict surface with a shared
// pre-provisioned key.
package apikey

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/fraudgate/internal/logging"
)

// Header is the request header carrying the caller's key.
const Header = "X-API-Key"

// Middleware validates the X-API-Key header against the configured secret.
//
// A missing server-side secret is a deployment fault, not a caller fault: it
// is reported as 500 on every request rather than treated as "auth disabled",
// so a gateway can never silently run open.
func Middleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			logging.L(c.Request.Context()).Error("API_KEY is not configured, rejecting request")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error":   "server_misconfigured",
				"message": "Server Configuration Error",
			})
			return
		}

		provided := c.GetHeader(Header)
		if subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Invalid or missing API key",
			})
			return
		}

		c.Next()
	}
}
