package apikey

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func doRequest(secret, provided string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware(secret))
	r.GET("/protected", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if provided != "" {
		req.Header.Set(Header, provided)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestMiddleware(t *testing.T) {
	tests := []struct {
		name     string
		secret   string
		provided string
		status   int
	}{
		{"valid key", "sk_test_123", "sk_test_123", http.StatusOK},
		{"wrong key", "sk_test_123", "sk_wrong", http.StatusUnauthorized},
		{"missing key", "sk_test_123", "", http.StatusUnauthorized},
		{"no secret configured", "", "anything", http.StatusInternalServerError},
		{"no secret and no key", "", "", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(tt.secret, tt.provided)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestMisconfigurationMessage(t *testing.T) {
	w := doRequest("", "anything")
	assert.Contains(t, w.Body.String(), "Server Configuration Error")
}
