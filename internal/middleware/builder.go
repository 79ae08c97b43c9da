package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/pixellab-dev/invigilo/internal/response"
)

// RequireBuilderKey guards the exam-builder surface with a shared API key
// from the Authorization header (Bearer) or the X-API-Key header. The
// comparison is constant-time. An unset key locks the surface entirely.
func RequireBuilderKey(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey == "" {
			response.AbortFail(c, http.StatusForbidden, response.ErrForbidden)
			return
		}

		presented := c.GetHeader("X-API-Key")
		if presented == "" {
			authHeader := c.GetHeader("Authorization")
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
				presented = parts[1]
			}
		}
		if presented == "" {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		if subtle.ConstantTimeCompare([]byte(presented), []byte(apiKey)) != 1 {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
			return
		}

		c.Next()
	}
}
