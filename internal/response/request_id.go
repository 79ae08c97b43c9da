package response

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ContextKeyRequestID is the Gin context key the envelope metadata reads.
const ContextKeyRequestID = "request_id"

// RequestIDMiddleware tags every request with an id for log correlation. A
// client-supplied X-Request-ID is kept so browser-side traces line up with
// the server logs; otherwise one is minted. The id is echoed back in the
// response header either way.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		c.Set(ContextKeyRequestID, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}
