// Package requestid tags every request with an identifier that is echoed in
// the response and picked up by the access log.
package requestid

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Header carries the request id in both directions.
const Header = "X-Request-ID"

const contextKey = "request_id"

const maxInboundLength = 128

// Middleware reuses a sane inbound X-Request-ID or mints a UUID.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader(Header)
		if reqID == "" || len(reqID) > maxInboundLength {
			reqID = uuid.NewString()
		}

		c.Set(contextKey, reqID)
		c.Writer.Header().Set(Header, reqID)

		c.Next()
	}
}

// Value returns the request ID stored in the Gin context.
func Value(c *gin.Context) string {
	if v, exists := c.Get(contextKey); exists {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}
