package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

// HTTPObserver receives one observation per request.
type HTTPObserver interface {
	ObserveHTTPRequest(method, path string, status int, duration time.Duration)
}

// Metrics records request latency labelled by route template. Requests that
// match no route share one label to keep series cardinality bounded.
func Metrics(observer HTTPObserver) gin.HandlerFunc {
	return func(c *gin.Context) {
		if observer == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		observer.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
