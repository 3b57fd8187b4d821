package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

const responseMetaKey = "response_meta"

// WithResponseMeta gives handlers a per-request meta map for the response
// envelope and stamps the processing time once the handler returns.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		meta := map[string]interface{}{}
		c.Set(responseMetaKey, meta)
		c.Next()
		if _, exists := meta["processing_time_ms"]; !exists {
			meta["processing_time_ms"] = time.Since(start).Milliseconds()
		}
	}
}

// SetMeta stores a value in the response meta map.
func SetMeta(c *gin.Context, key string, value interface{}) {
	ensureMeta(c)[key] = value
}

// SetCacheHit records whether the response was served from cache.
func SetCacheHit(c *gin.Context, hit bool) {
	SetMeta(c, "cache_hit", hit)
}

// ExtractMeta returns the meta map, or nil when none was initialised.
func ExtractMeta(c *gin.Context) map[string]interface{} {
	if c == nil {
		return nil
	}
	if meta, exists := c.Get(responseMetaKey); exists {
		if typed, ok := meta.(map[string]interface{}); ok {
			return typed
		}
	}
	return nil
}

func ensureMeta(c *gin.Context) map[string]interface{} {
	if meta := ExtractMeta(c); meta != nil {
		return meta
	}
	meta := map[string]interface{}{}
	if c != nil {
		c.Set(responseMetaKey, meta)
	}
	return meta
}
