package middleware

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/vikar-api/internal/models"
)

// AuditWriter persists audit entries.
type AuditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// Audit records an audit entry after a successful request. resourceParam
// names the path parameter holding the affected resource id.
func Audit(writer AuditWriter, logger *zap.Logger, action, resource, resourceParam string) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if writer == nil || c.Writer.Status() >= 400 {
			return
		}

		entry := &models.AuditLog{
			Action:    action,
			Resource:  resource,
			IPAddress: c.ClientIP(),
			UserAgent: c.GetHeader("User-Agent"),
		}
		if claims, ok := Claims(c); ok {
			userID := claims.UserID
			entry.UserID = &userID
		}
		if id := c.Param(resourceParam); resourceParam != "" && id != "" {
			entry.ResourceID = &id
		}
		entry.NewValues, _ = json.Marshal(map[string]interface{}{
			"path":       c.FullPath(),
			"method":     c.Request.Method,
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
		})

		if err := writer.CreateAuditLog(c.Request.Context(), entry); err != nil {
			logger.Warn("audit write failed", zap.String("action", action), zap.Error(err))
		}
	}
}
