package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/vikar-api/internal/models"
	appErrors "github.com/noah-isme/vikar-api/pkg/errors"
	"github.com/noah-isme/vikar-api/pkg/response"
)

// RequireRoles admits only requests whose token carries one of roles.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}

	return func(c *gin.Context) {
		claims, ok := Claims(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if _, permitted := allowed[claims.Role]; !permitted {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "role not permitted for this resource"))
			c.Abort()
			return
		}
		c.Next()
	}
}
