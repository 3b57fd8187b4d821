package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/vikar-api/internal/middleware"
	"github.com/noah-isme/vikar-api/internal/models"
	appErrors "github.com/noah-isme/vikar-api/pkg/errors"
	"github.com/noah-isme/vikar-api/pkg/response"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	claims, ok := middleware.Claims(c)
	if !ok {
		return nil
	}
	return claims
}

// currentUser writes UNAUTHORIZED and returns false when no claims are set.
func currentUser(c *gin.Context) (*models.JWTClaims, bool) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return nil, false
	}
	return claims, true
}

func bindJSON(c *gin.Context, dest interface{}, message string) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, message))
		return false
	}
	return true
}

func paging(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.Query("page"))
	size, _ := strconv.Atoi(c.Query("page_size"))
	return page, size
}

// timeQuery parses an optional RFC 3339 query parameter.
func timeQuery(c *gin.Context, key string) (*time.Time, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, key+" must be an RFC 3339 timestamp")
	}
	return &t, nil
}

// csvQuery splits a comma-separated query parameter.
func csvQuery(c *gin.Context, key string) []string {
	raw := c.Query(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
