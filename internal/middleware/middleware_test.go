package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/vikar-api/internal/models"
	"github.com/noah-isme/vikar-api/internal/service"
	appErrors "github.com/noah-isme/vikar-api/pkg/errors"
)

type tokenStub map[string]*models.JWTClaims

func (s tokenStub) ValidateToken(token string) (*models.JWTClaims, error) {
	if claims, ok := s[token]; ok {
		return claims, nil
	}
	return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
}

var tokens = tokenStub{
	"company-token": {UserID: "company-1", Role: models.RoleCompany},
	"worker-token":  {UserID: "worker-1", Role: models.RoleWorker},
	"admin-token":   {UserID: "admin-1", Role: models.RoleAdmin},
}

func protectedRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	chain := append([]gin.HandlerFunc{JWT(tokens)}, handlers...)
	chain = append(chain, func(c *gin.Context) {
		claims, _ := Claims(c)
		c.JSON(http.StatusOK, gin.H{"user": claims.UserID})
	})
	r.POST("/companies/:id/relations", chain...)
	return r
}

func call(r http.Handler, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/companies/worker-9/relations", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error.Code
}

func TestJWT(t *testing.T) {
	r := protectedRouter()

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic company-token", http.StatusUnauthorized},
		{"empty bearer", "Bearer ", http.StatusUnauthorized},
		{"unknown token", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer company-token", http.StatusOK},
		{"case insensitive scheme", "bearer worker-token", http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := call(r, tc.header)
			assert.Equal(t, tc.status, rec.Code)
			if tc.status == http.StatusUnauthorized {
				assert.Equal(t, "UNAUTHORIZED", errorCode(t, rec))
			}
		})
	}
}

func TestRequireRoles(t *testing.T) {
	r := protectedRouter(RequireRoles(models.RoleCompany))

	assert.Equal(t, http.StatusOK, call(r, "Bearer company-token").Code)

	rec := call(r, "Bearer worker-token")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "FORBIDDEN", errorCode(t, rec))

	assert.Equal(t, http.StatusForbidden, call(r, "Bearer admin-token").Code)
}

func TestRequireRolesWithoutClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/", RequireRoles(models.RoleWorker), func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

type auditRecorder struct {
	entries []*models.AuditLog
	err     error
}

func (a *auditRecorder) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.entries = append(a.entries, log)
	return a.err
}

func TestAuditRecordsSuccessfulRequests(t *testing.T) {
	writer := &auditRecorder{}
	r := protectedRouter(Audit(writer, nil, "RELATION_SET", "worker_relation", "id"))

	require.Equal(t, http.StatusOK, call(r, "Bearer company-token").Code)
	require.Len(t, writer.entries, 1)
	entry := writer.entries[0]
	assert.Equal(t, "RELATION_SET", entry.Action)
	require.NotNil(t, entry.UserID)
	assert.Equal(t, "company-1", *entry.UserID)
	require.NotNil(t, entry.ResourceID)
	assert.Equal(t, "worker-9", *entry.ResourceID)
	assert.Contains(t, string(entry.NewValues), `"status":200`)
}

func TestAuditSkipsFailuresAndToleratesWriterErrors(t *testing.T) {
	writer := &auditRecorder{err: errors.New("db down")}
	r := protectedRouter(RequireRoles(models.RoleWorker), Audit(writer, nil, "RELATION_SET", "worker_relation", "id"))

	assert.Equal(t, http.StatusForbidden, call(r, "Bearer company-token").Code)
	assert.Empty(t, writer.entries)

	assert.Equal(t, http.StatusOK, call(r, "Bearer worker-token").Code)
	assert.Len(t, writer.entries, 1)
}

func TestMetricsObservesRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := service.NewMetricsService()
	r := gin.New()
	r.Use(Metrics(metrics))
	r.GET("/shifts/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for i := 0; i < 3; i++ {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/shifts/abc", nil))
	}
	assert.Equal(t, uint64(3), metrics.Snapshot().RequestsTotal)
}

func TestResponseMeta(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var meta map[string]interface{}
	r := gin.New()
	r.Use(WithResponseMeta())
	r.GET("/jobs", func(c *gin.Context) {
		SetCacheHit(c, true)
		meta = ExtractMeta(c)
		c.Status(http.StatusOK)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/jobs", nil))

	require.NotNil(t, meta)
	assert.Equal(t, true, meta["cache_hit"])
	assert.Contains(t, meta, "processing_time_ms")

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Nil(t, ExtractMeta(c))
	SetMeta(c, "k", 1)
	assert.Equal(t, 1, ExtractMeta(c)["k"])
}
