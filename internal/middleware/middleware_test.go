package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/achievement-api/internal/models"
	"github.com/noah-isme/achievement-api/internal/service"
	"github.com/noah-isme/achievement-api/pkg/config"
)

type auditStub struct {
	logs []*models.AuditLog
}

func (a *auditStub) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

func newRouter(auth *service.AuthService, handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	chain := append([]gin.HandlerFunc{JWT(auth)}, handlers...)
	chain = append(chain, func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/protected", chain...)
	return r
}

func issue(t *testing.T, auth *service.AuthService, role models.UserRole) string {
	t.Helper()
	token, err := auth.IssueToken(models.JWTClaims{UserID: "user-1", Role: role}, time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}

func serve(r *gin.Engine, authorization string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected?studentId=stu-1", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestJWTRequiresBearerToken(t *testing.T) {
	auth := service.NewAuthService(config.JWTConfig{Secret: "secret"})
	r := newRouter(auth)

	assert.Equal(t, http.StatusUnauthorized, serve(r, "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, "Basic abc").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, "Bearer not-a-token").Code)
	assert.Equal(t, http.StatusOK, serve(r, issue(t, auth, models.RoleStudent)).Code)
}

func TestRequireRoles(t *testing.T) {
	auth := service.NewAuthService(config.JWTConfig{Secret: "secret"})
	r := newRouter(auth, RequireRoles(models.RoleFaculty, models.RoleAdmin))

	assert.Equal(t, http.StatusForbidden, serve(r, issue(t, auth, models.RoleStudent)).Code)
	assert.Equal(t, http.StatusOK, serve(r, issue(t, auth, models.RoleFaculty)).Code)
	assert.Equal(t, http.StatusOK, serve(r, issue(t, auth, models.RoleAdmin)).Code)
}

func TestAuditRecordsSuccessfulReadsOnly(t *testing.T) {
	auth := service.NewAuthService(config.JWTConfig{Secret: "secret"})
	audit := &auditStub{}
	r := newRouter(auth, Audit(audit, nil, models.AuditActionTrailRead, "audit_trail"))

	require.Equal(t, http.StatusOK, serve(r, issue(t, auth, models.RoleFaculty)).Code)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionTrailRead, audit.logs[0].Action)
	require.NotNil(t, audit.logs[0].UserID)
	assert.Equal(t, "user-1", *audit.logs[0].UserID)
	assert.Contains(t, string(audit.logs[0].NewValues), "studentId=stu-1")

	serve(r, "")
	assert.Len(t, audit.logs, 1)
}

func TestMetricsObservesRoutesExceptSkipped(t *testing.T) {
	metrics := service.NewMetricsService()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Metrics(metrics, "/health"))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.EqualValues(t, 2, metrics.Snapshot().RequestsTotal)
}
