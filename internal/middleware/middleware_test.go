package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"brokerage_system/internal/db/dbtest"
	"brokerage_system/internal/domain"
	"brokerage_system/internal/metrics"
	"brokerage_system/internal/middleware"
	"brokerage_system/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func router(t *testing.T, m *metrics.Metrics, roles ...string) (*gin.Engine, map[string]uint) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	gdb := dbtest.Open(t)
	ids := map[string]uint{}
	for _, role := range []string{domain.RoleCustomer, domain.RoleBroker, domain.RoleAdmin} {
		u := &domain.User{Username: role, Email: role + "@example.com", Password: "x", Role: role}
		require.NoError(t, gdb.Create(u).Error)
		ids[role] = u.ID
	}
	r := gin.New()
	r.Use(middleware.RequestMetricsMiddleware(m))
	g := r.Group("/", middleware.JWTAuthMiddleware(secret), middleware.LoadActorMiddleware(gdb), middleware.RequireRole(roles...))
	g.GET("/whoami", func(c *gin.Context) {
		actor, _ := middleware.ActorFrom(c)
		c.JSON(http.StatusOK, gin.H{"user_id": actor.UserID, "role": actor.Role})
	})
	return r, ids
}

func get(t *testing.T, r http.Handler, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func token(t *testing.T, userID uint) string {
	t.Helper()
	tok, err := utils.GenerateJWT(userID, secret)
	require.NoError(t, err)
	return tok
}

func TestAuthChain(t *testing.T) {
	m := metrics.New()
	r, ids := router(t, m, domain.RoleBroker, domain.RoleAdmin)

	assert.Equal(t, http.StatusUnauthorized, get(t, r, "").Code)
	assert.Equal(t, http.StatusUnauthorized, get(t, r, "garbage").Code)
	assert.Equal(t, http.StatusUnauthorized, get(t, r, token(t, 0)).Code, "token without a subject")
	assert.Equal(t, http.StatusUnauthorized, get(t, r, token(t, 4040)).Code, "unknown user")
	assert.Equal(t, http.StatusForbidden, get(t, r, token(t, ids[domain.RoleCustomer])).Code)
	assert.Equal(t, http.StatusOK, get(t, r, token(t, ids[domain.RoleBroker])).Code)

	w := get(t, r, token(t, ids[domain.RoleAdmin]))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"role":"admin"`)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/whoami", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/whoami", "403")))
}

func TestAdminOnly(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/x", func(c *gin.Context) {
		c.Set(middleware.ActorKey, domain.Actor{UserID: 1, Role: domain.RoleBroker})
	}, middleware.AdminOnlyMiddleware(), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)
}
