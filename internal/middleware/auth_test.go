package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attendtrack/backend/internal/auth"
)

func newAuthRouter(t *testing.T, svc *auth.JWTService) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Auth(svc, "attend_token"))
	router.GET("/whoami", func(c *gin.Context) {
		id, ok := CurrentIdentity(c)
		require.True(t, ok)
		c.JSON(http.StatusOK, gin.H{"user_id": id.UserID, "role": id.Role, "device_id": id.DeviceID})
	})
	return router
}

func TestAuthBearerToken(t *testing.T) {
	svc := auth.NewJWTService("test-secret", 24)
	router := newAuthRouter(t, svc)
	token, err := svc.Generate(uuid.New(), "jane@example.com", "employee", "laptop-01")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "laptop-01")
}

func TestAuthCookieFallback(t *testing.T) {
	svc := auth.NewJWTService("test-secret", 24)
	router := newAuthRouter(t, svc)
	token, err := svc.Generate(uuid.New(), "jane@example.com", "employee", "")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.AddCookie(&http.Cookie{Name: "attend_token", Value: token})
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthMissingToken(t *testing.T) {
	router := newAuthRouter(t, auth.NewJWTService("test-secret", 24))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/whoami", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthInvalidToken(t *testing.T) {
	router := newAuthRouter(t, auth.NewJWTService("test-secret", 24))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer bogus")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMalformedAuthorizationHeader(t *testing.T) {
	svc := auth.NewJWTService("test-secret", 24)
	router := newAuthRouter(t, svc)
	token, err := svc.Generate(uuid.New(), "jane@example.com", "employee", "")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Basic "+token)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireRole(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := auth.NewJWTService("test-secret", 24)
	router := gin.New()
	router.Use(Auth(svc, ""))
	router.GET("/admin", RequireRole("admin"), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	employeeToken, err := svc.Generate(uuid.New(), "e@example.com", "employee", "")
	require.NoError(t, err)
	adminToken, err := svc.Generate(uuid.New(), "a@example.com", "admin", "")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+employeeToken)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
