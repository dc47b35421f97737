package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"client-delivery-backend/internal/config"
	"client-delivery-backend/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
)

const testSecret = "test-secret-key-for-jwt-signing-must-be-long-enough"

func testConfig() *config.Config {
	return &config.Config{
		Supabase:     config.Supabase{JWTSecret: testSecret},
		AdminUserIDs: []string{"admin-1"},
	}
}

func signedToken(t *testing.T, claims jwt.MapClaims, secret string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString([]byte(secret))
	assert.NoError(t, err)
	return s
}

func newRouter(cfg *config.Config, handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(middleware.AuthMiddleware(cfg))
	router.GET("/test", handlers...)
	return router
}

func okHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func TestAuthMiddleware_NoToken(t *testing.T) {
	router := newRouter(testConfig(), okHandler)

	req, _ := http.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "missing authorization header")
}

func TestAuthMiddleware_InvalidToken(t *testing.T) {
	router := newRouter(testConfig(), okHandler)

	req, _ := http.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer invalid-token")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddleware_WrongSecret(t *testing.T) {
	router := newRouter(testConfig(), okHandler)

	token := signedToken(t, jwt.MapClaims{"sub": "user-123"}, "another-secret")
	req, _ := http.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "signature")
}

func TestAuthMiddleware_ExpiredToken(t *testing.T) {
	router := newRouter(testConfig(), okHandler)

	token := signedToken(t, jwt.MapClaims{
		"sub": "user-123",
		"exp": time.Now().Add(-time.Minute).Unix(),
	}, testSecret)
	req, _ := http.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "expired")
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	router := newRouter(testConfig(), func(c *gin.Context) {
		assert.Equal(t, "user-123", c.GetString(middleware.UserIDKey))
		assert.Equal(t, "owner@example.com", c.GetString(middleware.EmailKey))
		assert.False(t, c.GetBool(middleware.IsAdminKey))
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	token := signedToken(t, jwt.MapClaims{
		"sub":   "user-123",
		"email": "owner@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	}, testSecret)
	req, _ := http.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireAdmin(t *testing.T) {
	router := newRouter(testConfig(), middleware.RequireAdmin(), okHandler)

	for _, tc := range []struct {
		sub  string
		want int
	}{
		{sub: "admin-1", want: http.StatusOK},
		{sub: "user-123", want: http.StatusForbidden},
	} {
		token := signedToken(t, jwt.MapClaims{"sub": tc.sub}, testSecret)
		req, _ := http.NewRequest("GET", "/test", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, tc.want, w.Code, tc.sub)
	}
}
