package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitfeed/fitfeed/internal/config"
	"github.com/fitfeed/fitfeed/internal/middleware"
	"github.com/fitfeed/fitfeed/internal/services"
	"github.com/fitfeed/fitfeed/pkg/models"
)

func setupAuthTest(t *testing.T, issuerKey string) (*gin.Engine, *services.AuthService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	cfg := &config.Config{
		Auth: config.AuthConfig{
			Enabled:   true,
			JWTSecret: "test-secret",
			TokenTTL:  time.Hour,
			IssuerKey: issuerKey,
		},
	}
	authService := services.NewAuthService(cfg, logger, nil)
	handler := NewAuthHandler(logger, authService, &cfg.Auth)

	router := gin.New()
	router.POST("/api/v1/auth/token", handler.IssueToken)
	api := router.Group("/api/v1", middleware.Auth(authService, logger))
	api.DELETE("/auth/token", handler.RevokeToken)

	return router, authService
}

func postToken(router *gin.Engine, issuerKey, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", strings.NewReader(body))
	if issuerKey != "" {
		req.Header.Set(IssuerKeyHeader, issuerKey)
	}
	router.ServeHTTP(w, req)
	return w
}

func TestAuthHandler_IssueToken(t *testing.T) {
	router, authService := setupAuthTest(t, "issuer-secret")

	t.Run("issues a verifiable token", func(t *testing.T) {
		w := postToken(router, "issuer-secret", `{"user_id": 7, "role": "user"}`)
		require.Equal(t, http.StatusCreated, w.Code)

		var resp models.AuthResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "user", resp.Role)
		assert.True(t, resp.ExpiresAt.After(time.Now()))

		claims, err := authService.ValidateToken(resp.Token)
		require.NoError(t, err)
		assert.Equal(t, int64(7), claims.UserID)
		assert.Equal(t, "user", claims.Role)
	})

	t.Run("wrong issuer key is rejected", func(t *testing.T) {
		w := postToken(router, "not-the-key", `{"user_id": 7, "role": "user"}`)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("missing issuer key is rejected", func(t *testing.T) {
		w := postToken(router, "", `{"user_id": 7, "role": "user"}`)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("unknown role is rejected", func(t *testing.T) {
		w := postToken(router, "issuer-secret", `{"user_id": 7, "role": "superuser"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("zero user id is rejected", func(t *testing.T) {
		w := postToken(router, "issuer-secret", `{"user_id": 0, "role": "user"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestAuthHandler_IssuanceDisabledWithoutKey(t *testing.T) {
	router, _ := setupAuthTest(t, "")

	w := postToken(router, "anything", `{"user_id": 7, "role": "user"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAuthHandler_RevokeToken(t *testing.T) {
	router, authService := setupAuthTest(t, "issuer-secret")

	token, err := authService.GenerateToken(7, "user")
	require.NoError(t, err)

	t.Run("authenticated caller revokes own session", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodDelete, "/api/v1/auth/token", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNoContent, w.Code)
	})

	t.Run("unauthenticated revocation is rejected", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodDelete, "/api/v1/auth/token", nil)
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
