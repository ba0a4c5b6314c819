package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/fitfeed/fitfeed/internal/config"
	"github.com/fitfeed/fitfeed/internal/middleware"
	"github.com/fitfeed/fitfeed/internal/services"
	"github.com/fitfeed/fitfeed/pkg/models"
)

// IssuerKeyHeader carries the shared issuance secret. User identity
// lives in an upstream service; this API only mints and revokes its own
// sessions.
const IssuerKeyHeader = "X-Issuer-Key"

type AuthHandler struct {
	logger *logrus.Logger
	auth   *services.AuthService
	cfg    *config.AuthConfig
}

func NewAuthHandler(logger *logrus.Logger, auth *services.AuthService, cfg *config.AuthConfig) *AuthHandler {
	return &AuthHandler{
		logger: logger,
		auth:   auth,
		cfg:    cfg,
	}
}

// IssueToken handles POST /api/v1/auth/token. Issuance requires the
// configured issuer key and stays disabled while none is set.
func (h *AuthHandler) IssueToken(c *gin.Context) {
	if h.cfg.IssuerKey == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": gin.H{
				"code":    "TOKEN_ISSUANCE_DISABLED",
				"message": "Token issuance is not configured",
			},
		})
		return
	}

	presented := c.GetHeader(IssuerKeyHeader)
	if subtle.ConstantTimeCompare([]byte(presented), []byte(h.cfg.IssuerKey)) != 1 {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": gin.H{
				"code":    "INVALID_ISSUER_KEY",
				"message": "Missing or invalid issuer key",
			},
		})
		return
	}

	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_REQUEST_BODY",
				"message": "Failed to read request body",
			},
		})
		return
	}

	var req models.TokenRequest
	if err := json.Unmarshal(body, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_REQUEST_BODY",
				"message": "Invalid request body format",
			},
		})
		return
	}

	if err := validate.Struct(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": err.Error(),
			},
		})
		return
	}

	token, err := h.auth.GenerateToken(req.UserID, req.Role)
	if err != nil {
		h.logger.WithError(err).WithField("user_id", req.UserID).Error("Failed to issue token")
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, models.AuthResponse{
		Token:     token,
		ExpiresAt: time.Now().Add(h.cfg.TokenTTL),
		Role:      req.Role,
	})
}

// RevokeToken handles DELETE /api/v1/auth/token. It ends the calling
// user's own session.
func (h *AuthHandler) RevokeToken(c *gin.Context) {
	userID, _ := middleware.GetUserFromContext(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": gin.H{
				"code":    "MISSING_AUTHORIZATION",
				"message": "Revocation requires an authenticated session",
			},
		})
		return
	}

	if err := h.auth.RevokeToken(userID); err != nil {
		h.logger.WithError(err).WithField("user_id", userID).Error("Failed to revoke token")
		writeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
