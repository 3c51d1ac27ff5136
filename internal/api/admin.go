package api

import (
	"errors"
	"net/http"
	"strings"

	"checkout-service/internal/auth"
	"checkout-service/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// LoginRequest carries admin credentials
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// adminLogin issues the admin session cookie
func (h *Handler) adminLogin(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	token, expires, err := h.deps.Auth.Login(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			h.logger.Warn("Admin login rejected", zap.String("username", req.Username))
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
			return
		}
		h.logger.Error("Failed to issue admin token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(auth.CookieName, token, int(auth.TokenTTL.Seconds()), "/", "", h.deps.Secure, true)
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"expires_at": expires,
	})
}

// getPaymentConfig returns the full payment configuration for the admin panel
func (h *Handler) getPaymentConfig(c *gin.Context) {
	cfg, err := h.deps.Config.Get(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to load payment config", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load payment config"})
		return
	}

	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, cfg)
}

// updatePaymentConfig switches the active gateway or its credentials
func (h *Handler) updatePaymentConfig(c *gin.Context) {
	if !strings.HasPrefix(c.ContentType(), "application/json") {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "Content-Type must be application/json"})
		return
	}

	var upd service.GatewayConfigUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	cfg, err := h.deps.Config.Update(c.Request.Context(), upd)
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.logger.Info("Payment config updated",
		zap.String("admin", c.GetString("admin")),
		zap.String("active_gateway", cfg.ActiveGateway),
		zap.Bool("is_enabled", cfg.IsEnabled))

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"config":  cfg,
	})
}
