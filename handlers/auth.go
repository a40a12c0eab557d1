package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"backoffice-svc/database"
	"backoffice-svc/middleware"
	"backoffice-svc/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expiresAt"`
	Admin     *database.Admin `json:"admin"`
}

type AuthHandler struct {
	admins database.AdminDirectory
	secret []byte
	ttl    time.Duration
	logger *zap.Logger
}

func NewAuthHandler(admins database.AdminDirectory, secret []byte, ttl time.Duration, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{admins: admins, secret: secret, ttl: ttl, logger: logger}
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	admin, err := h.admins.FindAdmin(ctx, strings.TrimSpace(req.Email))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
			return
		}
		traceID := middleware.GetTraceID(ctx)
		h.logger.Error("Database error", zap.String("trace_id", traceID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(req.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	token, err := middleware.IssueToken(h.secret, admin.ID, admin.Role, h.ttl)
	if err != nil {
		traceID := middleware.GetTraceID(ctx)
		h.logger.Error("Failed to generate token", zap.String("trace_id", traceID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	traceID := middleware.GetTraceID(ctx)
	h.logger.Info("Admin logged in", zap.String("trace_id", traceID), zap.String("admin_id", admin.ID))
	c.JSON(http.StatusOK, LoginResponse{
		Token:     token,
		ExpiresAt: time.Now().Add(h.ttl).UTC(),
		Admin:     admin,
	})
}
