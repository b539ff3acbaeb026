package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"user-auth/internal/service"
)

// AccountHandler expone el ciclo de vida de cuentas por HTTP.
type AccountHandler struct {
	logger   *zap.Logger
	accounts *service.AccountService
	now      func() time.Time
}

// NewAccountHandler crea una instancia de AccountHandler.
func NewAccountHandler(logger *zap.Logger, accounts *service.AccountService) *AccountHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccountHandler{
		logger:   logger,
		accounts: accounts,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// RequestSignup maneja POST /auth/signup/request.
func (h *AccountHandler) RequestSignup(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid signup request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	err := h.accounts.SignupRequest(c.Request.Context(), service.SignupInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		h.writeError(c, "signup request", err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "otp_sent"})
}

// VerifySignup maneja POST /auth/signup/verify.
func (h *AccountHandler) VerifySignup(c *gin.Context) {
	var req struct {
		Email string `json:"email"`
		Code  string `json:"code"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid signup verify request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	acc, err := h.accounts.SignupVerify(c.Request.Context(), req.Email, req.Code)
	if err != nil {
		h.writeError(c, "signup verify", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"account": gin.H{
		"id":       acc.ID,
		"username": acc.Username,
		"email":    acc.Email,
	}})
}

// Login maneja POST /auth/login.
func (h *AccountHandler) Login(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid login request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	session, err := h.accounts.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.writeError(c, "login", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token": session.AccessToken,
		"token_type":   session.TokenType,
		"expires_in":   session.ExpiresIn(h.now()),
	})
}

// GetProfile maneja GET /users/me.
func (h *AccountHandler) GetProfile(c *gin.Context) {
	token, _ := GetBearerToken(c)
	profile, err := h.accounts.GetProfile(c.Request.Context(), token)
	if err != nil {
		h.writeError(c, "get profile", err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// SetBio maneja PUT y POST /users/me/bio.
func (h *AccountHandler) SetBio(c *gin.Context) {
	var req struct {
		Bio *string `json:"bio"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Bio == nil {
		h.logger.Warn("invalid bio request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	token, _ := GetBearerToken(c)
	profile, err := h.accounts.SetBio(c.Request.Context(), token, *req.Bio)
	if err != nil {
		h.writeError(c, "set bio", err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// ClearBio maneja DELETE /users/me/bio.
func (h *AccountHandler) ClearBio(c *gin.Context) {
	token, _ := GetBearerToken(c)
	profile, err := h.accounts.ClearBio(c.Request.Context(), token)
	if err != nil {
		h.writeError(c, "clear bio", err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// writeError traduce los errores del servicio a status HTTP.
func (h *AccountHandler) writeError(c *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "account already exists"})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "pending signup not found"})
	case errors.Is(err, service.ErrOTPExpired), errors.Is(err, service.ErrOTPMismatch):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
	case errors.Is(err, service.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
	case errors.Is(err, service.ErrDispatchFailed):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "email delivery unavailable"})
	case errors.Is(err, service.ErrTransient):
		h.logger.Warn(op+" failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service temporarily unavailable"})
	default:
		h.logger.Error(op+" failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
