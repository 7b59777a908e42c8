package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/modelgate/modelgate-go/internal/accounts"
	"github.com/modelgate/modelgate-go/internal/config"
	"github.com/modelgate/modelgate-go/internal/sessions"
	"github.com/modelgate/modelgate-go/internal/tokens"
	"github.com/modelgate/modelgate-go/pkg/logger"
)

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type RegisterRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Name     string `json:"name"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// AuthHandler holds dependencies
type AuthHandler struct {
	cfg         *config.Config
	accountsSvc *accounts.Service
	sessionsSvc *sessions.Service
}

func NewAuthHandler(cfg *config.Config, a *accounts.Service, s *sessions.Service) *AuthHandler {
	return &AuthHandler{cfg: cfg, accountsSvc: a, sessionsSvc: s}
}

// Register routes under /api/auth. Handlers that need a valid access token
// take the supplied middleware.
func (h *AuthHandler) Register(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	a := rg.Group("/auth")
	a.POST("/login", h.Login)
	a.POST("/register", h.RegisterAccount)
	a.POST("/refresh", h.Refresh)
	a.POST("/verify-email", h.VerifyEmail)
	a.POST("/resend-verification", h.ResendVerification)
	a.POST("/forgot-password", h.ForgotPassword)
	a.POST("/reset-password", h.ResetPassword)
	a.GET("/me", authMW, h.Me)
	a.POST("/logout", authMW, h.Logout)
}

func errBody(msg string) gin.H {
	return gin.H{"error": gin.H{"message": msg}}
}

// Login checks credentials and issues an access/refresh token pair.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errBody("email and password are required"))
		return
	}
	acct, err := h.accountsSvc.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, accounts.ErrBadCredential):
			c.JSON(http.StatusUnauthorized, errBody("authentication failed"))
		case errors.Is(err, accounts.ErrNotVerified):
			c.JSON(http.StatusForbidden, errBody("Please verify your email address before logging in."))
		default:
			logger.Errorf("login: authenticate error: %v", err)
			c.JSON(http.StatusInternalServerError, errBody("internal error"))
		}
		return
	}
	h.issueTokens(c, acct)
}

// RegisterAccount creates a new account and hands back the verification
// token under dev_verification_token, which a real backend would email.
func (h *AuthHandler) RegisterAccount(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "Email and password are required."})
		return
	}
	acct, verifyTok, err := h.accountsSvc.Register(c.Request.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		switch {
		case errors.Is(err, accounts.ErrDuplicateEmail):
			c.JSON(http.StatusConflict, errBody("account already exists"))
		case errors.Is(err, accounts.ErrWeakPassword):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "Password must be at least 8 characters."})
		case errors.Is(err, accounts.ErrInvalidEmail):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "Invalid email address."})
		default:
			logger.Errorf("register: %v", err)
			c.JSON(http.StatusInternalServerError, errBody("internal error"))
		}
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":                     acct.ID,
		"email":                  acct.Email,
		"name":                   acct.Name,
		"email_verified":         acct.EmailVerified,
		"created_at":             acct.CreatedAt,
		"dev_verification_token": verifyTok,
	})
}

// Refresh exchanges a valid refresh token for a fresh pair. The old refresh
// token is invalidated in the same step.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnauthorized, errBody("refresh token required"))
		return
	}
	sess, err := h.sessionsSvc.Rotate(c.Request.Context(), req.RefreshToken)
	if err != nil {
		logger.Errorf("refresh: rotate error: %v", err)
		c.JSON(http.StatusInternalServerError, errBody("internal error"))
		return
	}
	if sess == nil {
		c.JSON(http.StatusUnauthorized, errBody("invalid refresh token"))
		return
	}
	access, err := tokens.MintAccessToken(h.cfg.Stub.JWTSecret, sess.AccountID, sess.Email, h.cfg.Stub.AccessTTL)
	if err != nil {
		logger.Errorf("refresh: mint error: %v", err)
		c.JSON(http.StatusInternalServerError, errBody("internal error"))
		return
	}
	c.JSON(http.StatusOK, TokenResponse{AccessToken: access, RefreshToken: sess.RefreshToken})
}

// Me returns the profile of the authenticated account.
func (h *AuthHandler) Me(c *gin.Context) {
	claims := claimsFrom(c)
	sub, _ := claims["sub"].(string)
	acct, err := h.accountsSvc.GetByID(c.Request.Context(), sub)
	if err != nil || acct == nil {
		c.JSON(http.StatusNotFound, errBody("account not found"))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":             acct.ID,
		"email":          acct.Email,
		"name":           acct.Name,
		"email_verified": acct.EmailVerified,
		"created_at":     acct.CreatedAt,
	})
}

// Logout deletes the refresh session and blacklists the presented access
// token for the rest of its lifetime.
func (h *AuthHandler) Logout(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err == nil && req.RefreshToken != "" {
		if err := h.sessionsSvc.DeleteRefresh(c.Request.Context(), req.RefreshToken); err != nil {
			logger.Warnf("logout: delete session: %v", err)
		}
	}
	if raw, ok := c.Get("accessToken"); ok {
		if tok, ok2 := raw.(string); ok2 {
			if err := sessions.BlacklistAccessToken(c.Request.Context(), tok, h.cfg.Stub.AccessTTL); err != nil {
				logger.Warnf("logout: blacklist: %v", err)
			}
		}
	}
	c.Status(http.StatusNoContent)
}

// VerifyEmail consumes a verification token.
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	var req struct {
		Token string `json:"token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Token is required."})
		return
	}
	if err := h.accountsSvc.VerifyEmail(c.Request.Context(), req.Token); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid or expired token."})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "email verified"})
}

// ResendVerification issues a new verification token. Always 200 so callers
// cannot probe which addresses exist.
func (h *AuthHandler) ResendVerification(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Email is required."})
		return
	}
	tok, err := h.accountsSvc.ResendVerification(c.Request.Context(), req.Email)
	if err != nil {
		logger.Errorf("resend-verification: %v", err)
		c.JSON(http.StatusInternalServerError, errBody("internal error"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "verification email sent", "dev_verification_token": tok})
}

// ForgotPassword starts the reset flow. Always 200, same reasoning as above.
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Email is required."})
		return
	}
	tok, err := h.accountsSvc.StartPasswordReset(c.Request.Context(), req.Email)
	if err != nil {
		logger.Errorf("forgot-password: %v", err)
		c.JSON(http.StatusInternalServerError, errBody("internal error"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "reset email sent", "dev_reset_token": tok})
}

// ResetPassword completes the reset flow.
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req struct {
		Token    string `json:"token" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Token and password are required."})
		return
	}
	if err := h.accountsSvc.CompletePasswordReset(c.Request.Context(), req.Token, req.Password); err != nil {
		if errors.Is(err, accounts.ErrWeakPassword) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "Password must be at least 8 characters."})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid or expired token."})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "password updated"})
}

// issueTokens mints the token pair for a freshly authenticated account and
// writes the login response.
func (h *AuthHandler) issueTokens(c *gin.Context, acct *accounts.Account) {
	refresh, err := h.sessionsSvc.CreateSession(c.Request.Context(), acct.ID, acct.Email)
	if err != nil {
		logger.Errorf("login: create session: %v", err)
		c.JSON(http.StatusInternalServerError, errBody("internal error"))
		return
	}
	access, err := tokens.MintAccessToken(h.cfg.Stub.JWTSecret, acct.ID, acct.Email, h.cfg.Stub.AccessTTL)
	if err != nil {
		logger.Errorf("login: mint access token: %v", err)
		c.JSON(http.StatusInternalServerError, errBody("internal error"))
		return
	}
	c.JSON(http.StatusOK, TokenResponse{AccessToken: access, RefreshToken: refresh})
}

func claimsFrom(c *gin.Context) map[string]interface{} {
	if v, ok := c.Get("claims"); ok {
		if cm, ok2 := v.(map[string]interface{}); ok2 {
			return cm
		}
	}
	return map[string]interface{}{}
}
