package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/saas-auth/internal/application"
	"github.com/oksasatya/saas-auth/internal/domain/entity"
	"github.com/oksasatya/saas-auth/internal/interface/middleware"
	"github.com/oksasatya/saas-auth/pkg/helpers"
	"github.com/oksasatya/saas-auth/pkg/response"
)

type AuthService interface {
	Register(ctx context.Context, in application.RegisterInput) (*application.AuthResult, error)
	Login(ctx context.Context, email, password string) (*application.LoginResult, error)
	LoginTwoFactor(ctx context.Context, in application.TwoFactorLoginInput) (*application.LoginResult, error)
	VerifyEmail(ctx context.Context, token string) (*entity.User, error)
	ResendVerification(ctx context.Context, email string) (bool, error)
	ForgotPassword(ctx context.Context, email string) string
	ResetPassword(ctx context.Context, token, password string) error
	Refresh(ctx context.Context, refreshToken string) (*entity.User, application.TokenPair, error)
	Logout(ctx context.Context, userID string) error
}

type AuthHandler struct {
	Svc     AuthService
	Logger  *logrus.Logger
	Cookies *helpers.CookieManager
}

func NewAuthHandler(svc AuthService, logger *logrus.Logger, cookies *helpers.CookieManager) *AuthHandler {
	return &AuthHandler{Svc: svc, Logger: logger, Cookies: cookies}
}

// startSession sets the refresh cookie; the session token goes in the body for the Authorization header.
func (h *AuthHandler) startSession(c *gin.Context, u *entity.User, pair application.TokenPair) sessionResponse {
	h.Cookies.SetRefresh(c, pair.RefreshToken, pair.RefreshExpiry)
	return sessionResponse{User: toUserResponse(u), Token: pair.SessionToken, ExpiresAt: pair.SessionExpiry}
}

// Register POST /api/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeValidation(c, err)
		return
	}
	res, err := h.Svc.Register(c.Request.Context(), application.RegisterInput{Email: req.Email, Password: req.Password, Name: req.Name})
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	msg := "registration successful, check your email to verify your account"
	if !res.EmailSent {
		msg = "registration successful, but the verification email could not be sent"
	}
	meta := gin.H{"email_sent": res.EmailSent, "session_issued": res.SessionIssued}
	if !res.SessionIssued {
		response.Success(c, http.StatusCreated, gin.H{"user": toUserResponse(res.User)}, msg+"; please sign in", meta)
		return
	}
	response.Success(c, http.StatusCreated, h.startSession(c, res.User, res.Tokens), msg, meta)
}

// Login POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeValidation(c, err)
		return
	}
	res, err := h.Svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	if res.RequiresTwoFactor {
		response.Success(c, http.StatusOK, gin.H{"requires_two_factor": true}, "two-factor authentication required", nil)
		return
	}
	response.Success(c, http.StatusOK, h.startSession(c, res.User, *res.Tokens), "login successful", nil)
}

// LoginTwoFactor POST /api/auth/login-2fa
func (h *AuthHandler) LoginTwoFactor(c *gin.Context) {
	var req loginTwoFactorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeValidation(c, err)
		return
	}
	res, err := h.Svc.LoginTwoFactor(c.Request.Context(), application.TwoFactorLoginInput{
		Email:      req.Email,
		Password:   req.Password,
		Code:       req.Code,
		BackupCode: req.BackupCode,
	})
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	meta := gin.H{"backup_codes_low": res.BackupCodesLow}
	if req.BackupCode != "" {
		meta["backup_codes_remaining"] = res.BackupCodesRemaining
	}
	response.Success(c, http.StatusOK, h.startSession(c, res.User, *res.Tokens), "login successful", meta)
}

// VerifyEmail POST /api/auth/verify-email
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeValidation(c, err)
		return
	}
	u, err := h.Svc.VerifyEmail(c.Request.Context(), req.Token)
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	response.Success(c, http.StatusOK, toUserResponse(u), "email verified", nil)
}

// ResendVerification POST /api/auth/resend-verification
func (h *AuthHandler) ResendVerification(c *gin.Context) {
	var req emailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeValidation(c, err)
		return
	}
	sent, err := h.Svc.ResendVerification(c.Request.Context(), req.Email)
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	msg := "verification email sent"
	if !sent {
		msg = "verification email could not be sent, try again later"
	}
	response.Success(c, http.StatusOK, gin.H{"email_sent": sent}, msg, nil)
}

// ForgotPassword POST /api/auth/forgot-password
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req emailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeValidation(c, err)
		return
	}
	msg := h.Svc.ForgotPassword(c.Request.Context(), req.Email)
	response.Success[any](c, http.StatusOK, nil, msg, nil)
}

// ResetPassword POST /api/auth/reset-password
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeValidation(c, err)
		return
	}
	if err := h.Svc.ResetPassword(c.Request.Context(), req.Token, req.Password); err != nil {
		writeError(c, h.Logger, err)
		return
	}
	h.Cookies.ClearRefresh(c)
	response.Success[any](c, http.StatusOK, nil, "password has been reset", nil)
}

// Refresh POST /api/auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	refresh, err := c.Cookie(helpers.RefreshCookie)
	if err != nil || refresh == "" {
		response.Error[any](c, http.StatusUnauthorized, "missing refresh token", response.ErrorBody{Code: "AUTHENTICATION_REQUIRED"})
		return
	}
	u, pair, err := h.Svc.Refresh(c.Request.Context(), refresh)
	if err != nil {
		h.Cookies.ClearRefresh(c)
		writeError(c, h.Logger, err)
		return
	}
	response.Success(c, http.StatusOK, h.startSession(c, u, pair), "token refreshed", nil)
}

// Logout POST /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	id, _ := middleware.IdentityFrom(c)
	if err := h.Svc.Logout(c.Request.Context(), id.UserID); err != nil {
		writeError(c, h.Logger, err)
		return
	}
	h.Cookies.ClearRefresh(c)
	response.Success(c, http.StatusOK, gin.H{"logged_out": true}, "logged out", nil)
}
