package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/saas-auth/internal/application"
	"github.com/oksasatya/saas-auth/internal/interface/middleware"
	"github.com/oksasatya/saas-auth/pkg/response"
)

type TwoFactorService interface {
	SetupTwoFactor(ctx context.Context, userID string) (*application.TwoFactorSetup, error)
	ConfirmTwoFactor(ctx context.Context, userID, code string) ([]string, error)
	DisableTwoFactor(ctx context.Context, userID string, proof application.TwoFactorProof) error
	RegenerateBackupCodes(ctx context.Context, userID, code string) ([]string, error)
}

type TwoFactorHandler struct {
	Svc    TwoFactorService
	Logger *logrus.Logger
}

func NewTwoFactorHandler(svc TwoFactorService, logger *logrus.Logger) *TwoFactorHandler {
	return &TwoFactorHandler{Svc: svc, Logger: logger}
}

// Setup POST /api/auth/2fa/setup
func (h *TwoFactorHandler) Setup(c *gin.Context) {
	id, _ := middleware.IdentityFrom(c)
	setup, err := h.Svc.SetupTwoFactor(c.Request.Context(), id.UserID)
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{
		"secret":  setup.Secret,
		"uri":     setup.URI,
		"qr_code": setup.QRCode,
	}, "scan the QR code and confirm with a code from your app", nil)
}

// Confirm POST /api/auth/2fa/confirm. The backup codes are shown once.
func (h *TwoFactorHandler) Confirm(c *gin.Context) {
	var req codeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeValidation(c, err)
		return
	}
	id, _ := middleware.IdentityFrom(c)
	codes, err := h.Svc.ConfirmTwoFactor(c.Request.Context(), id.UserID, req.Code)
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"backup_codes": codes}, "two-factor authentication enabled", nil)
}

// Disable POST /api/auth/2fa/disable
func (h *TwoFactorHandler) Disable(c *gin.Context) {
	var req disableTwoFactorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeValidation(c, err)
		return
	}
	id, _ := middleware.IdentityFrom(c)
	err := h.Svc.DisableTwoFactor(c.Request.Context(), id.UserID, application.TwoFactorProof{
		Password:   req.Password,
		Code:       req.Code,
		BackupCode: req.BackupCode,
	})
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	response.Success[any](c, http.StatusOK, nil, "two-factor authentication disabled", nil)
}

// BackupCodes POST /api/auth/2fa/backup-codes
func (h *TwoFactorHandler) BackupCodes(c *gin.Context) {
	var req codeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeValidation(c, err)
		return
	}
	id, _ := middleware.IdentityFrom(c)
	codes, err := h.Svc.RegenerateBackupCodes(c.Request.Context(), id.UserID, req.Code)
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"backup_codes": codes}, "backup codes regenerated", nil)
}
