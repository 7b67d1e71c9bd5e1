package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/saas-auth/internal/application"
	"github.com/oksasatya/saas-auth/pkg/response"
	"github.com/oksasatya/saas-auth/pkg/totp"
	"github.com/oksasatya/saas-auth/pkg/validation"
)

type errorMapping struct {
	err    error
	status int
	code   string
}

// Expected failures and the status they map to. Anything else is a 500.
var errorTable = []errorMapping{
	{application.ErrInvalidCredentials, http.StatusUnauthorized, "INVALID_CREDENTIALS"},
	{application.ErrInvalidOrExpiredToken, http.StatusBadRequest, "INVALID_OR_EXPIRED_TOKEN"},
	{application.ErrEmailTaken, http.StatusBadRequest, "EMAIL_TAKEN"},
	{application.ErrUserNotFound, http.StatusNotFound, "USER_NOT_FOUND"},
	{application.ErrAlreadyVerified, http.StatusBadRequest, "ALREADY_VERIFIED"},
	{application.ErrNoPassword, http.StatusBadRequest, "NO_PASSWORD"},
	{application.ErrTwoFactorRequired, http.StatusUnauthorized, "TWO_FACTOR_REQUIRED"},
	{application.ErrTwoFactorAlreadyEnabled, http.StatusBadRequest, "TWO_FACTOR_ALREADY_ENABLED"},
	{application.ErrTwoFactorNotEnabled, http.StatusBadRequest, "TWO_FACTOR_NOT_ENABLED"},
	{application.ErrTwoFactorNotSetUp, http.StatusBadRequest, "TWO_FACTOR_NOT_SET_UP"},
	{application.ErrInvalidTwoFactorCode, http.StatusUnauthorized, "INVALID_TWO_FACTOR_CODE"},
	{application.ErrTwoFactorProofRequired, http.StatusBadRequest, "TWO_FACTOR_PROOF_REQUIRED"},
	{application.ErrBackupCodesChanged, http.StatusConflict, "BACKUP_CODES_CHANGED"},
	{application.ErrInvalidRole, http.StatusBadRequest, "INVALID_ROLE"},
	{application.ErrOwnRole, http.StatusBadRequest, "OWN_ROLE"},
	{application.ErrUnsupportedFileType, http.StatusBadRequest, "UNSUPPORTED_FILE_TYPE"},
	{application.ErrStorageUnavailable, http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE"},
	{application.ErrSearchUnavailable, http.StatusServiceUnavailable, "SEARCH_UNAVAILABLE"},
}

// writeError answers with the mapped status, or a logged, non-descriptive 500.
func writeError(c *gin.Context, logger *logrus.Logger, err error) {
	if errors.Is(err, application.ErrPasswordTooShort) {
		response.Error[any](c, http.StatusBadRequest, "validation failed", response.ErrorBody{
			Code:    "VALIDATION_ERROR",
			Details: map[string]string{"password": "min length 8"},
		})
		return
	}
	if errors.Is(err, application.ErrPasswordTooLong) {
		response.Error[any](c, http.StatusBadRequest, "validation failed", response.ErrorBody{
			Code:    "VALIDATION_ERROR",
			Details: map[string]string{"password": "max length 72 bytes"},
		})
		return
	}
	for _, m := range errorTable {
		if errors.Is(err, m.err) {
			response.Error[any](c, m.status, m.err.Error(), response.ErrorBody{Code: m.code})
			return
		}
	}
	if errors.Is(err, totp.ErrArtifactGeneration) {
		logger.WithError(err).Error("render 2fa qr code failed")
		response.Error[any](c, http.StatusInternalServerError, "could not generate QR code", response.ErrorBody{Code: "ARTIFACT_GENERATION_FAILED"})
		return
	}
	logger.WithError(err).WithField("path", c.FullPath()).WithField("request_id", c.GetString("request_id")).Error("request failed")
	response.Error[any](c, http.StatusInternalServerError, "internal server error", response.ErrorBody{Code: "INTERNAL_ERROR"})
}

func writeValidation(c *gin.Context, err error) {
	response.Error[any](c, http.StatusBadRequest, "validation failed", response.ErrorBody{
		Code:    "VALIDATION_ERROR",
		Details: validation.ToDetails(err),
	})
}
