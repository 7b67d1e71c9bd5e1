package handlers

import (
	"bufio"
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/saas-auth/internal/application"
	"github.com/oksasatya/saas-auth/internal/domain/entity"
	"github.com/oksasatya/saas-auth/internal/interface/middleware"
	"github.com/oksasatya/saas-auth/pkg/response"
)

const maxAvatarBytes = 5 << 20

type UserService interface {
	Me(ctx context.Context, userID string) (*entity.User, error)
	UpdateProfile(ctx context.Context, userID string, in application.UpdateProfileInput) (*application.ProfileResult, error)
	UploadAvatar(ctx context.Context, userID string, r io.Reader, contentType string) (*entity.User, error)
	ChangePassword(ctx context.Context, userID, current, next string) error
}

type UserHandler struct {
	Svc    UserService
	Logger *logrus.Logger
}

func NewUserHandler(svc UserService, logger *logrus.Logger) *UserHandler {
	return &UserHandler{Svc: svc, Logger: logger}
}

// Me GET /api/auth/me
func (h *UserHandler) Me(c *gin.Context) {
	id, _ := middleware.IdentityFrom(c)
	u, err := h.Svc.Me(c.Request.Context(), id.UserID)
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	response.Success(c, http.StatusOK, toUserResponse(u), "profile", nil)
}

// UpdateProfile PUT /api/auth/profile
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeValidation(c, err)
		return
	}
	id, _ := middleware.IdentityFrom(c)
	res, err := h.Svc.UpdateProfile(c.Request.Context(), id.UserID, application.UpdateProfileInput{
		Name:      req.Name,
		Email:     req.Email,
		AvatarURL: req.AvatarURL,
	})
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	response.Success(c, http.StatusOK, toUserResponse(res.User), "profile updated", gin.H{"verification_sent": res.VerificationSent})
}

// UploadAvatar POST /api/auth/profile/avatar (multipart field "avatar")
func (h *UserHandler) UploadAvatar(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxAvatarBytes+1<<20)
	fh, err := c.FormFile("avatar")
	if err != nil {
		response.Error[any](c, http.StatusBadRequest, "validation failed", response.ErrorBody{
			Code:    "VALIDATION_ERROR",
			Details: map[string]string{"avatar": "is required"},
		})
		return
	}
	if fh.Size > maxAvatarBytes {
		response.Error[any](c, http.StatusBadRequest, "validation failed", response.ErrorBody{
			Code:    "VALIDATION_ERROR",
			Details: map[string]string{"avatar": "must be at most 5MB"},
		})
		return
	}
	f, err := fh.Open()
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	defer func() { _ = f.Close() }()

	// Sniff the type from content; the client-declared header is not trusted.
	br := bufio.NewReaderSize(f, 512)
	head, _ := br.Peek(512)
	contentType := http.DetectContentType(head)

	id, _ := middleware.IdentityFrom(c)
	u, err := h.Svc.UploadAvatar(c.Request.Context(), id.UserID, br, contentType)
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	response.Success(c, http.StatusOK, toUserResponse(u), "avatar updated", nil)
}

// ChangePassword POST /api/auth/change-password
func (h *UserHandler) ChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeValidation(c, err)
		return
	}
	id, _ := middleware.IdentityFrom(c)
	if err := h.Svc.ChangePassword(c.Request.Context(), id.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		writeError(c, h.Logger, err)
		return
	}
	response.Success[any](c, http.StatusOK, nil, "password changed", nil)
}
