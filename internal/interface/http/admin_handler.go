package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/saas-auth/internal/application"
	"github.com/oksasatya/saas-auth/internal/domain/entity"
	"github.com/oksasatya/saas-auth/internal/interface/middleware"
	"github.com/oksasatya/saas-auth/pkg/response"
)

type AdminService interface {
	ListUsers(ctx context.Context, page, perPage int) (*application.UserPage, error)
	UpdateUserRole(ctx context.Context, actorID, targetID, role string) (*entity.User, error)
	SearchUsers(ctx context.Context, q string, size int) ([]entity.UserDocument, error)
}

type AdminHandler struct {
	Svc    AdminService
	Logger *logrus.Logger
}

func NewAdminHandler(svc AdminService, logger *logrus.Logger) *AdminHandler {
	return &AdminHandler{Svc: svc, Logger: logger}
}

func queryInt(c *gin.Context, key string) int {
	n, _ := strconv.Atoi(c.Query(key))
	return n
}

// List GET /api/admin/users?page=&per_page=
func (h *AdminHandler) List(c *gin.Context) {
	page, err := h.Svc.ListUsers(c.Request.Context(), queryInt(c, "page"), queryInt(c, "per_page"))
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	users := make([]userResponse, 0, len(page.Users))
	for i := range page.Users {
		users = append(users, toUserResponse(&page.Users[i]))
	}
	response.Success(c, http.StatusOK, users, "users", gin.H{
		"page":     page.Page,
		"per_page": page.PerPage,
		"total":    page.Total,
	})
}

// UpdateRole PUT /api/admin/users/role
func (h *AdminHandler) UpdateRole(c *gin.Context) {
	var req updateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeValidation(c, err)
		return
	}
	id, _ := middleware.IdentityFrom(c)
	u, err := h.Svc.UpdateUserRole(c.Request.Context(), id.UserID, req.UserID, req.Role)
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	response.Success(c, http.StatusOK, toUserResponse(u), "role updated", nil)
}

// Search GET /api/admin/users/search?q=&size=
func (h *AdminHandler) Search(c *gin.Context) {
	docs, err := h.Svc.SearchUsers(c.Request.Context(), c.Query("q"), queryInt(c, "size"))
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	if docs == nil {
		docs = []entity.UserDocument{}
	}
	response.Success(c, http.StatusOK, docs, "search results", gin.H{"count": len(docs)})
}
