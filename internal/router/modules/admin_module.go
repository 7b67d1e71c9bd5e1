package modules

import (
	"github.com/gin-gonic/gin"

	"github.com/oksasatya/saas-auth/internal/domain/entity"
	handlers "github.com/oksasatya/saas-auth/internal/interface/http"
	"github.com/oksasatya/saas-auth/internal/interface/middleware"
)

type AdminModule struct {
	Deps
	Handler *handlers.AdminHandler
}

func NewAdminModule(d Deps, h *handlers.AdminHandler) *AdminModule {
	return &AdminModule{Deps: d, Handler: h}
}

func (m *AdminModule) Register(rg *gin.RouterGroup) {
	auth := m.protected(rg, 120)
	manage := middleware.RequirePermission(entity.PermManageUsers)
	auth.GET("/admin/users", manage, m.Handler.List)
	auth.PUT("/admin/users/role", manage, m.Handler.UpdateRole)
	auth.GET("/admin/users/search", middleware.RequireRole(entity.RoleModerator), m.Handler.Search)
}
