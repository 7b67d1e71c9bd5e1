package modules

import (
	"github.com/gin-gonic/gin"

	handlers "github.com/oksasatya/saas-auth/internal/interface/http"
)

// UserModule serves the signed-in user's own account.
// Protected: GET /api/auth/me, PUT /api/auth/profile, POST /api/auth/profile/avatar,
// POST /api/auth/change-password
type UserModule struct {
	Deps
	Handler *handlers.UserHandler
}

func NewUserModule(d Deps, h *handlers.UserHandler) *UserModule {
	return &UserModule{Deps: d, Handler: h}
}

func (m *UserModule) Register(rg *gin.RouterGroup) {
	auth := m.protected(rg, 120)
	auth.GET("/auth/me", m.Handler.Me)
	auth.PUT("/auth/profile", m.Handler.UpdateProfile)

	strict := m.protected(rg, 5)
	strict.POST("/auth/profile/avatar", m.Handler.UploadAvatar)
	strict.POST("/auth/change-password", m.Handler.ChangePassword)
}
