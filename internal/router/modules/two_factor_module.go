package modules

import (
	"github.com/gin-gonic/gin"

	handlers "github.com/oksasatya/saas-auth/internal/interface/http"
)

type TwoFactorModule struct {
	Deps
	Handler *handlers.TwoFactorHandler
}

func NewTwoFactorModule(d Deps, h *handlers.TwoFactorHandler) *TwoFactorModule {
	return &TwoFactorModule{Deps: d, Handler: h}
}

func (m *TwoFactorModule) Register(rg *gin.RouterGroup) {
	// every call here can test a code
	auth := m.protected(rg, 10)
	auth.POST("/auth/2fa/setup", m.Handler.Setup)
	auth.POST("/auth/2fa/confirm", m.Handler.Confirm)
	auth.POST("/auth/2fa/disable", m.Handler.Disable)
	auth.POST("/auth/2fa/backup-codes", m.Handler.BackupCodes)
}
