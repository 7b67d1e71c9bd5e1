package modules

import (
	"time"

	"github.com/gin-gonic/gin"

	handlers "github.com/oksasatya/saas-auth/internal/interface/http"
	"github.com/oksasatya/saas-auth/internal/interface/middleware"
)

// OAuthModule registers the browser redirect endpoints for Google and GitHub.
type OAuthModule struct {
	Deps
	Handler *handlers.OAuthHandler
}

func NewOAuthModule(d Deps, h *handlers.OAuthHandler) *OAuthModule {
	return &OAuthModule{Deps: d, Handler: h}
}

func (m *OAuthModule) Register(rg *gin.RouterGroup) {
	rl := m.limit(30, time.Minute, middleware.KeyByIPAndPath())
	rg.GET("/auth/oauth/:provider", rl, m.Handler.Start)
	rg.GET("/auth/oauth/:provider/callback", rl, m.Handler.Callback)
}
