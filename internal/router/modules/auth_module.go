package modules

import (
	"time"

	"github.com/gin-gonic/gin"

	handlers "github.com/oksasatya/saas-auth/internal/interface/http"
	"github.com/oksasatya/saas-auth/internal/interface/middleware"
)

// AuthModule registers the credential flows under /auth.
type AuthModule struct {
	Deps
	Handler *handlers.AuthHandler
}

func NewAuthModule(d Deps, h *handlers.AuthHandler) *AuthModule {
	return &AuthModule{Deps: d, Handler: h}
}

func (m *AuthModule) Register(rg *gin.RouterGroup) {
	byPath := middleware.KeyByIPAndPath()

	// Public, limited per IP and route
	rg.POST("/auth/register", m.limit(5, time.Minute, byPath), m.Handler.Register)
	rg.POST("/auth/login", m.limit(10, time.Minute, byPath), m.Handler.Login)
	rg.POST("/auth/login-2fa", m.limit(10, time.Minute, byPath), m.Handler.LoginTwoFactor)
	rg.POST("/auth/verify-email", m.limit(30, time.Minute, byPath), m.Handler.VerifyEmail)
	rg.POST("/auth/resend-verification", m.limit(3, time.Minute, byPath), m.Handler.ResendVerification)
	rg.POST("/auth/forgot-password", m.limit(5, time.Minute, byPath), m.Handler.ForgotPassword)
	rg.POST("/auth/reset-password", m.limit(30, time.Minute, byPath), m.Handler.ResetPassword)
	rg.POST("/auth/refresh", m.limit(60, time.Minute, middleware.KeyByIP()), m.Handler.Refresh)

	auth := m.protected(rg, 30)
	auth.POST("/auth/logout", m.Handler.Logout)
}
