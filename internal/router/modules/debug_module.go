package modules

import (
	"expvar"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/oksasatya/saas-auth/internal/interface/middleware"
)

type DebugModule struct {
	Deps
}

func NewDebugModule(d Deps) *DebugModule { return &DebugModule{Deps: d} }

func (m *DebugModule) Register(rg *gin.RouterGroup) {
	// expvar counters, rate-limited per IP; private networks (scrapers, sidecars) bypass
	rl := middleware.RateLimit(m.Redis, 120, time.Minute, middleware.KeyByIP(), middleware.AllowPrivateIP())
	rg.GET("/debug/vars", rl, gin.WrapH(expvar.Handler()))
}
