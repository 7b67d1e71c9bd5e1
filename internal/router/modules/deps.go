package modules

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/saas-auth/internal/interface/middleware"
)

// Deps are shared by every module. A nil Redis disables rate limiting.
type Deps struct {
	Redis  *redis.Client
	Authn  middleware.Authenticator
	Logger *logrus.Logger
}

func (d Deps) limit(max int, window time.Duration, key middleware.KeyFunc) gin.HandlerFunc {
	return middleware.RateLimit(d.Redis, max, window, key, nil)
}

// protected returns a group that requires a bearer session, limited per user.
func (d Deps) protected(rg *gin.RouterGroup, perMinute int) *gin.RouterGroup {
	g := rg.Group("/")
	g.Use(middleware.Auth(d.Authn, d.Logger))
	g.Use(d.limit(perMinute, time.Minute, middleware.KeyByUserID()))
	return g
}
