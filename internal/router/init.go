package router

import (
	"github.com/oksasatya/saas-auth/internal/container"
	handlers "github.com/oksasatya/saas-auth/internal/interface/http"
	"github.com/oksasatya/saas-auth/internal/router/modules"
)

// InitModules builds the handlers from c and registers every module with r.
// Call once during startup, before RegisterAll.
func InitModules(r *Registry, c *container.Container) {
	svc := c.Service
	d := modules.Deps{Redis: c.Redis, Authn: svc, Logger: c.Logger}

	r.Add(modules.NewAuthModule(d, handlers.NewAuthHandler(svc, c.Logger, c.Cookies)))
	r.Add(modules.NewUserModule(d, handlers.NewUserHandler(svc, c.Logger)))
	r.Add(modules.NewTwoFactorModule(d, handlers.NewTwoFactorHandler(svc, c.Logger)))
	r.Add(modules.NewOAuthModule(d, handlers.NewOAuthHandler(svc, c.Logger, c.Cookies, c.Config.FrontendURL)))
	r.Add(modules.NewAdminModule(d, handlers.NewAdminHandler(svc, c.Logger)))
	if c.Config.DebugMetricsEnabled {
		r.Add(modules.NewDebugModule(d))
	}
}
