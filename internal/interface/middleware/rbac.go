package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/oksasatya/saas-auth/internal/domain/entity"
	"github.com/oksasatya/saas-auth/pkg/response"
)

// RequireRole admits callers whose role is at least min.
func RequireRole(min entity.Role) gin.HandlerFunc {
	return guard(min.String(), func(r entity.Role) bool { return r.AtLeast(min) })
}

// RequirePermission admits callers whose role grants p.
func RequirePermission(p entity.Permission) gin.HandlerFunc {
	return guard(string(p), func(r entity.Role) bool { return r.Can(p) })
}

func guard(required string, allowed func(entity.Role) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := IdentityFrom(c)
		if !ok {
			response.Error[any](c, http.StatusUnauthorized, "authentication required", response.ErrorBody{Code: "AUTHENTICATION_REQUIRED"})
			c.Abort()
			return
		}
		if !allowed(id.Role) {
			response.Error[any](c, http.StatusForbidden, "insufficient permissions", response.ErrorBody{
				Code:    "INSUFFICIENT_PERMISSIONS",
				Details: map[string]string{"required": required, "current": id.Role.String()},
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
