package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/saas-auth/internal/application"
	"github.com/oksasatya/saas-auth/internal/domain/entity"
	"github.com/oksasatya/saas-auth/pkg/helpers"
	"github.com/oksasatya/saas-auth/pkg/response"
)

const identityKey = "auth.identity"

// Identity is the authenticated caller of a request.
type Identity struct {
	UserID    string
	Email     string
	Role      entity.Role
	SessionID string
}

func SetIdentity(c *gin.Context, id Identity) {
	c.Set(identityKey, id)
}

// IdentityFrom returns the caller set by Auth, if any.
func IdentityFrom(c *gin.Context) (Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return Identity{}, false
	}
	id, ok := v.(Identity)
	return id, ok
}

type Authenticator interface {
	Authenticate(ctx context.Context, sessionToken string) (*entity.User, *helpers.Claims, error)
}

func bearerToken(c *gin.Context) string {
	h := strings.TrimSpace(c.GetHeader("Authorization"))
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

// Auth requires an `Authorization: Bearer <token>` header naming the caller's active session.
func Auth(authn Authenticator, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			response.Error[any](c, http.StatusUnauthorized, "authentication required", response.ErrorBody{Code: "AUTHENTICATION_REQUIRED"})
			c.Abort()
			return
		}
		u, claims, err := authn.Authenticate(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, application.ErrInvalidCredentials) {
				response.Error[any](c, http.StatusUnauthorized, "invalid or expired session", response.ErrorBody{Code: "INVALID_TOKEN"})
			} else {
				if logger != nil {
					logger.WithError(err).Error("authenticate session failed")
				}
				response.Error[any](c, http.StatusInternalServerError, "internal server error", response.ErrorBody{Code: "INTERNAL_ERROR"})
			}
			c.Abort()
			return
		}
		SetIdentity(c, Identity{UserID: u.ID, Email: u.Email, Role: u.Role, SessionID: claims.SessionID})
		c.Next()
	}
}
