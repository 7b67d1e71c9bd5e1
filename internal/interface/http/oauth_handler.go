package handlers

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/saas-auth/internal/application"
	"github.com/oksasatya/saas-auth/pkg/helpers"
	"github.com/oksasatya/saas-auth/pkg/oauth"
)

const oauthStateTTL = 10 * time.Minute

type OAuthService interface {
	OAuthAuthorizationURL(p oauth.Provider, state string) (string, error)
	OAuthCallback(ctx context.Context, p oauth.Provider, code string) (*application.AuthResult, error)
}

// OAuthHandler drives the browser redirect flow. Failures land on the front-end login page with an error code.
type OAuthHandler struct {
	Svc         OAuthService
	Logger      *logrus.Logger
	Cookies     *helpers.CookieManager
	FrontendURL string
}

func NewOAuthHandler(svc OAuthService, logger *logrus.Logger, cookies *helpers.CookieManager, frontendURL string) *OAuthHandler {
	return &OAuthHandler{Svc: svc, Logger: logger, Cookies: cookies, FrontendURL: frontendURL}
}

func (h *OAuthHandler) fail(c *gin.Context, code string) {
	c.Redirect(http.StatusFound, h.FrontendURL+"/login?error="+url.QueryEscape(code))
}

func oauthErrorCode(err error) string {
	switch {
	case errors.Is(err, oauth.ErrUnknownProvider):
		return "unknown_provider"
	case errors.Is(err, oauth.ErrProviderNotConfigured):
		return "oauth_not_configured"
	case errors.Is(err, oauth.ErrExternalService):
		return "provider_error"
	}
	return "oauth_failed"
}

// Start GET /api/auth/oauth/:provider
func (h *OAuthHandler) Start(c *gin.Context) {
	p, err := oauth.ParseProvider(c.Param("provider"))
	if err != nil {
		h.fail(c, oauthErrorCode(err))
		return
	}
	state, err := oauth.GenerateState()
	if err != nil {
		h.Logger.WithError(err).Error("generate oauth state failed")
		h.fail(c, "oauth_failed")
		return
	}
	target, err := h.Svc.OAuthAuthorizationURL(p, state)
	if err != nil {
		h.fail(c, oauthErrorCode(err))
		return
	}
	h.Cookies.SetOAuthState(c, state, oauthStateTTL)
	c.Redirect(http.StatusFound, target)
}

// Callback GET /api/auth/oauth/:provider/callback
func (h *OAuthHandler) Callback(c *gin.Context) {
	p, err := oauth.ParseProvider(c.Param("provider"))
	if err != nil {
		h.fail(c, oauthErrorCode(err))
		return
	}
	expected := h.Cookies.TakeOAuthState(c)
	if e := c.Query("error"); e != "" {
		h.Logger.WithField("provider", p).WithField("error", e).Info("oauth denied by provider")
		h.fail(c, "access_denied")
		return
	}
	state := c.Query("state")
	if expected == "" || subtle.ConstantTimeCompare([]byte(expected), []byte(state)) != 1 {
		h.fail(c, "invalid_state")
		return
	}
	code := c.Query("code")
	if code == "" {
		h.fail(c, "missing_code")
		return
	}
	res, err := h.Svc.OAuthCallback(c.Request.Context(), p, code)
	if err != nil {
		h.Logger.WithError(err).WithField("provider", p).Warn("oauth callback failed")
		h.fail(c, oauthErrorCode(err))
		return
	}
	h.Cookies.SetRefresh(c, res.Tokens.RefreshToken, res.Tokens.RefreshExpiry)
	q := url.Values{}
	q.Set("token", res.Tokens.SessionToken)
	q.Set("provider", string(p))
	c.Redirect(http.StatusFound, h.FrontendURL+"/oauth-callback?"+q.Encode())
}
