package helpers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	RefreshCookie    = "refresh_token"
	OAuthStateCookie = "oauth_state"
)

// CookieManager sets the HttpOnly cookies used by the auth endpoints.
type CookieManager struct {
	Domain string
	Secure bool
	Now    func() time.Time
}

func NewCookieManager(domain string, secure bool) *CookieManager {
	return &CookieManager{Domain: domain, Secure: secure, Now: time.Now}
}

func (m *CookieManager) SetRefresh(c *gin.Context, refresh string, exp time.Time) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(RefreshCookie, refresh, m.maxAgeFrom(exp), "/", m.Domain, m.Secure, true)
}

func (m *CookieManager) ClearRefresh(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(RefreshCookie, "", -1, "/", m.Domain, m.Secure, true)
}

// SetOAuthState stores the anti-CSRF state for an OAuth round trip.
func (m *CookieManager) SetOAuthState(c *gin.Context, state string, ttl time.Duration) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(OAuthStateCookie, state, int(ttl.Seconds()), "/", m.Domain, m.Secure, true)
}

// TakeOAuthState returns the stored state and expires the cookie.
func (m *CookieManager) TakeOAuthState(c *gin.Context) string {
	v, err := c.Cookie(OAuthStateCookie)
	if err != nil {
		return ""
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(OAuthStateCookie, "", -1, "/", m.Domain, m.Secure, true)
	return v
}

func (m *CookieManager) maxAgeFrom(exp time.Time) int {
	now := time.Now
	if m.Now != nil {
		now = m.Now
	}
	sec := int(exp.Sub(now()).Seconds())
	if sec < 0 {
		return 0
	}
	return sec
}
