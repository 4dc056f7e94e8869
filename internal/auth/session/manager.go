package session

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/referly/internal/config"
	"go.uber.org/fx"
)

const DefaultCookieName = "_sid"

var Module = fx.Module("auth.session",
	fx.Provide(NewManager),
)

// Manager carries session tokens between the browser dashboard (cookie) and
// API clients such as the homeowner mobile app (bearer header).
type Manager struct {
	cookieName string
	secure     bool
	sameSite   http.SameSite
}

func NewManager(cfg config.Config) *Manager {
	sameSite := http.SameSiteLaxMode
	if cfg.AuthCookieSecure {
		sameSite = http.SameSiteStrictMode
	}
	return &Manager{
		cookieName: DefaultCookieName,
		secure:     cfg.AuthCookieSecure,
		sameSite:   sameSite,
	}
}

func (m *Manager) CookieName() string {
	return m.cookieName
}

// ReadToken prefers the session cookie and falls back to an
// "Authorization: Bearer" header.
func (m *Manager) ReadToken(c *gin.Context) (string, bool) {
	if token, err := c.Cookie(m.cookieName); err == nil {
		if token = strings.TrimSpace(token); token != "" {
			return token, true
		}
	}

	scheme, token, found := strings.Cut(c.GetHeader("Authorization"), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func (m *Manager) Set(c *gin.Context, value string, expiresAt time.Time) {
	m.write(c, value, max(int(time.Until(expiresAt).Seconds()), 0))
}

func (m *Manager) Clear(c *gin.Context) {
	m.write(c, "", -1)
}

func (m *Manager) write(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(m.sameSite)
	c.SetCookie(m.cookieName, value, maxAge, "/", "", m.secure, true)
}
