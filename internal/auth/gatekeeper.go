package auth

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/time-ledger/internal/config"
	"github.com/yourusername/time-ledger/internal/session"
)

// ContextPayloadKey is the gin context key holding the verified session
// payload for downstream handlers.
const ContextPayloadKey = "auth.session"

// PayloadFromContext returns the verified session payload set by the
// gatekeeper.
func PayloadFromContext(c *gin.Context) (*session.Payload, bool) {
	v, ok := c.Get(ContextPayloadKey)
	if !ok {
		return nil, false
	}
	p, ok := v.(*session.Payload)
	return p, ok
}

// Gatekeeper authorizes requests to the configured protected path prefixes
// from the sealed session cookie alone: it trusts the seal and the TTL and
// never consults the account store, so account-state changes take effect only
// once the session expires.
//
// Requests outside the protected prefixes pass through untouched; those
// handlers perform their own checks. Invalid and expired sessions are treated
// alike: the stale cookie is cleared and the client is sent back to /login
// (or given 401 when the request expects JSON).
func Gatekeeper(cfg *config.Config, sealer *session.Sealer) gin.HandlerFunc {
	prefixes := cfg.ProtectedPrefixList()

	return func(c *gin.Context) {
		if !isProtected(c.Request.URL.Path, prefixes) {
			c.Next()
			return
		}

		token, err := c.Cookie(cfg.SessionCookie)
		if err != nil || token == "" {
			deny(c, cfg, false)
			return
		}

		payload, err := sealer.Unseal(token)
		if err != nil {
			deny(c, cfg, true)
			return
		}

		// Defensive: a sealed payload always carries a user id, but a token
		// without one must never be admitted.
		if payload.UserID == "" {
			deny(c, cfg, true)
			return
		}

		c.Set(ContextPayloadKey, payload)
		c.Next()
	}
}

func isProtected(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func deny(c *gin.Context, cfg *config.Config, clearCookie bool) {
	if clearCookie {
		c.SetSameSite(http.SameSiteStrictMode)
		c.SetCookie(cfg.SessionCookie, "", -1, "/", "", cfg.GinMode == gin.ReleaseMode, true)
	}

	if wantsJSON(c) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"code":    "UNAUTHORIZED",
			"message": "session expired, please log in again",
		})
		return
	}

	next := url.QueryEscape(c.Request.URL.RequestURI())
	c.Redirect(http.StatusSeeOther, "/login?next="+next)
	c.Abort()
}

func wantsJSON(c *gin.Context) bool {
	if strings.HasPrefix(c.Request.URL.Path, "/api/") {
		return true
	}
	return strings.Contains(c.GetHeader("Accept"), "application/json")
}
