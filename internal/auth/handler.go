package auth

import (
	"context"
	"errors"
	"log"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/time-ledger/internal/config"
	"github.com/yourusername/time-ledger/internal/session"
)

// CSRFHeader carries the double-submit CSRF token.
const CSRFHeader = "X-CSRF-Token"

// Handler serves the authentication endpoints.
type Handler struct {
	cfg           *config.Config
	authenticator *Authenticator
	sealer        *session.Sealer
	throttle      IPThrottle
}

// IPThrottle limits login attempts per client IP before credentials are
// examined. A nil throttle disables the check.
type IPThrottle interface {
	Allow(ctx context.Context, ip string) (bool, time.Duration, error)
}

// NewHandler creates the authentication handler.
func NewHandler(cfg *config.Config, authenticator *Authenticator, sealer *session.Sealer, throttle IPThrottle) *Handler {
	return &Handler{
		cfg:           cfg,
		authenticator: authenticator,
		sealer:        sealer,
		throttle:      throttle,
	}
}

type loginRequest struct {
	Identifier string `json:"identifier" binding:"required"`
	Password   string `json:"password" binding:"required"`
	Tenant     string `json:"tenant"`
}

// Login handles POST /api/auth/login.
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_INPUT",
			"message": "identifier and password are required",
		})
		return
	}

	tenant := req.Tenant
	if tenant == "" {
		tenant = h.cfg.DefaultTenant
	}

	ip := c.ClientIP()
	agent := c.Request.UserAgent()

	if h.throttle != nil {
		allowed, retryAfter, err := h.throttle.Allow(c.Request.Context(), ip)
		if err != nil {
			// The throttle is an auxiliary guard: an unreachable backend
			// must not deny every login, so the check is skipped.
			log.Printf("login throttle unavailable: %v", err)
		} else if !allowed {
			setRetryAfter(c, retryAfter)
			c.JSON(http.StatusTooManyRequests, gin.H{
				"code":    "TOO_MANY_REQUESTS",
				"message": "too many login attempts, try again later",
			})
			return
		}
	}

	payload, err := h.authenticator.Login(c.Request.Context(), tenant, req.Identifier, req.Password, ip, agent)
	if err != nil {
		h.writeLoginError(c, err)
		return
	}

	token, err := h.sealer.Seal(*payload)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "SESSION_SEAL_FAILED",
			"message": "failed to issue session",
		})
		return
	}

	h.setSessionCookie(c, token, int(h.sealer.TTL().Seconds()))
	c.Header(CSRFHeader, payload.CSRFToken)
	c.JSON(http.StatusOK, gin.H{
		"user": gin.H{
			"id":       payload.UserID,
			"username": payload.Username,
			"tenant":   payload.TenantID,
			"isAdmin":  payload.IsAdmin,
		},
	})
}

func (h *Handler) writeLoginError(c *gin.Context, err error) {
	var lockedOut *LockedOutError
	if errors.As(err, &lockedOut) {
		setRetryAfter(c, lockedOut.RetryAfter)
		c.JSON(http.StatusTooManyRequests, gin.H{
			"code":              "ACCOUNT_LOCKED",
			"message":           "too many failed attempts, try again later",
			"retryAfterSeconds": retryAfterSeconds(lockedOut.RetryAfter),
		})
		return
	}

	var creds *CredentialsError
	if errors.As(err, &creds) {
		c.JSON(http.StatusUnauthorized, gin.H{
			"code":              "INVALID_CREDENTIALS",
			"message":           "identifier or password is incorrect",
			"remainingAttempts": creds.AttemptsRemaining,
		})
		return
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{
			"code":    "INVALID_CREDENTIALS",
			"message": "identifier or password is incorrect",
		})
	case errors.Is(err, ErrAccountDisabled):
		c.JSON(http.StatusUnauthorized, gin.H{
			"code":    "ACCOUNT_DISABLED",
			"message": "this account has been deactivated",
		})
	default:
		// Store faults and everything unexpected: fail closed with a
		// generic server error, never as invalid credentials or a lockout.
		log.Printf("login failed with server error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "SERVER_ERROR",
			"message": "temporary server error, try again later",
		})
	}
}

// Logout handles POST /api/auth/logout. The server keeps no revocation list;
// logout instructs the client to discard the credential and the token ages
// out at its TTL.
func (h *Handler) Logout(c *gin.Context) {
	h.setSessionCookie(c, "", -1)
	c.Status(http.StatusNoContent)
}

// Session handles GET /api/auth/session. The path is outside the protected
// prefixes, so the handler performs its own session check.
func (h *Handler) Session(c *gin.Context) {
	token, err := c.Cookie(h.cfg.SessionCookie)
	if err != nil || token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{
			"code":    "UNAUTHORIZED",
			"message": "session expired, please log in again",
		})
		return
	}

	payload, err := h.sealer.Unseal(token)
	if err != nil {
		h.setSessionCookie(c, "", -1)
		c.JSON(http.StatusUnauthorized, gin.H{
			"code":    "UNAUTHORIZED",
			"message": "session expired, please log in again",
		})
		return
	}

	c.Header(CSRFHeader, payload.CSRFToken)
	c.JSON(http.StatusOK, gin.H{
		"user": gin.H{
			"id":       payload.UserID,
			"username": payload.Username,
			"tenant":   payload.TenantID,
			"isAdmin":  payload.IsAdmin,
		},
		"expiresAt": payload.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

func (h *Handler) setSessionCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteStrictMode)
	secure := h.cfg.GinMode == gin.ReleaseMode
	c.SetCookie(h.cfg.SessionCookie, value, maxAge, "/", "", secure, true)
}

func setRetryAfter(c *gin.Context, d time.Duration) {
	c.Header("Retry-After", strconv.FormatInt(retryAfterSeconds(d), 10))
}

func retryAfterSeconds(d time.Duration) int64 {
	return int64(math.Ceil(d.Seconds()))
}
