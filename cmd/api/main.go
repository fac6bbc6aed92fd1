// Package main is the entry point of the API server.
package main

import (
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"

	"github.com/yourusername/time-ledger/internal/account"
	"github.com/yourusername/time-ledger/internal/auth"
	"github.com/yourusername/time-ledger/internal/config"
	"github.com/yourusername/time-ledger/internal/lockout"
	"github.com/yourusername/time-ledger/internal/session"
	"github.com/yourusername/time-ledger/internal/throttle"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	gin.SetMode(cfg.GinMode)

	key, err := cfg.SealingKey()
	if err != nil {
		log.Fatalf("Invalid session secret: %v", err)
	}

	store, err := account.NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to open account store: %v", err)
	}
	defer store.Close()

	sealer, err := session.NewSealer(key, time.Duration(cfg.SessionTTLMin)*time.Minute)
	if err != nil {
		log.Fatalf("Failed to create session sealer: %v", err)
	}

	engine := lockout.NewEngine(store, cfg.LockoutMax, time.Duration(cfg.LockoutMin)*time.Minute)
	authenticator := auth.NewAuthenticator(store, engine)

	var limiter auth.IPThrottle
	if cfg.ThrottleRedisURL != "" {
		opt, err := redis.ParseURL(cfg.ThrottleRedisURL)
		if err != nil {
			log.Fatalf("Invalid THROTTLE_REDIS_URL: %v", err)
		}
		limiter = throttle.NewLimiter(redis.NewClient(opt), cfg.ThrottleMax,
			time.Duration(cfg.ThrottleWindow)*time.Minute)
	}

	handler := auth.NewHandler(cfg, authenticator, sealer, limiter)

	router := gin.Default()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = strings.Split(cfg.CORSAllowedOrigins, ",")
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Type",
		"Accept",
		auth.CSRFHeader,
	}
	corsConfig.ExposeHeaders = []string{auth.CSRFHeader}
	router.Use(cors.New(corsConfig))

	// The gatekeeper sits on every request but only enforces the configured
	// protected prefixes; everything else defers to handler-level checks.
	router.Use(auth.Gatekeeper(cfg, sealer))

	setupRoutes(router, cfg, handler)

	addr := ":" + cfg.Port
	log.Printf("Starting API server on %s (mode: %s)", addr, cfg.GinMode)
	if err := router.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "time-ledger-api",
		"version": "0.1.0",
	})
}

// setupRoutes wires the API groups and the authentication endpoints.
func setupRoutes(router *gin.Engine, cfg *config.Config, handler *auth.Handler) {
	router.GET("/health", handleHealth)

	api := router.Group("/api")
	{
		authRoutes := api.Group("/auth")
		{
			// No session exists yet at login time, so no CSRF check here.
			authRoutes.POST("/login", handler.Login)
			authRoutes.POST("/logout", handler.Logout)
			authRoutes.GET("/session", handler.Session)
		}
	}

	// Application routes live under the protected prefixes; the gatekeeper
	// has already verified the session by the time these run. The business
	// handlers (invoices, customers, time entries) mount here.
	app := router.Group("/app")
	app.Use(auth.VerifyCSRF())
	{
		app.GET("/me", func(c *gin.Context) {
			payload, ok := auth.PayloadFromContext(c)
			if !ok {
				c.JSON(http.StatusUnauthorized, gin.H{
					"code":    "UNAUTHORIZED",
					"message": "session expired, please log in again",
				})
				return
			}
			c.JSON(http.StatusOK, gin.H{
				"id":       payload.UserID,
				"username": payload.Username,
				"tenant":   payload.TenantID,
				"isAdmin":  payload.IsAdmin,
			})
		})
	}
}
