package httpapi

import (
	"context"
	"net/http"

	"github.com/MrEthical07/eduAuth/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Options wires the optional parts of the router.
type Options struct {
	Logger         *zap.Logger
	Metrics        *RequestMetrics
	MetricsPath    string
	MetricsHandler http.Handler
	// Ready backs GET /readyz. Nil means always ready.
	Ready func(ctx context.Context) error
}

// NewRouter builds the gin engine serving the /auth API.
func NewRouter(service Service, opts Options) *gin.Engine {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	router := gin.New()
	router.Use(Recovery(log))
	router.Use(RequestLogger(log))
	if opts.Metrics != nil {
		router.Use(opts.Metrics.Middleware())
	}
	router.Use(ClientContext())

	if opts.MetricsHandler != nil {
		path := opts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		router.GET(path, gin.WrapH(opts.MetricsHandler))
	}
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/readyz", func(c *gin.Context) {
		if opts.Ready != nil {
			if err := opts.Ready(c.Request.Context()); err != nil {
				log.Warn("readiness check failed", zap.Error(err))
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	h := NewHandler(service, log)

	auth := router.Group("/auth")
	{
		auth.POST("/register", h.Register)
		auth.POST("/verify-email", h.VerifyEmail)
		auth.POST("/verify-email/resend", h.ResendVerification)
		auth.POST("/login", h.Login)
		auth.POST("/2fa/verify", h.VerifyTwoFactor)
		auth.POST("/refresh", h.Refresh)
		auth.POST("/password/forgot", h.ForgotPassword)
		auth.POST("/password/reset", h.ResetPassword)
	}

	protected := router.Group("/auth")
	protected.Use(middleware.RequireAccess(service))
	{
		protected.GET("/me", h.Me)
		protected.POST("/logout", h.Logout)
		protected.POST("/logout/all", h.LogoutAll)
		protected.POST("/password/change", h.ChangePassword)
		protected.POST("/2fa/setup", h.SetupTwoFactor)
		protected.POST("/2fa/enable", h.EnableTwoFactor)
		protected.POST("/2fa/disable", h.DisableTwoFactor)
	}

	return router
}
