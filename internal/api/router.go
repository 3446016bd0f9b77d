// Package api wires together all HTTP routes for the Gestio backend.
//
// Every mutating route under /api/v1 runs behind the RequestContext
// middleware so that the repositories can attribute audit records to the
// acting user, client IP, user agent, and request URL. The audit-logs
// routes themselves are read-only: records are written exclusively by the
// repositories, never through the API.
package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/gestio-hq/gestio/internal/api/auditlogs"
	"github.com/gestio-hq/gestio/internal/api/clients"
	"github.com/gestio-hq/gestio/internal/api/invoices"
	"github.com/gestio-hq/gestio/internal/api/projects"
	"github.com/gestio-hq/gestio/internal/audit"
	"github.com/gestio-hq/gestio/internal/config"
	"github.com/gestio-hq/gestio/internal/db/repositories"
	"github.com/gestio-hq/gestio/internal/middleware"
)

// BackgroundServices holds resources that must be stopped during graceful
// shutdown. The caller (cmd/server) calls Shutdown() after the HTTP server
// has drained in-flight requests.
type BackgroundServices struct {
	rateLimiters []*middleware.RateLimiter
}

// Shutdown stops all background goroutines.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	for _, rl := range bg.rateLimiters {
		rl.Stop()
	}
	slog.Info("all background services stopped")
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg *config.Config, db *sqlx.DB, recorder *audit.Recorder) (*gin.Engine, *BackgroundServices) {
	router := gin.New()

	if len(cfg.Server.TrustedProxies) > 0 {
		if err := router.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
			slog.Error("failed to set trusted proxies", "error", err)
		}
	}

	// Repositories
	auditRepo := repositories.NewAuditRepository(db)
	clientRepo := repositories.NewClientRepository(db, recorder)
	invoiceRepo := repositories.NewInvoiceRepository(db, recorder)
	projectRepo := repositories.NewProjectRepository(db, recorder)

	// Handlers
	auditHandler := auditlogs.NewHandler(auditRepo)
	clientHandler := clients.NewHandler(clientRepo)
	invoiceHandler := invoices.NewHandler(invoiceRepo)
	projectHandler := projects.NewHandler(projectRepo)

	// Middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Metrics())
	router.Use(LoggerMiddleware(cfg))

	// Health check endpoint
	router.GET("/health", healthCheckHandler(db))

	// API version
	router.GET("/version", versionHandler())

	generalRateLimiter := middleware.NewRateLimiter(middleware.DefaultRateLimitConfig())

	apiV1 := router.Group("/api/v1")
	apiV1.Use(middleware.RateLimit(generalRateLimiter))
	apiV1.Use(middleware.RequestContext())
	{
		clientsGroup := apiV1.Group("/clients")
		{
			clientsGroup.POST("", clientHandler.Create)
			clientsGroup.GET("", clientHandler.List)
			clientsGroup.GET("/:id", clientHandler.Get)
			clientsGroup.PUT("/:id", clientHandler.Update)
			clientsGroup.DELETE("/:id", clientHandler.Delete)
			clientsGroup.POST("/:id/restore", clientHandler.Restore)
		}

		invoicesGroup := apiV1.Group("/invoices")
		{
			invoicesGroup.POST("", invoiceHandler.Create)
			invoicesGroup.GET("", invoiceHandler.List)
			invoicesGroup.GET("/:id", invoiceHandler.Get)
			invoicesGroup.PUT("/:id", invoiceHandler.Update)
			invoicesGroup.DELETE("/:id", invoiceHandler.Delete)
			invoicesGroup.POST("/:id/restore", invoiceHandler.Restore)
		}

		projectsGroup := apiV1.Group("/projects")
		{
			projectsGroup.POST("", projectHandler.Create)
			projectsGroup.GET("", projectHandler.List)
			projectsGroup.GET("/:id", projectHandler.Get)
			projectsGroup.PUT("/:id", projectHandler.Update)
			projectsGroup.DELETE("/:id", projectHandler.Delete)
		}

		// Read-only audit log access.
		auditGroup := apiV1.Group("/audit-logs")
		{
			auditGroup.GET("", auditHandler.List)
			auditGroup.GET("/:id", auditHandler.Get)
		}
	}

	bg := &BackgroundServices{
		rateLimiters: []*middleware.RateLimiter{generalRateLimiter},
	}

	return router, bg
}

// healthCheckHandler returns the health status of the service.
func healthCheckHandler(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// versionHandler returns the API version.
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     "0.1.0",
			"api_version": "v1",
		})
	}
}

// LoggerMiddleware provides structured request logging.
func LoggerMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)

		requestID, _ := c.Get(middleware.RequestIDKey)
		slog.LogAttrs(
			c.Request.Context(),
			slog.LevelInfo,
			"http request",
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("query", query),
			slog.Int("status", c.Writer.Status()),
			slog.Int("size", c.Writer.Size()),
			slog.Duration("latency", latency),
			slog.String("ip", c.ClientIP()),
			slog.String("request_id", fmt.Sprintf("%v", requestID)),
			slog.String("user_agent", c.Request.UserAgent()),
		)
	}
}
