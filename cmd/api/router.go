package main

import (
	"context"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/folio/contact-relay/config"
	"github.com/folio/contact-relay/internal/handlers"
	"github.com/folio/contact-relay/internal/middleware"
)

// registerRelayRoutes mounts the contact endpoint under path with its preflight route
func registerRelayRoutes(group *gin.RouterGroup, path string, burst *middleware.RateLimiter, relayHandler *handlers.RelayHandler) {
	group.OPTIONS(path, relayHandler.Preflight)
	group.POST(path, burst.Middleware(handlers.ClientIP), middleware.BodySizeLimitMiddleware(middleware.DefaultMaxBodySize), relayHandler.Submit)
}

// newRouter builds the relay's HTTP surface. The burst limiters stop with ctx.
func newRouter(ctx context.Context, cfg *config.Config, relayHandler *handlers.RelayHandler, healthHandler *handlers.HealthHandler) *gin.Engine {
	gin.SetMode(cfg.Server.GinMode)
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.Observability.ServiceName))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.ObservabilityMiddleware("/api/live", "/api/ready", "/api/metrics"))
	router.Use(middleware.SecurityHeadersMiddleware())

	// Burst protection in front of the windowed quota: 1 req/sec, burst of 5
	burstLimiter := middleware.NewRateLimiter(ctx, 1, 5)
	opsRateLimiter := middleware.NewRateLimiter(ctx, 20, 40)

	// Contact endpoints accept browser posts from any origin
	v1 := router.Group("/api/v1", middleware.RelayCORSMiddleware())
	registerRelayRoutes(v1, "/contact", burstLimiter, relayHandler)
	v1.OPTIONS("/contact/status", relayHandler.Preflight)
	v1.GET("/contact/status", opsRateLimiter.Middleware(handlers.ClientIP), relayHandler.Status)

	functions := router.Group("/functions/v1", middleware.RelayCORSMiddleware())
	registerRelayRoutes(functions, "/send-contact-email", burstLimiter, relayHandler)

	// Operational endpoints are limited to the configured dashboards
	api := router.Group("/api")
	allowedOrigins := cfg.Server.AllowedOrigins
	if cfg.IsDevelopment() {
		allowedOrigins = append(allowedOrigins, "http://localhost:3000", "http://127.0.0.1:3000")
	}
	if len(allowedOrigins) > 0 {
		api.Use(cors.New(cors.Config{
			AllowOrigins:  allowedOrigins,
			AllowMethods:  []string{"GET", "OPTIONS"},
			AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "traceparent", "tracestate"},
			ExposeHeaders: []string{"Content-Length", middleware.RequestIDHeader},
			MaxAge:        12 * time.Hour,
		}))
	}
	api.GET("/healthcheck", opsRateLimiter.Middleware(handlers.ClientIP), healthHandler.Healthcheck)
	api.GET("/live", healthHandler.Live)
	api.GET("/ready", healthHandler.Ready)
	api.GET("/metrics", opsRateLimiter.Middleware(handlers.ClientIP), gin.WrapH(promhttp.Handler()))

	return router
}
