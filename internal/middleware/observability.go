package middleware

import (
	"strconv"
	"time"

	"github.com/folio/contact-relay/pkg/logger"
	"github.com/folio/contact-relay/pkg/metrics"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ObservabilityMiddleware records request metrics and logs every request.
// Successful hits on quiet routes (probes, metrics scrapes) are counted but not logged.
func ObservabilityMiddleware(quietRoutes ...string) gin.HandlerFunc {
	quiet := make(map[string]bool, len(quietRoutes))
	for _, r := range quietRoutes {
		quiet[r] = true
	}

	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method

		active := metrics.ActiveRequests.WithLabelValues(method)
		active.Inc()
		defer active.Dec()

		c.Next()

		// Label by route template; unmatched paths share one series
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		code := strconv.Itoa(status)
		elapsed := metrics.MeasureDuration(start)

		metrics.HTTPRequestDuration.WithLabelValues(method, route, code).Observe(elapsed)
		metrics.HTTPRequestTotal.WithLabelValues(method, route, code).Inc()

		if quiet[route] && status < 400 {
			return
		}

		fields := []zap.Field{
			zap.String("route", route),
			zap.String("client_ip", c.ClientIP()),
			zap.String("request_id", c.GetString(RequestIDKey)),
			zap.Int("response_size", c.Writer.Size()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("error", c.Errors.String()))
		}

		logger.LogHTTPRequest(method, c.Request.URL.Path, status, elapsed, fields...)
	}
}
