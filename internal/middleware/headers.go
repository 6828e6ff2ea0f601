package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// securityHeaders suit a JSON-only API that is never framed or cached
var securityHeaders = [][2]string{
	{"X-Frame-Options", "DENY"},
	{"X-Content-Type-Options", "nosniff"},
	{"Referrer-Policy", "no-referrer"},
	{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
	{"Cache-Control", "no-store"},
}

// SecurityHeadersMiddleware adds security headers to all HTTP responses.
// Handlers may still override Cache-Control.
func SecurityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		for _, kv := range securityHeaders {
			h.Set(kv[0], kv[1])
		}
		c.Next()
	}
}

const relayAllowHeaders = "authorization, x-client-info, apikey, content-type"

// RelayCORSMiddleware sets the permissive CORS headers the contact form needs.
// Any origin may post; preflights are answered here with 200 and an empty body.
func RelayCORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Headers", relayAllowHeaders)
		h.Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		h.Set("Access-Control-Expose-Headers", "Retry-After, "+RequestIDHeader)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	}
}
