package handlers

import (
	"strings"

	"github.com/folio/contact-relay/internal/models"
	"github.com/gin-gonic/gin"
)

const (
	HeaderForwardedFor   = "X-Forwarded-For"
	HeaderCFConnectingIP = "CF-Connecting-IP"
	clientIPContextKey   = "contact_client_ip"
)

// ClientIP derives the rate limit key for a request: the first X-Forwarded-For
// entry, then CF-Connecting-IP, then the shared "unknown" bucket.
// The headers are trusted as sent; the relay is expected to sit behind a proxy
// that overwrites them.
func ClientIP(c *gin.Context) string {
	if v, ok := c.Get(clientIPContextKey); ok {
		if ip, ok := v.(string); ok {
			return ip
		}
	}

	ip := clientIPFromHeaders(c.GetHeader(HeaderForwardedFor), c.GetHeader(HeaderCFConnectingIP))
	c.Set(clientIPContextKey, ip)
	return ip
}

func clientIPFromHeaders(forwardedFor, cfConnectingIP string) string {
	if forwardedFor != "" {
		first := strings.TrimSpace(strings.SplitN(forwardedFor, ",", 2)[0])
		if first != "" {
			return first
		}
	}
	if ip := strings.TrimSpace(cfConnectingIP); ip != "" {
		return ip
	}
	return models.UnknownClientIP
}
