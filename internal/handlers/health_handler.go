package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/heptiolabs/healthcheck"
)

const pingTimeout = 2 * time.Second

// PingFunc checks that the rate limit store is reachable
type PingFunc func(ctx context.Context) error

type HealthHandler struct {
	storeName string
	ping      PingFunc
	probes    healthcheck.Handler
}

func NewHealthHandler(storeName string, ping PingFunc) *HealthHandler {
	probes := healthcheck.NewHandler()
	probes.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(10000))
	probes.AddReadinessCheck(storeName, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
		defer cancel()
		return ping(ctx)
	})

	return &HealthHandler{
		storeName: storeName,
		ping:      ping,
		probes:    probes,
	}
}

func (h *HealthHandler) Healthcheck(c *gin.Context) {
	c.Header("Cache-Control", "no-cache, no-store, max-age=0, must-revalidate")

	ctx, cancel := context.WithTimeout(c.Request.Context(), pingTimeout)
	defer cancel()

	if err := h.ping(ctx); err != nil {
		recordCause(c, err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unavailable",
			"reason": h.storeName + " rate limit store unreachable",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"store":  h.storeName,
	})
}

// Live serves the liveness probe
func (h *HealthHandler) Live(c *gin.Context) {
	h.probes.LiveEndpoint(c.Writer, c.Request)
}

// Ready serves the readiness probe, which includes the store ping
func (h *HealthHandler) Ready(c *gin.Context) {
	h.probes.ReadyEndpoint(c.Writer, c.Request)
}
