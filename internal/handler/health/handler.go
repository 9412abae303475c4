package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/retina-api/internal/storage"
)

const pingTimeout = 2 * time.Second

type Handler struct {
	kv storage.KV
}

func NewHandler(kv storage.KV) *Handler {
	return &Handler{kv: kv}
}

func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/health/live", h.LivenessCheck)
	r.GET("/health/ready", h.ReadinessCheck)
}

func (h *Handler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "UP"})
}

// ReadinessCheck pings the persisted mirror.
func (h *Handler) ReadinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), pingTimeout)
	defer cancel()

	if err := h.kv.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "DOWN",
			"backend": h.kv.Backend(),
			"reason":  "Storage backend unavailable",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "UP", "backend": h.kv.Backend()})
}
