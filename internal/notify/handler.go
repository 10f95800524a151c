package notify

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"pathlet/internal/store"
)

// Handler serves the notifier's health and stats endpoints
type Handler struct {
	store     store.Store
	processor *Processor
	logger    *slog.Logger
}

// NewHandler creates a new notifier handler
func NewHandler(s store.Store, processor *Processor, logger *slog.Logger) *Handler {
	return &Handler{store: s, processor: processor, logger: logger}
}

// RegisterRoutes mounts GET /health, GET /stats and GET /deliveries/:reading_id
func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/health", h.HealthCheck)
	r.GET("/stats", h.Stats)
	r.GET("/deliveries/:reading_id", h.Delivery)
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	storeStatus := "connected"
	if err := store.Ping(ctx, h.store); err != nil {
		storeStatus = "disconnected"
		h.logger.Error("Store health check failed", "error", err)
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if storeStatus != "connected" {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, gin.H{
		"status":  status,
		"service": "pathlet-notifier",
		"store":   storeStatus,
	})
}

// Stats handles GET /stats
func (h *Handler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.processor.Stats())
}

// Delivery handles GET /deliveries/:reading_id, reporting whether the reading's
// email went out.
func (h *Handler) Delivery(c *gin.Context) {
	id, err := uuid.Parse(c.Param("reading_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid reading id"})
		return
	}

	rec, err := h.processor.dedup.Lookup(c.Request.Context(), id.String())
	switch {
	case err == nil:
		c.JSON(http.StatusOK, rec)
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "no delivery recorded"})
	default:
		h.logger.Error("Failed to look up delivery", "reading_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to look up delivery"})
	}
}
