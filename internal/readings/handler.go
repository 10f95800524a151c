package readings

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"pathlet/internal/insights"
	"pathlet/internal/validation"
)

// Handler serves readings over HTTP
type Handler struct {
	svc      *Service
	logger   *slog.Logger
	onCreate []func(*Reading)
}

// NewHandler creates a readings handler
func NewHandler(svc *Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, logger: logger}
}

// OnCreate registers fn to run after each reading created through POST /readings.
func (h *Handler) OnCreate(fn func(*Reading)) {
	h.onCreate = append(h.onCreate, fn)
}

// RegisterRoutes mounts the readings routes on rg. rg must set "user_id".
func (h *Handler) RegisterRoutes(rg gin.IRoutes) {
	rg.POST("/readings", h.Create)
	rg.GET("/readings", h.List)
	rg.GET("/readings/latest", h.Latest)
	rg.GET("/readings/:id", h.Get)
	rg.GET("/readings/:id/export", h.Export)
}

func userID(c *gin.Context) (string, bool) {
	id := c.GetString("user_id")
	if id == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return "", false
	}
	return id, true
}

// Create handles POST /readings
func (h *Handler) Create(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}

	var req insights.BirthDetails
	if err := c.ShouldBindJSON(&req); err != nil {
		if verr, ok := validation.Describe(&req, err); ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": verr.First(), "fields": verr.Fields})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}

	reading, err := h.svc.Create(c.Request.Context(), Owner{ID: uid, Email: c.GetString("email")}, req)
	if err != nil {
		h.logger.Error("Failed to create reading", "user_id", uid, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate insights"})
		return
	}
	for _, fn := range h.onCreate {
		fn(reading)
	}
	c.JSON(http.StatusCreated, reading)
}

// List handles GET /readings?limit=n
func (h *Handler) List(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil {
		limit = DefaultListLimit
	}

	list, err := h.svc.List(c.Request.Context(), uid, limit)
	if err != nil {
		h.logger.Error("Failed to list readings", "user_id", uid, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list readings"})
		return
	}
	c.JSON(http.StatusOK, ListResponse{Readings: list, Count: len(list)})
}

// Latest handles GET /readings/latest
func (h *Handler) Latest(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	reading, err := h.svc.Latest(c.Request.Context(), uid)
	h.respond(c, uid, reading, err)
}

// Get handles GET /readings/:id
func (h *Handler) Get(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid reading id"})
		return
	}
	reading, err := h.svc.Get(c.Request.Context(), uid, id)
	h.respond(c, uid, reading, err)
}

// Export handles GET /readings/:id/export
func (h *Handler) Export(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid reading id"})
		return
	}

	export, err := h.svc.Export(c.Request.Context(), uid, id)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, export)
	case errors.Is(err, ErrExportDisabled):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "export unavailable"})
	case errors.Is(err, ErrReadingNotFound), errors.Is(err, ErrForbidden):
		c.JSON(http.StatusNotFound, gin.H{"error": "reading not found"})
	default:
		h.logger.Error("Failed to export reading", "user_id", uid, "reading_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to export reading"})
	}
}

func (h *Handler) respond(c *gin.Context, uid string, reading *Reading, err error) {
	switch {
	case err == nil:
		c.JSON(http.StatusOK, reading)
	case errors.Is(err, ErrReadingNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "reading not found"})
	case errors.Is(err, ErrForbidden):
		// Other users' readings are indistinguishable from missing ones.
		c.JSON(http.StatusNotFound, gin.H{"error": "reading not found"})
	default:
		h.logger.Error("Failed to get reading", "user_id", uid, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get reading"})
	}
}
