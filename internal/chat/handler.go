package chat

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"pathlet/internal/insights"
	"pathlet/internal/result"
)

// InsightsSource finds the insights a user's conversation is about.
type InsightsSource func(ctx context.Context, userID string) (*insights.Insights, error)

// ErrNoInsights is returned by an InsightsSource when the user has no reading yet.
var ErrNoInsights = errors.New("no insights for user")

// AskRequest is the payload of POST /chat
type AskRequest struct {
	Question string `json:"question" binding:"required"`
}

// HistoryResponse is the payload of GET /chat
type HistoryResponse struct {
	Messages []Message `json:"messages"`
}

// Handler serves one conversation per user
type Handler struct {
	source  InsightsSource
	inferer Inferer
	logger  *slog.Logger

	mu            sync.Mutex
	conversations map[string]*Conversation
}

// NewHandler creates a chat handler
func NewHandler(source InsightsSource, inferer Inferer, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		source:        source,
		inferer:       inferer,
		logger:        logger,
		conversations: make(map[string]*Conversation),
	}
}

// RegisterRoutes mounts the chat routes on rg. rg must set "user_id".
func (h *Handler) RegisterRoutes(rg gin.IRoutes) {
	rg.GET("/chat", h.History)
	rg.POST("/chat", h.Ask)
	rg.DELETE("/chat", h.Reset)
}

func (h *Handler) conversation(c *gin.Context) (*Conversation, bool) {
	userID := c.GetString("user_id")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return nil, false
	}

	h.mu.Lock()
	conv, ok := h.conversations[userID]
	h.mu.Unlock()
	if ok {
		return conv, true
	}

	ins, err := h.source(c.Request.Context(), userID)
	if errors.Is(err, ErrNoInsights) {
		c.JSON(http.StatusConflict, gin.H{"error": "generate a reading before starting a chat"})
		return nil, false
	}
	if err != nil {
		h.logger.Error("Failed to load insights for chat", "user_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start chat"})
		return nil, false
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if existing, ok := h.conversations[userID]; ok {
		return existing, true
	}
	conv = NewConversation(ins, h.inferer, h.logger.With("user_id", userID))
	h.conversations[userID] = conv
	return conv, true
}

// History handles GET /chat
func (h *Handler) History(c *gin.Context) {
	conv, ok := h.conversation(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, HistoryResponse{Messages: conv.Messages()})
}

// Ask handles POST /chat
func (h *Handler) Ask(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": MessageEmptyQuestion})
		return
	}
	conv, ok := h.conversation(c)
	if !ok {
		return
	}

	res := conv.Ask(c.Request.Context(), req.Question)
	if !res.OK() {
		c.JSON(statusFor(res.Err), gin.H{"error": res.Err.Message})
		return
	}
	c.JSON(http.StatusOK, res.Value)
}

// Reset handles DELETE /chat, so the next request starts over with a greeting
func (h *Handler) Reset(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	h.Forget(userID)
	c.Status(http.StatusNoContent)
}

// Forget drops userID's conversation.
func (h *Handler) Forget(userID string) {
	h.mu.Lock()
	delete(h.conversations, userID)
	h.mu.Unlock()
}

func statusFor(f *result.Failure) int {
	if len(f.Fields) > 0 {
		return http.StatusBadRequest
	}
	return http.StatusBadGateway
}
