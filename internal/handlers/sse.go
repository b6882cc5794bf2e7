package handlers

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/teachpack-backend/internal/logger"
	"github.com/yungbote/teachpack-backend/internal/requestdata"
	"github.com/yungbote/teachpack-backend/internal/sse"
)

type SSEHandler struct {
	Log *logger.Logger
	Hub *sse.SSEHub

	mu      sync.RWMutex
	clients map[uuid.UUID]*sse.SSEClient // key: UserID
}

func NewSSEHandler(log *logger.Logger, hub *sse.SSEHub) *SSEHandler {
	return &SSEHandler{
		Log:     log,
		Hub:     hub,
		clients: make(map[uuid.UUID]*sse.SSEClient),
	}
}

func (h *SSEHandler) SSEStream(c *gin.Context) {
	userID, ok := requestdata.UserIDFrom(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}
	h.Log.Info("SSEStream open", "user_id", userID.String())

	h.mu.Lock()
	// If this user already has a client, close it and replace.
	if existing, ok := h.clients[userID]; ok {
		h.Hub.CloseClient(existing)
		delete(h.clients, userID)
	}
	client := h.Hub.NewSSEClient(userID)
	h.clients[userID] = client
	h.mu.Unlock()

	// every connection gets the user's own channel; job events land here
	h.Hub.AddChannel(client, userID.String())

	h.Hub.ServeHTTP(c.Writer, c.Request, client)

	// A reconnect may have replaced (and closed) this client already; only
	// tear down if we are still the registered client.
	h.mu.Lock()
	if current, ok := h.clients[userID]; ok && current == client {
		delete(h.clients, userID)
		h.mu.Unlock()
		h.Hub.CloseClient(client)
		return
	}
	h.mu.Unlock()
}

func (h *SSEHandler) SSESubscribe(c *gin.Context) {
	userID, ok := requestdata.UserIDFrom(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	var req struct {
		Channel string `json:"channel"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Channel == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid channel"})
		return
	}

	h.mu.RLock()
	client, exists := h.clients[userID]
	h.mu.RUnlock()
	if !exists {
		c.JSON(http.StatusConflict, gin.H{"error": "no active SSE connection for this user"})
		return
	}

	h.Hub.AddChannel(client, req.Channel)
	c.JSON(http.StatusOK, gin.H{"message": "subscribed", "channel": req.Channel})
}

func (h *SSEHandler) SSEUnsubscribe(c *gin.Context) {
	userID, ok := requestdata.UserIDFrom(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	var req struct {
		Channel string `json:"channel"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Channel == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid channel"})
		return
	}

	h.mu.RLock()
	client, exists := h.clients[userID]
	h.mu.RUnlock()
	if !exists {
		c.JSON(http.StatusConflict, gin.H{"error": "no active SSE connection for this user"})
		return
	}

	h.Hub.RemoveChannel(client, req.Channel)
	c.JSON(http.StatusOK, gin.H{"message": "unsubscribed", "channel": req.Channel})
}
