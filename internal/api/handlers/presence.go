package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"estatechat/internal/realtime"
)

// PresenceHandler 查詢目前的上線名單
type PresenceHandler struct {
	bridge *realtime.Bridge
}

func NewPresenceHandler(bridge *realtime.Bridge) *PresenceHandler {
	return &PresenceHandler{bridge: bridge}
}

func (h *PresenceHandler) ListOnline(c *gin.Context) {
	hub, err := h.bridge.Hub()
	if err != nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"online": hub.OnlineUsers()})
}

func (h *PresenceHandler) GetPresence(c *gin.Context) {
	hub, err := h.bridge.Hub()
	if err != nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	userID := c.Param("userId")
	c.JSON(http.StatusOK, gin.H{"userId": userID, "online": hub.IsOnline(userID)})
}
