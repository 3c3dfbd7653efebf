package handlers

import (
	"log/slog"
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"estatechat/internal/middleware"
	"estatechat/internal/realtime"
)

// WebSocketHandler 處理 WebSocket 連接
type WebSocketHandler struct {
	hub      *realtime.Hub
	upgrader websocket.Upgrader
	log      *slog.Logger
}

// NewWebSocketHandler allowedOrigins 為空時只接受同源連線，包含 "*" 時接受所有來源
func NewWebSocketHandler(hub *realtime.Hub, allowedOrigins []string, log *slog.Logger) *WebSocketHandler {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	if len(allowedOrigins) > 0 {
		upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || slices.Contains(allowedOrigins, "*") || slices.Contains(allowedOrigins, origin)
		}
	}
	return &WebSocketHandler{hub: hub, upgrader: upgrader, log: log}
}

// HandleWebSocket 升級連線後交給 hub，直到斷線才返回
// token 可以放在 ?token= 或 Authorization header，也可以連線後再送 authenticate
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	if !h.hub.Running() {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": realtime.ErrHubNotStarted.Error()})
		return
	}

	token := c.Query("token")
	if token == "" {
		token = middleware.BearerToken(c.Request)
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Info("websocket upgrade failed", slog.String("remote", c.ClientIP()), slog.Any("error", err))
		return
	}
	h.hub.ServeConn(conn, token)
}
