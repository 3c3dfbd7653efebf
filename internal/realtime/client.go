package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// Client 代表一個 WebSocket 客戶端連接
type Client struct {
	id      string
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte // 消息發送通道，由 hub 在 unregister 時關閉
	inbound chan Frame  // 依接收順序排隊等待處理的事件
	limiter *rate.Limiter
	ctx     context.Context // 斷線時取消，進行中的成員查詢隨之中止
	cancel  context.CancelFunc

	// 以下欄位由 hub.mu 保護
	identity *Identity
	rooms    map[string]struct{}
	closed   bool
	dropping bool
}

func newClient(h *Hub, conn *websocket.Conn, parent context.Context) *Client {
	ctx, cancel := context.WithCancel(parent)
	return &Client{
		id:      uuid.NewString(),
		hub:     h,
		conn:    conn,
		send:    make(chan []byte, h.opts.SendBuffer),
		inbound: make(chan Frame, h.opts.InboundBuffer),
		limiter: rate.NewLimiter(h.opts.InboundRate, h.opts.InboundBurst),
		ctx:     ctx,
		cancel:  cancel,
		rooms:   make(map[string]struct{}),
	}
}

// ID 連線 ID
func (c *Client) ID() string {
	return c.id
}

func (c *Client) closeConn() {
	_ = c.conn.Close()
}

// readPump 只負責讀取，處理交給 processPump，斷線因此能立即被發現
func (c *Client) readPump() {
	h := c.hub
	defer func() {
		close(c.inbound)
		h.unregister(c)
		c.closeConn()
	}()

	c.conn.SetReadLimit(h.opts.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(h.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(h.opts.PongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.log.Info("websocket unexpected close", slog.String("conn_id", c.id), slog.Any("error", err))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(h.opts.PongWait))

		if !c.limiter.Allow() {
			h.metrics.EventDropped("rate_limited")
			h.replyError(c, EventError, CodeRateLimited, "too many events")
			continue
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil || frame.Event == "" {
			h.replyError(c, EventError, CodeInvalidFrame, "frame must be a JSON object with an event name")
			continue
		}

		select {
		case c.inbound <- frame:
		default:
			h.metrics.EventDropped("inbound_queue_full")
			h.replyError(c, EventError, CodeRateLimited, "too many pending events")
		}
	}
}

// processPump 依接收順序逐一處理事件；連線時帶的 token 先於任何事件處理
func (c *Client) processPump(token string) {
	if token != "" {
		c.hub.authenticate(c, token)
	}
	for frame := range c.inbound {
		c.hub.dispatch(c, frame)
	}
}

// writePump 處理向客戶端發送消息與心跳
func (c *Client) writePump() {
	h := c.hub
	ticker := time.NewTicker(h.opts.PongWait * 9 / 10)
	defer func() {
		ticker.Stop()
		c.closeConn()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.opts.WriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
