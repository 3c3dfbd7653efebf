package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"estatechat/internal/utils"
)

var (
	ErrHubNotStarted = errors.New("realtime hub is not started")
	ErrHubRunning    = errors.New("realtime hub is already running")
)

// TokenParser 驗證連線送來的 JWT
type TokenParser interface {
	ParseToken(token string) (*utils.Claims, error)
}

// MembershipAuthority 判斷身分是否屬於某個對話，每次呼叫都必須重新查詢
type MembershipAuthority interface {
	IsMember(ctx context.Context, userID, conversationID string) (bool, error)
}

// Metrics hub 回報的指標，由 metrics.Collector 實作
type Metrics interface {
	ConnectionOpened()
	ConnectionClosed()
	OnlineUsers(n int)
	EventReceived(event string)
	EventBroadcast(event string, recipients int)
	EventDropped(reason string)
	AuthFailed(code string)
	MembershipDenied(event string)
}

type nopMetrics struct{}

func (nopMetrics) ConnectionOpened() {}
func (nopMetrics) ConnectionClosed() {}
func (nopMetrics) OnlineUsers(int) {}
func (nopMetrics) EventReceived(string) {}
func (nopMetrics) EventBroadcast(string, int) {}
func (nopMetrics) EventDropped(string) {}
func (nopMetrics) AuthFailed(string) {}
func (nopMetrics) MembershipDenied(string) {}

// Options hub 的可調參數，零值欄位使用 DefaultOptions 的值
type Options struct {
	SendBuffer    int
	PublishBuffer int
	InboundBuffer int
	InboundRate   rate.Limit
	InboundBurst  int
	ReadLimit     int64
	PongWait      time.Duration
	WriteWait     time.Duration

	// Relay 不為 nil 時，Bridge 透過它把事件送到所有程序
	Relay        Relay
	RelayTimeout time.Duration
}

func DefaultOptions() Options {
	return Options{
		SendBuffer:    256,
		PublishBuffer: 1024,
		InboundBuffer: 64,
		InboundRate:   20,
		InboundBurst:  40,
		ReadLimit:     8192,
		PongWait:      60 * time.Second,
		WriteWait:     10 * time.Second,
		RelayTimeout:  3 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.SendBuffer <= 0 {
		o.SendBuffer = d.SendBuffer
	}
	if o.PublishBuffer <= 0 {
		o.PublishBuffer = d.PublishBuffer
	}
	if o.InboundBuffer <= 0 {
		o.InboundBuffer = d.InboundBuffer
	}
	if o.InboundRate <= 0 {
		o.InboundRate = rate.Inf
	}
	if o.InboundBurst <= 0 {
		o.InboundBurst = d.InboundBurst
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = d.ReadLimit
	}
	if o.PongWait <= 0 {
		o.PongWait = d.PongWait
	}
	if o.WriteWait <= 0 {
		o.WriteWait = d.WriteWait
	}
	if o.RelayTimeout <= 0 {
		o.RelayTimeout = d.RelayTimeout
	}
	return o
}

// Hub 管理所有連線、對話房間與上線名單
//
// clients、rooms、presence 以及每個 Client 的 identity/rooms/closed 都只能在持有 mu 時讀寫。
type Hub struct {
	log      *slog.Logger
	tokens   TokenParser
	members  MembershipAuthority
	metrics  Metrics
	opts     Options
	validate *validator.Validate
	bridge   *Bridge
	now      func() time.Time

	publish chan Envelope
	// outbound 依序交給 relay 的事件，只有設定 Relay 時才會建立
	outbound chan Envelope

	mu       sync.Mutex
	running  bool
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	clients  map[*Client]struct{}
	rooms    map[string]map[*Client]struct{}
	presence map[string]int
}

func NewHub(tokens TokenParser, members MembershipAuthority, m Metrics, log *slog.Logger, opts Options) *Hub {
	if m == nil {
		m = nopMetrics{}
	}
	if log == nil {
		log = slog.Default()
	}
	opts = opts.withDefaults()

	h := &Hub{
		log:      log.With(slog.String("component", "realtime")),
		tokens:   tokens,
		members:  members,
		metrics:  m,
		opts:     opts,
		validate: validator.New(),
		now:      time.Now,
		publish:  make(chan Envelope, opts.PublishBuffer),
		clients:  make(map[*Client]struct{}),
		rooms:    make(map[string]map[*Client]struct{}),
		presence: make(map[string]int),
	}
	if opts.Relay != nil {
		h.outbound = make(chan Envelope, opts.PublishBuffer)
	}
	h.bridge = &Bridge{hub: h}
	return h
}

// Bridge 給 REST 層使用的發佈入口
func (h *Hub) Bridge() *Bridge {
	return h.bridge
}

// Start 啟動事件迴圈，不會阻塞；ctx 結束或呼叫 Stop 時關閉所有連線
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return ErrHubRunning
	}
	h.ctx, h.cancel = context.WithCancel(ctx)
	h.done = make(chan struct{})
	h.running = true
	runCtx, done := h.ctx, h.done
	h.mu.Unlock()

	if relay := h.opts.Relay; relay != nil {
		go func() {
			if err := relay.Subscribe(runCtx, h.enqueueRemote); err != nil && runCtx.Err() == nil {
				h.log.Error("realtime relay subscription stopped", slog.Any("error", err))
			}
		}()
		go h.relayLoop(runCtx, relay)
	}

	go h.run(runCtx, done)
	h.log.Info("realtime hub started")
	return nil
}

// Stop 停止 hub 並等待事件迴圈結束
func (h *Hub) Stop() {
	h.mu.Lock()
	cancel, done := h.cancel, h.done
	h.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running hub 是否正在處理事件
func (h *Hub) Running() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.running
}

func (h *Hub) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case env := <-h.publish:
			h.deliver(env)
		}
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	h.running = false
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.closeConn()
	}
	h.log.Info("realtime hub stopped", slog.Int("closed_connections", len(clients)))
}

// ServeConn 接管一條已升級的 WebSocket 連線直到斷線
// token 不為空時視同連線後立即送出 authenticate
func (h *Hub) ServeConn(conn *websocket.Conn, token string) {
	c, ok := h.register(conn)
	if !ok {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, ErrHubNotStarted.Error()),
			time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}

	go c.writePump()
	go c.processPump(strings.TrimSpace(token))
	c.readPump()
}

func (h *Hub) register(conn *websocket.Conn) (*Client, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running {
		return nil, false
	}
	c := newClient(h, conn, h.ctx)
	h.clients[c] = struct{}{}
	h.metrics.ConnectionOpened()
	h.log.Debug("websocket connected", slog.String("conn_id", c.id))
	return c, true
}

// unregister 清除連線的所有狀態；身分最後一條連線斷開時廣播 user_offline
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if c.closed {
		h.mu.Unlock()
		return
	}
	c.closed = true
	delete(h.clients, c)
	h.leaveAllLocked(c)

	var offline *PresenceEvent
	if c.identity != nil && h.releaseLocked(c.identity.ID) {
		offline = &PresenceEvent{UserID: c.identity.ID, LastSeen: h.now().UTC().Format(time.RFC3339)}
	}
	online := len(h.presence)
	close(c.send)
	h.mu.Unlock()

	c.cancel()
	h.metrics.ConnectionClosed()
	h.metrics.OnlineUsers(online)
	h.log.Debug("websocket disconnected", slog.String("conn_id", c.id))

	if offline != nil {
		h.broadcastGlobal(EventUserOffline, offline)
	}
}

// enqueue 非阻塞地把事件交給事件迴圈，佇列滿時丟棄
func (h *Hub) enqueue(env Envelope) {
	select {
	case h.publish <- env:
	default:
		h.metrics.EventDropped("publish_queue_full")
		h.log.Warn("realtime publish queue full, event dropped",
			slog.String("event", env.Event),
			slog.String("conversation_id", env.ConversationID))
	}
}

// enqueueRelay 非阻塞地排入 relay 佇列，由 relayLoop 依序送出
func (h *Hub) enqueueRelay(env Envelope) {
	select {
	case h.outbound <- env:
	default:
		h.metrics.EventDropped("relay_queue_full")
		h.log.Warn("realtime relay queue full, event dropped",
			slog.String("event", env.Event),
			slog.String("conversation_id", env.ConversationID))
	}
}

// relayLoop 單一 goroutine 依排入順序呼叫 relay.Publish
func (h *Hub) relayLoop(ctx context.Context, relay Relay) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-h.outbound:
			h.relayOne(ctx, relay, env)
		}
	}
}

func (h *Hub) relayOne(ctx context.Context, relay Relay, env Envelope) {
	ctx, cancel := context.WithTimeout(ctx, h.opts.RelayTimeout)
	defer cancel()

	if err := relay.Publish(ctx, env); err != nil {
		h.metrics.EventDropped("relay_failed")
		h.log.Warn("relay publish failed",
			slog.String("event", env.Event),
			slog.String("conversation_id", env.ConversationID),
			slog.Any("error", err))
	}
}

// enqueueRemote 處理其他程序送來的事件；上線狀態不經過 relay，沒有對話 ID 的事件一律丟棄
func (h *Hub) enqueueRemote(env Envelope) {
	if env.ConversationID == "" {
		h.metrics.EventDropped("missing_conversation")
		h.log.Warn("relayed event without conversation id dropped", slog.String("event", env.Event))
		return
	}
	h.enqueue(env)
}

// deliver 送給目前在房間內的連線；ConversationID 為空時送給所有連線
func (h *Hub) deliver(env Envelope) {
	frame, err := encodeFrame(env.Event, env.Payload)
	if err != nil {
		h.metrics.EventDropped("encode_failed")
		h.log.Error("encode broadcast frame", slog.String("event", env.Event), slog.Any("error", err))
		return
	}

	h.mu.Lock()
	targets := h.clients
	if env.ConversationID != "" {
		targets = h.rooms[env.ConversationID]
	}
	delivered := 0
	for c := range targets {
		if h.offerLocked(c, frame) {
			delivered++
		}
	}
	h.mu.Unlock()

	h.metrics.EventBroadcast(env.Event, delivered)
}

// offerLocked 非阻塞寫入連線的發送佇列；佇列已滿的連線會被關閉
func (h *Hub) offerLocked(c *Client, frame []byte) bool {
	if c.closed || c.dropping {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		c.dropping = true
		h.metrics.EventDropped("slow_consumer")
		h.log.Warn("websocket send queue full, closing connection", slog.String("conn_id", c.id))
		c.closeConn()
		return false
	}
}

func (h *Hub) reply(c *Client, event string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		h.log.Error("encode reply payload", slog.String("event", event), slog.Any("error", err))
		return
	}
	frame, err := encodeFrame(event, raw)
	if err != nil {
		h.log.Error("encode reply frame", slog.String("event", event), slog.Any("error", err))
		return
	}

	h.mu.Lock()
	h.offerLocked(c, frame)
	h.mu.Unlock()
}

func (h *Hub) replyError(c *Client, event, code, message string) {
	h.reply(c, event, ErrorEvent{Code: code, Message: message})
}

// broadcastGlobal 上線狀態只在本機程序內廣播，不經過 relay
func (h *Hub) broadcastGlobal(event string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		h.log.Error("encode global payload", slog.String("event", event), slog.Any("error", err))
		return
	}
	h.enqueue(Envelope{Event: event, Payload: raw})
}

func (h *Hub) identity(c *Client) (Identity, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.identity == nil {
		return Identity{}, false
	}
	return *c.identity, true
}

func (h *Hub) live(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !c.closed
}

// joinRoom 連線在等待成員查詢期間已斷線時回傳 false
func (h *Hub) joinRoom(c *Client, conversationID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c.closed {
		return false
	}
	room, ok := h.rooms[conversationID]
	if !ok {
		room = make(map[*Client]struct{})
		h.rooms[conversationID] = room
	}
	room[c] = struct{}{}
	c.rooms[conversationID] = struct{}{}
	return true
}

func (h *Hub) leaveRoom(c *Client, conversationID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, conversationID)
}

func (h *Hub) leaveLocked(c *Client, conversationID string) {
	delete(c.rooms, conversationID)
	room, ok := h.rooms[conversationID]
	if !ok {
		return
	}
	delete(room, c)
	if len(room) == 0 {
		delete(h.rooms, conversationID)
	}
}

func (h *Hub) leaveAllLocked(c *Client) {
	for id := range c.rooms {
		h.leaveLocked(c, id)
	}
}

// acquireLocked 回傳這是否為該身分的第一條連線
func (h *Hub) acquireLocked(userID string) bool {
	h.presence[userID]++
	return h.presence[userID] == 1
}

// releaseLocked 回傳該身分是否已沒有任何連線
func (h *Hub) releaseLocked(userID string) bool {
	n := h.presence[userID] - 1
	if n <= 0 {
		delete(h.presence, userID)
		return true
	}
	h.presence[userID] = n
	return false
}

// RoomSize 房間內目前的連線數
func (h *Hub) RoomSize(conversationID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[conversationID])
}

// ConnectionCount 目前的連線數
func (h *Hub) ConnectionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// OnlineUsers 已排序的上線身分 ID
func (h *Hub) OnlineUsers() []string {
	h.mu.Lock()
	ids := make([]string, 0, len(h.presence))
	for id := range h.presence {
		ids = append(ids, id)
	}
	h.mu.Unlock()

	sort.Strings(ids)
	return ids
}

func (h *Hub) IsOnline(userID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.presence[userID] > 0
}
