package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"estatechat/internal/utils"
)

const readTimeout = 2 * time.Second

// fakeTokens 接受 "tok-<userID>" 形式的 token
type fakeTokens struct{}

func (fakeTokens) ParseToken(token string) (*utils.Claims, error) {
	id, ok := strings.CutPrefix(token, "tok-")
	if !ok || id == "" {
		return nil, errors.New("token is malformed")
	}
	return &utils.Claims{UserID: id, Role: "buyer"}, nil
}

type fakeMembers struct {
	mu      sync.Mutex
	members map[string]map[string]bool
	err     error
	calls   int
	gate    chan struct{}
	entered chan struct{}
}

func newFakeMembers() *fakeMembers {
	return &fakeMembers{members: make(map[string]map[string]bool)}
}

func (f *fakeMembers) add(conversationID string, userIDs ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.members[conversationID] == nil {
		f.members[conversationID] = make(map[string]bool)
	}
	for _, id := range userIDs {
		f.members[conversationID][id] = true
	}
}

func (f *fakeMembers) revoke(conversationID, userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.members[conversationID], userID)
}

func (f *fakeMembers) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeMembers) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// block 讓之後的查詢停在 gate 直到 release，期間不理會 ctx
func (f *fakeMembers) block() (entered <-chan struct{}, release func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = make(chan struct{})
	f.entered = make(chan struct{}, 1)
	gate := f.gate
	return f.entered, func() { close(gate) }
}

func (f *fakeMembers) IsMember(_ context.Context, userID, conversationID string) (bool, error) {
	f.mu.Lock()
	f.calls++
	gate, entered, err := f.gate, f.entered, f.err
	ok := f.members[conversationID][userID]
	f.mu.Unlock()

	if gate != nil {
		entered <- struct{}{}
		<-gate
	}
	return ok, err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testEnv struct {
	hub     *Hub
	members *fakeMembers
	srv     *httptest.Server
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	members := newFakeMembers()
	h := NewHub(fakeTokens{}, members, nil, discardLogger(), opts)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, h.Start(ctx))

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		h.ServeConn(conn, r.URL.Query().Get("token"))
	}))

	t.Cleanup(func() {
		cancel()
		h.Stop()
		srv.Close()
	})
	return &testEnv{hub: h, members: members, srv: srv}
}

type testConn struct {
	t    *testing.T
	conn *websocket.Conn
}

func (e *testEnv) dial(t *testing.T, token string) *testConn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/"
	if token != "" {
		url += "?token=" + token
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &testConn{t: t, conn: conn}
}

// connect 建立連線並以 userID 完成驗證
func (e *testEnv) connect(t *testing.T, userID string) *testConn {
	t.Helper()
	c := e.dial(t, "")
	c.authenticate(userID)
	return c
}

func (c *testConn) send(event string, payload any) {
	c.t.Helper()
	f := Frame{Event: event}
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(c.t, err)
		f.Payload = raw
	}
	require.NoError(c.t, c.conn.WriteJSON(f))
}

func (c *testConn) next() Frame {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(readTimeout)))
	var f Frame
	require.NoError(c.t, c.conn.ReadJSON(&f))
	return f
}

func isPresence(event string) bool {
	return event == EventUserOnline || event == EventUserOffline
}

// expect 讀到指定事件為止，略過上線狀態事件；收到其他事件視為失敗
func (c *testConn) expect(event string) Frame {
	c.t.Helper()
	for {
		f := c.next()
		if f.Event == event {
			return f
		}
		if isPresence(f.Event) {
			continue
		}
		c.t.Fatalf("expected %q, got %q: %s", event, f.Event, f.Payload)
	}
}

func (c *testConn) expectError(event, code string) {
	c.t.Helper()
	var e ErrorEvent
	decodePayload(c.t, c.expect(event), &e)
	require.Equal(c.t, code, e.Code)
}

// quiet 確認在 pong 之前沒有收到任何非上線狀態的事件
func (c *testConn) quiet() {
	c.t.Helper()
	c.send(EventPing, nil)
	c.expect(EventPong)
}

func (c *testConn) authenticate(userID string) {
	c.t.Helper()
	c.send(EventAuthenticate, map[string]string{"token": "tok-" + userID})
	var ev AuthenticatedEvent
	decodePayload(c.t, c.expect(EventAuthenticated), &ev)
	require.Equal(c.t, userID, ev.UserID)
}

func (c *testConn) join(conversationID string) {
	c.t.Helper()
	c.send(EventJoinConversation, map[string]string{"conversationId": conversationID})
	var ev JoinedEvent
	decodePayload(c.t, c.expect(EventJoinedConversation), &ev)
	require.Equal(c.t, conversationID, ev.ConversationID)
}

func decodePayload(t *testing.T, f Frame, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(f.Payload, dst))
}

type fakeRelay struct {
	mu        sync.Mutex
	published []Envelope
	deliver   func(Envelope)
	ready     chan struct{}
}

func newFakeRelay() *fakeRelay {
	return &fakeRelay{ready: make(chan struct{})}
}

// Publish 模擬 pub/sub：送出的事件回到所有訂閱者
func (r *fakeRelay) Publish(_ context.Context, env Envelope) error {
	r.mu.Lock()
	r.published = append(r.published, env)
	deliver := r.deliver
	r.mu.Unlock()
	if deliver != nil {
		deliver(env)
	}
	return nil
}

func (r *fakeRelay) Subscribe(ctx context.Context, deliver func(Envelope)) error {
	r.mu.Lock()
	r.deliver = deliver
	r.mu.Unlock()
	close(r.ready)
	<-ctx.Done()
	return ctx.Err()
}

func (r *fakeRelay) publishedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.published)
}

// delayRelay payload 含有 slow 的事件延遲送出
type delayRelay struct {
	*fakeRelay
	delay time.Duration
}

func (r *delayRelay) Publish(ctx context.Context, env Envelope) error {
	if bytes.Contains(env.Payload, []byte("slow")) {
		time.Sleep(r.delay)
	}
	return r.fakeRelay.Publish(ctx, env)
}
