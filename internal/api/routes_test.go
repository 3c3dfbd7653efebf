package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"estatechat/internal/metrics"
	"estatechat/internal/mocks"
	"estatechat/internal/models"
	"estatechat/internal/realtime"
	"estatechat/internal/repository"
	"estatechat/internal/service"
	"estatechat/internal/utils"
)

type testServer struct {
	srv    *httptest.Server
	hub    *realtime.Hub
	tokens *utils.TokenManager
	convs  *mocks.MockConversationRepository
	offers *mocks.MockOfferRepository
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	ctrl := gomock.NewController(t)
	repos := &repository.Repositories{
		User:         mocks.NewMockUserRepository(ctrl),
		Conversation: mocks.NewMockConversationRepository(ctrl),
		Offer:        mocks.NewMockOfferRepository(ctrl),
		Appointment:  mocks.NewMockAppointmentRepository(ctrl),
	}
	tokens := utils.NewTokenManager("route-test-secret", time.Hour, "estatechat")

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	// hub 與 services 互相依賴：hub 以 ConversationService 查成員，services 以 hub 的 Bridge 廣播
	convService := service.NewConversationService(repos.Conversation, log)
	hub := realtime.NewHub(tokens, convService, collector, log, realtime.DefaultOptions())
	services := service.NewServices(repos, convService, tokens, hub.Bridge(), log)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, hub.Start(ctx))

	r := gin.New()
	SetupRoutes(r, services, hub, RouteOptions{Gatherer: reg, Log: log})
	srv := httptest.NewServer(r)

	t.Cleanup(func() {
		cancel()
		hub.Stop()
		srv.Close()
	})

	return &testServer{
		srv:    srv,
		hub:    hub,
		tokens: tokens,
		convs:  repos.Conversation.(*mocks.MockConversationRepository),
		offers: repos.Offer.(*mocks.MockOfferRepository),
	}
}

func (s *testServer) token(t *testing.T, userID string) string {
	t.Helper()
	token, err := s.tokens.GenerateToken(userID, "buyer")
	require.NoError(t, err)
	return token
}

func (s *testServer) do(t *testing.T, method, path, userID string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+s.token(t, userID))
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

type wsClient struct {
	t    *testing.T
	conn *websocket.Conn
}

func (s *testServer) dialWS(t *testing.T, userID string) *wsClient {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/api/ws?token=" + s.token(t, userID)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	c := &wsClient{t: t, conn: conn}
	c.expect(realtime.EventAuthenticated)
	return c
}

func (c *wsClient) send(event string, payload any) {
	c.t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(c.t, err)
	require.NoError(c.t, c.conn.WriteJSON(realtime.Frame{Event: event, Payload: raw}))
}

// expect 略過上線狀態事件，收到其他非預期事件視為失敗
func (c *wsClient) expect(event string) realtime.Frame {
	c.t.Helper()
	for {
		require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var f realtime.Frame
		require.NoError(c.t, c.conn.ReadJSON(&f))
		switch f.Event {
		case event:
			return f
		case realtime.EventUserOnline, realtime.EventUserOffline:
			continue
		}
		c.t.Fatalf("expected %q, got %q: %s", event, f.Event, f.Payload)
	}
}

func (c *wsClient) quiet() {
	c.t.Helper()
	c.send(realtime.EventPing, struct{}{})
	c.expect(realtime.EventPong)
}

func conversationWith(id string, userIDs ...string) *models.Conversation {
	conv := &models.Conversation{ID: id}
	for _, u := range userIDs {
		conv.Participants = append(conv.Participants, models.ConversationParticipant{ConversationID: id, UserID: u})
	}
	return conv
}

func TestRESTOffer_BroadcastToJoinedConnectionsOnce(t *testing.T) {
	s := newTestServer(t)
	s.convs.EXPECT().FindByID(gomock.Any(), "conv-2").Return(conversationWith("conv-2", "alice", "bob"), nil).AnyTimes()
	s.offers.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, o *models.Offer) error {
		o.ID = "offer-42"
		o.CreatedAt = time.Now().UTC()
		return nil
	})

	alice := s.dialWS(t, "alice")
	bob := s.dialWS(t, "bob")
	carol := s.dialWS(t, "carol")
	for _, c := range []*wsClient{alice, bob} {
		c.send(realtime.EventJoinConversation, map[string]string{"conversationId": "conv-2"})
		c.expect(realtime.EventJoinedConversation)
	}
	carol.send(realtime.EventJoinConversation, map[string]string{"conversationId": "conv-2"})
	carol.expect(realtime.EventJoinError)

	resp := s.do(t, http.MethodPost, "/api/conversations/conv-2/offers", "alice", map[string]any{"amount": 720000, "paymentTerms": "mortgage"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	for _, c := range []*wsClient{alice, bob} {
		var offer models.Offer
		require.NoError(t, json.Unmarshal(c.expect(realtime.EventNewOffer).Payload, &offer))
		require.Equal(t, "offer-42", offer.ID)
		require.Equal(t, "alice", offer.SenderID)
		require.Equal(t, 720000.0, offer.Amount)
		c.quiet()
	}
	carol.quiet()
}

func TestRESTOffer_Rejections(t *testing.T) {
	s := newTestServer(t)
	s.convs.EXPECT().FindByID(gomock.Any(), "conv-2").Return(conversationWith("conv-2", "alice"), nil).AnyTimes()
	s.convs.EXPECT().FindByID(gomock.Any(), "ghost").Return(nil, repository.ErrNotFound).AnyTimes()

	resp := s.do(t, http.MethodPost, "/api/conversations/conv-2/offers", "", map[string]any{"amount": 1})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/api/conversations/conv-2/offers", "mallory", map[string]any{"amount": 1})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/api/conversations/ghost/offers", "alice", map[string]any{"amount": 1})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/api/conversations/conv-2/offers", "alice", map[string]any{"amount": -1})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPresenceEndpoints(t *testing.T) {
	s := newTestServer(t)
	s.dialWS(t, "alice")
	require.Eventually(t, func() bool { return s.hub.IsOnline("alice") }, 2*time.Second, 10*time.Millisecond)

	resp := s.do(t, http.MethodGet, "/api/presence", "bob", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list struct {
		Online []string `json:"online"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Equal(t, []string{"alice"}, list.Online)

	resp = s.do(t, http.MethodGet, "/api/presence/alice", "bob", nil)
	var one struct {
		UserID string `json:"userId"`
		Online bool   `json:"online"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&one))
	require.True(t, one.Online)

	s.hub.Stop()
	resp = s.do(t, http.MethodGet, "/api/presence", "bob", nil)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/api/ws", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodGet, "/api/health", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var health map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	require.Equal(t, "ok", health["status"])
	require.Equal(t, true, health["realtime"])

	s.dialWS(t, "alice")
	resp = s.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "estatechat_ws_connections")

	resp = s.do(t, http.MethodGet, "/api/nowhere", "", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestConversationEndpoints(t *testing.T) {
	s := newTestServer(t)
	legacy := &models.Conversation{ID: "conv-1", BuyerID: "buyer", SellerID: "seller"}

	s.convs.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, c *models.Conversation) error {
		c.ID = "conv-new"
		return nil
	})
	s.convs.EXPECT().FindByID(gomock.Any(), "conv-1").Return(legacy, nil).AnyTimes()
	s.convs.EXPECT().AddParticipants(gomock.Any(), "conv-1", "buyer", "seller", "agent").Return(nil)
	s.convs.EXPECT().RemoveParticipant(gomock.Any(), "conv-1", "buyer", "buyer", "seller").Return(nil)

	resp := s.do(t, http.MethodPost, "/api/conversations", "agent", map[string]any{"buyerId": "buyer", "sellerId": "seller"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created models.Conversation
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	require.Equal(t, "conv-new", created.ID)
	require.ElementsMatch(t, []string{"buyer", "seller", "agent"}, created.ParticipantIDs())

	resp = s.do(t, http.MethodGet, "/api/conversations/conv-1", "seller", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/api/conversations/conv-1", "stranger", nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/api/conversations/conv-1/participants", "buyer", map[string]string{"userId": "agent"})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/api/conversations/conv-1/participants", "buyer", map[string]string{})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = s.do(t, http.MethodDelete, "/api/conversations/conv-1/participants/buyer", "seller", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
}
