package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCollector_Counters(t *testing.T) {
	req := require.New(t)
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.ConnectionOpened()
	c.ConnectionOpened()
	c.ConnectionClosed()
	req.Equal(1.0, testutil.ToFloat64(c.connections))

	c.OnlineUsers(3)
	req.Equal(3.0, testutil.ToFloat64(c.onlineUsers))

	c.EventBroadcast("new_message", 2)
	c.EventBroadcast("new_message", 3)
	req.Equal(2.0, testutil.ToFloat64(c.broadcasts.WithLabelValues("new_message")))
	req.Equal(5.0, testutil.ToFloat64(c.deliveries))

	c.EventDropped("queue_full")
	c.AuthFailed("AUTH_TOKEN_INVALID")
	c.MembershipDenied("join_conversation")
	c.EventReceived("typing_start")
	req.Equal(1.0, testutil.ToFloat64(c.dropped.WithLabelValues("queue_full")))
	req.Equal(1.0, testutil.ToFloat64(c.authFailures.WithLabelValues("AUTH_TOKEN_INVALID")))
	req.Equal(1.0, testutil.ToFloat64(c.membershipDenied.WithLabelValues("join_conversation")))
	req.Equal(1.0, testutil.ToFloat64(c.eventsReceived.WithLabelValues("typing_start")))
}

func TestHandler_ExposesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.ConnectionOpened()

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "estatechat_ws_connections 1")
}
