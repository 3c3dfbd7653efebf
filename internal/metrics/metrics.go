// Package metrics 收集即時連線層的 Prometheus 指標並提供 /metrics 端點。
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector 即時連線層的指標
type Collector struct {
	connections      prometheus.Gauge
	onlineUsers      prometheus.Gauge
	eventsReceived   *prometheus.CounterVec
	broadcasts       *prometheus.CounterVec
	deliveries       prometheus.Counter
	dropped          *prometheus.CounterVec
	authFailures     *prometheus.CounterVec
	membershipDenied *prometheus.CounterVec
}

// NewCollector 建立 Collector 並註冊到指定的 Registerer
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "estatechat_ws_connections",
			Help: "Live websocket connections.",
		}),
		onlineUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "estatechat_online_users",
			Help: "Distinct identities with at least one live connection.",
		}),
		eventsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "estatechat_ws_events_received_total",
			Help: "Inbound websocket events by name.",
		}, []string{"event"}),
		broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "estatechat_broadcasts_total",
			Help: "Broadcasts fanned out by event name.",
		}, []string{"event"}),
		deliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "estatechat_broadcast_deliveries_total",
			Help: "Frames queued to individual connections by broadcasts.",
		}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "estatechat_events_dropped_total",
			Help: "Events dropped before delivery by reason.",
		}, []string{"reason"}),
		authFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "estatechat_auth_failures_total",
			Help: "Failed websocket authentications by code.",
		}, []string{"code"}),
		membershipDenied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "estatechat_membership_denied_total",
			Help: "Actions refused because the identity is not a conversation member.",
		}, []string{"event"}),
	}

	reg.MustRegister(
		c.connections,
		c.onlineUsers,
		c.eventsReceived,
		c.broadcasts,
		c.deliveries,
		c.dropped,
		c.authFailures,
		c.membershipDenied,
	)
	return c
}

func (c *Collector) ConnectionOpened() { c.connections.Inc() }

func (c *Collector) ConnectionClosed() { c.connections.Dec() }

func (c *Collector) OnlineUsers(n int) { c.onlineUsers.Set(float64(n)) }

func (c *Collector) EventReceived(event string) { c.eventsReceived.WithLabelValues(event).Inc() }

// EventBroadcast 記錄一次廣播與實際送達的連線數
func (c *Collector) EventBroadcast(event string, recipients int) {
	c.broadcasts.WithLabelValues(event).Inc()
	c.deliveries.Add(float64(recipients))
}

func (c *Collector) EventDropped(reason string) { c.dropped.WithLabelValues(reason).Inc() }

func (c *Collector) AuthFailed(code string) { c.authFailures.WithLabelValues(code).Inc() }

func (c *Collector) MembershipDenied(event string) { c.membershipDenied.WithLabelValues(event).Inc() }

// Handler 回傳 Prometheus 指標的 HTTP handler
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
