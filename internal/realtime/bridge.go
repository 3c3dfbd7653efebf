package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
)

// Envelope 在程序之間傳遞的廣播單位
// ConversationID 為空代表送給本機所有連線，只有上線狀態會這樣用，不會經過 relay
type Envelope struct {
	ConversationID string          `json:"conversationId,omitempty"`
	Event          string          `json:"event"`
	Payload        json.RawMessage `json:"payload"`
}

// Relay 讓多個程序共享同一組廣播
type Relay interface {
	Publish(ctx context.Context, env Envelope) error
	// Subscribe 阻塞直到 ctx 結束，收到的每個 Envelope 交給 deliver
	Subscribe(ctx context.Context, deliver func(Envelope)) error
}

// Bridge 所有對話廣播的唯一入口，REST 交易提交後與 WebSocket 動作都經由這裡
type Bridge struct {
	hub *Hub
}

// Publish 把事件送給目前加入該對話房間的連線，不會阻塞呼叫者
// hub 未啟動時只記錄警告，事件不會送出
func (b *Bridge) Publish(conversationID, event string, payload any) {
	h := b.hub
	if !h.Running() {
		h.metrics.EventDropped("hub_not_started")
		h.log.Warn("realtime hub not started, event not broadcast",
			slog.String("event", event),
			slog.String("conversation_id", conversationID))
		return
	}
	if conversationID == "" {
		h.metrics.EventDropped("missing_conversation")
		h.log.Warn("broadcast without conversation id dropped", slog.String("event", event))
		return
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		h.metrics.EventDropped("encode_failed")
		h.log.Error("encode broadcast payload", slog.String("event", event), slog.Any("error", err))
		return
	}

	env := Envelope{ConversationID: conversationID, Event: event, Payload: raw}
	if h.opts.Relay != nil {
		h.enqueueRelay(env)
		return
	}
	h.enqueue(env)
}

// Hub 回傳正在運作的 hub
func (b *Bridge) Hub() (*Hub, error) {
	if !b.hub.Running() {
		return nil, ErrHubNotStarted
	}
	return b.hub, nil
}
