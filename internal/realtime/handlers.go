package realtime

import (
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"estatechat/internal/models"
)

var knownEvents = map[string]struct{}{
	EventAuthenticate:        {},
	EventJoinConversation:    {},
	EventLeaveConversation:   {},
	EventSendMessage:         {},
	EventSendOffer:           {},
	EventScheduleAppointment: {},
	EventTypingStart:         {},
	EventTypingStop:          {},
	EventMarkRead:            {},
	EventPing:                {},
}

func (h *Hub) dispatch(c *Client, f Frame) {
	if _, ok := knownEvents[f.Event]; !ok {
		h.metrics.EventReceived("unknown")
		h.replyError(c, EventError, CodeUnknownEvent, "unknown event: "+f.Event)
		return
	}
	h.metrics.EventReceived(f.Event)

	switch f.Event {
	case EventAuthenticate:
		var p authenticatePayload
		if h.decode(c, f, &p) {
			h.authenticate(c, p.Token)
		}
	case EventJoinConversation:
		h.handleJoin(c, f)
	case EventLeaveConversation:
		h.handleLeave(c, f)
	case EventSendMessage:
		h.handleSendMessage(c, f)
	case EventSendOffer:
		h.handleSendOffer(c, f)
	case EventScheduleAppointment:
		h.handleScheduleAppointment(c, f)
	case EventTypingStart, EventTypingStop:
		h.handleTyping(c, f)
	case EventMarkRead:
		h.handleMarkRead(c, f)
	case EventPing:
		h.reply(c, EventPong, struct{}{})
	}
}

func errorEvent(event string) string {
	if event == EventAuthenticate {
		return EventAuthenticationError
	}
	if name, ok := errorEventFor[event]; ok {
		return name
	}
	return EventError
}

// decode 解析並驗證 payload，失敗時已回覆錯誤
func (h *Hub) decode(c *Client, f Frame, dst any) bool {
	raw := f.Payload
	if len(raw) == 0 || string(raw) == "null" {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		h.replyError(c, errorEvent(f.Event), CodeValidation, "invalid payload")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		h.replyError(c, errorEvent(f.Event), CodeValidation, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid payload"
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field()+" failed "+fe.Tag())
	}
	return strings.Join(fields, "; ")
}

func (h *Hub) authenticate(c *Client, token string) {
	token = strings.TrimSpace(token)
	if token == "" {
		h.authFailed(c, CodeTokenMissing, "token is required")
		return
	}
	claims, err := h.tokens.ParseToken(token)
	if err != nil {
		h.log.Info("websocket authentication failed", slog.String("conn_id", c.id), slog.Any("error", err))
		h.authFailed(c, CodeTokenInvalid, "invalid or expired token")
		return
	}
	ident := Identity{ID: claims.UserID, Role: claims.Role}

	var (
		offline      *PresenceEvent
		cameOnline   bool
		identChanged bool
	)
	h.mu.Lock()
	if c.closed {
		h.mu.Unlock()
		return
	}
	prev := c.identity
	if prev == nil || prev.ID != ident.ID {
		identChanged = true
		if prev != nil {
			// 換身分時舊身分的房間資格一併失效
			h.leaveAllLocked(c)
			if h.releaseLocked(prev.ID) {
				offline = &PresenceEvent{UserID: prev.ID, LastSeen: h.now().UTC().Format(time.RFC3339)}
			}
		}
		cameOnline = h.acquireLocked(ident.ID)
	}
	c.identity = &ident
	online := len(h.presence)
	h.mu.Unlock()

	if identChanged {
		h.metrics.OnlineUsers(online)
		h.log.Debug("websocket authenticated", slog.String("conn_id", c.id), slog.String("user_id", ident.ID))
	}
	h.reply(c, EventAuthenticated, AuthenticatedEvent{UserID: ident.ID, Role: ident.Role})
	if offline != nil {
		h.broadcastGlobal(EventUserOffline, offline)
	}
	if cameOnline {
		h.broadcastGlobal(EventUserOnline, PresenceEvent{UserID: ident.ID})
	}
}

func (h *Hub) authFailed(c *Client, code, message string) {
	h.metrics.AuthFailed(code)
	h.replyError(c, EventAuthenticationError, code, message)
}

// requireIdentity 未驗證的連線回覆 AUTH_REQUIRED
func (h *Hub) requireIdentity(c *Client) (Identity, bool) {
	ident, ok := h.identity(c)
	if !ok {
		h.metrics.AuthFailed(CodeAuthRequired)
		h.replyError(c, EventAuthenticationError, CodeAuthRequired, "authenticate before sending this event")
	}
	return ident, ok
}

// checkMember 向 MembershipAuthority 重新確認成員資格
// 查詢期間連線已關閉時結果直接丟棄
func (h *Hub) checkMember(c *Client, ident Identity, event, conversationID string) bool {
	member, err := h.members.IsMember(c.ctx, ident.ID, conversationID)
	if c.ctx.Err() != nil || !h.live(c) {
		h.log.Debug("connection closed during membership check",
			slog.String("conn_id", c.id),
			slog.String("event", event))
		return false
	}
	if err != nil {
		h.log.Error("membership lookup failed",
			slog.String("conn_id", c.id),
			slog.String("user_id", ident.ID),
			slog.String("conversation_id", conversationID),
			slog.Any("error", err))
		h.replyError(c, errorEvent(event), CodeInternal, "membership lookup failed")
		return false
	}
	if !member {
		h.metrics.MembershipDenied(event)
		h.replyError(c, errorEvent(event), CodeForbidden, "not a participant of this conversation")
		return false
	}
	return true
}

func (h *Hub) handleJoin(c *Client, f Frame) {
	ident, ok := h.requireIdentity(c)
	if !ok {
		return
	}
	var p conversationPayload
	if !h.decode(c, f, &p) || !h.checkMember(c, ident, f.Event, p.ConversationID) {
		return
	}
	if !h.joinRoom(c, p.ConversationID) {
		return
	}
	h.reply(c, EventJoinedConversation, JoinedEvent{ConversationID: p.ConversationID})
}

// handleLeave 離開不需要成員資格，沒加入過的房間視為成功
func (h *Hub) handleLeave(c *Client, f Frame) {
	if _, ok := h.requireIdentity(c); !ok {
		return
	}
	var p conversationPayload
	if !h.decode(c, f, &p) {
		return
	}
	h.leaveRoom(c, p.ConversationID)
}

func (h *Hub) handleSendMessage(c *Client, f Frame) {
	ident, ok := h.requireIdentity(c)
	if !ok {
		return
	}
	var p sendMessagePayload
	if !h.decode(c, f, &p) {
		return
	}
	if strings.TrimSpace(p.Content) == "" {
		h.replyError(c, errorEvent(f.Event), CodeValidation, "Content failed required")
		return
	}
	if !h.checkMember(c, ident, f.Event, p.ConversationID) {
		return
	}

	if p.Type == "" {
		p.Type = "text"
	}
	h.bridge.Publish(p.ConversationID, EventNewMessage, MessageEvent{
		ID:             uuid.NewString(),
		ConversationID: p.ConversationID,
		Content:        p.Content,
		SenderID:       ident.ID,
		Type:           p.Type,
		Meta:           p.Meta,
		IsRead:         false,
		CreatedAt:      h.now().UTC(),
	})
}

func (h *Hub) handleSendOffer(c *Client, f Frame) {
	ident, ok := h.requireIdentity(c)
	if !ok {
		return
	}
	var p sendOfferPayload
	if !h.decode(c, f, &p) || !h.checkMember(c, ident, f.Event, p.ConversationID) {
		return
	}

	h.bridge.Publish(p.ConversationID, EventNewOffer, models.Offer{
		ID:             uuid.NewString(),
		ConversationID: p.ConversationID,
		SenderID:       ident.ID,
		Amount:         p.Amount,
		PaymentTerms:   p.PaymentTerms,
		ClosingDate:    p.ClosingDate,
		Conditions:     p.Conditions,
		ValidUntil:     p.ValidUntil,
		Status:         models.OfferStatusPending,
		CreatedAt:      h.now().UTC(),
	})
}

func (h *Hub) handleScheduleAppointment(c *Client, f Frame) {
	ident, ok := h.requireIdentity(c)
	if !ok {
		return
	}
	var p scheduleAppointmentPayload
	if !h.decode(c, f, &p) {
		return
	}
	if p.ScheduledFor.IsZero() {
		h.replyError(c, errorEvent(f.Event), CodeValidation, "ScheduledFor failed required")
		return
	}
	if !h.checkMember(c, ident, f.Event, p.ConversationID) {
		return
	}

	if p.Type == "" {
		p.Type = "viewing"
	}
	h.bridge.Publish(p.ConversationID, EventAppointmentScheduled, models.Appointment{
		ID:             uuid.NewString(),
		ConversationID: p.ConversationID,
		RequesterID:    ident.ID,
		ScheduledFor:   p.ScheduledFor.UTC(),
		Duration:       p.Duration,
		Type:           p.Type,
		Notes:          p.Notes,
		Location:       p.Location,
		Status:         models.AppointmentStatusScheduled,
		CreatedAt:      h.now().UTC(),
	})
}

func (h *Hub) handleTyping(c *Client, f Frame) {
	ident, ok := h.requireIdentity(c)
	if !ok {
		return
	}
	var p conversationPayload
	if !h.decode(c, f, &p) || !h.checkMember(c, ident, f.Event, p.ConversationID) {
		return
	}

	event := EventUserTyping
	if f.Event == EventTypingStop {
		event = EventUserStopTyping
	}
	h.bridge.Publish(p.ConversationID, event, TypingEvent{UserID: ident.ID, ConversationID: p.ConversationID})
}

func (h *Hub) handleMarkRead(c *Client, f Frame) {
	ident, ok := h.requireIdentity(c)
	if !ok {
		return
	}
	var p markReadPayload
	if !h.decode(c, f, &p) || !h.checkMember(c, ident, f.Event, p.ConversationID) {
		return
	}

	h.bridge.Publish(p.ConversationID, EventMessagesRead, ReadEvent{
		UserID:         ident.ID,
		MessageIDs:     p.MessageIDs,
		ConversationID: p.ConversationID,
	})
}
