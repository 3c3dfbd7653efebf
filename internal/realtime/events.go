package realtime

import (
	"encoding/json"
	"time"
)

// 客戶端送來的事件
const (
	EventAuthenticate        = "authenticate"
	EventJoinConversation    = "join_conversation"
	EventLeaveConversation   = "leave_conversation"
	EventSendMessage         = "send_message"
	EventSendOffer           = "send_offer"
	EventScheduleAppointment = "schedule_appointment"
	EventTypingStart         = "typing_start"
	EventTypingStop          = "typing_stop"
	EventMarkRead            = "mark_read"
	EventPing                = "ping"
)

// 伺服器送出的事件
const (
	EventAuthenticated        = "authenticated"
	EventAuthenticationError  = "authentication_error"
	EventJoinedConversation   = "joined_conversation"
	EventJoinError            = "join_error"
	EventNewMessage           = "new_message"
	EventNewOffer             = "new_offer"
	EventAppointmentScheduled = "appointment_scheduled"
	EventUserTyping           = "user_typing"
	EventUserStopTyping       = "user_stop_typing"
	EventMessagesRead         = "messages_read"
	EventUserOnline           = "user_online"
	EventUserOffline          = "user_offline"
	EventPong                 = "pong"
	EventError                = "error"
)

// 錯誤代碼
const (
	CodeAuthRequired = "AUTH_REQUIRED"
	CodeTokenMissing = "AUTH_TOKEN_MISSING"
	CodeTokenInvalid = "AUTH_TOKEN_INVALID"
	CodeForbidden    = "CONV_403"
	CodeValidation   = "VALIDATION_400"
	CodeInternal     = "INTERNAL_500"
	CodeRateLimited  = "RATE_429"
	CodeUnknownEvent = "EVENT_UNKNOWN"
	CodeInvalidFrame = "FRAME_INVALID"
)

// errorEventFor 每個動作對應的錯誤事件名稱
var errorEventFor = map[string]string{
	EventJoinConversation:    EventJoinError,
	EventLeaveConversation:   "leave_error",
	EventSendMessage:         "send_message_error",
	EventSendOffer:           "send_offer_error",
	EventScheduleAppointment: "schedule_appointment_error",
	EventTypingStart:         "typing_error",
	EventTypingStop:          "typing_error",
	EventMarkRead:            "mark_read_error",
}

// Frame 雙向共用的 WebSocket 訊框
type Frame struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func encodeFrame(event string, payload json.RawMessage) ([]byte, error) {
	return json.Marshal(Frame{Event: event, Payload: payload})
}

// Identity 通過驗證的身分
type Identity struct {
	ID   string
	Role string
}

type authenticatePayload struct {
	Token string `json:"token"`
}

type conversationPayload struct {
	ConversationID string `json:"conversationId" validate:"required,max=64"`
}

type sendMessagePayload struct {
	ConversationID string         `json:"conversationId" validate:"required,max=64"`
	Content        string         `json:"content" validate:"required,max=5000"`
	Type           string         `json:"type" validate:"omitempty,oneof=text image file system"`
	Meta           map[string]any `json:"meta,omitempty"`
}

type sendOfferPayload struct {
	ConversationID string     `json:"conversationId" validate:"required,max=64"`
	Amount         float64    `json:"amount" validate:"gt=0"`
	PaymentTerms   string     `json:"paymentTerms" validate:"max=255"`
	ClosingDate    *time.Time `json:"closingDate"`
	Conditions     string     `json:"conditions" validate:"max=5000"`
	ValidUntil     *time.Time `json:"validUntil"`
}

type scheduleAppointmentPayload struct {
	ConversationID string    `json:"conversationId" validate:"required,max=64"`
	ScheduledFor   time.Time `json:"scheduledFor"`
	Duration       int       `json:"duration" validate:"gte=0,lte=1440"`
	Type           string    `json:"type" validate:"max=30"`
	Notes          string    `json:"notes" validate:"max=5000"`
	Location       string    `json:"location" validate:"max=255"`
}

type markReadPayload struct {
	ConversationID string   `json:"conversationId" validate:"required,max=64"`
	MessageIDs     []string `json:"messageIds" validate:"required,min=1,dive,required"`
}

// AuthenticatedEvent 驗證成功的回覆
type AuthenticatedEvent struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

// ErrorEvent 只回給發生錯誤的連線
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type JoinedEvent struct {
	ConversationID string `json:"conversationId"`
}

// MessageEvent new_message 的內容
type MessageEvent struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversationId"`
	Content        string         `json:"content"`
	SenderID       string         `json:"senderId"`
	Type           string         `json:"type"`
	Meta           map[string]any `json:"meta,omitempty"`
	IsRead         bool           `json:"isRead"`
	CreatedAt      time.Time      `json:"createdAt"`
}

type TypingEvent struct {
	UserID         string `json:"userId"`
	ConversationID string `json:"conversationId"`
}

type ReadEvent struct {
	UserID         string   `json:"userId"`
	MessageIDs     []string `json:"messageIds"`
	ConversationID string   `json:"conversationId"`
}

// PresenceEvent user_online / user_offline，LastSeen 只有離線時才有
type PresenceEvent struct {
	UserID   string `json:"userId"`
	LastSeen string `json:"lastSeen,omitempty"`
}
