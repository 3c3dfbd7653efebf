package service

import (
	"log/slog"

	"estatechat/internal/repository"
	"estatechat/internal/utils"
)

// Publisher 交易提交後把事件交給即時層，由 realtime.Bridge 實作
type Publisher interface {
	Publish(conversationID, event string, payload any)
}

type Services struct {
	UserService         *UserService
	ConversationService *ConversationService
	OfferService        *OfferService
	AppointmentService  *AppointmentService
}

// NewServices conversations 與 realtime hub 查成員資格用的是同一個實例
func NewServices(repos *repository.Repositories, conversations *ConversationService, tokens *utils.TokenManager, publisher Publisher, log *slog.Logger) *Services {
	return &Services{
		UserService:         NewUserService(repos.User, tokens, log),
		ConversationService: conversations,
		OfferService:        NewOfferService(conversations, repos.Offer, publisher, log),
		AppointmentService:  NewAppointmentService(conversations, repos.Appointment, publisher, log),
	}
}
