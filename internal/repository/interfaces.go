//go:generate go run go.uber.org/mock/mockgen -source=interfaces.go -destination=../mocks/mock_repositories.go -package=mocks
package repository

import (
	"context"

	"estatechat/internal/models"
)

type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// ConversationRepository FindByID 會一併載入 Participants，查無資料時回傳 ErrNotFound
type ConversationRepository interface {
	Create(ctx context.Context, conversation *models.Conversation) error
	FindByID(ctx context.Context, id string) (*models.Conversation, error)
	AddParticipants(ctx context.Context, conversationID string, userIDs ...string) error
	// RemoveParticipant 在同一個交易內先寫入 seed 成員再移除 userID
	RemoveParticipant(ctx context.Context, conversationID, userID string, seed ...string) error
}

// OfferRepository Create 在同一個交易內寫入出價並更新對話的最後活動時間
type OfferRepository interface {
	Create(ctx context.Context, offer *models.Offer) error
}

type AppointmentRepository interface {
	Create(ctx context.Context, appointment *models.Appointment) error
}
