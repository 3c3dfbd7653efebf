package repository

import (
	"errors"

	"gorm.io/gorm"

	"estatechat/internal/storage"
)

// ErrNotFound 查無資料
var ErrNotFound = errors.New("record not found")

type Repositories struct {
	User         UserRepository
	Conversation ConversationRepository
	Offer        OfferRepository
	Appointment  AppointmentRepository
}

func NewRepositories(db *storage.PostgresDB) *Repositories {
	return &Repositories{
		User:         NewUserRepository(db),
		Conversation: NewConversationRepository(db),
		Offer:        NewOfferRepository(db),
		Appointment:  NewAppointmentRepository(db),
	}
}

// translate 把 gorm 的查無資料錯誤轉成 ErrNotFound
func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
