package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"estatechat/internal/models"
	"estatechat/internal/storage"
)

type offerRepository struct {
	db *storage.PostgresDB
}

func NewOfferRepository(db *storage.PostgresDB) OfferRepository {
	return &offerRepository{db: db}
}

func (r *offerRepository) Create(ctx context.Context, offer *models.Offer) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(offer).Error; err != nil {
			return err
		}
		return touchConversation(tx, offer.ConversationID, offer.CreatedAt)
	})
}

type appointmentRepository struct {
	db *storage.PostgresDB
}

func NewAppointmentRepository(db *storage.PostgresDB) AppointmentRepository {
	return &appointmentRepository{db: db}
}

func (r *appointmentRepository) Create(ctx context.Context, appointment *models.Appointment) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(appointment).Error; err != nil {
			return err
		}
		return touchConversation(tx, appointment.ConversationID, appointment.CreatedAt)
	})
}

func touchConversation(tx *gorm.DB, conversationID string, at time.Time) error {
	res := tx.Model(&models.Conversation{}).
		Where("id = ?", conversationID).
		Update("last_activity_at", at)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
