package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"estatechat/internal/models"
	"estatechat/internal/storage"
)

type conversationRepository struct {
	db *storage.PostgresDB
}

func NewConversationRepository(db *storage.PostgresDB) ConversationRepository {
	return &conversationRepository{db: db}
}

func (r *conversationRepository) Create(ctx context.Context, conversation *models.Conversation) error {
	return r.db.WithContext(ctx).Create(conversation).Error
}

// FindByID 每次都直接讀資料庫，成員資格不做快取
func (r *conversationRepository) FindByID(ctx context.Context, id string) (*models.Conversation, error) {
	var conversation models.Conversation
	err := r.db.WithContext(ctx).
		Preload("Participants").
		First(&conversation, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &conversation, nil
}

func (r *conversationRepository) AddParticipants(ctx context.Context, conversationID string, userIDs ...string) error {
	if len(userIDs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return insertParticipants(tx, conversationID, userIDs)
	})
}

// RemoveParticipant seed 不為空時先在同一個交易內寫入 seed 成員，再刪除 userID
func (r *conversationRepository) RemoveParticipant(ctx context.Context, conversationID, userID string, seed ...string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(seed) > 0 {
			if err := insertParticipants(tx, conversationID, seed); err != nil {
				return err
			}
		}
		return tx.Where("conversation_id = ? AND user_id = ?", conversationID, userID).
			Delete(&models.ConversationParticipant{}).Error
	})
}

// insertParticipants 對話不存在時回傳 ErrNotFound，已存在的成員略過
func insertParticipants(tx *gorm.DB, conversationID string, userIDs []string) error {
	var count int64
	if err := tx.Model(&models.Conversation{}).Where("id = ?", conversationID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrNotFound
	}

	rows := make([]models.ConversationParticipant, 0, len(userIDs))
	for _, id := range userIDs {
		rows = append(rows, models.ConversationParticipant{ConversationID: conversationID, UserID: id})
	}
	return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
}
