package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Conversation 買賣雙方針對一個物件的對話
//
// 較早建立的對話只記錄 BuyerID / SellerID；之後加入的成員會寫進 Participants，
// 一旦 Participants 有資料就以它為準。
type Conversation struct {
	ID             string                    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	PropertyID     string                    `gorm:"type:varchar(64);index" json:"propertyId,omitempty"`
	BuyerID        string                    `gorm:"type:varchar(64);index" json:"buyerId,omitempty"`
	SellerID       string                    `gorm:"type:varchar(64);index" json:"sellerId,omitempty"`
	Participants   []ConversationParticipant `gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE" json:"participants,omitempty"`
	LastActivityAt *time.Time                `json:"lastActivityAt,omitempty"`
	CreatedAt      time.Time                 `json:"createdAt"`
	UpdatedAt      time.Time                 `json:"updatedAt"`
}

// ConversationParticipant 對話成員
type ConversationParticipant struct {
	ConversationID string    `gorm:"primaryKey;type:varchar(64)" json:"conversationId"`
	UserID         string    `gorm:"primaryKey;type:varchar(64)" json:"userId"`
	JoinedAt       time.Time `gorm:"autoCreateTime" json:"joinedAt"`
}

func (c *Conversation) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// ParticipantIDs 回傳成員 ID 列表
func (c *Conversation) ParticipantIDs() []string {
	ids := make([]string, 0, len(c.Participants))
	for _, p := range c.Participants {
		ids = append(ids, p.UserID)
	}
	return ids
}
