package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Offer 對話中提出的出價
type Offer struct {
	ID             string      `gorm:"primaryKey;type:varchar(64)" json:"id"`
	ConversationID string      `gorm:"type:varchar(64);index;not null" json:"conversationId"`
	SenderID       string      `gorm:"type:varchar(64);not null" json:"senderId"`
	Amount         float64     `gorm:"not null" json:"amount"`
	PaymentTerms   string      `json:"paymentTerms,omitempty"`
	ClosingDate    *time.Time  `json:"closingDate,omitempty"`
	Conditions     string      `gorm:"type:text" json:"conditions,omitempty"`
	ValidUntil     *time.Time  `json:"validUntil,omitempty"`
	Status         OfferStatus `gorm:"type:varchar(20);not null" json:"status"`
	CreatedAt      time.Time   `json:"createdAt"`
}

type OfferStatus string

const (
	OfferStatusPending  OfferStatus = "pending"
	OfferStatusAccepted OfferStatus = "accepted"
	OfferStatusRejected OfferStatus = "rejected"
)

func (o *Offer) BeforeCreate(tx *gorm.DB) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	return nil
}
