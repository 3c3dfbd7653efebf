package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Appointment 看屋或簽約的預約
type Appointment struct {
	ID             string            `gorm:"primaryKey;type:varchar(64)" json:"id"`
	ConversationID string            `gorm:"type:varchar(64);index;not null" json:"conversationId"`
	RequesterID    string            `gorm:"type:varchar(64);not null" json:"requesterId"`
	ScheduledFor   time.Time         `gorm:"not null" json:"scheduledFor"`
	Duration       int               `json:"duration"` // 以分鐘為單位
	Type           string            `gorm:"type:varchar(30)" json:"type,omitempty"`
	Notes          string            `gorm:"type:text" json:"notes,omitempty"`
	Location       string            `json:"location,omitempty"`
	Status         AppointmentStatus `gorm:"type:varchar(20);not null" json:"status"`
	CreatedAt      time.Time         `json:"createdAt"`
}

type AppointmentStatus string

const (
	AppointmentStatusScheduled AppointmentStatus = "scheduled"
	AppointmentStatusCancelled AppointmentStatus = "cancelled"
)

func (a *Appointment) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
