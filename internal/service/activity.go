package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"estatechat/internal/models"
	"estatechat/internal/realtime"
	"estatechat/internal/repository"
)

type CreateOfferInput struct {
	Amount       float64    `json:"amount" binding:"required,gt=0"`
	PaymentTerms string     `json:"paymentTerms" binding:"max=255"`
	ClosingDate  *time.Time `json:"closingDate"`
	Conditions   string     `json:"conditions" binding:"max=5000"`
	ValidUntil   *time.Time `json:"validUntil"`
}

// OfferService 出價寫入資料庫後才通知對話中的連線
type OfferService struct {
	conversations *ConversationService
	repo          repository.OfferRepository
	publisher     Publisher
	log           *slog.Logger
}

func NewOfferService(conversations *ConversationService, repo repository.OfferRepository, publisher Publisher, log *slog.Logger) *OfferService {
	return &OfferService{conversations: conversations, repo: repo, publisher: publisher, log: log}
}

func (s *OfferService) Create(ctx context.Context, senderID, conversationID string, in CreateOfferInput) (*models.Offer, error) {
	if in.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}
	if _, _, err := s.conversations.authorize(ctx, senderID, conversationID); err != nil {
		return nil, err
	}

	offer := &models.Offer{
		ConversationID: conversationID,
		SenderID:       senderID,
		Amount:         in.Amount,
		PaymentTerms:   in.PaymentTerms,
		ClosingDate:    in.ClosingDate,
		Conditions:     in.Conditions,
		ValidUntil:     in.ValidUntil,
		Status:         models.OfferStatusPending,
	}
	if err := s.repo.Create(ctx, offer); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("create offer: %w", err)
	}

	s.publisher.Publish(conversationID, realtime.EventNewOffer, offer)
	s.log.Info("offer created",
		slog.String("offer_id", offer.ID),
		slog.String("conversation_id", conversationID),
		slog.String("sender_id", senderID))
	return offer, nil
}

type ScheduleAppointmentInput struct {
	ScheduledFor time.Time `json:"scheduledFor" binding:"required"`
	Duration     int       `json:"duration" binding:"gte=0,lte=1440"`
	Type         string    `json:"type" binding:"max=30"`
	Notes        string    `json:"notes" binding:"max=5000"`
	Location     string    `json:"location" binding:"max=255"`
}

type AppointmentService struct {
	conversations *ConversationService
	repo          repository.AppointmentRepository
	publisher     Publisher
	log           *slog.Logger
}

func NewAppointmentService(conversations *ConversationService, repo repository.AppointmentRepository, publisher Publisher, log *slog.Logger) *AppointmentService {
	return &AppointmentService{conversations: conversations, repo: repo, publisher: publisher, log: log}
}

func (s *AppointmentService) Schedule(ctx context.Context, requesterID, conversationID string, in ScheduleAppointmentInput) (*models.Appointment, error) {
	if in.ScheduledFor.IsZero() {
		return nil, fmt.Errorf("%w: scheduledFor is required", ErrInvalidInput)
	}
	if in.Duration < 0 {
		return nil, fmt.Errorf("%w: duration must not be negative", ErrInvalidInput)
	}
	if _, _, err := s.conversations.authorize(ctx, requesterID, conversationID); err != nil {
		return nil, err
	}

	if in.Type == "" {
		in.Type = "viewing"
	}
	appointment := &models.Appointment{
		ConversationID: conversationID,
		RequesterID:    requesterID,
		ScheduledFor:   in.ScheduledFor.UTC(),
		Duration:       in.Duration,
		Type:           in.Type,
		Notes:          in.Notes,
		Location:       in.Location,
		Status:         models.AppointmentStatusScheduled,
	}
	if err := s.repo.Create(ctx, appointment); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("create appointment: %w", err)
	}

	s.publisher.Publish(conversationID, realtime.EventAppointmentScheduled, appointment)
	s.log.Info("appointment scheduled",
		slog.String("appointment_id", appointment.ID),
		slog.String("conversation_id", conversationID),
		slog.String("requester_id", requesterID))
	return appointment, nil
}
