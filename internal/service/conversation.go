package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"estatechat/internal/models"
	"estatechat/internal/repository"
)

type ConversationService struct {
	repo repository.ConversationRepository
	log  *slog.Logger
}

func NewConversationService(repo repository.ConversationRepository, log *slog.Logger) *ConversationService {
	return &ConversationService{repo: repo, log: log}
}

type CreateConversationInput struct {
	PropertyID     string   `json:"propertyId"`
	BuyerID        string   `json:"buyerId"`
	SellerID       string   `json:"sellerId"`
	ParticipantIDs []string `json:"participantIds"`
}

// Create 建立對話，建立者一定會是成員
func (s *ConversationService) Create(ctx context.Context, creatorID string, in CreateConversationInput) (*models.Conversation, error) {
	if creatorID == "" {
		return nil, ErrAuthenticationRequired
	}

	ids := make([]string, 0, len(in.ParticipantIDs)+3)
	for _, id := range append(slices.Clone(in.ParticipantIDs), in.BuyerID, in.SellerID, creatorID) {
		id = strings.TrimSpace(id)
		if id != "" && !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	if len(ids) < 2 {
		return nil, fmt.Errorf("%w: a conversation needs at least two participants", ErrInvalidInput)
	}

	conversation := &models.Conversation{
		PropertyID: in.PropertyID,
		BuyerID:    in.BuyerID,
		SellerID:   in.SellerID,
	}
	for _, id := range ids {
		conversation.Participants = append(conversation.Participants, models.ConversationParticipant{UserID: id})
	}

	if err := s.repo.Create(ctx, conversation); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	s.log.Info("conversation created",
		slog.String("conversation_id", conversation.ID),
		slog.String("creator_id", creatorID),
		slog.Int("participants", len(ids)))
	return conversation, nil
}

// Get 只有成員可以讀取
func (s *ConversationService) Get(ctx context.Context, userID, conversationID string) (*models.Conversation, error) {
	conversation, _, err := s.authorize(ctx, userID, conversationID)
	return conversation, err
}

// AddParticipant 只有成員可以邀請；舊資料第一次加人時會先把買賣雙方寫進成員列表
func (s *ConversationService) AddParticipant(ctx context.Context, actorID, conversationID, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("%w: userId is required", ErrInvalidInput)
	}
	_, membership, err := s.authorize(ctx, actorID, conversationID)
	if err != nil {
		return err
	}

	ids := []string{userID}
	if bs, ok := membership.(BuyerSeller); ok {
		ids = append(bs.UserIDs(), userID)
	}
	if err := s.repo.AddParticipants(ctx, conversationID, ids...); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrConversationNotFound
		}
		return fmt.Errorf("add participant: %w", err)
	}
	s.log.Info("participant added",
		slog.String("conversation_id", conversationID),
		slog.String("actor_id", actorID),
		slog.String("user_id", userID))
	return nil
}

// RemoveParticipant 成員可以移除自己或其他成員，但不能移除最後一位
// 舊資料會在同一個交易內先寫入買賣雙方
func (s *ConversationService) RemoveParticipant(ctx context.Context, actorID, conversationID, userID string) error {
	_, membership, err := s.authorize(ctx, actorID, conversationID)
	if err != nil {
		return err
	}
	current := memberIDs(membership)
	if !slices.Contains(current, userID) {
		return nil
	}
	if len(current) == 1 {
		return fmt.Errorf("%w: cannot remove the last participant", ErrInvalidInput)
	}

	var seed []string
	if bs, ok := membership.(BuyerSeller); ok {
		seed = bs.UserIDs()
	}
	if err := s.repo.RemoveParticipant(ctx, conversationID, userID, seed...); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrConversationNotFound
		}
		return fmt.Errorf("remove participant: %w", err)
	}
	s.log.Info("participant removed",
		slog.String("conversation_id", conversationID),
		slog.String("actor_id", actorID),
		slog.String("user_id", userID))
	return nil
}

// IsMember 每次都重新讀取對話；查無對話時回傳 false 而不是錯誤
func (s *ConversationService) IsMember(ctx context.Context, userID, conversationID string) (bool, error) {
	if userID == "" || conversationID == "" {
		return false, nil
	}
	conversation, err := s.repo.FindByID(ctx, conversationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("load conversation %s: %w", conversationID, err)
	}
	return MembershipOf(conversation).Contains(userID), nil
}

func (s *ConversationService) authorize(ctx context.Context, userID, conversationID string) (*models.Conversation, ConversationMembership, error) {
	if userID == "" {
		return nil, nil, ErrAuthenticationRequired
	}
	conversation, err := s.repo.FindByID(ctx, conversationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, ErrConversationNotFound
		}
		return nil, nil, fmt.Errorf("load conversation %s: %w", conversationID, err)
	}
	membership := MembershipOf(conversation)
	if !membership.Contains(userID) {
		return nil, nil, ErrForbidden
	}
	return conversation, membership, nil
}
