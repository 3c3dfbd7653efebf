package service

import (
	"slices"

	"estatechat/internal/models"
)

// ConversationMembership 正規化後的對話成員資格，只有本套件內的三種型別
type ConversationMembership interface {
	Contains(userID string) bool
	isMembership()
}

// ExplicitParticipants 以成員列表為準
type ExplicitParticipants struct {
	UserIDs []string
}

// BuyerSeller 舊資料只記錄買方與賣方
type BuyerSeller struct {
	BuyerID  string
	SellerID string
}

type noMembership struct{}

func (ExplicitParticipants) isMembership() {}
func (BuyerSeller) isMembership() {}
func (noMembership) isMembership() {}

func (m ExplicitParticipants) Contains(userID string) bool {
	return userID != "" && slices.Contains(m.UserIDs, userID)
}

func (m BuyerSeller) Contains(userID string) bool {
	return userID != "" && (userID == m.BuyerID || userID == m.SellerID)
}

// UserIDs 有設定的買方與賣方
func (m BuyerSeller) UserIDs() []string {
	ids := make([]string, 0, 2)
	for _, id := range []string{m.BuyerID, m.SellerID} {
		if id != "" && !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	return ids
}

func (noMembership) Contains(string) bool {
	return false
}

// MembershipOf 成員列表非空時以列表為準，否則退回買賣雙方，兩者皆無則沒有任何成員
func MembershipOf(c *models.Conversation) ConversationMembership {
	if c == nil {
		return noMembership{}
	}
	if ids := c.ParticipantIDs(); len(ids) > 0 {
		return ExplicitParticipants{UserIDs: ids}
	}
	if c.BuyerID != "" || c.SellerID != "" {
		return BuyerSeller{BuyerID: c.BuyerID, SellerID: c.SellerID}
	}
	return noMembership{}
}

// memberIDs 目前的成員列表
func memberIDs(m ConversationMembership) []string {
	switch v := m.(type) {
	case ExplicitParticipants:
		return slices.Clone(v.UserIDs)
	case BuyerSeller:
		return v.UserIDs()
	}
	return nil
}
