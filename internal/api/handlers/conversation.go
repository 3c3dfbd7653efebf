package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"estatechat/internal/middleware"
	"estatechat/internal/service"
)

// ConversationHandler 處理對話與成員相關的請求
type ConversationHandler struct {
	conversations *service.ConversationService
}

func NewConversationHandler(conversations *service.ConversationService) *ConversationHandler {
	return &ConversationHandler{conversations: conversations}
}

func (h *ConversationHandler) CreateConversation(c *gin.Context) {
	var input service.CreateConversationInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}

	conversation, err := h.conversations.Create(c.Request.Context(), middleware.UserID(c), input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, conversation)
}

func (h *ConversationHandler) GetConversation(c *gin.Context) {
	conversation, err := h.conversations.Get(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, conversation)
}

func (h *ConversationHandler) AddParticipant(c *gin.Context) {
	var input struct {
		UserID string `json:"userId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}

	if err := h.conversations.AddParticipant(c.Request.Context(), middleware.UserID(c), c.Param("id"), input.UserID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ConversationHandler) RemoveParticipant(c *gin.Context) {
	if err := h.conversations.RemoveParticipant(c.Request.Context(), middleware.UserID(c), c.Param("id"), c.Param("userId")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
