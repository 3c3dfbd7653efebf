package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"estatechat/internal/middleware"
	"estatechat/internal/service"
)

// ActivityHandler 出價與預約，寫入成功後由 service 通知即時層
type ActivityHandler struct {
	offers       *service.OfferService
	appointments *service.AppointmentService
}

func NewActivityHandler(offers *service.OfferService, appointments *service.AppointmentService) *ActivityHandler {
	return &ActivityHandler{offers: offers, appointments: appointments}
}

func (h *ActivityHandler) CreateOffer(c *gin.Context) {
	var input service.CreateOfferInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}

	offer, err := h.offers.Create(c.Request.Context(), middleware.UserID(c), c.Param("id"), input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, offer)
}

func (h *ActivityHandler) ScheduleAppointment(c *gin.Context) {
	var input service.ScheduleAppointmentInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}

	appointment, err := h.appointments.Schedule(c.Request.Context(), middleware.UserID(c), c.Param("id"), input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, appointment)
}
