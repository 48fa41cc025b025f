package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"fleet-mds-provider/internal/usecase/event"
	"fleet-mds-provider/pkg/utils"
)

type EventHandler struct {
	service *event.Service
}

func NewEventHandler(service *event.Service) *EventHandler {
	return &EventHandler{service: service}
}

func (h *EventHandler) RegisterRoutes(router *gin.RouterGroup) {
	events := router.Group("/events")
	{
		events.GET("/historical", h.GetHistoricalEvents)
		events.GET("/recent", h.GetRecentEvents)
	}
}

func (h *EventHandler) GetHistoricalEvents(c *gin.Context) {
	eventTime := c.Query("event_time")
	if eventTime == "" {
		utils.ErrorResponse(c, http.StatusBadRequest, "missing_param", "event_time is required")
		return
	}

	events, err := h.service.EventsForHour(c.Request.Context(), eventTime)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.MDSResponse(c, http.StatusOK, gin.H{
		"events": events,
	})
}

func (h *EventHandler) GetRecentEvents(c *gin.Context) {
	startMS, err := strconv.ParseInt(c.Query("start_time"), 10, 64)
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "bad_param", "start_time must be a millisecond epoch")
		return
	}
	endMS, err := strconv.ParseInt(c.Query("end_time"), 10, 64)
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "bad_param", "end_time must be a millisecond epoch")
		return
	}

	events, err := h.service.RecentEvents(c.Request.Context(), startMS, endMS)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.MDSResponse(c, http.StatusOK, gin.H{
		"events": events,
	})
}
