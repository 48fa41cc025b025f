package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"fleet-mds-provider/internal/usecase/trip"
	"fleet-mds-provider/pkg/utils"
)

type TripHandler struct {
	service *trip.Service
}

func NewTripHandler(service *trip.Service) *TripHandler {
	return &TripHandler{service: service}
}

func (h *TripHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/trips", h.GetTrips)
}

func (h *TripHandler) GetTrips(c *gin.Context) {
	endTime := c.Query("end_time")
	if endTime == "" {
		utils.ErrorResponse(c, http.StatusBadRequest, "missing_param", "end_time is required")
		return
	}

	trips, err := h.service.TripsForHour(c.Request.Context(), endTime)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.MDSResponse(c, http.StatusOK, gin.H{
		"trips": trips,
	})
}
