package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"fleet-mds-provider/internal/usecase/telemetry"
	"fleet-mds-provider/pkg/utils"
)

type TelemetryHandler struct {
	service *telemetry.Service
}

func NewTelemetryHandler(service *telemetry.Service) *TelemetryHandler {
	return &TelemetryHandler{service: service}
}

func (h *TelemetryHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/telemetry", h.GetTelemetry)
}

func (h *TelemetryHandler) GetTelemetry(c *gin.Context) {
	telemetryTime := c.Query("telemetry_time")
	if telemetryTime == "" {
		utils.ErrorResponse(c, http.StatusBadRequest, "missing_param", "telemetry_time is required")
		return
	}

	points, err := h.service.TelemetryForHour(c.Request.Context(), telemetryTime)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.MDSResponse(c, http.StatusOK, gin.H{
		"telemetry": points,
	})
}
