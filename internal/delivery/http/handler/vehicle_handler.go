package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"fleet-mds-provider/internal/usecase/vehicle"
	"fleet-mds-provider/pkg/utils"
)

// inventoryTTLMS is the advertised ttl of the slow-moving fleet inventory,
// distinct from the short status-feed ttl.
const inventoryTTLMS = int64(time.Hour / time.Millisecond)

type VehicleHandler struct {
	service *vehicle.Service
	ttlMS   int64
}

func NewVehicleHandler(service *vehicle.Service, ttlMS int64) *VehicleHandler {
	return &VehicleHandler{service: service, ttlMS: ttlMS}
}

func (h *VehicleHandler) RegisterRoutes(router *gin.RouterGroup) {
	vehicles := router.Group("/vehicles")
	{
		vehicles.GET("", h.ListVehicles)
		vehicles.GET("/status", h.VehicleStatuses)
		vehicles.GET("/:device_id", h.GetVehicle)
	}
}

func (h *VehicleHandler) ListVehicles(c *gin.Context) {
	vehicles, lastUpdated, err := h.service.ListVehicles(c.Request.Context())
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.MDSResponse(c, http.StatusOK, gin.H{
		"vehicles":     vehicles,
		"last_updated": lastUpdated,
		"ttl":          inventoryTTLMS,
	})
}

func (h *VehicleHandler) GetVehicle(c *gin.Context) {
	deviceID, err := uuid.Parse(c.Param("device_id"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "bad_param", "device_id must be a UUID")
		return
	}

	v, err := h.service.GetVehicle(c.Request.Context(), deviceID)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.MDSResponse(c, http.StatusOK, gin.H{
		"vehicles": []any{v},
	})
}

func (h *VehicleHandler) VehicleStatuses(c *gin.Context) {
	result, err := h.service.VehicleStatuses(c.Request.Context())
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.MDSResponse(c, http.StatusOK, gin.H{
		"vehicles_status": result.Statuses,
		"last_updated":    result.LastUpdated,
		"ttl":             h.ttlMS,
	})
}
