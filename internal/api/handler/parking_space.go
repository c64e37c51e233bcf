package handler

import (
	"net/http"
	"parking_lifecycle/internal/domain"
	"parking_lifecycle/internal/service"
	"time"

	"github.com/gin-gonic/gin"
)

type ParkingSpaceHandler struct {
	lifecycle *service.SpaceLifecycleService
}

func NewParkingSpaceHandler(lifecycle *service.SpaceLifecycleService) *ParkingSpaceHandler {
	return &ParkingSpaceHandler{lifecycle: lifecycle}
}

// GET /spaces?zone=&status=&vehicle_class=
func (h *ParkingSpaceHandler) ListSpaces(c *gin.Context) {
	var filter domain.SpaceFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if v := c.Query("status"); v != "" {
		st, err := domain.ParseSpaceStatus(v)
		if err != nil {
			writeError(c, err)
			return
		}
		filter.Status = &st
	}
	if v := c.Query("vehicle_class"); v != "" {
		vc, err := domain.ParseVehicleClass(v)
		if err != nil {
			writeError(c, err)
			return
		}
		filter.VehicleClass = &vc
	}

	spaces, err := h.lifecycle.ListSpaces(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, spaces)
}

// GET /spaces/summary
func (h *ParkingSpaceHandler) GetSummary(c *gin.Context) {
	sum, err := h.lifecycle.Summary(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

// GET /spaces/:number
func (h *ParkingSpaceHandler) GetSpace(c *gin.Context) {
	space, err := h.lifecycle.GetSpace(c.Request.Context(), c.Param("number"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, space)
}

// POST /spaces/:number/reserve
func (h *ParkingSpaceHandler) Reserve(c *gin.Context) {
	var dto domain.ReserveSpaceDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	class, err := domain.ParseVehicleClass(dto.VehicleClass)
	if err != nil {
		writeError(c, err)
		return
	}
	if dto.TTLSeconds < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ttl_seconds must not be negative"})
		return
	}

	space, err := h.lifecycle.Reserve(c.Request.Context(), service.ReserveInput{
		Number:       c.Param("number"),
		Plate:        dto.Plate,
		VehicleClass: class,
		TTL:          time.Duration(dto.TTLSeconds) * time.Second,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, space)
}

// POST /spaces/:number/cancel
func (h *ParkingSpaceHandler) CancelReservation(c *gin.Context) {
	space, err := h.lifecycle.CancelReservation(c.Request.Context(), c.Param("number"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, space)
}

// POST /spaces/:number/occupy
func (h *ParkingSpaceHandler) Occupy(c *gin.Context) {
	var dto domain.OccupySpaceDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	class, err := domain.ParseVehicleClass(dto.VehicleClass)
	if err != nil {
		writeError(c, err)
		return
	}

	space, err := h.lifecycle.Occupy(c.Request.Context(), service.OccupyInput{
		Number:       c.Param("number"),
		SessionID:    dto.SessionID,
		Plate:        dto.Plate,
		VehicleClass: class,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, space)
}

// POST /spaces/:number/free
func (h *ParkingSpaceHandler) Free(c *gin.Context) {
	var dto domain.FreeSpaceDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	space, err := h.lifecycle.Free(c.Request.Context(), c.Param("number"), dto.SessionID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, space)
}

// POST /spaces/:number/out-of-service
func (h *ParkingSpaceHandler) SetOutOfService(c *gin.Context) {
	var dto domain.OutOfServiceDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	space, err := h.lifecycle.SetOutOfService(c.Request.Context(), service.OutOfServiceInput{
		Number: c.Param("number"),
		Reason: dto.Reason,
		Force:  dto.Force,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, space)
}

// POST /spaces/:number/in-service
func (h *ParkingSpaceHandler) SetInService(c *gin.Context) {
	space, err := h.lifecycle.SetInService(c.Request.Context(), c.Param("number"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, space)
}
