package handler

import (
	"errors"
	"io"
	"net/http"
	"parking_lifecycle/internal/domain"
	"parking_lifecycle/internal/service"

	"github.com/gin-gonic/gin"
)

type AdminHandler struct {
	lifecycle   *service.SpaceLifecycleService
	scheduler   *service.ExpiryScheduler
	totalSpaces int
}

// NewAdminHandler uses totalSpaces when a provision request names no total.
func NewAdminHandler(lifecycle *service.SpaceLifecycleService, scheduler *service.ExpiryScheduler, totalSpaces int) *AdminHandler {
	return &AdminHandler{lifecycle: lifecycle, scheduler: scheduler, totalSpaces: totalSpaces}
}

// POST /admin/provision
func (h *AdminHandler) Provision(c *gin.Context) {
	var dto domain.ProvisionDTO
	if err := c.ShouldBindJSON(&dto); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	total := dto.TotalSpaces
	if total == 0 {
		total = h.totalSpaces
	}

	res, err := h.lifecycle.Provision(c.Request.Context(), service.ProvisionInput{
		TotalSpaces:   total,
		SpacesPerZone: dto.SpacesPerZone,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// POST /admin/sweep
func (h *AdminHandler) Sweep(c *gin.Context) {
	res, err := h.scheduler.Sweep(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
