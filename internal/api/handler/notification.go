package handler

import (
	"net/http"
	"parking_lifecycle/internal/domain"
	"parking_lifecycle/internal/repository"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

const maxNotificationLimit = 200

type NotificationHandler struct {
	repo repository.NotificationRepository
}

func NewNotificationHandler(repo repository.NotificationRepository) *NotificationHandler {
	return &NotificationHandler{repo: repo}
}

// GET /notifications?space=&limit=
func (h *NotificationHandler) ListRecent(c *gin.Context) {
	limit := 50
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxNotificationLimit {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 200"})
			return
		}
		limit = n
	}

	space := strings.ToUpper(strings.TrimSpace(c.Query("space")))
	list, err := h.repo.FindRecent(c.Request.Context(), space, limit)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "notification store unavailable"})
		return
	}
	if list == nil {
		list = []domain.Notification{}
	}
	c.JSON(http.StatusOK, list)
}
