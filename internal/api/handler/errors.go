package handler

import (
	"errors"
	"log"
	"net/http"
	"parking_lifecycle/internal/domain"

	"github.com/gin-gonic/gin"
)

// writeError maps a lifecycle error onto its HTTP status and JSON body.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrSpaceNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrPreconditionFailed):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "code": domain.PreconditionCode(err)})
	case errors.Is(err, domain.ErrProvisionConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "code": "provision_conflict"})
	case errors.Is(err, domain.ErrPlateRequired):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "plate_required"})
	case errors.Is(err, domain.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrStoreUnavailable):
		log.Printf("Handler: store unavailable on %s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "space store unavailable, retry later"})
	default:
		log.Printf("Handler: unexpected error on %s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
