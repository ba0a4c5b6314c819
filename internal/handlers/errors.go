package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fitfeed/fitfeed/internal/recommend"
)

// writeError maps engine and store errors onto HTTP status codes with the
// shared error envelope.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, recommend.ErrInvalidParameter):
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_PARAMETER",
				"message": err.Error(),
			},
		})
	case errors.Is(err, recommend.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error": gin.H{
				"code":    "NOT_FOUND",
				"message": err.Error(),
			},
		})
	case errors.Is(err, recommend.ErrRebuildInProgress), errors.Is(err, recommend.ErrRetrainInProgress):
		c.JSON(http.StatusConflict, gin.H{
			"error": gin.H{
				"code":    "OPERATION_IN_PROGRESS",
				"message": err.Error(),
			},
		})
	case errors.Is(err, recommend.ErrInsufficientData):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error": gin.H{
				"code":    "INSUFFICIENT_DATA",
				"message": err.Error(),
			},
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "INTERNAL_SERVER_ERROR",
				"message": "Internal server error",
			},
		})
	}
}
