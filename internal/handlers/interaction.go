package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/fitfeed/fitfeed/internal/catalog"
	"github.com/fitfeed/fitfeed/internal/validation"
	"github.com/fitfeed/fitfeed/pkg/models"
)

type InteractionHandler struct {
	logger    *logrus.Logger
	store     *catalog.Store
	validator *validation.SchemaValidator
}

func NewInteractionHandler(logger *logrus.Logger, store *catalog.Store, validator *validation.SchemaValidator) *InteractionHandler {
	return &InteractionHandler{
		logger:    logger,
		store:     store,
		validator: validator,
	}
}

// Create handles POST /api/v1/interactions. Events land in the
// append-only log and only influence recommendations after the next
// retrain.
func (h *InteractionHandler) Create(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_REQUEST_BODY",
				"message": "Failed to read request body",
			},
		})
		return
	}

	if result := h.validator.ValidateInteractionEvent(body); !result.Valid {
		c.JSON(http.StatusBadRequest, result.ToAPIError())
		return
	}

	var req models.InteractionCreateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_REQUEST_BODY",
				"message": "Invalid request body format",
			},
		})
		return
	}

	if err := validate.Struct(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": err.Error(),
			},
		})
		return
	}

	interaction, err := h.store.CreateInteraction(c.Request.Context(), &req)
	if err != nil {
		h.logger.WithError(err).WithFields(logrus.Fields{
			"user_id": req.UserID,
			"item_id": req.ItemID,
		}).Warn("Failed to record interaction")
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, interaction)
}
