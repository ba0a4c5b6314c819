package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/fitfeed/fitfeed/internal/catalog"
	"github.com/fitfeed/fitfeed/internal/recommend"
	"github.com/fitfeed/fitfeed/internal/validation"
	"github.com/fitfeed/fitfeed/pkg/models"
)

type ItemHandler struct {
	logger    *logrus.Logger
	store     *catalog.Store
	engine    *recommend.Engine
	validator *validation.SchemaValidator
}

func NewItemHandler(logger *logrus.Logger, store *catalog.Store, engine *recommend.Engine, validator *validation.SchemaValidator) *ItemHandler {
	return &ItemHandler{
		logger:    logger,
		store:     store,
		engine:    engine,
		validator: validator,
	}
}

// Create handles POST /api/v1/items. The item is stored first, then
// embedded and indexed; an indexing failure leaves the item queryable in
// the catalog and a later rebuild picks it up.
func (h *ItemHandler) Create(c *gin.Context) {
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

	if result := h.validator.ValidateItem(body); !result.Valid {
		c.JSON(http.StatusBadRequest, result.ToAPIError())
		return
	}

	var req models.ItemCreateRequest
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

	item, err := h.store.CreateItem(c.Request.Context(), &req)
	if err != nil {
		h.logger.WithError(err).Error("Failed to create item")
		writeError(c, err)
		return
	}

	if err := h.engine.AddItems(c.Request.Context(), []models.Item{*item}); err != nil {
		h.logger.WithError(err).WithField("item_id", item.ID).Warn("Item stored but not indexed")
	}

	c.JSON(http.StatusCreated, item)
}

// Get handles GET /api/v1/items/:id.
func (h *ItemHandler) Get(c *gin.Context) {
	itemID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	item, err := h.store.GetItem(c.Request.Context(), itemID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, item)
}

// List handles GET /api/v1/items.
func (h *ItemHandler) List(c *gin.Context) {
	limit := 50
	if limitStr := c.Query("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}

	offset := 0
	if offsetStr := c.Query("offset"); offsetStr != "" {
		if parsed, err := strconv.Atoi(offsetStr); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	items, err := h.store.ListItems(c.Request.Context(), limit, offset)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list items")
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"items":  items,
		"limit":  limit,
		"offset": offset,
	})
}
