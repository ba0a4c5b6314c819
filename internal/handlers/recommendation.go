package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/fitfeed/fitfeed/internal/catalog"
	"github.com/fitfeed/fitfeed/internal/recommend"
	"github.com/fitfeed/fitfeed/internal/services"
	"github.com/fitfeed/fitfeed/pkg/models"
)

type RecommendationHandler struct {
	logger   *logrus.Logger
	engine   *recommend.Engine
	store    *catalog.Store
	recCache *services.RecommendationCache
}

func NewRecommendationHandler(logger *logrus.Logger, engine *recommend.Engine, store *catalog.Store, recCache *services.RecommendationCache) *RecommendationHandler {
	return &RecommendationHandler{
		logger:   logger,
		engine:   engine,
		store:    store,
		recCache: recCache,
	}
}

// GetSimilar handles GET /api/v1/items/:id/similar.
func (h *RecommendationHandler) GetSimilar(c *gin.Context) {
	itemID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	k := 10
	if kStr := c.Query("k"); kStr != "" {
		parsed, err := strconv.Atoi(kStr)
		if err != nil {
			writeInvalidQuery(c, "k")
			return
		}
		k = parsed
	}

	results, err := h.engine.FindSimilar(itemID, k)
	if err != nil {
		h.logger.WithError(err).WithField("item_id", itemID).Warn("Similar items lookup failed")
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.SimilarItemsResponse{
		SeedItemID:      itemID,
		Recommendations: toRecommendations(results, "content_based"),
		GeneratedAt:     time.Now(),
	})
}

// GetHybrid handles GET /api/v1/recommendations/:userId.
func (h *RecommendationHandler) GetHybrid(c *gin.Context) {
	userID, ok := parseIDParam(c, "userId")
	if !ok {
		return
	}

	n := 10
	if nStr := c.Query("n"); nStr != "" {
		parsed, err := strconv.Atoi(nStr)
		if err != nil {
			writeInvalidQuery(c, "n")
			return
		}
		n = parsed
	}

	alpha := h.engine.DefaultAlpha()
	if alphaStr := c.Query("alpha"); alphaStr != "" {
		parsed, err := strconv.ParseFloat(alphaStr, 64)
		if err != nil {
			writeInvalidQuery(c, "alpha")
			return
		}
		alpha = parsed
	}

	var anchorItemID *int64
	if anchorStr := c.Query("item_id"); anchorStr != "" {
		parsed, err := strconv.ParseInt(anchorStr, 10, 64)
		if err != nil {
			writeInvalidQuery(c, "item_id")
			return
		}
		anchorItemID = &parsed
	}

	// Only the default query shape is cached; a custom exclusion set
	// bypasses the cache entirely.
	excludeStr := c.Query("exclude")
	cacheKey := h.recCache.Key(userID, n, alpha, anchorItemID)
	if excludeStr == "" {
		if cached, ok := h.recCache.Get(c.Request.Context(), cacheKey); ok {
			c.JSON(http.StatusOK, cached)
			return
		}
	}

	// Items the user already consumed never come back as recommendations.
	seen, err := h.store.UserItemIDs(c.Request.Context(), userID)
	if err != nil {
		h.logger.WithError(err).WithField("user_id", userID).Error("Failed to load user interaction history")
		writeError(c, err)
		return
	}

	// Callers can widen the exclusion set beyond the interaction history.
	if excludeStr != "" {
		for _, part := range strings.Split(excludeStr, ",") {
			id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
			if err != nil {
				writeInvalidQuery(c, "exclude")
				return
			}
			seen = append(seen, id)
		}
	}

	results, err := h.engine.RecommendHybrid(userID, anchorItemID, n, alpha, seen)
	if err != nil {
		h.logger.WithError(err).WithField("user_id", userID).Warn("Hybrid recommendation failed")
		writeError(c, err)
		return
	}

	resp := models.RecommendationResponse{
		UserID:          userID,
		Recommendations: toRecommendations(results, "hybrid"),
		GeneratedAt:     time.Now(),
	}
	if excludeStr == "" {
		h.recCache.Set(c.Request.Context(), cacheKey, &resp)
	}
	c.JSON(http.StatusOK, resp)
}

// GetCF handles GET /api/v1/recommendations/:userId/cf. It exposes the raw
// collaborative scores without the content-based blend, mostly for
// debugging ranking balance.
func (h *RecommendationHandler) GetCF(c *gin.Context) {
	userID, ok := parseIDParam(c, "userId")
	if !ok {
		return
	}

	n := 10
	if nStr := c.Query("n"); nStr != "" {
		parsed, err := strconv.Atoi(nStr)
		if err != nil {
			writeInvalidQuery(c, "n")
			return
		}
		n = parsed
	}

	seen, err := h.store.UserItemIDs(c.Request.Context(), userID)
	if err != nil {
		h.logger.WithError(err).WithField("user_id", userID).Error("Failed to load user interaction history")
		writeError(c, err)
		return
	}

	results, err := h.engine.RecommendCF(userID, n, seen)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.RecommendationResponse{
		UserID:          userID,
		Recommendations: toRecommendations(results, "collaborative_filtering"),
		GeneratedAt:     time.Now(),
	})
}

func toRecommendations(scored []models.ScoredItem, algorithm string) []models.Recommendation {
	recommendations := make([]models.Recommendation, len(scored))
	for i, s := range scored {
		recommendations[i] = models.Recommendation{
			ItemID:    s.ItemID,
			Score:     s.Score,
			Algorithm: algorithm,
			Position:  i + 1,
		}
	}
	return recommendations
}

func parseIDParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id < 1 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_ID",
				"message": "Path parameter '" + name + "' must be a positive integer",
			},
		})
		return 0, false
	}
	return id, true
}

func writeInvalidQuery(c *gin.Context, name string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error": gin.H{
			"code":    "INVALID_PARAMETER",
			"message": "Query parameter '" + name + "' is malformed",
		},
	})
}
