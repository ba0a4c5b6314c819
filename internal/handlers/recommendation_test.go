package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitfeed/fitfeed/internal/catalog"
	"github.com/fitfeed/fitfeed/internal/config"
	"github.com/fitfeed/fitfeed/internal/recommend"
	"github.com/fitfeed/fitfeed/internal/services"
	"github.com/fitfeed/fitfeed/pkg/models"
)

// basisEmbedder maps each item onto a basis vector keyed by item id, so
// items sharing an id residue are identical and everything else is
// orthogonal.
type basisEmbedder struct {
	dimension int
}

func (e *basisEmbedder) EmbedItem(ctx context.Context, item models.Item) ([]float32, error) {
	vec := make([]float32, e.dimension)
	vec[int(item.ID)%e.dimension] = 1
	return vec, nil
}

func (e *basisEmbedder) EmbedItems(ctx context.Context, items []models.Item) ([][]float32, error) {
	out := make([][]float32, len(items))
	for i, item := range items {
		vec, _ := e.EmbedItem(ctx, item)
		out[i] = vec
	}
	return out, nil
}

func setupRecommendationTest(t *testing.T) (*RecommendationHandler, *recommend.Engine, pgxmock.PgxPoolIface) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockDB.Close)

	cfg := &config.EngineConfig{
		Factors:         8,
		Iterations:      10,
		Regularization:  0.1,
		DefaultAlpha:    0.5,
		CandidateFactor: 2,
		DataDir:         t.TempDir(),
		IndexFile:       "index.bin",
		IndexMapping:    "index_mapping.json",
		FactorModelFile: "factor_model.json",
	}
	engine := recommend.NewEngine(cfg, &basisEmbedder{dimension: 8}, logger)
	store := catalog.NewStore(mockDB, logger)
	recCache := services.NewRecommendationCache(nil, logger)

	return NewRecommendationHandler(logger, engine, store, recCache), engine, mockDB
}

func performRequest(router *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	router.ServeHTTP(w, req)
	return w
}

func TestRecommendationHandler_GetSimilar(t *testing.T) {
	handler, engine, _ := setupRecommendationTest(t)

	items := []models.Item{{ID: 1}, {ID: 9}, {ID: 2}}
	require.NoError(t, engine.AddItems(context.Background(), items))

	router := gin.New()
	router.GET("/api/v1/items/:id/similar", handler.GetSimilar)

	t.Run("returns ranked similar items", func(t *testing.T) {
		w := performRequest(router, http.MethodGet, "/api/v1/items/1/similar?k=2")
		require.Equal(t, http.StatusOK, w.Code)

		var resp models.SimilarItemsResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, int64(1), resp.SeedItemID)
		require.Len(t, resp.Recommendations, 2)

		// Item 9 shares item 1's basis vector in the stub embedder.
		assert.Equal(t, int64(9), resp.Recommendations[0].ItemID)
		assert.Equal(t, 1, resp.Recommendations[0].Position)
		assert.Equal(t, "content_based", resp.Recommendations[0].Algorithm)
	})

	t.Run("unknown item yields empty list", func(t *testing.T) {
		w := performRequest(router, http.MethodGet, "/api/v1/items/777/similar")
		require.Equal(t, http.StatusOK, w.Code)

		var resp models.SimilarItemsResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Empty(t, resp.Recommendations)
	})

	t.Run("malformed id is rejected", func(t *testing.T) {
		w := performRequest(router, http.MethodGet, "/api/v1/items/abc/similar")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("malformed k is rejected", func(t *testing.T) {
		w := performRequest(router, http.MethodGet, "/api/v1/items/1/similar?k=lots")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("negative k maps to bad request", func(t *testing.T) {
		w := performRequest(router, http.MethodGet, "/api/v1/items/1/similar?k=-3")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestRecommendationHandler_GetHybrid(t *testing.T) {
	handler, engine, mockDB := setupRecommendationTest(t)

	require.NoError(t, engine.AddItems(context.Background(), []models.Item{
		{ID: 10}, {ID: 11}, {ID: 12}, {ID: 20}, {ID: 21},
	}))
	require.NoError(t, engine.RetrainCF(context.Background(), []models.Interaction{
		{UserID: 1, ItemID: 10, Type: models.InteractionComplete},
		{UserID: 1, ItemID: 11, Type: models.InteractionLike},
		{UserID: 2, ItemID: 10, Type: models.InteractionLike},
		{UserID: 2, ItemID: 12, Type: models.InteractionView},
		{UserID: 3, ItemID: 20, Type: models.InteractionComplete},
		{UserID: 3, ItemID: 21, Type: models.InteractionComplete},
	}))

	router := gin.New()
	router.GET("/api/v1/recommendations/:userId", handler.GetHybrid)

	t.Run("seen items are excluded", func(t *testing.T) {
		mockDB.ExpectQuery("SELECT DISTINCT item_id").
			WithArgs(int64(1)).
			WillReturnRows(pgxmock.NewRows([]string{"item_id"}).AddRow(int64(10)).AddRow(int64(11)))

		w := performRequest(router, http.MethodGet, "/api/v1/recommendations/1?n=5")
		require.Equal(t, http.StatusOK, w.Code)

		var resp models.RecommendationResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, int64(1), resp.UserID)
		for _, r := range resp.Recommendations {
			assert.NotContains(t, []int64{10, 11}, r.ItemID)
			assert.Equal(t, "hybrid", r.Algorithm)
		}

		require.NoError(t, mockDB.ExpectationsWereMet())
	})

	t.Run("exclude parameter widens the exclusion set", func(t *testing.T) {
		mockDB.ExpectQuery("SELECT DISTINCT item_id").
			WithArgs(int64(2)).
			WillReturnRows(pgxmock.NewRows([]string{"item_id"}))

		w := performRequest(router, http.MethodGet, "/api/v1/recommendations/2?exclude=11,12")
		require.Equal(t, http.StatusOK, w.Code)

		var resp models.RecommendationResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		for _, r := range resp.Recommendations {
			assert.NotContains(t, []int64{11, 12}, r.ItemID)
		}
	})

	t.Run("malformed exclude is rejected", func(t *testing.T) {
		mockDB.ExpectQuery("SELECT DISTINCT item_id").
			WithArgs(int64(2)).
			WillReturnRows(pgxmock.NewRows([]string{"item_id"}))

		w := performRequest(router, http.MethodGet, "/api/v1/recommendations/2?exclude=11,best")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("invalid alpha is rejected", func(t *testing.T) {
		mockDB.ExpectQuery("SELECT DISTINCT item_id").
			WithArgs(int64(1)).
			WillReturnRows(pgxmock.NewRows([]string{"item_id"}))

		w := performRequest(router, http.MethodGet, "/api/v1/recommendations/1?alpha=2.0")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("malformed user id is rejected before any query", func(t *testing.T) {
		w := performRequest(router, http.MethodGet, "/api/v1/recommendations/zero")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
