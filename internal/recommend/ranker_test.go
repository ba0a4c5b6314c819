package recommend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitfeed/fitfeed/pkg/models"
)

func scored(itemID int64, score float64) models.ScoredItem {
	return models.ScoredItem{ItemID: itemID, Score: score}
}

func TestNormalizeScores(t *testing.T) {
	t.Run("min-max scales to unit range", func(t *testing.T) {
		norm := NormalizeScores([]models.ScoredItem{
			scored(1, 2.0),
			scored(2, 4.0),
			scored(3, 6.0),
		})

		assert.Equal(t, 0.0, norm[1])
		assert.Equal(t, 0.5, norm[2])
		assert.Equal(t, 1.0, norm[3])
	})

	t.Run("uniform scores all map to 1", func(t *testing.T) {
		norm := NormalizeScores([]models.ScoredItem{
			scored(1, 3.3),
			scored(2, 3.3),
		})

		assert.Equal(t, 1.0, norm[1])
		assert.Equal(t, 1.0, norm[2])
	})

	t.Run("single item maps to 1", func(t *testing.T) {
		norm := NormalizeScores([]models.ScoredItem{scored(7, -12.5)})
		assert.Equal(t, 1.0, norm[7])
	})

	t.Run("empty input yields empty mapping", func(t *testing.T) {
		norm := NormalizeScores(nil)
		assert.Empty(t, norm)
	})

	t.Run("negative scores normalize fine", func(t *testing.T) {
		norm := NormalizeScores([]models.ScoredItem{
			scored(1, -10),
			scored(2, 0),
		})
		assert.Equal(t, 0.0, norm[1])
		assert.Equal(t, 1.0, norm[2])
	})
}

func TestBlendScores(t *testing.T) {
	cf := []models.ScoredItem{scored(1, 4.0), scored(2, 2.0), scored(3, 0.0)}
	cb := []models.ScoredItem{scored(2, 0.9), scored(3, 0.5), scored(4, 0.1)}

	t.Run("alpha one is pure collaborative", func(t *testing.T) {
		results, err := BlendScores(cf, cb, 1.0, nil, 10)
		require.NoError(t, err)
		require.NotEmpty(t, results)
		assert.Equal(t, int64(1), results[0].ItemID)
		assert.Equal(t, 1.0, results[0].Score)

		// Item 4 exists only in the content list; with alpha 1 it scores 0.
		for _, r := range results {
			if r.ItemID == 4 {
				assert.Equal(t, 0.0, r.Score)
			}
		}
	})

	t.Run("alpha zero is pure content-based", func(t *testing.T) {
		results, err := BlendScores(cf, cb, 0.0, nil, 10)
		require.NoError(t, err)
		require.NotEmpty(t, results)
		assert.Equal(t, int64(2), results[0].ItemID)
		assert.Equal(t, 1.0, results[0].Score)
	})

	t.Run("blended scores stay within unit range", func(t *testing.T) {
		results, err := BlendScores(cf, cb, 0.3, nil, 10)
		require.NoError(t, err)
		for _, r := range results {
			assert.GreaterOrEqual(t, r.Score, 0.0)
			assert.LessOrEqual(t, r.Score, 1.0)
		}
	})

	t.Run("union covers items missing from one source", func(t *testing.T) {
		results, err := BlendScores(cf, cb, 0.5, nil, 10)
		require.NoError(t, err)

		ids := make(map[int64]bool)
		for _, r := range results {
			ids[r.ItemID] = true
		}
		assert.True(t, ids[1] && ids[2] && ids[3] && ids[4])
	})

	t.Run("excluded items are dropped", func(t *testing.T) {
		results, err := BlendScores(cf, cb, 0.5, map[int64]struct{}{1: {}, 2: {}}, 10)
		require.NoError(t, err)
		for _, r := range results {
			assert.NotContains(t, []int64{1, 2}, r.ItemID)
		}
	})

	t.Run("truncates to n", func(t *testing.T) {
		results, err := BlendScores(cf, cb, 0.5, nil, 2)
		require.NoError(t, err)
		assert.Len(t, results, 2)
	})

	t.Run("n zero yields empty", func(t *testing.T) {
		results, err := BlendScores(cf, cb, 0.5, nil, 0)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("invalid alpha rejected", func(t *testing.T) {
		_, err := BlendScores(cf, cb, -0.01, nil, 10)
		assert.ErrorIs(t, err, ErrInvalidParameter)

		_, err = BlendScores(cf, cb, 1.01, nil, 10)
		assert.ErrorIs(t, err, ErrInvalidParameter)
	})

	t.Run("negative n rejected", func(t *testing.T) {
		_, err := BlendScores(cf, cb, 0.5, nil, -1)
		assert.ErrorIs(t, err, ErrInvalidParameter)
	})

	t.Run("ties break by ascending item id", func(t *testing.T) {
		tiedCF := []models.ScoredItem{scored(9, 1.0), scored(3, 1.0), scored(6, 1.0)}
		results, err := BlendScores(tiedCF, nil, 1.0, nil, 3)
		require.NoError(t, err)
		require.Len(t, results, 3)
		assert.Equal(t, int64(3), results[0].ItemID)
		assert.Equal(t, int64(6), results[1].ItemID)
		assert.Equal(t, int64(9), results[2].ItemID)
	})

	t.Run("input order does not change the ranking", func(t *testing.T) {
		cfShuffled := []models.ScoredItem{cf[2], cf[0], cf[1]}
		cbShuffled := []models.ScoredItem{cb[1], cb[2], cb[0]}

		want, err := BlendScores(cf, cb, 0.4, nil, 10)
		require.NoError(t, err)
		got, err := BlendScores(cfShuffled, cbShuffled, 0.4, nil, 10)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("both sources empty yields empty", func(t *testing.T) {
		results, err := BlendScores(nil, nil, 0.5, nil, 10)
		require.NoError(t, err)
		assert.Empty(t, results)
	})
}
