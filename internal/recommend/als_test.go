package recommend

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitfeed/fitfeed/pkg/models"
)

// trainingInteractions builds a small log with an obvious structure
// over 5 items: users 1 and 2 share a taste for items 10 and 11, users
// 3 and 4 stick to items 20 and 21, and only user 2 touched item 12.
func trainingInteractions() []models.Interaction {
	return []models.Interaction{
		interaction(1, 10, models.InteractionComplete),
		interaction(1, 11, models.InteractionLike),
		interaction(2, 10, models.InteractionLike),
		interaction(2, 11, models.InteractionComplete),
		interaction(2, 12, models.InteractionView),
		interaction(3, 20, models.InteractionComplete),
		interaction(3, 21, models.InteractionComplete),
		interaction(4, 20, models.InteractionLike),
		interaction(4, 21, models.InteractionView),
	}
}

func smallALSConfig() ALSConfig {
	return ALSConfig{Factors: 8, Iterations: 10, Regularization: 0.1}
}

func TestTrainALS_InsufficientData(t *testing.T) {
	tests := []struct {
		name         string
		interactions []models.Interaction
	}{
		{"empty log", nil},
		{"single user", []models.Interaction{
			interaction(1, 10, models.InteractionView),
			interaction(1, 11, models.InteractionView),
		}},
		{"single item", []models.Interaction{
			interaction(1, 10, models.InteractionView),
			interaction(2, 10, models.InteractionView),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := BuildInteractionMatrix(tt.interactions)
			_, err := TrainALS(m, smallALSConfig(), testLogger())
			assert.ErrorIs(t, err, ErrInsufficientData)
		})
	}
}

func TestTrainALS_RejectsNegativeHyperparameters(t *testing.T) {
	m := BuildInteractionMatrix(trainingInteractions())

	_, err := TrainALS(m, ALSConfig{Factors: -1}, testLogger())
	assert.ErrorIs(t, err, ErrInvalidParameter)

	_, err = TrainALS(m, ALSConfig{Regularization: -0.5}, testLogger())
	assert.ErrorIs(t, err, ErrInvalidParameter)

	_, err = TrainALS(m, ALSConfig{Alpha: -1}, testLogger())
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestTrainALS_RankingReflectsTaste(t *testing.T) {
	m := BuildInteractionMatrix(trainingInteractions())
	model, err := TrainALS(m, smallALSConfig(), testLogger())
	require.NoError(t, err)

	assert.Equal(t, 4, model.Users())
	assert.Equal(t, 5, model.Items())
	assert.True(t, model.KnowsUser(1))
	assert.False(t, model.KnowsUser(99))

	// User 1 never touched item 12, but user 2 with near-identical taste
	// did; it should outrank the items only the 3/4 cluster consumed.
	recs := model.Recommend(1, 10, map[int64]struct{}{10: {}, 11: {}})
	require.Len(t, recs, 3)
	assert.Equal(t, int64(12), recs[0].ItemID)
	for _, other := range recs[1:] {
		assert.Greater(t, recs[0].Score, other.Score)
	}
}

func TestTrainALS_Deterministic(t *testing.T) {
	m1 := BuildInteractionMatrix(trainingInteractions())
	m2 := BuildInteractionMatrix(trainingInteractions())

	model1, err := TrainALS(m1, smallALSConfig(), testLogger())
	require.NoError(t, err)
	model2, err := TrainALS(m2, smallALSConfig(), testLogger())
	require.NoError(t, err)

	recs1 := model1.Recommend(2, 6, nil)
	recs2 := model2.Recommend(2, 6, nil)
	assert.Equal(t, recs1, recs2)
}

func TestFactorModel_Recommend(t *testing.T) {
	m := BuildInteractionMatrix(trainingInteractions())
	model, err := TrainALS(m, smallALSConfig(), testLogger())
	require.NoError(t, err)

	t.Run("unknown user returns empty", func(t *testing.T) {
		assert.Empty(t, model.Recommend(42, 10, nil))
	})

	t.Run("n zero returns empty", func(t *testing.T) {
		assert.Empty(t, model.Recommend(1, 0, nil))
	})

	t.Run("truncates to n", func(t *testing.T) {
		recs := model.Recommend(1, 2, nil)
		assert.Len(t, recs, 2)
	})

	t.Run("excluded items never appear", func(t *testing.T) {
		exclude := map[int64]struct{}{10: {}, 11: {}, 12: {}}
		recs := model.Recommend(1, 10, exclude)
		for _, r := range recs {
			_, skipped := exclude[r.ItemID]
			assert.False(t, skipped, "item %d should have been excluded", r.ItemID)
		}
	})

	t.Run("scores are descending", func(t *testing.T) {
		recs := model.Recommend(2, 6, nil)
		for i := 1; i < len(recs); i++ {
			assert.GreaterOrEqual(t, recs[i-1].Score, recs[i].Score)
		}
	})
}

func TestFactorModel_SaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "factor_model.json")

	m := BuildInteractionMatrix(trainingInteractions())
	model, err := TrainALS(m, smallALSConfig(), testLogger())
	require.NoError(t, err)
	require.NoError(t, SaveFactorModel(model, path))

	restored, ok, err := LoadFactorModel(path)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, model.Rank, restored.Rank)
	assert.Equal(t, model.Users(), restored.Users())
	assert.Equal(t, model.Items(), restored.Items())

	// The restored bundle must score exactly like the original.
	for _, userID := range []int64{1, 2, 3, 4} {
		assert.Equal(t, model.Recommend(userID, 6, nil), restored.Recommend(userID, 6, nil))
	}
}

func TestLoadFactorModel_MissingAndCorrupt(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		model, ok, err := LoadFactorModel(filepath.Join(dir, "nope.json"))
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, model)
	})

	t.Run("malformed json", func(t *testing.T) {
		path := filepath.Join(dir, "bad.json")
		require.NoError(t, writeAtomic(path, []byte("{broken")))

		_, ok, err := LoadFactorModel(path)
		assert.False(t, ok)
		assert.ErrorIs(t, err, ErrCorruptSnapshot)
	})

	t.Run("mapping row out of range", func(t *testing.T) {
		path := filepath.Join(dir, "range.json")
		require.NoError(t, writeAtomic(path, []byte(`{
			"rank": 2,
			"user_factors": [[0.1, 0.2], [0.3, 0.4]],
			"item_factors": [[0.1, 0.2], [0.3, 0.4]],
			"user_mapping": {"1": 0, "2": 5},
			"item_mapping": {"10": 0, "11": 1}
		}`)))

		_, ok, err := LoadFactorModel(path)
		assert.False(t, ok)
		assert.ErrorIs(t, err, ErrCorruptSnapshot)
	})
}
