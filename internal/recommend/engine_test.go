package recommend

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitfeed/fitfeed/internal/config"
	"github.com/fitfeed/fitfeed/pkg/models"
)

// stubEmbedder returns a fixed-dimension vector derived from the item id,
// optionally blocking until released to exercise concurrent behavior.
type stubEmbedder struct {
	dimension int
	block     chan struct{}
}

func (s *stubEmbedder) EmbedItem(ctx context.Context, item models.Item) ([]float32, error) {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	vec := make([]float32, s.dimension)
	vec[int(item.ID)%s.dimension] = 1
	return vec, nil
}

func (s *stubEmbedder) EmbedItems(ctx context.Context, items []models.Item) ([][]float32, error) {
	out := make([][]float32, len(items))
	for i, item := range items {
		vec, err := s.EmbedItem(ctx, item)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func testEngine(t *testing.T, embedder Embedder) *Engine {
	t.Helper()
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
	return NewEngine(cfg, embedder, testLogger())
}

func TestEngine_AddItemsAndFindSimilar(t *testing.T) {
	engine := testEngine(t, &stubEmbedder{dimension: 4})

	require.NoError(t, engine.AddItems(context.Background(), testItems(1, 2, 5)))
	assert.Equal(t, 3, engine.Index().Size())

	// Items 1 and 5 collide on the same basis vector in the stub.
	results, err := engine.FindSimilar(1, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, int64(5), results[0].ItemID)
	assert.Equal(t, 1.0, results[0].Score)
}

func TestEngine_FindSimilarRejectsNegativeK(t *testing.T) {
	engine := testEngine(t, &stubEmbedder{dimension: 4})
	_, err := engine.FindSimilar(1, -1)
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestEngine_RecommendCFWithoutModel(t *testing.T) {
	engine := testEngine(t, &stubEmbedder{dimension: 4})

	results, err := engine.RecommendCF(1, 10, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestEngine_RetrainAndRecommend(t *testing.T) {
	engine := testEngine(t, &stubEmbedder{dimension: 4})

	require.NoError(t, engine.RetrainCF(context.Background(), trainingInteractions()))
	require.NotNil(t, engine.Model())

	results, err := engine.RecommendCF(1, 3, []int64{10, 11})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.NotContains(t, []int64{10, 11}, r.ItemID)
	}
}

func TestEngine_RetrainInsufficientDataKeepsModel(t *testing.T) {
	engine := testEngine(t, &stubEmbedder{dimension: 4})

	require.NoError(t, engine.RetrainCF(context.Background(), trainingInteractions()))
	before := engine.Model()
	require.NotNil(t, before)

	err := engine.RetrainCF(context.Background(), nil)
	assert.ErrorIs(t, err, ErrInsufficientData)
	assert.Same(t, before, engine.Model())
}

func TestEngine_RebuildSingleFlight(t *testing.T) {
	block := make(chan struct{})
	engine := testEngine(t, &stubEmbedder{dimension: 4, block: block})

	var wg sync.WaitGroup
	wg.Add(1)
	firstErr := make(chan error, 1)
	go func() {
		defer wg.Done()
		firstErr <- engine.RebuildIndex(context.Background(), testItems(1, 2))
	}()

	// Wait until the first rebuild holds the lock inside the embedder.
	// The check uses an empty item list so it never blocks in the stub.
	require.Eventually(t, func() bool {
		return engine.RebuildIndex(context.Background(), nil) == ErrRebuildInProgress
	}, time.Second, 5*time.Millisecond)

	close(block)
	wg.Wait()
	require.NoError(t, <-firstErr)
	assert.Equal(t, 2, engine.Index().Size())
}

func TestEngine_HybridBlending(t *testing.T) {
	engine := testEngine(t, &stubEmbedder{dimension: 4})

	require.NoError(t, engine.AddItems(context.Background(), testItems(10, 11, 12, 20, 21)))
	require.NoError(t, engine.RetrainCF(context.Background(), trainingInteractions()))

	t.Run("cf-only without anchor", func(t *testing.T) {
		results, err := engine.RecommendHybrid(1, nil, 3, 0.7, []int64{10, 11})
		require.NoError(t, err)
		require.NotEmpty(t, results)
		for _, r := range results {
			assert.NotContains(t, []int64{10, 11}, r.ItemID)
		}
	})

	t.Run("anchor adds content candidates and excludes itself", func(t *testing.T) {
		anchor := int64(10)
		results, err := engine.RecommendHybrid(1, &anchor, 5, 0.5, nil)
		require.NoError(t, err)
		require.NotEmpty(t, results)
		for _, r := range results {
			assert.NotEqual(t, anchor, r.ItemID)
		}
	})

	t.Run("cold-start user with anchor still gets content results", func(t *testing.T) {
		anchor := int64(10)
		results, err := engine.RecommendHybrid(999, &anchor, 5, 0.5, nil)
		require.NoError(t, err)
		assert.NotEmpty(t, results)
	})

	t.Run("invalid alpha rejected", func(t *testing.T) {
		_, err := engine.RecommendHybrid(1, nil, 5, 1.5, nil)
		assert.ErrorIs(t, err, ErrInvalidParameter)
	})

	t.Run("negative n rejected", func(t *testing.T) {
		_, err := engine.RecommendHybrid(1, nil, -1, 0.5, nil)
		assert.ErrorIs(t, err, ErrInvalidParameter)
	})
}

func TestEngine_SnapshotsSurviveRestart(t *testing.T) {
	embedder := &stubEmbedder{dimension: 4}
	engine := testEngine(t, embedder)

	require.NoError(t, engine.AddItems(context.Background(), testItems(1, 2, 5)))
	require.NoError(t, engine.RetrainCF(context.Background(), trainingInteractions()))

	restarted := NewEngine(engine.cfg, embedder, testLogger())
	restarted.LoadSnapshots()

	assert.Equal(t, engine.Index().Size(), restarted.Index().Size())
	require.NotNil(t, restarted.Model())

	want, err := engine.RecommendCF(1, 5, nil)
	require.NoError(t, err)
	got, err := restarted.RecommendCF(1, 5, nil)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
