package ml

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitfeed/fitfeed/internal/config"
	"github.com/fitfeed/fitfeed/pkg/models"
)

func newTestService(t *testing.T) *TextEmbeddingService {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	service := NewTextEmbeddingService(config.EmbeddingConfig{
		Dimensions:  64,
		WorkerCount: 2,
	}, nil, logger)
	t.Cleanup(service.Stop)

	return service
}

func testItem(id int64, title string) models.Item {
	desc := "A short session for busy mornings"
	return models.Item{
		ID:          id,
		Title:       title,
		Type:        models.ItemTypeWorkout,
		Description: &desc,
		Tags:        []string{"strength", "core"},
		Duration:    25,
		Difficulty:  models.DifficultyBeginner,
	}
}

func TestItemText(t *testing.T) {
	text := ItemText(testItem(1, "Morning Strength"))

	assert.Contains(t, text, "Morning Strength")
	assert.Contains(t, text, "busy mornings")
	assert.Contains(t, text, "strength core")
	assert.Contains(t, text, "beginner")
	assert.Contains(t, text, "25 minutes")
	assert.Contains(t, text, "workout")

	// Field order is fixed.
	assert.True(t, strings.Index(text, "Morning Strength") < strings.Index(text, "beginner"))
}

func TestItemText_NilDescription(t *testing.T) {
	item := testItem(1, "Quick Stretch")
	item.Description = nil

	text := ItemText(item)
	assert.Contains(t, text, "Quick Stretch")
	assert.NotContains(t, text, "busy mornings")
}

func TestEmbed_Deterministic(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	first, err := service.Embed(ctx, "full body strength workout")
	require.NoError(t, err)
	second, err := service.Embed(ctx, "full body strength workout")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, first, 64)
}

func TestEmbed_DifferentTextsDiffer(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	a, err := service.Embed(ctx, "beginner yoga flow")
	require.NoError(t, err)
	b, err := service.Embed(ctx, "advanced interval sprints")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestEmbed_EmptyText(t *testing.T) {
	service := newTestService(t)

	_, err := service.Embed(context.Background(), "")
	assert.Error(t, err)
}

func TestEmbed_UnitNorm(t *testing.T) {
	service := newTestService(t)

	embedding, err := service.Embed(context.Background(), "unit norm check")
	require.NoError(t, err)

	var sum float64
	for _, v := range embedding {
		sum += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-5)
}

func TestEmbedItems_MatchesSequential(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	items := []models.Item{
		testItem(1, "Morning Strength"),
		testItem(2, "Evening Yoga"),
		testItem(3, "HIIT Basics"),
		testItem(4, "Trail Running Guide"),
	}

	batch, err := service.EmbedItems(ctx, items)
	require.NoError(t, err)
	require.Len(t, batch, len(items))

	for i, item := range items {
		single, err := service.EmbedItem(ctx, item)
		require.NoError(t, err)
		assert.Equal(t, single, batch[i], "item %d", item.ID)
	}
}

func TestEmbedItems_EmptyBatch(t *testing.T) {
	service := newTestService(t)

	results, err := service.EmbedItems(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, results)
}

func TestTokenize(t *testing.T) {
	service := newTestService(t)

	tokens := service.tokenize("Hello, world!")

	assert.Equal(t, "[CLS]", tokens[0])
	assert.Equal(t, "[SEP]", tokens[len(tokens)-1])
	assert.Contains(t, tokens, "hello")
	assert.Contains(t, tokens, ",")
	assert.Contains(t, tokens, "!")
}

func TestSubwordTokenize(t *testing.T) {
	tokens := subwordTokenize("strengthening")

	require.Greater(t, len(tokens), 1)
	assert.False(t, strings.HasPrefix(tokens[0], "##"))
	for _, token := range tokens[1:] {
		assert.True(t, strings.HasPrefix(token, "##"))
	}

	// Short words pass through untouched.
	assert.Equal(t, []string{"yoga"}, subwordTokenize("yoga"))
}
