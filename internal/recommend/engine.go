package recommend

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fitfeed/fitfeed/internal/config"
	"github.com/fitfeed/fitfeed/pkg/models"
)

// Embedder turns item fields into fixed-dimension vectors. Implemented
// by the ml package; the engine only depends on this contract.
type Embedder interface {
	EmbedItem(ctx context.Context, item models.Item) ([]float32, error)
	EmbedItems(ctx context.Context, items []models.Item) ([][]float32, error)
}

// Engine is the hybrid recommendation engine facade: it owns the vector
// index and the published factor model, and exposes the query surface
// the API layer consumes. Both caches are immutable snapshots published
// by atomic swap, so read paths never block behind a rebuild or retrain.
//
// Batch operations are single-flight per resource: at most one index
// rebuild and one model retrain run at a time; a second concurrent
// request is rejected rather than queued, and never races a save
// against the same persisted file.
type Engine struct {
	cfg      *config.EngineConfig
	logger   *logrus.Logger
	embedder Embedder

	index *VectorIndex
	model atomic.Pointer[FactorModel]

	rebuildMu sync.Mutex
	retrainMu sync.Mutex
}

func NewEngine(cfg *config.EngineConfig, embedder Embedder, logger *logrus.Logger) *Engine {
	return &Engine{
		cfg:      cfg,
		logger:   logger,
		embedder: embedder,
		index:    NewVectorIndex(logger),
	}
}

func (e *Engine) indexBlobPath() string {
	return filepath.Join(e.cfg.DataDir, e.cfg.IndexFile)
}

func (e *Engine) indexMappingPath() string {
	return filepath.Join(e.cfg.DataDir, e.cfg.IndexMapping)
}

func (e *Engine) modelPath() string {
	return filepath.Join(e.cfg.DataDir, e.cfg.FactorModelFile)
}

// Index exposes the vector index for status reporting.
func (e *Engine) Index() *VectorIndex { return e.index }

// Model returns the currently published factor model, nil before the
// first successful retrain or load.
func (e *Engine) Model() *FactorModel { return e.model.Load() }

// LoadSnapshots restores persisted state on startup. Missing files are
// normal (first run); corrupt files are logged and treated as absent so
// the caller can schedule a rebuild. Nothing here propagates into the
// request path.
func (e *Engine) LoadSnapshots() {
	loaded, err := e.index.Load(e.indexBlobPath(), e.indexMappingPath())
	switch {
	case err != nil:
		e.logger.WithError(err).Warn("Discarding persisted vector index")
	case loaded:
		indexedItems.Set(float64(e.index.Size()))
	default:
		e.logger.Info("No persisted vector index found")
	}

	model, ok, err := LoadFactorModel(e.modelPath())
	switch {
	case err != nil:
		e.logger.WithError(err).Warn("Discarding persisted factor model")
	case ok:
		e.model.Store(model)
		modelUsers.Set(float64(model.Users()))
		modelItems.Set(float64(model.Items()))
		e.logger.WithFields(logrus.Fields{
			"users": model.Users(),
			"items": model.Items(),
			"rank":  model.Rank,
		}).Info("Factor model loaded from disk")
	default:
		e.logger.Info("No persisted factor model found")
	}
}

// FindSimilar returns up to k content-similar items for itemID. An
// unknown item or an index that is not ready yields an empty result; a
// negative k is rejected before any computation.
func (e *Engine) FindSimilar(itemID int64, k int) ([]models.ScoredItem, error) {
	if k < 0 {
		return nil, fmt.Errorf("k must be non-negative, got %d: %w", k, ErrInvalidParameter)
	}

	start := time.Now()
	results, err := e.index.FindSimilar(itemID, k)
	searchDuration.Observe(time.Since(start).Seconds())
	return results, err
}

// RecommendCF returns collaborative-filtering recommendations for
// userID. Without a published model, or for a user the model has never
// seen, the result is empty; cold-start fallback is the hybrid path's
// job.
func (e *Engine) RecommendCF(userID int64, n int, exclude []int64) ([]models.ScoredItem, error) {
	if n < 0 {
		return nil, fmt.Errorf("n must be non-negative, got %d: %w", n, ErrInvalidParameter)
	}

	model := e.model.Load()
	if model == nil {
		return nil, nil
	}
	return model.Recommend(userID, n, toSet(exclude)), nil
}

// RecommendHybrid blends collaborative-filtering and content-based
// candidates into one ranked list. anchorItemID is optional; without it
// the content list is empty and the blend reduces to normalized CF
// scores (scaled by alpha). Each source over-fetches candidates so the
// blend has enough overlap to be meaningful.
func (e *Engine) RecommendHybrid(userID int64, anchorItemID *int64, n int, alpha float64, exclude []int64) ([]models.ScoredItem, error) {
	if n < 0 {
		return nil, fmt.Errorf("n must be non-negative, got %d: %w", n, ErrInvalidParameter)
	}
	if alpha < 0 || alpha > 1 {
		return nil, fmt.Errorf("alpha %v outside [0, 1]: %w", alpha, ErrInvalidParameter)
	}

	fetch := n * e.candidateFactor()

	var cf []models.ScoredItem
	if model := e.model.Load(); model != nil {
		cf = model.Recommend(userID, fetch, toSet(exclude))
	}

	var cb []models.ScoredItem
	if anchorItemID != nil {
		var err error
		cb, err = e.FindSimilar(*anchorItemID, fetch)
		if err != nil {
			return nil, err
		}
	}

	excludeSet := toSet(exclude)
	if anchorItemID != nil {
		// The anchor itself is already excluded by identity inside the
		// index; keep it out of the CF side as well.
		excludeSet[*anchorItemID] = struct{}{}
	}

	return BlendScores(cf, cb, alpha, excludeSet, n)
}

// AddItems embeds and inserts new items into the live index, then
// persists the extended snapshot. Already-indexed ids are no-ops.
func (e *Engine) AddItems(ctx context.Context, items []models.Item) error {
	if len(items) == 0 {
		return nil
	}

	embeddings, err := e.embedder.EmbedItems(ctx, items)
	if err != nil {
		return fmt.Errorf("failed to embed items: %w", err)
	}
	if err := e.index.Add(items, embeddings); err != nil {
		return err
	}
	indexedItems.Set(float64(e.index.Size()))

	if err := e.saveIndex(); err != nil {
		e.logger.WithError(err).Warn("Failed to persist index after add")
	}
	return nil
}

// RebuildIndex recomputes every embedding and replaces the index
// wholesale. Single-flight: a rebuild arriving while one is running is
// rejected with ErrRebuildInProgress. On failure the previously
// published snapshot stays in service untouched.
func (e *Engine) RebuildIndex(ctx context.Context, items []models.Item) error {
	if !e.rebuildMu.TryLock() {
		return ErrRebuildInProgress
	}
	defer e.rebuildMu.Unlock()

	start := time.Now()
	embeddings, err := e.embedder.EmbedItems(ctx, items)
	if err != nil {
		rebuildFailures.Inc()
		return fmt.Errorf("failed to embed items: %w", err)
	}

	if err := e.index.Rebuild(items, embeddings); err != nil {
		rebuildFailures.Inc()
		return err
	}
	indexedItems.Set(float64(e.index.Size()))
	rebuildDuration.Observe(time.Since(start).Seconds())

	if err := e.saveIndex(); err != nil {
		rebuildFailures.Inc()
		return err
	}
	return nil
}

// RetrainCF builds a fresh interaction matrix, trains a new factor
// model, and publishes it with a single pointer swap. The prior model
// serves reads for the whole duration; a failed run (including
// insufficient data) leaves it in place.
func (e *Engine) RetrainCF(ctx context.Context, interactions []models.Interaction) error {
	if !e.retrainMu.TryLock() {
		return ErrRetrainInProgress
	}
	defer e.retrainMu.Unlock()

	start := time.Now()
	matrix := BuildInteractionMatrix(interactions)
	model, err := TrainALS(matrix, ALSConfig{
		Factors:        e.cfg.Factors,
		Iterations:     e.cfg.Iterations,
		Regularization: e.cfg.Regularization,
		Alpha:          e.cfg.ConfidenceAlpha,
	}, e.logger)
	if err != nil {
		trainFailures.Inc()
		if errors.Is(err, ErrInsufficientData) {
			e.logger.WithFields(logrus.Fields{
				"users": matrix.Users(),
				"items": matrix.Items(),
			}).Warn("Skipping retrain, not enough interaction data")
		}
		return err
	}

	if err := SaveFactorModel(model, e.modelPath()); err != nil {
		trainFailures.Inc()
		return err
	}

	e.model.Store(model)
	modelUsers.Set(float64(model.Users()))
	modelItems.Set(float64(model.Items()))
	trainDuration.Observe(time.Since(start).Seconds())
	return nil
}

func (e *Engine) saveIndex() error {
	return e.index.Save(e.indexBlobPath(), e.indexMappingPath())
}

// DefaultAlpha is the blend weight used when a request does not carry
// one.
func (e *Engine) DefaultAlpha() float64 {
	if e.cfg.DefaultAlpha > 0 {
		return e.cfg.DefaultAlpha
	}
	return 0.5
}

func (e *Engine) candidateFactor() int {
	if e.cfg.CandidateFactor > 0 {
		return e.cfg.CandidateFactor
	}
	return 2
}

func toSet(ids []int64) map[int64]struct{} {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
