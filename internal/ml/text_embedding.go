package ml

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/unicode/norm"
	"gonum.org/v1/gonum/floats"

	"github.com/fitfeed/fitfeed/internal/config"
	"github.com/fitfeed/fitfeed/pkg/models"
)

// TextEmbeddingService derives fixed-dimension vectors from item text.
// Embeddings are a pure function of the composed text: the same input
// always yields the same vector, and a batch call is pairwise identical
// to sequential single calls. That determinism is what lets the vector
// index persist raw vectors and reload them across restarts.
type TextEmbeddingService struct {
	redisClient *redis.Client // optional, nil disables caching
	logger      *logrus.Logger

	dimensions   int
	modelVersion string
	batchSize    int
	cachePrefix  string
	cacheTTL     time.Duration

	workerPool chan chan embeddingJob
	jobQueue   chan embeddingJob
	workers    []*embeddingWorker
}

// embeddingJob carries one text through the worker pool.
type embeddingJob struct {
	Text     string
	Response chan embeddingResult
}

type embeddingResult struct {
	Embedding []float32
	Err       error
}

type embeddingWorker struct {
	service    *TextEmbeddingService
	jobChannel chan embeddingJob
	quit       chan struct{}
}

func NewTextEmbeddingService(cfg config.EmbeddingConfig, redisClient *redis.Client, logger *logrus.Logger) *TextEmbeddingService {
	if cfg.Dimensions == 0 {
		cfg.Dimensions = 384
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 32
	}
	if cfg.WorkerCount == 0 {
		cfg.WorkerCount = 4
	}
	if cfg.CachePrefix == "" {
		cfg.CachePrefix = "embed:item"
	}
	if cfg.ModelVersion == "" {
		cfg.ModelVersion = "hash-v1"
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 24 * time.Hour
	}

	service := &TextEmbeddingService{
		redisClient:  redisClient,
		logger:       logger,
		dimensions:   cfg.Dimensions,
		modelVersion: cfg.ModelVersion,
		batchSize:    cfg.BatchSize,
		cachePrefix:  cfg.CachePrefix,
		cacheTTL:     cfg.CacheTTL,
		workerPool:   make(chan chan embeddingJob, cfg.WorkerCount),
		jobQueue:     make(chan embeddingJob, cfg.BatchSize*2),
	}

	service.startWorkers(cfg.WorkerCount)

	return service
}

// Dimensions returns the embedding dimension.
func (tes *TextEmbeddingService) Dimensions() int {
	return tes.dimensions
}

// ItemText composes the text an item's embedding is derived from. The
// field order is fixed: title, description, tags, difficulty, duration,
// type. Changing this composition invalidates every persisted vector,
// so it is versioned through the model version string.
func ItemText(item models.Item) string {
	description := ""
	if item.Description != nil {
		description = *item.Description
	}

	parts := []string{
		item.Title,
		description,
		strings.Join(item.Tags, " "),
		string(item.Difficulty),
		fmt.Sprintf("%d minutes", item.Duration),
		string(item.Type),
	}

	return norm.NFKC.String(strings.Join(parts, " "))
}

// EmbedItem computes the embedding for a single item.
func (tes *TextEmbeddingService) EmbedItem(ctx context.Context, item models.Item) ([]float32, error) {
	return tes.Embed(ctx, ItemText(item))
}

// EmbedItems computes embeddings for a batch of items, in input order.
// Results are pairwise identical to sequential EmbedItem calls.
func (tes *TextEmbeddingService) EmbedItems(ctx context.Context, items []models.Item) ([][]float32, error) {
	if len(items) == 0 {
		return nil, nil
	}

	jobs := make([]embeddingJob, len(items))
	for i, item := range items {
		jobs[i] = embeddingJob{
			Text:     ItemText(item),
			Response: make(chan embeddingResult, 1),
		}
		tes.jobQueue <- jobs[i]
	}

	results := make([][]float32, len(items))
	for i := range jobs {
		result := <-jobs[i].Response
		if result.Err != nil {
			return nil, fmt.Errorf("failed to embed item %d: %w", items[i].ID, result.Err)
		}
		results[i] = result.Embedding
	}
	return results, nil
}

// Embed computes the embedding for raw text.
func (tes *TextEmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	if embedding, found := tes.getCachedEmbedding(ctx, text); found {
		return embedding, nil
	}

	embedding := tes.generateEmbedding(text)
	tes.cacheEmbedding(ctx, text, embedding)

	return embedding, nil
}

func (tes *TextEmbeddingService) startWorkers(count int) {
	tes.workers = make([]*embeddingWorker, count)
	for i := 0; i < count; i++ {
		worker := &embeddingWorker{
			service:    tes,
			jobChannel: make(chan embeddingJob),
			quit:       make(chan struct{}),
		}
		tes.workers[i] = worker
		go worker.start()
	}

	go tes.dispatch()
}

func (tes *TextEmbeddingService) dispatch() {
	for job := range tes.jobQueue {
		jobChannel := <-tes.workerPool
		jobChannel <- job
	}
}

func (w *embeddingWorker) start() {
	for {
		w.service.workerPool <- w.jobChannel

		select {
		case job := <-w.jobChannel:
			ctx := context.Background()
			if embedding, found := w.service.getCachedEmbedding(ctx, job.Text); found {
				job.Response <- embeddingResult{Embedding: embedding}
				continue
			}
			embedding := w.service.generateEmbedding(job.Text)
			w.service.cacheEmbedding(ctx, job.Text, embedding)
			job.Response <- embeddingResult{Embedding: embedding}
		case <-w.quit:
			return
		}
	}
}

// Stop shuts down the worker pool.
func (tes *TextEmbeddingService) Stop() {
	for _, worker := range tes.workers {
		close(worker.quit)
	}
	tes.logger.Info("Text embedding service stopped")
}

// generateEmbedding builds the deterministic vector for a text. The
// construction mixes a content hash, token-level features, length
// features and a positional component, then L2-normalizes, so that
// similar texts land near each other while any change to the text moves
// the vector.
func (tes *TextEmbeddingService) generateEmbedding(text string) []float32 {
	tokens := tes.tokenize(text)
	embedding := make([]float32, tes.dimensions)

	hasher := sha256.New()
	hasher.Write([]byte(text))
	hash := hasher.Sum(nil)

	textLength := float32(len(text))
	tokenCount := float32(len(tokens))
	avgTokenLength := textLength / tokenCount

	for i := 0; i < tes.dimensions; i++ {
		hashComponent := (float32(hash[i%len(hash)])/255.0 - 0.5) * 0.4
		tokenComponent := tes.tokenFeature(tokens, i) * 0.3

		lengthComponent := (textLength/100.0 - 0.5) * 0.2
		if i%4 == 0 {
			lengthComponent *= avgTokenLength / 10.0
		}

		posComponent := float32(0.1 * (float64(i)/float64(tes.dimensions) - 0.5))

		noiseHash := sha256.Sum256(fmt.Appendf(nil, "%s_%d", text, i))
		noise := (float32(noiseHash[0])/255.0 - 0.5) * 0.05

		embedding[i] = hashComponent + tokenComponent + lengthComponent + posComponent + noise
	}

	return l2Normalize(embedding)
}

var punctuationRegex = regexp.MustCompile(`([.!?,:;()[\]{}'""])`)

func (tes *TextEmbeddingService) tokenize(text string) []string {
	text = strings.ToLower(strings.TrimSpace(text))
	text = punctuationRegex.ReplaceAllString(text, " $1 ")

	var tokens []string
	for _, word := range strings.Fields(text) {
		if len(word) > 6 && !isPunctuation(word) {
			tokens = append(tokens, subwordTokenize(word)...)
		} else {
			tokens = append(tokens, word)
		}
	}

	result := []string{"[CLS]"}
	result = append(result, tokens...)
	return append(result, "[SEP]")
}

func isPunctuation(s string) bool {
	return len(s) == 1 && strings.Contains(".!?,:;()[]{}'\"", s)
}

func subwordTokenize(word string) []string {
	if len(word) <= 4 {
		return []string{word}
	}

	var tokens []string
	for i := 0; i < len(word); {
		end := i + 4
		if end > len(word) {
			end = len(word)
		}
		if end < len(word) && end-i < 6 {
			for j := end; j < min(len(word), i+6); j++ {
				if isVowel(rune(word[j])) {
					end = j
					break
				}
			}
		}

		token := word[i:end]
		if i > 0 {
			token = "##" + token
		}
		tokens = append(tokens, token)
		i = end
	}
	return tokens
}

func isVowel(r rune) bool {
	return strings.ContainsRune("aeiouAEIOU", r)
}

// tokenFeature extracts one scalar feature per dimension bucket.
func (tes *TextEmbeddingService) tokenFeature(tokens []string, dimension int) float32 {
	if len(tokens) == 0 {
		return 0
	}

	var feature float32
	switch dimension % 8 {
	case 0: // punctuation density
		count := 0
		for _, token := range tokens {
			if isPunctuation(token) {
				count++
			}
		}
		feature = float32(count) / float32(len(tokens))

	case 1: // average token length
		total := 0
		for _, token := range tokens {
			total += len(token)
		}
		feature = float32(total) / float32(len(tokens)) / 10.0

	case 2: // subword token ratio
		count := 0
		for _, token := range tokens {
			if strings.HasPrefix(token, "##") {
				count++
			}
		}
		feature = float32(count) / float32(len(tokens))

	case 3: // leading-capital ratio
		count := 0
		for _, token := range tokens {
			if len(token) > 0 && token[0] >= 'A' && token[0] <= 'Z' {
				count++
			}
		}
		feature = float32(count) / float32(len(tokens))

	case 4: // vowel density
		vowels, chars := 0, 0
		for _, token := range tokens {
			for _, r := range token {
				chars++
				if isVowel(r) {
					vowels++
				}
			}
		}
		if chars > 0 {
			feature = float32(vowels) / float32(chars)
		}

	case 5: // token diversity
		unique := make(map[string]bool, len(tokens))
		for _, token := range tokens {
			unique[token] = true
		}
		feature = float32(len(unique)) / float32(len(tokens))

	case 6: // numeric content
		count := 0
		for _, token := range tokens {
			if _, err := strconv.ParseFloat(token, 32); err == nil {
				count++
			}
		}
		feature = float32(count) / float32(len(tokens))

	case 7: // special token ratio
		count := 0
		for _, token := range tokens {
			if strings.HasPrefix(token, "[") && strings.HasSuffix(token, "]") {
				count++
			}
		}
		feature = float32(count) / float32(len(tokens))
	}

	return feature - 0.5
}

func l2Normalize(embedding []float32) []float32 {
	vec := make([]float64, len(embedding))
	for i, v := range embedding {
		vec[i] = float64(v)
	}

	n := floats.Norm(vec, 2)
	if n == 0 {
		return embedding
	}

	normalized := make([]float32, len(embedding))
	for i, v := range vec {
		normalized[i] = float32(v / n)
	}
	return normalized
}

func (tes *TextEmbeddingService) getCachedEmbedding(ctx context.Context, text string) ([]float32, bool) {
	if tes.redisClient == nil {
		return nil, false
	}

	result, err := tes.redisClient.Get(ctx, tes.cacheKey(text)).Result()
	if err != nil {
		return nil, false
	}

	var embedding []float32
	if err := json.Unmarshal([]byte(result), &embedding); err != nil || len(embedding) != tes.dimensions {
		tes.logger.WithError(err).Warn("Discarding unusable cached embedding")
		return nil, false
	}
	return embedding, true
}

func (tes *TextEmbeddingService) cacheEmbedding(ctx context.Context, text string, embedding []float32) {
	if tes.redisClient == nil {
		return
	}

	data, err := json.Marshal(embedding)
	if err != nil {
		return
	}
	if err := tes.redisClient.Set(ctx, tes.cacheKey(text), data, tes.cacheTTL).Err(); err != nil {
		tes.logger.WithError(err).Warn("Failed to cache embedding")
	}
}

func (tes *TextEmbeddingService) cacheKey(text string) string {
	contentHash := fmt.Sprintf("%x", sha256.Sum256([]byte(text)))[:16]
	return fmt.Sprintf("%s:%s:%s", tes.cachePrefix, tes.modelVersion, contentHash)
}
