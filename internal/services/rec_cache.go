package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/fitfeed/fitfeed/pkg/models"
)

const recCacheTTL = 60 * time.Second

// RecommendationCache keeps hot recommendation responses in Redis for a
// short window. Entries outlive neither an index rebuild nor a retrain by
// much, so staleness is bounded by the TTL. Cache failures are logged and
// the caller recomputes.
type RecommendationCache struct {
	redisClient *redis.Client
	logger      *logrus.Logger
}

func NewRecommendationCache(redisClient *redis.Client, logger *logrus.Logger) *RecommendationCache {
	return &RecommendationCache{
		redisClient: redisClient,
		logger:      logger,
	}
}

// Key builds the cache key for one hybrid query shape. Requests with a
// custom exclusion set are never cached.
func (rc *RecommendationCache) Key(userID int64, n int, alpha float64, anchorItemID *int64) string {
	anchor := int64(0)
	if anchorItemID != nil {
		anchor = *anchorItemID
	}
	return fmt.Sprintf("rec:hybrid:%d:%d:%g:%d", userID, n, alpha, anchor)
}

func (rc *RecommendationCache) Get(ctx context.Context, key string) (*models.RecommendationResponse, bool) {
	if rc.redisClient == nil {
		return nil, false
	}

	data, err := rc.redisClient.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			rc.logger.WithError(err).WithField("key", key).Debug("Recommendation cache read failed")
		}
		return nil, false
	}

	var resp models.RecommendationResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		rc.logger.WithError(err).WithField("key", key).Warn("Dropping undecodable recommendation cache entry")
		rc.redisClient.Del(ctx, key)
		return nil, false
	}

	resp.CacheHit = true
	return &resp, true
}

func (rc *RecommendationCache) Set(ctx context.Context, key string, resp *models.RecommendationResponse) {
	if rc.redisClient == nil {
		return
	}

	data, err := json.Marshal(resp)
	if err != nil {
		rc.logger.WithError(err).Warn("Failed to marshal recommendation response for cache")
		return
	}
	if err := rc.redisClient.Set(ctx, key, data, recCacheTTL).Err(); err != nil {
		rc.logger.WithError(err).WithField("key", key).Debug("Recommendation cache write failed")
	}
}
