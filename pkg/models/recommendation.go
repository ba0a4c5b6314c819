package models

import (
	"time"

	"github.com/google/uuid"
)

// ScoredItem is one entry of a ranked recommendation result. Score semantics
// depend on the producing source (distance-derived similarity vs. latent
// factor dot product) until the hybrid ranker normalizes them.
type ScoredItem struct {
	ItemID int64   `json:"item_id"`
	Score  float64 `json:"score"`
}

type Recommendation struct {
	ItemID    int64   `json:"item_id"`
	Score     float64 `json:"score"`
	Algorithm string  `json:"algorithm"`
	Position  int     `json:"position"`
	Item      *Item   `json:"item,omitempty"`
}

type RecommendationResponse struct {
	UserID          int64            `json:"user_id"`
	Recommendations []Recommendation `json:"recommendations"`
	GeneratedAt     time.Time        `json:"generated_at"`
	CacheHit        bool             `json:"cache_hit"`
}

type SimilarItemsResponse struct {
	SeedItemID      int64            `json:"seed_item_id"`
	Recommendations []Recommendation `json:"recommendations"`
	GeneratedAt     time.Time        `json:"generated_at"`
}

// JobStatus tracks a background rebuild or retrain run.
type JobStatus struct {
	JobID        uuid.UUID `json:"job_id"`
	Type         string    `json:"type"`   // index_rebuild, cf_retrain
	Status       string    `json:"status"` // queued, processing, completed, failed
	ItemCount    int       `json:"item_count"`
	ErrorMessage *string   `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
