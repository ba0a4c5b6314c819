package models

import "time"

type ItemType string

const (
	ItemTypeArticle ItemType = "article"
	ItemTypeWorkout ItemType = "workout"
	ItemTypeVideo   ItemType = "video"
)

type DifficultyLevel string

const (
	DifficultyBeginner     DifficultyLevel = "beginner"
	DifficultyIntermediate DifficultyLevel = "intermediate"
	DifficultyAdvanced     DifficultyLevel = "advanced"
)

// Item is an immutable snapshot of a catalog entry, captured at read time.
// The engine only consumes these fields to derive an embedding; the catalog
// owns the record.
type Item struct {
	ID          int64           `json:"id" db:"id"`
	Title       string          `json:"title" db:"title" validate:"required,min=1,max=255"`
	Type        ItemType        `json:"type" db:"type" validate:"required,oneof=article workout video"`
	Description *string         `json:"description,omitempty" db:"description"`
	Tags        []string        `json:"tags" db:"tags"`
	Duration    int             `json:"duration" db:"duration" validate:"min=0"`
	Difficulty  DifficultyLevel `json:"difficulty" db:"difficulty" validate:"required,oneof=beginner intermediate advanced"`
	MediaURL    *string         `json:"media_url,omitempty" db:"media_url"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

type ItemCreateRequest struct {
	Title       string          `json:"title" validate:"required,min=1,max=255"`
	Type        ItemType        `json:"type" validate:"required,oneof=article workout video"`
	Description *string         `json:"description,omitempty"`
	Tags        []string        `json:"tags"`
	Duration    int             `json:"duration" validate:"min=0"`
	Difficulty  DifficultyLevel `json:"difficulty" validate:"required,oneof=beginner intermediate advanced"`
	MediaURL    *string         `json:"media_url,omitempty"`
}
