package models

import "time"

type InteractionType string

const (
	InteractionView     InteractionType = "view"
	InteractionLike     InteractionType = "like"
	InteractionComplete InteractionType = "complete"
)

// Valid reports whether t is one of the implicit signal types the engine
// understands. Explicit ratings are intentionally not supported.
func (t InteractionType) Valid() bool {
	switch t {
	case InteractionView, InteractionLike, InteractionComplete:
		return true
	}
	return false
}

// Interaction is a single append-only event from the interaction log.
type Interaction struct {
	ID        int64           `json:"id" db:"id"`
	UserID    int64           `json:"user_id" db:"user_id" validate:"required,min=1"`
	ItemID    int64           `json:"item_id" db:"item_id" validate:"required,min=1"`
	Type      InteractionType `json:"type" db:"interaction_type" validate:"required,oneof=view like complete"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

type InteractionCreateRequest struct {
	UserID int64           `json:"user_id" validate:"required,min=1"`
	ItemID int64           `json:"item_id" validate:"required,min=1"`
	Type   InteractionType `json:"type" validate:"required,oneof=view like complete"`
}
