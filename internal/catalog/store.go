package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"

	"github.com/fitfeed/fitfeed/internal/recommend"
	"github.com/fitfeed/fitfeed/pkg/models"
)

// DB is the subset of pgxpool.Pool the store needs. pgxmock implements it
// for tests.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store provides access to the item catalog and the interaction log.
type Store struct {
	db     DB
	logger *logrus.Logger
}

func NewStore(db DB, logger *logrus.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger,
	}
}

// CreateItem inserts a new catalog item and returns it with the
// database-assigned id and timestamp.
func (s *Store) CreateItem(ctx context.Context, req *models.ItemCreateRequest) (*models.Item, error) {
	item := &models.Item{
		Title:       req.Title,
		Type:        req.Type,
		Description: req.Description,
		Tags:        req.Tags,
		Duration:    req.Duration,
		Difficulty:  req.Difficulty,
		MediaURL:    req.MediaURL,
	}

	query := `
		INSERT INTO items (title, item_type, description, tags, duration, difficulty, media_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`

	err := s.db.QueryRow(ctx, query,
		item.Title,
		item.Type,
		item.Description,
		item.Tags,
		item.Duration,
		item.Difficulty,
		item.MediaURL,
	).Scan(&item.ID, &item.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert item: %w", err)
	}

	return item, nil
}

// GetItem fetches a single item by id.
func (s *Store) GetItem(ctx context.Context, itemID int64) (*models.Item, error) {
	query := `
		SELECT id, title, item_type, description, tags, duration, difficulty, media_url, created_at
		FROM items
		WHERE id = $1`

	var item models.Item
	err := s.db.QueryRow(ctx, query, itemID).Scan(
		&item.ID,
		&item.Title,
		&item.Type,
		&item.Description,
		&item.Tags,
		&item.Duration,
		&item.Difficulty,
		&item.MediaURL,
		&item.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("item %d: %w", itemID, recommend.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query item: %w", err)
	}

	return &item, nil
}

// ListItems returns catalog items ordered by id with pagination.
func (s *Store) ListItems(ctx context.Context, limit, offset int) ([]models.Item, error) {
	query := `
		SELECT id, title, item_type, description, tags, duration, difficulty, media_url, created_at
		FROM items
		ORDER BY id
		LIMIT $1 OFFSET $2`

	rows, err := s.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	var items []models.Item
	for rows.Next() {
		var item models.Item
		err := rows.Scan(
			&item.ID,
			&item.Title,
			&item.Type,
			&item.Description,
			&item.Tags,
			&item.Duration,
			&item.Difficulty,
			&item.MediaURL,
			&item.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read items: %w", err)
	}

	return items, nil
}

// AllItems returns the full catalog, used for index rebuilds.
func (s *Store) AllItems(ctx context.Context) ([]models.Item, error) {
	return s.ListItems(ctx, allRowsLimit, 0)
}

// Postgres treats LIMIT ALL as no limit; a large sentinel keeps the query
// shape identical to the paginated path.
const allRowsLimit = 1 << 31

// CreateInteraction appends one interaction to the log. The item must
// exist; a missing item surfaces as ErrNotFound.
func (s *Store) CreateInteraction(ctx context.Context, req *models.InteractionCreateRequest) (*models.Interaction, error) {
	if !req.Type.Valid() {
		return nil, fmt.Errorf("interaction type %q: %w", req.Type, recommend.ErrInvalidParameter)
	}

	if _, err := s.GetItem(ctx, req.ItemID); err != nil {
		return nil, err
	}

	interaction := &models.Interaction{
		UserID: req.UserID,
		ItemID: req.ItemID,
		Type:   req.Type,
	}

	query := `
		INSERT INTO interactions (user_id, item_id, interaction_type)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	err := s.db.QueryRow(ctx, query,
		interaction.UserID,
		interaction.ItemID,
		interaction.Type,
	).Scan(&interaction.ID, &interaction.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert interaction: %w", err)
	}

	return interaction, nil
}

// AllInteractions returns the complete interaction log, used for
// collaborative-filter retraining.
func (s *Store) AllInteractions(ctx context.Context) ([]models.Interaction, error) {
	query := `
		SELECT id, user_id, item_id, interaction_type, created_at
		FROM interactions
		ORDER BY id`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query interactions: %w", err)
	}
	defer rows.Close()

	var interactions []models.Interaction
	for rows.Next() {
		var in models.Interaction
		err := rows.Scan(&in.ID, &in.UserID, &in.ItemID, &in.Type, &in.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan interaction: %w", err)
		}
		interactions = append(interactions, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read interactions: %w", err)
	}

	return interactions, nil
}

// UserItemIDs returns the distinct items a user has interacted with,
// used to exclude seen items from recommendations.
func (s *Store) UserItemIDs(ctx context.Context, userID int64) ([]int64, error) {
	query := `
		SELECT DISTINCT item_id
		FROM interactions
		WHERE user_id = $1
		ORDER BY item_id`

	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query user items: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan item id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read user items: %w", err)
	}

	return ids, nil
}
