package recommend

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fitfeed/fitfeed/pkg/models"
)

// IndexState tracks the vector index lifecycle. Reads are only served
// from a READY snapshot.
type IndexState int32

const (
	IndexUninitialized IndexState = iota
	IndexBuilding
	IndexReady
)

func (s IndexState) String() string {
	switch s {
	case IndexBuilding:
		return "building"
	case IndexReady:
		return "ready"
	default:
		return "uninitialized"
	}
}

// indexSnapshot is an immutable view of the index. Vectors are stored
// flat, row-major, dimension floats per slot. Slot ids are assigned at
// insertion time, monotonically, and never reused within one snapshot
// lineage; deletions require a full rebuild.
type indexSnapshot struct {
	dimension  int
	vectors    []float64
	itemToSlot map[int64]int
	slotToItem []int64
	updatedAt  time.Time
}

func (s *indexSnapshot) size() int {
	return len(s.slotToItem)
}

func (s *indexSnapshot) vectorAt(slot int) []float64 {
	return s.vectors[slot*s.dimension : (slot+1)*s.dimension]
}

// VectorIndex is an exhaustive L2 nearest-neighbor index over item
// embeddings. Mutations are single-writer: they build a fresh snapshot
// and publish it with a single atomic pointer swap, so concurrent
// readers always observe either the fully-old or fully-new index.
//
// Exhaustive search is fine at catalog scale (thousands of items); the
// k-NN surface is the stable contract should an approximate structure
// ever replace the internals.
type VectorIndex struct {
	logger *logrus.Logger

	mu       sync.Mutex // serializes mutations
	state    atomic.Int32
	snapshot atomic.Pointer[indexSnapshot]
}

func NewVectorIndex(logger *logrus.Logger) *VectorIndex {
	return &VectorIndex{logger: logger}
}

func (vi *VectorIndex) State() IndexState {
	return IndexState(vi.state.Load())
}

// Size returns the number of indexed items in the current snapshot.
func (vi *VectorIndex) Size() int {
	if snap := vi.snapshot.Load(); snap != nil {
		return snap.size()
	}
	return 0
}

// Dimension returns the vector dimension of the current snapshot, or 0
// if the index has not been initialized.
func (vi *VectorIndex) Dimension() int {
	if snap := vi.snapshot.Load(); snap != nil {
		return snap.dimension
	}
	return 0
}

// UpdatedAt returns the publish time of the current snapshot.
func (vi *VectorIndex) UpdatedAt() time.Time {
	if snap := vi.snapshot.Load(); snap != nil {
		return snap.updatedAt
	}
	return time.Time{}
}

// ItemMapping returns a copy of the item id to slot mapping.
func (vi *VectorIndex) ItemMapping() map[int64]int {
	snap := vi.snapshot.Load()
	if snap == nil {
		return map[int64]int{}
	}
	mapping := make(map[int64]int, len(snap.itemToSlot))
	for id, slot := range snap.itemToSlot {
		mapping[id] = slot
	}
	return mapping
}

// Initialize resets the index to an empty snapshot of the given
// dimension, discarding any prior mapping.
func (vi *VectorIndex) Initialize(dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("dimension must be positive, got %d: %w", dimension, ErrInvalidParameter)
	}

	vi.mu.Lock()
	defer vi.mu.Unlock()

	vi.state.Store(int32(IndexBuilding))
	vi.publish(&indexSnapshot{
		dimension:  dimension,
		itemToSlot: make(map[int64]int),
		updatedAt:  time.Now().UTC(),
	})
	return nil
}

// Add appends embeddings for new items, assigning each the next free
// slot. Adding an already-present item id is a no-op. If the index is
// uninitialized it is lazily initialized with the first embedding's
// dimension.
func (vi *VectorIndex) Add(items []models.Item, embeddings [][]float32) error {
	if len(items) != len(embeddings) {
		return fmt.Errorf("got %d items but %d embeddings: %w", len(items), len(embeddings), ErrInvalidParameter)
	}
	if len(items) == 0 {
		return nil
	}

	vi.mu.Lock()
	defer vi.mu.Unlock()

	prev := vi.snapshot.Load()
	if prev == nil {
		prev = &indexSnapshot{
			dimension:  len(embeddings[0]),
			itemToSlot: make(map[int64]int),
		}
		if prev.dimension == 0 {
			return fmt.Errorf("first embedding is empty: %w", ErrInvalidParameter)
		}
	}

	vi.state.Store(int32(IndexBuilding))
	defer vi.state.Store(int32(IndexReady))

	next := &indexSnapshot{
		dimension:  prev.dimension,
		vectors:    append([]float64(nil), prev.vectors...),
		itemToSlot: make(map[int64]int, len(prev.itemToSlot)+len(items)),
		slotToItem: append([]int64(nil), prev.slotToItem...),
		updatedAt:  time.Now().UTC(),
	}
	for id, slot := range prev.itemToSlot {
		next.itemToSlot[id] = slot
	}

	for i, item := range items {
		if _, exists := next.itemToSlot[item.ID]; exists {
			continue
		}
		emb := embeddings[i]
		if len(emb) != next.dimension {
			return fmt.Errorf("item %d: embedding dimension %d does not match index dimension %d: %w",
				item.ID, len(emb), next.dimension, ErrInvalidParameter)
		}
		slot := len(next.slotToItem)
		for _, v := range emb {
			next.vectors = append(next.vectors, float64(v))
		}
		next.itemToSlot[item.ID] = slot
		next.slotToItem = append(next.slotToItem, item.ID)
	}

	vi.publish(next)
	return nil
}

// Rebuild replaces the index contents with the supplied item set. The
// replacement snapshot is assembled off to the side and published with
// one swap, so readers never observe a partially filled index; on any
// error the prior snapshot stays in service and the prior id/slot
// mapping is only discarded once the new one is complete.
func (vi *VectorIndex) Rebuild(items []models.Item, embeddings [][]float32) error {
	if len(items) != len(embeddings) {
		return fmt.Errorf("got %d items but %d embeddings: %w", len(items), len(embeddings), ErrInvalidParameter)
	}

	vi.mu.Lock()
	defer vi.mu.Unlock()

	dimension := 0
	if len(embeddings) > 0 {
		dimension = len(embeddings[0])
	} else if prev := vi.snapshot.Load(); prev != nil {
		dimension = prev.dimension
	}
	if len(items) > 0 && dimension == 0 {
		return fmt.Errorf("first embedding is empty: %w", ErrInvalidParameter)
	}

	vi.state.Store(int32(IndexBuilding))
	defer func() {
		if vi.snapshot.Load() != nil {
			vi.state.Store(int32(IndexReady))
		} else {
			vi.state.Store(int32(IndexUninitialized))
		}
	}()

	next := &indexSnapshot{
		dimension:  dimension,
		vectors:    make([]float64, 0, len(items)*dimension),
		itemToSlot: make(map[int64]int, len(items)),
		updatedAt:  time.Now().UTC(),
	}
	for i, item := range items {
		if _, exists := next.itemToSlot[item.ID]; exists {
			continue
		}
		emb := embeddings[i]
		if len(emb) != dimension {
			return fmt.Errorf("item %d: embedding dimension %d does not match index dimension %d: %w",
				item.ID, len(emb), dimension, ErrInvalidParameter)
		}
		slot := len(next.slotToItem)
		for _, v := range emb {
			next.vectors = append(next.vectors, float64(v))
		}
		next.itemToSlot[item.ID] = slot
		next.slotToItem = append(next.slotToItem, item.ID)
	}

	vi.publish(next)

	vi.logger.WithFields(logrus.Fields{
		"items":     next.size(),
		"dimension": dimension,
	}).Info("Vector index rebuilt")

	return nil
}

// Search returns up to k nearest items to the query vector, ordered by
// ascending L2 distance, with similarity = 1 / (1 + distance). An empty
// index or k <= 0 yields an empty result, not an error.
func (vi *VectorIndex) Search(query []float32, k int) ([]models.ScoredItem, error) {
	snap := vi.snapshot.Load()
	if snap == nil || snap.size() == 0 || k <= 0 {
		return nil, nil
	}
	if len(query) != snap.dimension {
		return nil, fmt.Errorf("query dimension %d does not match index dimension %d: %w",
			len(query), snap.dimension, ErrInvalidParameter)
	}

	q := make([]float64, len(query))
	for i, v := range query {
		q[i] = float64(v)
	}

	return snap.nearest(q, k, -1), nil
}

// FindSimilar runs Search with the stored vector for itemID. The query
// item itself is excluded by identity rather than by a zero-distance
// heuristic, so a legitimate duplicate-content near-tie survives. An
// unknown item id yields an empty result.
func (vi *VectorIndex) FindSimilar(itemID int64, k int) ([]models.ScoredItem, error) {
	snap := vi.snapshot.Load()
	if snap == nil || snap.size() == 0 || k <= 0 {
		return nil, nil
	}

	slot, ok := snap.itemToSlot[itemID]
	if !ok {
		return nil, nil
	}

	return snap.nearest(snap.vectorAt(slot), k, slot), nil
}

// nearest performs the exhaustive scan. excludeSlot < 0 means no
// exclusion. Distances are squared L2; ties break by ascending item id
// for determinism.
func (s *indexSnapshot) nearest(query []float64, k int, excludeSlot int) []models.ScoredItem {
	type candidate struct {
		itemID int64
		dist   float64
	}

	candidates := make([]candidate, 0, s.size())
	for slot := 0; slot < s.size(); slot++ {
		if slot == excludeSlot {
			continue
		}
		vec := s.vectorAt(slot)
		var dist float64
		for i, v := range vec {
			d := v - query[i]
			dist += d * d
		}
		candidates = append(candidates, candidate{itemID: s.slotToItem[slot], dist: dist})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].dist != candidates[j].dist {
			return candidates[i].dist < candidates[j].dist
		}
		return candidates[i].itemID < candidates[j].itemID
	})

	if len(candidates) > k {
		candidates = candidates[:k]
	}

	results := make([]models.ScoredItem, len(candidates))
	for i, c := range candidates {
		results[i] = models.ScoredItem{
			ItemID: c.itemID,
			Score:  1.0 / (1.0 + c.dist),
		}
	}
	return results
}

func (vi *VectorIndex) publish(snap *indexSnapshot) {
	vi.snapshot.Store(snap)
	vi.state.Store(int32(IndexReady))
}
