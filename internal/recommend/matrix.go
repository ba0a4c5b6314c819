package recommend

import (
	"sort"

	"github.com/fitfeed/fitfeed/pkg/models"
)

// Implicit feedback weights per event type. Multiple events for the same
// (user, item) pair sum without clipping.
const (
	weightView     = 1.0
	weightLike     = 3.0
	weightComplete = 5.0
)

func interactionWeight(t models.InteractionType) (float64, bool) {
	switch t {
	case models.InteractionView:
		return weightView, true
	case models.InteractionLike:
		return weightLike, true
	case models.InteractionComplete:
		return weightComplete, true
	}
	return 0, false
}

type matrixEntry struct {
	index  int // column for row entries, row for column entries
	weight float64
}

// InteractionMatrix is a sparse user-by-item matrix of aggregated
// implicit-feedback weights, built from one snapshot of the interaction
// log. The matrix and its id-to-index mappings form a single immutable
// unit: factors trained from one snapshot must never be interpreted
// through another snapshot's mappings.
type InteractionMatrix struct {
	// UserIDs and ItemIDs are sorted ascending; index assignment is by
	// sorted id, so the same interaction set always produces the same
	// layout.
	UserIDs []int64
	ItemIDs []int64

	UserIndex map[int64]int
	ItemIndex map[int64]int

	rows [][]matrixEntry // per user, sorted by item index
	cols [][]matrixEntry // per item, sorted by user index
	nnz  int
}

// BuildInteractionMatrix aggregates an interaction-log snapshot into a
// weighted sparse matrix. An empty log yields a well-formed zero-sized
// matrix with empty mappings; the trainer treats that as insufficient
// data rather than an error here.
func BuildInteractionMatrix(interactions []models.Interaction) *InteractionMatrix {
	userSet := make(map[int64]struct{})
	itemSet := make(map[int64]struct{})
	for _, in := range interactions {
		if _, ok := interactionWeight(in.Type); !ok {
			continue
		}
		userSet[in.UserID] = struct{}{}
		itemSet[in.ItemID] = struct{}{}
	}

	m := &InteractionMatrix{
		UserIDs:   sortedIDs(userSet),
		ItemIDs:   sortedIDs(itemSet),
		UserIndex: make(map[int64]int, len(userSet)),
		ItemIndex: make(map[int64]int, len(itemSet)),
	}
	for i, id := range m.UserIDs {
		m.UserIndex[id] = i
	}
	for i, id := range m.ItemIDs {
		m.ItemIndex[id] = i
	}

	cells := make(map[[2]int]float64)
	for _, in := range interactions {
		w, ok := interactionWeight(in.Type)
		if !ok {
			continue
		}
		cells[[2]int{m.UserIndex[in.UserID], m.ItemIndex[in.ItemID]}] += w
	}

	m.rows = make([][]matrixEntry, len(m.UserIDs))
	m.cols = make([][]matrixEntry, len(m.ItemIDs))
	for cell, w := range cells {
		u, i := cell[0], cell[1]
		m.rows[u] = append(m.rows[u], matrixEntry{index: i, weight: w})
		m.cols[i] = append(m.cols[i], matrixEntry{index: u, weight: w})
	}
	for _, row := range m.rows {
		sort.Slice(row, func(a, b int) bool { return row[a].index < row[b].index })
	}
	for _, col := range m.cols {
		sort.Slice(col, func(a, b int) bool { return col[a].index < col[b].index })
	}
	m.nnz = len(cells)

	return m
}

// Users returns the number of matrix rows.
func (m *InteractionMatrix) Users() int { return len(m.UserIDs) }

// Items returns the number of matrix columns.
func (m *InteractionMatrix) Items() int { return len(m.ItemIDs) }

// NNZ returns the number of non-zero cells.
func (m *InteractionMatrix) NNZ() int { return m.nnz }

// Weight returns the aggregated weight for a (user, item) pair, 0 when
// either id is unknown or the cell is empty.
func (m *InteractionMatrix) Weight(userID, itemID int64) float64 {
	u, ok := m.UserIndex[userID]
	if !ok {
		return 0
	}
	i, ok := m.ItemIndex[itemID]
	if !ok {
		return 0
	}
	for _, e := range m.rows[u] {
		if e.index == i {
			return e.weight
		}
	}
	return 0
}

func sortedIDs(set map[int64]struct{}) []int64 {
	ids := make([]int64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
