package recommend

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gonum.org/v1/gonum/mat"
)

// modelFile is the persisted factor-model bundle. Factors and the
// id-to-row mappings are one file on purpose: loading factors without
// the mappings they were trained against would reintroduce the index
// mismatch class of bug this bundle exists to prevent.
type modelFile struct {
	Rank        int            `json:"rank"`
	Iterations  int            `json:"iterations"`
	TrainedAt   time.Time      `json:"trained_at"`
	UserFactors [][]float64    `json:"user_factors"`
	ItemFactors [][]float64    `json:"item_factors"`
	UserMapping map[string]int `json:"user_mapping"`
	ItemMapping map[string]int `json:"item_mapping"`
}

// SaveFactorModel writes the bundle atomically (temp file + rename).
func SaveFactorModel(fm *FactorModel, path string) error {
	if fm == nil {
		return fmt.Errorf("cannot save nil factor model: %w", ErrInvalidParameter)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}

	file := modelFile{
		Rank:        fm.Rank,
		Iterations:  fm.Iterations,
		TrainedAt:   fm.TrainedAt,
		UserFactors: denseRows(fm.userFactors),
		ItemFactors: denseRows(fm.itemFactors),
		UserMapping: make(map[string]int, len(fm.userIndex)),
		ItemMapping: make(map[string]int, len(fm.itemIndex)),
	}
	for id, row := range fm.userIndex {
		file.UserMapping[strconv.FormatInt(id, 10)] = row
	}
	for id, row := range fm.itemIndex {
		file.ItemMapping[strconv.FormatInt(id, 10)] = row
	}

	data, err := json.Marshal(file)
	if err != nil {
		return fmt.Errorf("failed to marshal factor model: %w", err)
	}
	if err := writeAtomic(path, data); err != nil {
		return fmt.Errorf("failed to write factor model: %w", err)
	}
	return nil
}

// LoadFactorModel restores a persisted bundle. A missing file reports
// (nil, false, nil); a malformed one reports an error wrapping
// ErrCorruptSnapshot so the caller can treat it as absent and retrain.
func LoadFactorModel(path string) (*FactorModel, bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read factor model: %w", err)
	}

	var file modelFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, false, fmt.Errorf("malformed factor model file: %v: %w", err, ErrCorruptSnapshot)
	}
	if file.Rank <= 0 {
		return nil, false, fmt.Errorf("factor model has non-positive rank %d: %w", file.Rank, ErrCorruptSnapshot)
	}
	if len(file.UserFactors) != len(file.UserMapping) || len(file.ItemFactors) != len(file.ItemMapping) {
		return nil, false, fmt.Errorf("factor/mapping cardinality mismatch: %w", ErrCorruptSnapshot)
	}

	userFactors, err := rowsToDense(file.UserFactors, file.Rank)
	if err != nil {
		return nil, false, fmt.Errorf("user factors: %w", err)
	}
	itemFactors, err := rowsToDense(file.ItemFactors, file.Rank)
	if err != nil {
		return nil, false, fmt.Errorf("item factors: %w", err)
	}

	userIndex, userIDs, err := parseMapping(file.UserMapping, len(file.UserFactors))
	if err != nil {
		return nil, false, fmt.Errorf("user mapping: %w", err)
	}
	itemIndex, itemIDs, err := parseMapping(file.ItemMapping, len(file.ItemFactors))
	if err != nil {
		return nil, false, fmt.Errorf("item mapping: %w", err)
	}

	return &FactorModel{
		Rank:        file.Rank,
		Iterations:  file.Iterations,
		TrainedAt:   file.TrainedAt,
		userFactors: userFactors,
		itemFactors: itemFactors,
		userIndex:   userIndex,
		itemIndex:   itemIndex,
		userIDs:     userIDs,
		itemIDs:     itemIDs,
	}, true, nil
}

func denseRows(m *mat.Dense) [][]float64 {
	rows, cols := m.Dims()
	out := make([][]float64, rows)
	for i := 0; i < rows; i++ {
		row := make([]float64, cols)
		copy(row, m.RawRowView(i))
		out[i] = row
	}
	return out
}

func rowsToDense(rows [][]float64, rank int) (*mat.Dense, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("empty factor matrix: %w", ErrCorruptSnapshot)
	}
	data := make([]float64, 0, len(rows)*rank)
	for _, row := range rows {
		if len(row) != rank {
			return nil, fmt.Errorf("factor row has %d entries, want %d: %w", len(row), rank, ErrCorruptSnapshot)
		}
		data = append(data, row...)
	}
	return mat.NewDense(len(rows), rank, data), nil
}

func parseMapping(raw map[string]int, rows int) (map[int64]int, []int64, error) {
	index := make(map[int64]int, len(raw))
	ids := make([]int64, rows)
	seen := make([]bool, rows)
	for idStr, row := range raw {
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			return nil, nil, fmt.Errorf("non-numeric id %q: %w", idStr, ErrCorruptSnapshot)
		}
		if row < 0 || row >= rows {
			return nil, nil, fmt.Errorf("row %d out of range for id %d: %w", row, id, ErrCorruptSnapshot)
		}
		if seen[row] {
			return nil, nil, fmt.Errorf("row %d mapped twice: %w", row, ErrCorruptSnapshot)
		}
		seen[row] = true
		index[id] = row
		ids[row] = id
	}
	return index, ids, nil
}
