package recommend

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// On-disk layout: a raw vector blob and a companion JSON mapping file of
// shape {"item_mapping": {"<item_id>": slot}, "updated_at": ...}. Both
// are written to temporary files and renamed into place so a reader
// never observes a half-written snapshot.

const indexBlobMagic = uint32(0x46465649) // "FFVI"

type mappingFile struct {
	ItemMapping map[string]int `json:"item_mapping"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Save persists the current snapshot. Saving an uninitialized index is
// an error; saving an empty initialized index is fine.
func (vi *VectorIndex) Save(blobPath, mappingPath string) error {
	snap := vi.snapshot.Load()
	if snap == nil {
		return fmt.Errorf("cannot save uninitialized index: %w", ErrInvalidParameter)
	}

	if err := os.MkdirAll(filepath.Dir(blobPath), 0o755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}

	if err := writeAtomic(blobPath, encodeVectorBlob(snap)); err != nil {
		return fmt.Errorf("failed to write vector blob: %w", err)
	}

	mapping := mappingFile{
		ItemMapping: make(map[string]int, len(snap.itemToSlot)),
		UpdatedAt:   snap.updatedAt,
	}
	for id, slot := range snap.itemToSlot {
		mapping.ItemMapping[strconv.FormatInt(id, 10)] = slot
	}

	data, err := json.Marshal(mapping)
	if err != nil {
		return fmt.Errorf("failed to marshal item mapping: %w", err)
	}
	if err := writeAtomic(mappingPath, data); err != nil {
		return fmt.Errorf("failed to write item mapping: %w", err)
	}

	return nil
}

// Load restores a persisted snapshot. A missing file reports
// (false, nil): not loaded, caller decides to rebuild. A malformed file
// reports (false, error wrapping ErrCorruptSnapshot) and likewise leaves
// the index untouched; corruption never propagates into a request path.
func (vi *VectorIndex) Load(blobPath, mappingPath string) (bool, error) {
	blob, err := os.ReadFile(blobPath)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read vector blob: %w", err)
	}

	mappingData, err := os.ReadFile(mappingPath)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read item mapping: %w", err)
	}

	snap, err := decodeVectorBlob(blob)
	if err != nil {
		return false, err
	}

	var mapping mappingFile
	if err := json.Unmarshal(mappingData, &mapping); err != nil {
		return false, fmt.Errorf("malformed item mapping file: %v: %w", err, ErrCorruptSnapshot)
	}
	if len(mapping.ItemMapping) != len(snap.slotToItem) {
		return false, fmt.Errorf("mapping has %d entries but blob has %d vectors: %w",
			len(mapping.ItemMapping), len(snap.slotToItem), ErrCorruptSnapshot)
	}

	snap.itemToSlot = make(map[int64]int, len(mapping.ItemMapping))
	for idStr, slot := range mapping.ItemMapping {
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			return false, fmt.Errorf("non-numeric item id %q in mapping: %w", idStr, ErrCorruptSnapshot)
		}
		if slot < 0 || slot >= len(snap.slotToItem) {
			return false, fmt.Errorf("slot %d out of range for item %d: %w", slot, id, ErrCorruptSnapshot)
		}
		snap.itemToSlot[id] = slot
		snap.slotToItem[slot] = id
	}
	if len(snap.itemToSlot) != len(snap.slotToItem) {
		return false, fmt.Errorf("item/slot mapping is not a bijection: %w", ErrCorruptSnapshot)
	}
	snap.updatedAt = mapping.UpdatedAt

	vi.mu.Lock()
	defer vi.mu.Unlock()
	vi.publish(snap)

	vi.logger.WithFields(logrus.Fields{
		"items":     snap.size(),
		"dimension": snap.dimension,
	}).Info("Vector index loaded from disk")

	return true, nil
}

func encodeVectorBlob(snap *indexSnapshot) []byte {
	buf := make([]byte, 12, 12+len(snap.vectors)*4)
	binary.LittleEndian.PutUint32(buf[0:4], indexBlobMagic)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(snap.dimension))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(snap.size()))
	for _, v := range snap.vectors {
		var scratch [4]byte
		binary.LittleEndian.PutUint32(scratch[:], math.Float32bits(float32(v)))
		buf = append(buf, scratch[:]...)
	}
	return buf
}

func decodeVectorBlob(data []byte) (*indexSnapshot, error) {
	if len(data) < 12 {
		return nil, fmt.Errorf("vector blob truncated: %w", ErrCorruptSnapshot)
	}
	if binary.LittleEndian.Uint32(data[0:4]) != indexBlobMagic {
		return nil, fmt.Errorf("vector blob has wrong magic: %w", ErrCorruptSnapshot)
	}
	dimension := int(binary.LittleEndian.Uint32(data[4:8]))
	count := int(binary.LittleEndian.Uint32(data[8:12]))
	if dimension <= 0 {
		return nil, fmt.Errorf("vector blob has non-positive dimension %d: %w", dimension, ErrCorruptSnapshot)
	}
	if len(data) != 12+dimension*count*4 {
		return nil, fmt.Errorf("vector blob has %d payload bytes, want %d: %w",
			len(data)-12, dimension*count*4, ErrCorruptSnapshot)
	}

	snap := &indexSnapshot{
		dimension:  dimension,
		vectors:    make([]float64, 0, dimension*count),
		slotToItem: make([]int64, count),
	}
	for off := 12; off < len(data); off += 4 {
		bits := binary.LittleEndian.Uint32(data[off : off+4])
		snap.vectors = append(snap.vectors, float64(math.Float32frombits(bits)))
	}
	return snap, nil
}

// writeAtomic writes data to a temporary sibling file and renames it
// into place. Rename is atomic on POSIX filesystems, so concurrent
// loads see either the old or the new file, never a partial one.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
