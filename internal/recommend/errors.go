package recommend

import "errors"

// Error taxonomy for the engine. Query paths that can express "unknown id"
// as an empty result do so instead of returning ErrNotFound; everything
// else propagates synchronously to the caller.
var (
	// ErrNotFound is returned by operations that require an existing
	// item or user, e.g. rebuilding around a missing anchor.
	ErrNotFound = errors.New("not found")

	// ErrInsufficientData is returned when training is attempted on an
	// empty or near-empty interaction matrix. The previously published
	// model snapshot stays in service.
	ErrInsufficientData = errors.New("insufficient interaction data")

	// ErrCorruptSnapshot indicates a malformed persisted index or model
	// file. Callers treat it as absent state and rebuild.
	ErrCorruptSnapshot = errors.New("corrupt persisted snapshot")

	// ErrInvalidParameter is returned for out-of-range arguments before
	// any computation happens.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrRebuildInProgress / ErrRetrainInProgress enforce single-flight
	// batch operations per resource.
	ErrRebuildInProgress = errors.New("index rebuild already in progress")
	ErrRetrainInProgress = errors.New("model retrain already in progress")
)
