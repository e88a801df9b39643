// Package engine provides the approximate nearest-neighbour capability that
// vexus stores wrap: a fixed-dimension float32 index keyed by uint64 labels
// with explicit capacity reservation and a native binary snapshot.
//
// Engines are not safe for concurrent mutation. Callers (see package store)
// serialise writers and allow concurrent readers.
package engine

import (
	"errors"
	"fmt"
)

// Metric selects the distance reported by an engine.
type Metric string

const (
	// MetricL2Sq is squared Euclidean distance. Identical vectors have distance 0.
	MetricL2Sq Metric = "l2sq"
	// MetricCosine is cosine distance (1 - cosine similarity) over normalised vectors.
	MetricCosine Metric = "cos"
)

// Sentinel errors returned by engines.
var (
	// ErrCapacityExceeded is returned when adding a new label to a full engine.
	ErrCapacityExceeded = errors.New("engine: capacity exceeded")
	// ErrInvalidOptions is returned when options cannot produce an engine.
	ErrInvalidOptions = errors.New("engine: invalid options")
	// ErrCorruptSnapshot is returned when a snapshot cannot be decoded.
	ErrCorruptSnapshot = errors.New("engine: corrupt snapshot")
)

// Options configures a new engine.
type Options struct {
	// Dimensions is the vector length. Required; must be positive.
	Dimensions int

	// Metric is the distance metric (default: l2sq).
	Metric Metric

	// M is the HNSW max connections per layer (default: 16).
	M int

	// EfSearch is the HNSW query-time search width (default: 64).
	EfSearch int

	// EfConstruction is the HNSW build-time search width (default: 128).
	// coder/hnsw derives its build width from EfSearch; the value is kept
	// for snapshot metadata and stats.
	EfConstruction int

	// Ml is the level generation factor (default: 0.25).
	Ml float64
}

// DefaultOptions returns squared L2 with connectivity 16, build expansion
// 128, query expansion 64 and level factor 0.25.
func DefaultOptions(dimensions int) Options {
	return Options{
		Dimensions:     dimensions,
		Metric:         MetricL2Sq,
		M:              16,
		EfSearch:       64,
		EfConstruction: 128,
		Ml:             0.25,
	}
}

func (o *Options) setDefaults() {
	if o.Metric == "" {
		o.Metric = MetricL2Sq
	}
	if o.M == 0 {
		o.M = 16
	}
	if o.EfSearch == 0 {
		o.EfSearch = 64
	}
	if o.EfConstruction == 0 {
		o.EfConstruction = 128
	}
	if o.Ml == 0 {
		o.Ml = 0.25
	}
}

// Validate reports whether the options describe a constructible engine.
func (o Options) Validate() error {
	if o.Dimensions <= 0 {
		return fmt.Errorf("%w: dimensions must be positive, got %d", ErrInvalidOptions, o.Dimensions)
	}
	switch o.Metric {
	case MetricL2Sq, MetricCosine, "":
	default:
		return fmt.Errorf("%w: unknown metric %q", ErrInvalidOptions, o.Metric)
	}
	if o.M < 0 || o.EfSearch < 0 {
		return fmt.Errorf("%w: M and EfSearch must be non-negative", ErrInvalidOptions)
	}
	return nil
}

// Engine is the opaque ANN capability consumed by the vector stores.
// All operations are synchronous.
type Engine interface {
	// Add inserts vec under label, replacing any existing vector for label.
	Add(label uint64, vec []float32) error

	// Remove deletes label. It reports whether the label was present.
	Remove(label uint64) (bool, error)

	// Get copies the vector stored under label into out.
	// It reports false if label is absent; out is left untouched.
	Get(label uint64, out []float32) bool

	// Contains reports whether label is present.
	Contains(label uint64) bool

	// Search returns up to k labels nearest to vec with their distances,
	// ordered by increasing distance.
	Search(vec []float32, k int) ([]uint64, []float32, error)

	// Reserve grows capacity to at least n vectors. It never shrinks.
	Reserve(n int) error

	// Size returns the number of stored vectors.
	Size() int

	// Capacity returns the number of vectors that fit before Reserve is required.
	Capacity() int

	// MemoryUsage estimates resident bytes.
	MemoryUsage() int64

	// Dimensions returns the fixed vector length.
	Dimensions() int

	// Save writes a native snapshot to path.
	Save(path string) error

	// Load replaces the engine contents with the snapshot at path.
	Load(path string) error
}
