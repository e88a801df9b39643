// Package store provides the lock-guarded vector stores that own an index
// engine: the identifier-keyed Index, where callers supply labels directly,
// and the tag-keyed TagIndex, which allocates labels for string tags.
// It also implements crash-safer persistence of both.
package store

import (
	"fmt"
	"log/slog"

	"github.com/Aman-CERP/vexus/internal/engine"
)

// Config configures a vector store.
type Config struct {
	// Dimensions is the vector length, fixed for the life of the store.
	Dimensions int

	// Capacity is the initial reservation. On load it is the minimum
	// capacity the restored store must have.
	Capacity int

	// Metric is the engine distance metric: "l2sq" (default) or "cos".
	Metric engine.Metric

	// M is HNSW max connections per layer (default: 16).
	M int

	// EfSearch is HNSW query-time search width (default: 64).
	EfSearch int

	// EfConstruction is HNSW build-time search width (default: 128).
	EfConstruction int
}

// DefaultConfig returns a squared-L2 configuration with HNSW connectivity 16
// and expansion 128 at build time, 64 at query time.
func DefaultConfig(dimensions, capacity int) Config {
	opts := engine.DefaultOptions(dimensions)
	return Config{
		Dimensions:     dimensions,
		Capacity:       capacity,
		Metric:         opts.Metric,
		M:              opts.M,
		EfSearch:       opts.EfSearch,
		EfConstruction: opts.EfConstruction,
	}
}

func (c Config) engineOptions() engine.Options {
	opts := engine.DefaultOptions(c.Dimensions)
	if c.Metric != "" {
		opts.Metric = c.Metric
	}
	if c.M > 0 {
		opts.M = c.M
	}
	if c.EfSearch > 0 {
		opts.EfSearch = c.EfSearch
	}
	if c.EfConstruction > 0 {
		opts.EfConstruction = c.EfConstruction
	}
	return opts
}

// Result is a single identifier-keyed search hit.
type Result struct {
	Label    uint64  `json:"label"`
	Distance float32 `json:"distance"`
	// Score is 1 - Distance: monotonically decreasing in distance,
	// not a normalised probability.
	Score float32 `json:"score"`
}

// TagResult is a single tag-keyed search hit.
type TagResult struct {
	Tag      string  `json:"tag"`
	Label    uint64  `json:"label"`
	Distance float32 `json:"distance"`
	Score    float32 `json:"score"`
}

// Stats is a consistent snapshot of store size and shape.
type Stats struct {
	Count       int   `json:"total_vectors"`
	Dimensions  int   `json:"dimensions"`
	Capacity    int   `json:"capacity"`
	MemoryUsage int64 `json:"memory_usage"`
}

// BatchError reports the position in a batch whose insert failed.
// Inserts before Index have already been applied; batches are not rolled back.
type BatchError struct {
	Index int
	Label uint64
	Tag   string
	Err   error
}

func (e *BatchError) Error() string {
	if e.Tag != "" {
		return fmt.Sprintf("batch insert failed at index %d (tag %q, label %d): %v", e.Index, e.Tag, e.Label, e.Err)
	}
	return fmt.Sprintf("batch insert failed at index %d (label %d): %v", e.Index, e.Label, e.Err)
}

// Unwrap returns the underlying insert error.
func (e *BatchError) Unwrap() error {
	return e.Err
}

// Option configures a store at construction.
type Option func(*options)

type options struct {
	logger    *slog.Logger
	newEngine func(engine.Options, int) (engine.Engine, error)
}

// WithLogger sets the logger used for capacity and persistence events.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithEngineFactory replaces the engine constructor. Intended for tests and
// alternative engines.
func WithEngineFactory(fn func(engine.Options, int) (engine.Engine, error)) Option {
	return func(o *options) {
		if fn != nil {
			o.newEngine = fn
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		logger: slog.Default(),
		newEngine: func(eo engine.Options, capacity int) (engine.Engine, error) {
			return engine.NewHNSW(eo, capacity)
		},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
