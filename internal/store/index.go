package store

import (
	"context"
	"fmt"

	verrors "github.com/Aman-CERP/vexus/internal/errors"
	"github.com/Aman-CERP/vexus/internal/vecbuf"
)

// Index is the identifier-keyed vector store: callers supply labels
// directly (for example row ids from an external database) and the store
// performs no allocation.
//
// All methods are safe for concurrent use. Mutations take the lock
// exclusively; Search, Get and Stats share it.
type Index struct {
	c *core
}

// New creates an empty store reserved for cfg.Capacity vectors.
func New(cfg Config, opts ...Option) (*Index, error) {
	o := buildOptions(opts)

	eng, err := o.newEngine(cfg.engineOptions(), cfg.Capacity)
	if err != nil {
		return nil, verrors.ConstructionError("failed to create index", err).
			WithDetail("dimensions", fmt.Sprint(cfg.Dimensions)).
			WithDetail("capacity", fmt.Sprint(cfg.Capacity))
	}

	return &Index{c: newCore(eng, o.logger)}, nil
}

// Dimensions returns the fixed vector length.
func (x *Index) Dimensions() int {
	return x.c.dim
}

// Upsert inserts vec under label, replacing any existing vector.
// When size+1 reaches capacity the store grows first.
//
// Mutations and searches check ctx once before taking the lock; a started
// operation runs to completion.
func (x *Index) Upsert(ctx context.Context, label uint64, vec []float32) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := x.c.checkDim(vec); err != nil {
		return err
	}
	return x.c.write("upsert", func() error {
		return x.c.add(label, vec)
	})
}

// AddBatch inserts len(labels) vectors packed contiguously in flat.
// The size check covers the whole batch before anything is inserted.
// Inserts run in order; on failure a *BatchError names the failing
// position and earlier inserts remain applied.
func (x *Index) AddBatch(ctx context.Context, labels []uint64, flat []float32) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	count := len(labels)
	if len(flat) != count*x.c.dim {
		return verrors.BatchSizeMismatch(count, x.c.dim, len(flat))
	}
	if count == 0 {
		return nil
	}

	return x.c.write("add_batch", func() error {
		x.c.ensureCapacity(count)
		for i, label := range labels {
			vec := flat[i*x.c.dim : (i+1)*x.c.dim]
			if err := x.c.eng.Add(label, vec); err != nil {
				return &BatchError{
					Index: i,
					Label: label,
					Err:   verrors.EngineError("failed to add vector", err),
				}
			}
		}
		return nil
	})
}

// AddBatchBytes is AddBatch over a packed little-endian float32 buffer,
// as delivered across the host boundary.
func (x *Index) AddBatchBytes(ctx context.Context, labels []uint64, raw []byte) error {
	if len(raw)%vecbuf.Float32Size != 0 {
		return verrors.BatchSizeMismatch(len(labels), x.c.dim, len(raw)/vecbuf.Float32Size).
			WithDetail("bytes", fmt.Sprint(len(raw)))
	}
	flat, err := vecbuf.Decode(raw)
	if err != nil {
		return verrors.ValidationError("invalid vector buffer", err)
	}
	return x.AddBatch(ctx, labels, flat)
}

// Search returns the k nearest labels to query, closest first.
// Ties are returned in engine order, which is not stable across engines.
func (x *Index) Search(ctx context.Context, query []float32, k int) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var results []Result
	err := x.c.read("search", func() error {
		labels, dists, err := x.c.search(query, k)
		if err != nil {
			return err
		}
		results = make([]Result, len(labels))
		for i := range labels {
			results[i] = Result{Label: labels[i], Distance: dists[i], Score: score(dists[i])}
		}
		return nil
	})
	return results, err
}

// Remove deletes label. Removing an absent label is not an error.
func (x *Index) Remove(ctx context.Context, label uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return x.c.write("remove", func() error {
		if _, err := x.c.eng.Remove(label); err != nil {
			return verrors.EngineError("failed to remove vector", err).
				WithDetail("label", fmt.Sprint(label))
		}
		return nil
	})
}

// Get returns the vectors for labels in request order. Missing labels
// yield an all-zero vector so positions stay aligned; use Contains to tell
// a missing label from a stored zero vector.
func (x *Index) Get(labels []uint64) ([][]float32, error) {
	out := make([][]float32, len(labels))
	err := x.c.read("get", func() error {
		for i, label := range labels {
			out[i] = make([]float32, x.c.dim)
			x.c.eng.Get(label, out[i])
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Contains reports whether label is stored. A closed or poisoned store
// returns its error rather than reporting the label absent.
func (x *Index) Contains(label uint64) (bool, error) {
	var ok bool
	err := x.c.read("contains", func() error {
		ok = x.c.eng.Contains(label)
		return nil
	})
	return ok, err
}

// Count returns the number of stored vectors.
func (x *Index) Count() int {
	s, err := x.c.stats()
	if err != nil {
		return 0
	}
	return s.Count
}

// Stats returns count, dimensions, capacity and memory usage read under a
// single lock acquisition.
func (x *Index) Stats() (Stats, error) {
	return x.c.stats()
}

// Inserter adds vectors while a bulk ingest holds the write lock.
type Inserter interface {
	// Insert validates vec and adds it under label using the single-insert
	// growth policy.
	Insert(label uint64, vec []float32) error
	// Dimensions returns the store dimension.
	Dimensions() int
}

type lockedInserter struct {
	c *core
}

func (l lockedInserter) Insert(label uint64, vec []float32) error {
	if err := l.c.checkDim(vec); err != nil {
		return err
	}
	return l.c.add(label, vec)
}

func (l lockedInserter) Dimensions() int {
	return l.c.dim
}

// Ingest holds the write lock for the whole of fn, so no other writer can
// interleave with a bulk load. fn must not call other Index methods.
func (x *Index) Ingest(ctx context.Context, fn func(ins Inserter) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return x.c.write("ingest", func() error {
		return fn(lockedInserter{c: x.c})
	})
}

// Close releases the engine. Further calls return a closed error.
func (x *Index) Close() error {
	return x.c.close()
}
