package store

import (
	"context"
	"fmt"
	"sync"

	verrors "github.com/Aman-CERP/vexus/internal/errors"
	"github.com/Aman-CERP/vexus/internal/mapping"
	"github.com/Aman-CERP/vexus/internal/vecbuf"
)

// TagIndex is the tag-keyed vector store. It owns a Mapping that allocates
// a label per distinct tag, guarded by its own lock. When both locks are
// needed the mapping lock is always taken before the engine lock.
type TagIndex struct {
	mapMu sync.RWMutex
	m     *mapping.Mapping
	c     *core
}

// NewTagIndex creates an empty tag-keyed store reserved for cfg.Capacity vectors.
func NewTagIndex(cfg Config, opts ...Option) (*TagIndex, error) {
	o := buildOptions(opts)

	eng, err := o.newEngine(cfg.engineOptions(), cfg.Capacity)
	if err != nil {
		return nil, verrors.ConstructionError("failed to create index", err).
			WithDetail("dimensions", fmt.Sprint(cfg.Dimensions)).
			WithDetail("capacity", fmt.Sprint(cfg.Capacity))
	}

	return &TagIndex{m: mapping.New(), c: newCore(eng, o.logger)}, nil
}

// Dimensions returns the fixed vector length.
func (t *TagIndex) Dimensions() int {
	return t.c.dim
}

// Upsert adds or replaces one vector per tag; flat holds len(tags) vectors
// packed contiguously. The size check covers the whole batch first.
// Inserts run in order and are not rolled back on failure, except that a
// tag first seen in this call is dropped from the mapping when its own
// insert fails.
func (t *TagIndex) Upsert(ctx context.Context, tags []string, flat []float32) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	count := len(tags)
	if len(flat) != count*t.c.dim {
		return verrors.BatchSizeMismatch(count, t.c.dim, len(flat))
	}
	if count == 0 {
		return nil
	}

	t.mapMu.Lock()
	defer t.mapMu.Unlock()

	return t.c.write("upsert", func() error {
		t.c.ensureCapacity(count)

		for i, tag := range tags {
			_, existed := t.m.Lookup(tag)
			label := t.m.GetOrCreate(tag)

			vec := flat[i*t.c.dim : (i+1)*t.c.dim]
			if err := t.c.eng.Add(label, vec); err != nil {
				if !existed {
					t.m.Remove(tag)
				}
				return &BatchError{
					Index: i,
					Label: label,
					Tag:   tag,
					Err:   verrors.EngineError("failed to add vector", err),
				}
			}
		}
		return nil
	})
}

// UpsertBytes is Upsert over a packed little-endian float32 buffer.
func (t *TagIndex) UpsertBytes(ctx context.Context, tags []string, raw []byte) error {
	if len(raw)%vecbuf.Float32Size != 0 {
		return verrors.BatchSizeMismatch(len(tags), t.c.dim, len(raw)/vecbuf.Float32Size).
			WithDetail("bytes", fmt.Sprint(len(raw)))
	}
	flat, err := vecbuf.Decode(raw)
	if err != nil {
		return verrors.ValidationError("invalid vector buffer", err)
	}
	return t.Upsert(ctx, tags, flat)
}

// Search returns the k nearest tags to query, closest first. Engine hits
// whose label has no tag are skipped, so fewer than k results may return.
func (t *TagIndex) Search(ctx context.Context, query []float32, k int) ([]TagResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mapMu.RLock()
	defer t.mapMu.RUnlock()

	var results []TagResult
	err := t.c.read("search", func() error {
		labels, dists, err := t.c.search(query, k)
		if err != nil {
			return err
		}
		results = make([]TagResult, 0, len(labels))
		for i, label := range labels {
			tag, ok := t.m.Tag(label)
			if !ok {
				continue
			}
			results = append(results, TagResult{
				Tag:      tag,
				Label:    label,
				Distance: dists[i],
				Score:    score(dists[i]),
			})
		}
		return nil
	})
	return results, err
}

// SearchBytes is Search over a packed little-endian float32 query.
func (t *TagIndex) SearchBytes(ctx context.Context, raw []byte, k int) ([]TagResult, error) {
	query, err := vecbuf.Decode(raw)
	if err != nil {
		return nil, verrors.ValidationError("invalid query buffer", err)
	}
	return t.Search(ctx, query, k)
}

// Remove deletes each tag and its vector. Unknown tags are skipped; the
// engine is only asked to remove labels the mapping actually held.
func (t *TagIndex) Remove(ctx context.Context, tags []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mapMu.Lock()
	defer t.mapMu.Unlock()

	return t.c.write("remove", func() error {
		for _, tag := range tags {
			label, ok := t.m.Remove(tag)
			if !ok {
				continue
			}
			if _, err := t.c.eng.Remove(label); err != nil {
				return verrors.EngineError("failed to remove vector", err).
					WithDetail("tag", tag).
					WithDetail("label", fmt.Sprint(label))
			}
		}
		return nil
	})
}

// Get returns the vectors for tags in request order; unknown tags yield an
// all-zero vector.
func (t *TagIndex) Get(tags []string) ([][]float32, error) {
	t.mapMu.RLock()
	defer t.mapMu.RUnlock()

	out := make([][]float32, len(tags))
	err := t.c.read("get", func() error {
		for i, tag := range tags {
			out[i] = make([]float32, t.c.dim)
			if label, ok := t.m.Lookup(tag); ok {
				t.c.eng.Get(label, out[i])
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// LabelOf returns the label allocated to tag.
func (t *TagIndex) LabelOf(tag string) (uint64, bool) {
	t.mapMu.RLock()
	defer t.mapMu.RUnlock()
	return t.m.Lookup(tag)
}

// Contains reports whether tag is stored. A closed or poisoned store
// returns its error rather than reporting the tag absent.
func (t *TagIndex) Contains(tag string) (bool, error) {
	t.mapMu.RLock()
	defer t.mapMu.RUnlock()

	var ok bool
	err := t.c.read("contains", func() error {
		_, ok = t.m.Lookup(tag)
		return nil
	})
	return ok, err
}

// Tags returns all live tags in sorted order.
func (t *TagIndex) Tags() []string {
	t.mapMu.RLock()
	defer t.mapMu.RUnlock()
	return t.m.Tags()
}

// Stats returns count, dimensions, capacity and memory usage read under a
// single engine lock acquisition.
func (t *TagIndex) Stats() (Stats, error) {
	return t.c.stats()
}

// Close releases the engine and mapping.
func (t *TagIndex) Close() error {
	t.mapMu.Lock()
	defer t.mapMu.Unlock()
	return t.c.close()
}
