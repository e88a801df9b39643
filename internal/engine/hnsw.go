package engine

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"sort"

	"github.com/coder/hnsw"
)

// nodeOverhead approximates per-node bookkeeping in coder/hnsw
// (map entry, node struct, level slice headers).
const nodeOverhead = 96

// The graph is rebuilt from live vectors once stale nodes reach
// compactMinStale and a quarter of the live count.
const (
	compactMinStale = 32
	compactRatio    = 4
)

// HNSW implements Engine using the coder/hnsw pure Go graph.
//
// The graph is only ever grown with keys it does not hold. coder/hnsw
// Delete can leave links to the deleted node behind, and Add on an existing
// key deletes first, so neither is used. Instead vecs holds the live
// vectors and the graph may carry stale nodes: labels that were removed,
// and labels in dirty whose node still holds an older vector. Search skips
// stale nodes and scores dirty labels exactly. When stale nodes pile up the
// graph is rebuilt from vecs.
//
// The graph has no notion of capacity, so HNSW tracks a reserved slot count
// and refuses new labels beyond it.
type HNSW struct {
	opts     Options
	graph    *hnsw.Graph[uint64]
	vecs     map[uint64][]float32
	dirty    map[uint64]struct{}
	capacity int
}

// NewHNSW creates an empty engine reserved for capacity vectors.
func NewHNSW(opts Options, capacity int) (*HNSW, error) {
	opts.setDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if capacity < 0 {
		return nil, fmt.Errorf("%w: capacity must be non-negative, got %d", ErrInvalidOptions, capacity)
	}

	e := &HNSW{
		opts:  opts,
		vecs:  make(map[uint64][]float32),
		dirty: make(map[uint64]struct{}),
	}
	e.graph = e.newGraph()
	if err := e.Reserve(capacity); err != nil {
		return nil, err
	}
	return e, nil
}

// newGraph builds an empty graph configured from e.opts.
func (e *HNSW) newGraph() *hnsw.Graph[uint64] {
	g := hnsw.NewGraph[uint64]()

	// Ordering by Euclidean distance is identical to ordering by its square,
	// so the graph uses the registered Euclidean function and Search squares
	// the result. This keeps snapshots importable without custom registration.
	switch e.opts.Metric {
	case MetricCosine:
		g.Distance = hnsw.CosineDistance
	default:
		g.Distance = hnsw.EuclideanDistance
	}

	g.M = e.opts.M
	g.EfSearch = e.opts.EfSearch
	g.Ml = e.opts.Ml
	return g
}

// buildGraph returns a fresh graph holding exactly the live vectors.
func (e *HNSW) buildGraph() *hnsw.Graph[uint64] {
	g := e.newGraph()
	for _, label := range slices.Sorted(maps.Keys(e.vecs)) {
		g.Add(hnsw.MakeNode(label, e.vecs[label]))
	}
	return g
}

// stale returns the number of graph nodes that do not hold a live vector.
func (e *HNSW) stale() int {
	return e.graph.Len() - len(e.vecs) + len(e.dirty)
}

// compact rebuilds the graph once enough stale nodes have accumulated.
func (e *HNSW) compact() {
	s := e.stale()
	if s < compactMinStale || s*compactRatio < len(e.vecs) {
		return
	}
	e.graph = e.buildGraph()
	clear(e.dirty)
}

// Options returns the effective engine options.
func (e *HNSW) Options() Options {
	return e.opts
}

// Add inserts or replaces the vector for label.
func (e *HNSW) Add(label uint64, vec []float32) error {
	if len(vec) != e.opts.Dimensions {
		return fmt.Errorf("engine: vector has %d dimensions, want %d", len(vec), e.opts.Dimensions)
	}

	if _, exists := e.vecs[label]; !exists && len(e.vecs) >= e.capacity {
		return fmt.Errorf("%w: size %d, capacity %d", ErrCapacityExceeded, len(e.vecs), e.capacity)
	}

	v := make([]float32, len(vec))
	copy(v, vec)
	if e.opts.Metric == MetricCosine {
		normalizeInPlace(v)
	}

	e.vecs[label] = v
	if _, inGraph := e.graph.Lookup(label); inGraph {
		e.dirty[label] = struct{}{}
		e.compact()
		return nil
	}
	e.graph.Add(hnsw.MakeNode(label, v))
	return nil
}

// Remove deletes label. Its graph node, if any, stays until the next rebuild.
func (e *HNSW) Remove(label uint64) (bool, error) {
	if _, ok := e.vecs[label]; !ok {
		return false, nil
	}
	delete(e.vecs, label)
	delete(e.dirty, label)

	if len(e.vecs) == 0 {
		e.graph = e.newGraph()
		return true, nil
	}
	e.compact()
	return true, nil
}

// Get copies the stored vector for label into out.
func (e *HNSW) Get(label uint64, out []float32) bool {
	vec, ok := e.vecs[label]
	if !ok {
		return false
	}
	copy(out, vec)
	return true
}

// Contains reports whether label is stored.
func (e *HNSW) Contains(label uint64) bool {
	_, ok := e.vecs[label]
	return ok
}

// distance returns the reported distance between a prepared query and v.
func (e *HNSW) distance(q, v []float32) float32 {
	d := e.graph.Distance(q, v)
	if e.opts.Metric == MetricL2Sq {
		d *= d
	}
	return d
}

// Search returns the k nearest labels ordered by increasing distance.
// coder/hnsw sizes its base layer result set by the requested count, so the
// graph is asked for at least EfSearch nodes, plus the stale node count so
// that skipped nodes do not shorten the result. Ties keep the order returned by the
// graph, with dirty labels after graph hits.
func (e *HNSW) Search(vec []float32, k int) ([]uint64, []float32, error) {
	if len(vec) != e.opts.Dimensions {
		return nil, nil, fmt.Errorf("engine: query has %d dimensions, want %d", len(vec), e.opts.Dimensions)
	}
	if k <= 0 || len(e.vecs) == 0 {
		return []uint64{}, []float32{}, nil
	}

	q := vec
	if e.opts.Metric == MetricCosine {
		q = make([]float32, len(vec))
		copy(q, vec)
		normalizeInPlace(q)
	}

	type hit struct {
		label uint64
		dist  float32
	}
	hits := make([]hit, 0, k+len(e.dirty))

	if n := e.graph.Len(); n > 0 {
		for _, node := range e.graph.Search(q, min(max(k, e.opts.EfSearch)+e.stale(), n)) {
			if _, live := e.vecs[node.Key]; !live {
				continue
			}
			if _, old := e.dirty[node.Key]; old {
				continue
			}
			hits = append(hits, hit{label: node.Key, dist: e.distance(q, node.Value)})
		}
	}
	for _, label := range slices.Sorted(maps.Keys(e.dirty)) {
		hits = append(hits, hit{label: label, dist: e.distance(q, e.vecs[label])})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].dist < hits[j].dist })
	if len(hits) > k {
		hits = hits[:k]
	}

	labels := make([]uint64, len(hits))
	dists := make([]float32, len(hits))
	for i, h := range hits {
		labels[i] = h.label
		dists[i] = h.dist
	}
	return labels, dists, nil
}

// Reserve grows capacity to at least n.
func (e *HNSW) Reserve(n int) error {
	if n < 0 {
		return fmt.Errorf("%w: reserve %d", ErrInvalidOptions, n)
	}
	if n > e.capacity {
		e.capacity = n
	}
	return nil
}

// Size returns the number of stored vectors.
func (e *HNSW) Size() int {
	return len(e.vecs)
}

// Capacity returns the reserved vector count.
func (e *HNSW) Capacity() int {
	return e.capacity
}

// Dimensions returns the vector length.
func (e *HNSW) Dimensions() int {
	return e.opts.Dimensions
}

// MemoryUsage estimates resident bytes: vector payload, layer-0 links
// (2*M per node) and per-node overhead.
func (e *HNSW) MemoryUsage() int64 {
	perNode := int64(e.opts.Dimensions)*4 + int64(2*e.opts.M)*8 + nodeOverhead
	return int64(len(e.vecs)) * perNode
}

// Verify interface implementation
var _ Engine = (*HNSW)(nil)

// normalizeInPlace scales v to unit length. Zero vectors are left as is.
func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}
