package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, dim, capacity int) *HNSW {
	t.Helper()
	e, err := NewHNSW(DefaultOptions(dim), capacity)
	require.NoError(t, err)
	return e
}

func TestNewHNSW_ReservesCapacity(t *testing.T) {
	e := newTestEngine(t, 3, 10)

	assert.Equal(t, 3, e.Dimensions())
	assert.Equal(t, 10, e.Capacity())
	assert.Equal(t, 0, e.Size())
	assert.Equal(t, int64(0), e.MemoryUsage())
}

func TestNewHNSW_RejectsInvalidOptions(t *testing.T) {
	_, err := NewHNSW(Options{Dimensions: 0}, 10)
	assert.ErrorIs(t, err, ErrInvalidOptions)

	_, err = NewHNSW(Options{Dimensions: 3, Metric: "dot"}, 10)
	assert.ErrorIs(t, err, ErrInvalidOptions)

	_, err = NewHNSW(DefaultOptions(3), -1)
	assert.ErrorIs(t, err, ErrInvalidOptions)
}

func TestHNSW_AddAndSearch_SquaredL2(t *testing.T) {
	// Given: an engine with two orthogonal vectors
	e := newTestEngine(t, 3, 10)
	require.NoError(t, e.Add(1, []float32{1, 0, 0}))
	require.NoError(t, e.Add(2, []float32{0, 1, 0}))

	// When: searching for an exact match
	labels, dists, err := e.Search([]float32{1, 0, 0}, 2)

	// Then: the exact match comes first at distance 0, the other at squared distance 2
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 2}, labels)
	assert.InDelta(t, 0.0, dists[0], 1e-6)
	assert.InDelta(t, 2.0, dists[1], 1e-5)
}

func TestHNSW_Add_ReplacesExistingLabel(t *testing.T) {
	e := newTestEngine(t, 2, 2)
	require.NoError(t, e.Add(5, []float32{1, 0}))
	require.NoError(t, e.Add(5, []float32{0, 1}))

	assert.Equal(t, 1, e.Size())
	out := make([]float32, 2)
	require.True(t, e.Get(5, out))
	assert.Equal(t, []float32{0, 1}, out)
}

func TestHNSW_Add_EnforcesCapacity(t *testing.T) {
	// Given: a full engine
	e := newTestEngine(t, 2, 1)
	require.NoError(t, e.Add(1, []float32{1, 0}))

	// When: adding a new label
	err := e.Add(2, []float32{0, 1})

	// Then: the engine refuses it
	assert.ErrorIs(t, err, ErrCapacityExceeded)
	assert.Equal(t, 1, e.Size())

	// And: updating the existing label is still allowed
	assert.NoError(t, e.Add(1, []float32{0, 1}))

	// And: reserving more room unblocks the insert
	require.NoError(t, e.Reserve(4))
	assert.NoError(t, e.Add(2, []float32{0, 1}))
}

func TestHNSW_Reserve_NeverShrinks(t *testing.T) {
	e := newTestEngine(t, 2, 8)
	require.NoError(t, e.Reserve(4))
	assert.Equal(t, 8, e.Capacity())
	assert.Error(t, e.Reserve(-1))
}

func TestHNSW_Add_RejectsWrongDimension(t *testing.T) {
	e := newTestEngine(t, 3, 4)
	assert.Error(t, e.Add(1, []float32{1, 0}))
	assert.Equal(t, 0, e.Size())

	_, _, err := e.Search([]float32{1}, 1)
	assert.Error(t, err)
}

func TestHNSW_Remove(t *testing.T) {
	e := newTestEngine(t, 2, 4)
	require.NoError(t, e.Add(1, []float32{1, 0}))
	require.NoError(t, e.Add(2, []float32{0, 1}))

	removed, err := e.Remove(1)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.False(t, e.Contains(1))

	removed, err = e.Remove(1)
	require.NoError(t, err)
	assert.False(t, removed)

	// Removing the final node leaves a usable empty engine
	removed, err = e.Remove(2)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Equal(t, 0, e.Size())

	labels, _, err := e.Search([]float32{1, 0}, 1)
	require.NoError(t, err)
	assert.Empty(t, labels)

	require.NoError(t, e.Add(3, []float32{1, 0}))
	assert.Equal(t, 1, e.Size())
}

func TestHNSW_Get_MissingLeavesOutUntouched(t *testing.T) {
	e := newTestEngine(t, 2, 4)
	out := []float32{7, 7}
	assert.False(t, e.Get(9, out))
	assert.Equal(t, []float32{7, 7}, out)
}

func TestHNSW_CosineMetric(t *testing.T) {
	opts := DefaultOptions(2)
	opts.Metric = MetricCosine
	e, err := NewHNSW(opts, 4)
	require.NoError(t, err)

	require.NoError(t, e.Add(1, []float32{3, 0}))
	require.NoError(t, e.Add(2, []float32{0, 5}))

	labels, dists, err := e.Search([]float32{10, 0}, 1)
	require.NoError(t, err)
	require.Equal(t, []uint64{1}, labels)
	assert.InDelta(t, 0.0, dists[0], 1e-6)
}

func TestHNSW_MemoryUsageGrowsWithSize(t *testing.T) {
	e := newTestEngine(t, 4, 4)
	require.NoError(t, e.Add(1, []float32{1, 2, 3, 4}))
	one := e.MemoryUsage()
	require.NoError(t, e.Add(2, []float32{4, 3, 2, 1}))

	assert.Greater(t, one, int64(0))
	assert.Equal(t, 2*one, e.MemoryUsage())
}

func TestHNSW_SaveLoad_RoundTrip(t *testing.T) {
	// Given: an engine with data and spare capacity
	path := filepath.Join(t.TempDir(), "engine.snap")
	e := newTestEngine(t, 3, 50)
	require.NoError(t, e.Add(1, []float32{1, 0, 0}))
	require.NoError(t, e.Add(2, []float32{0, 1, 0}))
	require.NoError(t, e.Add(3, []float32{0, 0, 1}))

	// When: saving and loading into a new engine
	require.NoError(t, e.Save(path))
	loaded := newTestEngine(t, 3, 0)
	require.NoError(t, loaded.Load(path))

	// Then: size, capacity and search results survive
	assert.Equal(t, 3, loaded.Size())
	assert.Equal(t, 50, loaded.Capacity())
	labels, dists, err := loaded.Search([]float32{0, 1, 0}, 1)
	require.NoError(t, err)
	assert.Equal(t, []uint64{2}, labels)
	assert.InDelta(t, 0.0, dists[0], 1e-6)
}

func TestHNSW_SaveLoad_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.snap")
	e := newTestEngine(t, 3, 7)
	require.NoError(t, e.Save(path))

	loaded, err := LoadHNSW(path)
	require.NoError(t, err)
	assert.Equal(t, 0, loaded.Size())
	assert.Equal(t, 7, loaded.Capacity())
	assert.Equal(t, 3, loaded.Dimensions())
}

func TestHNSW_Load_DimensionMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.snap")
	e := newTestEngine(t, 3, 4)
	require.NoError(t, e.Add(1, []float32{1, 0, 0}))
	require.NoError(t, e.Save(path))

	other := newTestEngine(t, 4, 4)
	assert.ErrorIs(t, other.Load(path), ErrInvalidOptions)
}

func TestHNSW_Load_RejectsCorruption(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.snap")
	e := newTestEngine(t, 3, 4)
	require.NoError(t, e.Add(1, []float32{1, 0, 0}))
	require.NoError(t, e.Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	tests := []struct {
		name string
		data []byte
	}{
		{"truncated header", data[:10]},
		{"bad magic", append([]byte("NOPE"), data[4:]...)},
		{"truncated payload", data[:len(data)-1]},
		{"flipped payload byte", func() []byte {
			c := append([]byte(nil), data...)
			c[len(c)-1] ^= 0xff
			return c
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := filepath.Join(dir, tt.name)
			require.NoError(t, os.WriteFile(p, tt.data, 0o644))
			err := newTestEngine(t, 3, 4).Load(p)
			assert.ErrorIs(t, err, ErrCorruptSnapshot)
		})
	}
}

func TestReadSnapshotHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.snap")
	e := newTestEngine(t, 5, 12)
	require.NoError(t, e.Add(1, []float32{1, 2, 3, 4, 5}))
	require.NoError(t, e.Save(path))

	h, err := ReadSnapshotHeader(path)
	require.NoError(t, err)
	assert.Equal(t, 5, h.Dimensions)
	assert.Equal(t, 12, h.Capacity)
	assert.Equal(t, 1, h.Count)
	assert.Equal(t, MetricL2Sq, h.Metric)
	assert.Equal(t, 16, h.M)

	_, err = ReadSnapshotHeader(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions(8)

	assert.Equal(t, Options{
		Dimensions:     8,
		Metric:         MetricL2Sq,
		M:              16,
		EfSearch:       64,
		EfConstruction: 128,
		Ml:             0.25,
	}, opts)
}
