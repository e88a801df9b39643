package store

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/vexus/internal/engine"
	verrors "github.com/Aman-CERP/vexus/internal/errors"
)

// faultyEngine wraps a real engine and injects failures.
type faultyEngine struct {
	*engine.HNSW
	panicOnAdd   bool
	failReserve  bool
	reserveCalls []int
}

func (f *faultyEngine) Add(label uint64, vec []float32) error {
	if f.panicOnAdd {
		panic("engine blew up")
	}
	return f.HNSW.Add(label, vec)
}

func (f *faultyEngine) Reserve(n int) error {
	f.reserveCalls = append(f.reserveCalls, n)
	if f.failReserve {
		return errors.New("out of memory")
	}
	return f.HNSW.Reserve(n)
}

func faultyFactory(target **faultyEngine) Option {
	return WithEngineFactory(func(opts engine.Options, capacity int) (engine.Engine, error) {
		h, err := engine.NewHNSW(opts, capacity)
		if err != nil {
			return nil, err
		}
		f := &faultyEngine{HNSW: h}
		*target = f
		return f, nil
	})
}

func TestGrownCapacity(t *testing.T) {
	assert.Equal(t, 0, grownCapacity(0))
	assert.Equal(t, 2, grownCapacity(1))
	assert.Equal(t, 3, grownCapacity(2))
	assert.Equal(t, 15, grownCapacity(10))
	assert.Equal(t, 1500, grownCapacity(1000))
}

func TestEnsureCapacity_SingleInsertGrowsByHalf(t *testing.T) {
	// Given: capacity 10 holding 9 vectors
	var fe *faultyEngine
	idx, err := New(DefaultConfig(2, 10), faultyFactory(&fe))
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()
	for i := 0; i < 9; i++ {
		require.NoError(t, idx.Upsert(context.Background(), uint64(i), []float32{float32(i), 0}))
	}
	fe.reserveCalls = nil

	// When: the tenth insert would fill it
	require.NoError(t, idx.Upsert(context.Background(), 9, []float32{9, 0}))

	// Then: capacity grows to ceil(10 * 1.5)
	require.Len(t, fe.reserveCalls, 1)
	assert.Equal(t, 15, fe.reserveCalls[0])
	stats, err := idx.Stats()
	require.NoError(t, err)
	assert.Equal(t, 10, stats.Count)
	assert.Equal(t, 15, stats.Capacity)
}

func TestEnsureCapacity_ZeroCapacityStillGrows(t *testing.T) {
	idx := newTestIndex(t, 2, 0)
	for i := 0; i < 5; i++ {
		require.NoError(t, idx.Upsert(context.Background(), uint64(i), []float32{float32(i), 1}))
	}
	stats, err := idx.Stats()
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Count)
	assert.Greater(t, stats.Capacity, stats.Count)
}

func TestEnsureCapacity_BatchGrowsToPostBatchSize(t *testing.T) {
	// Given: capacity 4 holding 2 vectors
	var fe *faultyEngine
	idx, err := New(DefaultConfig(1, 4), faultyFactory(&fe))
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()
	require.NoError(t, idx.AddBatch(context.Background(), []uint64{1, 2}, []float32{1, 2}))
	fe.reserveCalls = nil

	// When: a batch of 6 arrives
	labels := []uint64{3, 4, 5, 6, 7, 8}
	require.NoError(t, idx.AddBatch(context.Background(), labels, []float32{3, 4, 5, 6, 7, 8}))

	// Then: one reservation of ceil((2+6) * 1.5)
	assert.Equal(t, []int{12}, fe.reserveCalls)
	assert.Equal(t, 8, idx.Count())
}

func TestEnsureCapacity_GrowthKeepsEveryVectorSearchable(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t, 3, 2)

	for i := 0; i < 40; i++ {
		require.NoError(t, idx.Upsert(ctx, uint64(i), []float32{float32(i), float32(i % 7), 1}))
	}

	for i := 0; i < 40; i++ {
		results, err := idx.Search(ctx, []float32{float32(i), float32(i % 7), 1}, 1)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, uint64(i), results[0].Label)
		assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	}
}

func TestEnsureCapacity_ReserveFailureIsLoggedAndInsertProceeds(t *testing.T) {
	// Given: an engine whose Reserve always fails, with room for one more
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	var fe *faultyEngine
	idx, err := New(DefaultConfig(2, 1), faultyFactory(&fe), WithLogger(logger))
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()
	fe.failReserve = true

	// When: inserting the first vector (size+1 reaches capacity)
	err = idx.Upsert(context.Background(), 1, []float32{1, 0})

	// Then: growth failure is logged but the engine accepts the insert
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "capacity_grow_failed")
	assert.Equal(t, 1, idx.Count())

	// When: the engine is now genuinely full
	err = idx.Upsert(context.Background(), 2, []float32{0, 1})

	// Then: the engine's capacity error surfaces as an engine error
	assert.ErrorIs(t, err, verrors.ErrEngine)
	assert.ErrorIs(t, err, engine.ErrCapacityExceeded)
	assert.Equal(t, 1, idx.Count())
}

func TestCore_PanicPoisonsStore(t *testing.T) {
	// Given: a store whose engine panics on Add
	var fe *faultyEngine
	idx, err := New(DefaultConfig(2, 10), faultyFactory(&fe),
		WithLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))))
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()
	require.NoError(t, idx.Upsert(context.Background(), 1, []float32{1, 0}))
	fe.panicOnAdd = true

	// When: a write panics while holding the lock
	err = idx.Upsert(context.Background(), 2, []float32{0, 1})

	// Then: that call and every later one report a poisoned lock
	assert.ErrorIs(t, err, verrors.ErrLockPoisoned)
	assert.True(t, verrors.IsFatal(err))

	fe.panicOnAdd = false
	_, err = idx.Search(context.Background(), []float32{1, 0}, 1)
	assert.ErrorIs(t, err, verrors.ErrLockPoisoned)
	_, err = idx.Stats()
	assert.ErrorIs(t, err, verrors.ErrLockPoisoned)
	err = idx.Upsert(context.Background(), 3, []float32{1, 1})
	assert.ErrorIs(t, err, verrors.ErrLockPoisoned)
}

func TestCore_PoisonIsPerStore(t *testing.T) {
	var fe *faultyEngine
	bad, err := New(DefaultConfig(2, 10), faultyFactory(&fe),
		WithLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))))
	require.NoError(t, err)
	defer func() { _ = bad.Close() }()
	good := newTestIndex(t, 2, 10)

	fe.panicOnAdd = true
	assert.ErrorIs(t, bad.Upsert(context.Background(), 1, []float32{1, 0}), verrors.ErrLockPoisoned)

	assert.NoError(t, good.Upsert(context.Background(), 1, []float32{1, 0}))
	assert.Equal(t, 1, good.Count())
}

func TestScore(t *testing.T) {
	assert.Equal(t, float32(1), score(0))
	assert.Equal(t, float32(0.5), score(0.5))
	assert.Equal(t, float32(-1), score(2))
}
