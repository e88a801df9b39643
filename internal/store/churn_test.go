package store

import (
	"context"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func churnVector(rng *rand.Rand, dim int) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = rng.Float32()*2 - 1
	}
	return v
}

// checkIndex asserts that search only returns stored labels and that every
// stored vector finds itself with score 1.
func checkIndex(t *testing.T, idx *Index, want map[uint64][]float32, rng *rand.Rand) {
	t.Helper()
	ctx := context.Background()

	results, err := idx.Search(ctx, churnVector(rng, idx.Dimensions()), 10)
	require.NoError(t, err)
	for _, r := range results {
		_, ok := want[r.Label]
		require.Truef(t, ok, "search returned removed label %d", r.Label)
		require.True(t, mustContain(t, idx, r.Label))
	}

	for label, vec := range want {
		results, err := idx.Search(ctx, vec, 1)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, label, results[0].Label)
		assert.InDelta(t, 1.0, results[0].Score, 1e-5)
	}
	assert.Equal(t, len(want), idx.Count())
}

func checkTagIndex(t *testing.T, ti *TagIndex, want map[string][]float32, rng *rand.Rand) {
	t.Helper()
	ctx := context.Background()

	results, err := ti.Search(ctx, churnVector(rng, ti.Dimensions()), 10)
	require.NoError(t, err)
	for _, r := range results {
		_, ok := want[r.Tag]
		require.Truef(t, ok, "search returned removed tag %q", r.Tag)
		require.True(t, mustHaveTag(t, ti, r.Tag))
	}

	for tag, vec := range want {
		results, err := ti.Search(ctx, vec, 1)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, tag, results[0].Tag)
		assert.InDelta(t, 1.0, results[0].Score, 1e-5)
	}
	assert.Len(t, ti.Tags(), len(want))
}

func TestIndex_ChurnThenSaveLoad(t *testing.T) {
	for seed := uint64(0); seed < 3; seed++ {
		t.Run(fmt.Sprintf("seed_%d", seed), func(t *testing.T) {
			// Given: a small store churned past several growth steps
			ctx := context.Background()
			rng := rand.New(rand.NewPCG(seed, 11))
			idx := newTestIndex(t, 8, 4)
			want := make(map[uint64][]float32)

			for step := 0; step < 250; step++ {
				label := uint64(rng.IntN(60))
				switch op := rng.IntN(10); {
				case op < 5:
					v := churnVector(rng, 8)
					require.NoError(t, idx.Upsert(ctx, label, v), "step %d", step)
					want[label] = v
				case op < 7:
					a, b := churnVector(rng, 8), churnVector(rng, 8)
					require.NoError(t, idx.AddBatch(ctx, []uint64{label, label + 100}, append(a, b...)), "step %d", step)
					want[label], want[label+100] = a, b
				default:
					require.NoError(t, idx.Remove(ctx, label), "step %d", step)
					delete(want, label)
				}
				if step%50 == 0 {
					checkIndex(t, idx, want, rng)
				}
			}

			// Then: the live store is consistent
			checkIndex(t, idx, want, rng)

			// And: so is a reloaded copy
			paths := DefaultPaths(t.TempDir())
			require.NoError(t, idx.Save(paths))
			loaded, err := Load(paths, Config{})
			require.NoError(t, err)
			defer func() { _ = loaded.Close() }()
			checkIndex(t, loaded, want, rng)
		})
	}
}

func TestTagIndex_ChurnThenSaveLoad(t *testing.T) {
	for seed := uint64(0); seed < 3; seed++ {
		t.Run(fmt.Sprintf("seed_%d", seed), func(t *testing.T) {
			// Given: a tag store churned with upserts and removes
			ctx := context.Background()
			rng := rand.New(rand.NewPCG(seed, 13))
			ti := newTestTagIndex(t, 8, 4)
			want := make(map[string][]float32)

			for step := 0; step < 250; step++ {
				tag := fmt.Sprintf("t%d", rng.IntN(60))
				if rng.IntN(10) < 6 {
					v := churnVector(rng, 8)
					require.NoError(t, ti.Upsert(ctx, []string{tag}, v), "step %d", step)
					want[tag] = v
				} else {
					require.NoError(t, ti.Remove(ctx, []string{tag}), "step %d", step)
					delete(want, tag)
				}
				if step%50 == 0 {
					checkTagIndex(t, ti, want, rng)
				}
			}

			// Then: the live store is consistent
			checkTagIndex(t, ti, want, rng)

			// And: so is a reloaded copy
			paths := DefaultPaths(t.TempDir())
			require.NoError(t, ti.Save(paths))
			loaded, err := LoadTagIndex(paths, Config{})
			require.NoError(t, err)
			defer func() { _ = loaded.Close() }()
			checkTagIndex(t, loaded, want, rng)
		})
	}
}

func TestTagIndex_RemoveThenSaveLoad(t *testing.T) {
	// Given: three tags with the middle one removed before saving
	ctx := context.Background()
	ti := newTestTagIndex(t, 3, 4)
	require.NoError(t, ti.Upsert(ctx, []string{"a", "b", "c"}, []float32{1, 0, 0, 0, 1, 0, 0, 0, 1}))
	require.NoError(t, ti.Remove(ctx, []string{"b"}))

	paths := DefaultPaths(t.TempDir())
	require.NoError(t, ti.Save(paths))

	// When: loading and searching wide
	loaded, err := LoadTagIndex(paths, Config{})
	require.NoError(t, err)
	defer func() { _ = loaded.Close() }()
	results, err := loaded.Search(ctx, []float32{0, 0, 1}, 3)

	// Then: the remaining tags answer and the store stays usable
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "c", results[0].Tag)
	assert.Equal(t, "a", results[1].Tag)
	require.NoError(t, loaded.Upsert(ctx, []string{"d"}, []float32{0, 1, 0}))
}
