package recovery

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	verrors "github.com/Aman-CERP/vexus/internal/errors"
	"github.com/Aman-CERP/vexus/internal/store"
	"github.com/Aman-CERP/vexus/internal/vecbuf"
)

// sliceSource serves fixed rows and optionally fails after them.
type sliceSource struct {
	rows    []Row
	iterErr error
	openErr error
}

func (s *sliceSource) Rows(ctx context.Context, category Category, filter string) (RowIterator, error) {
	if s.openErr != nil {
		return nil, s.openErr
	}
	return &sliceIter{rows: s.rows, err: s.iterErr, pos: -1}, nil
}

func (s *sliceSource) Close() error { return nil }

type sliceIter struct {
	rows []Row
	err  error
	pos  int
}

func (it *sliceIter) Next() bool {
	it.pos++
	return it.pos < len(it.rows)
}
func (it *sliceIter) Row() Row     { return it.rows[it.pos] }
func (it *sliceIter) Err() error   { return it.err }
func (it *sliceIter) Close() error { return nil }

func newIndex(t *testing.T, dim, capacity int) *store.Index {
	t.Helper()
	idx, err := store.New(store.DefaultConfig(dim, capacity))
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func quietLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestRecover_MixedRowSizes(t *testing.T) {
	// Given: five rows, two of the wrong size and one with a negative id
	idx := newIndex(t, 3, 2)
	require.NoError(t, idx.Upsert(context.Background(), 999, []float32{9, 9, 9}))
	src := &sliceSource{rows: []Row{
		{ID: 1, Vector: vecbuf.Encode([]float32{1, 0, 0})},
		{ID: 2, Vector: vecbuf.Encode([]float32{1, 0})},
		{ID: 3, Vector: vecbuf.Encode([]float32{0, 1, 0})},
		{ID: 4, Vector: []byte{1, 2, 3}},
		{ID: -5, Vector: vecbuf.Encode([]float32{0, 0, 1})},
		{ID: 6, Vector: vecbuf.Encode([]float32{0, 0, 1})},
	}}
	var logs bytes.Buffer

	// When: recovering
	res, err := Recover(context.Background(), idx, src, Request{Category: CategoryTags},
		WithLogger(quietLogger(&logs)), WithBuffer(1))

	// Then: only correctly sized rows are inserted and skips are reported
	require.NoError(t, err)
	assert.Equal(t, Result{Scanned: 6, Inserted: 3, Skipped: 3}, res)
	assert.Equal(t, 4, idx.Count())
	for label, want := range map[uint64]bool{1: true, 3: true, 6: true, 2: false} {
		found, err := idx.Contains(label)
		require.NoError(t, err)
		assert.Equal(t, want, found, "label %d", label)
	}
	assert.Contains(t, logs.String(), "recovery_rows_skipped")
	assert.Contains(t, logs.String(), "recovery_completed")

	results, err := idx.Search(context.Background(), []float32{0, 1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, uint64(3), results[0].Label)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
}

func TestRecover_NoSkipsNoWarning(t *testing.T) {
	idx := newIndex(t, 2, 10)
	src := &sliceSource{rows: []Row{{ID: 1, Vector: vecbuf.Encode([]float32{1, 1})}}}
	var logs bytes.Buffer

	res, err := Recover(context.Background(), idx, src, Request{Category: CategoryTags}, WithLogger(quietLogger(&logs)))

	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)
	assert.NotContains(t, logs.String(), "recovery_rows_skipped")
}

func TestRecover_Empty(t *testing.T) {
	idx := newIndex(t, 2, 10)

	res, err := Recover(context.Background(), idx, &sliceSource{}, Request{Category: "unknown"},
		WithLogger(quietLogger(&bytes.Buffer{})))

	require.NoError(t, err)
	assert.Equal(t, Result{}, res)
	assert.Equal(t, 0, idx.Count())
}

func TestRecover_SourceErrors(t *testing.T) {
	idx := newIndex(t, 2, 10)
	logger := WithLogger(quietLogger(&bytes.Buffer{}))

	t.Run("query fails", func(t *testing.T) {
		src := &sliceSource{openErr: verrors.New(verrors.ErrCodeSourceQuery, "boom", nil)}
		_, err := Recover(context.Background(), idx, src, Request{Category: CategoryTags}, logger)
		assert.Equal(t, verrors.ErrCodeSourceQuery, verrors.GetCode(err))
	})

	t.Run("iteration fails after some rows", func(t *testing.T) {
		src := &sliceSource{
			rows:    []Row{{ID: 1, Vector: vecbuf.Encode([]float32{1, 0})}},
			iterErr: errors.New("disk I/O error"),
		}
		res, err := Recover(context.Background(), idx, src, Request{Category: CategoryTags}, logger)
		assert.Equal(t, verrors.ErrCodeSourceQuery, verrors.GetCode(err))
		assert.Equal(t, 1, res.Inserted)
	})
}

func TestRecover_ClosedStoreIsFatal(t *testing.T) {
	idx, err := store.New(store.DefaultConfig(2, 4))
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	rows := make([]Row, 0, DefaultBuffer*2)
	for i := 0; i < cap(rows); i++ {
		rows = append(rows, Row{ID: int64(i), Vector: vecbuf.Encode([]float32{1, 0})})
	}

	_, err = Recover(context.Background(), idx, &sliceSource{rows: rows}, Request{Category: CategoryTags},
		WithLogger(quietLogger(&bytes.Buffer{})))
	assert.ErrorIs(t, err, verrors.ErrClosed)
}

func TestRecover_FromSQLite(t *testing.T) {
	// Given: a fixture database with mixed-size chunk rows
	ctx := context.Background()
	src, err := OpenSQLite(ctx, newFixtureDB(t), "")
	require.NoError(t, err)
	defer func() { _ = src.Close() }()
	idx := newIndex(t, 3, 1)

	// When: recovering all chunks
	res, err := Recover(ctx, idx, src, Request{Category: CategoryChunks}, WithLogger(quietLogger(&bytes.Buffer{})))

	// Then: the malformed chunk is skipped and the rest become labels
	require.NoError(t, err)
	assert.Equal(t, Result{Scanned: 4, Inserted: 3, Skipped: 1}, res)
	assert.Equal(t, 3, idx.Count())
	vecs, err := idx.Get([]uint64{10, 11, 12})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 2, 3}, {4, 5, 6}, {7, 8, 9}}, vecs)

	// When: recovering tags into the same store
	res, err = Recover(ctx, idx, src, Request{Category: CategoryTags}, WithLogger(quietLogger(&bytes.Buffer{})))

	// Then: the legacy two-dimensional tag is skipped
	require.NoError(t, err)
	assert.Equal(t, Result{Scanned: 3, Inserted: 2, Skipped: 1}, res)
	assert.Equal(t, 5, idx.Count())
}

func TestRecover_ReportsProgress(t *testing.T) {
	// Given: five rows, one of the wrong size
	idx := newIndex(t, 2, 4)
	rows := make([]Row, 0, 5)
	for i := int64(1); i <= 4; i++ {
		rows = append(rows, Row{ID: i, Vector: vecbuf.Encode([]float32{float32(i), 0})})
	}
	rows = append(rows, Row{ID: 5, Vector: []byte{1, 2}})

	// When: recovering with a report every two rows
	var reports []Result
	_, err := Recover(context.Background(), idx, &sliceSource{rows: rows}, Request{Category: CategoryTags},
		WithLogger(quietLogger(&bytes.Buffer{})),
		WithProgress(2, func(r Result) { reports = append(reports, r) }))

	// Then: counts are reported at rows 2 and 4
	require.NoError(t, err)
	assert.Equal(t, []Result{
		{Scanned: 2, Inserted: 2},
		{Scanned: 4, Inserted: 4},
	}, reports)
}
