package profiling

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nonEmpty(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func busyWork() int {
	sum := 0
	for i := 0; i < 1000000; i++ {
		sum += i
	}
	return sum
}

func TestProfiler_StartCPU(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cpu.prof")

	p := NewProfiler()
	cleanup, err := p.StartCPU(path)
	require.NoError(t, err)
	_ = busyWork()
	cleanup()

	nonEmpty(t, path)
}

func TestProfiler_WriteHeap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heap.prof")

	require.NoError(t, NewProfiler().WriteHeap(path))

	nonEmpty(t, path)
}

func TestProfiler_StartTrace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.out")

	p := NewProfiler()
	cleanup, err := p.StartTrace(path)
	require.NoError(t, err)
	_ = busyWork()
	cleanup()

	nonEmpty(t, path)
}

func TestProfiler_InvalidPath(t *testing.T) {
	p := NewProfiler()
	bad := filepath.Join(t.TempDir(), "missing", "dir", "cpu.prof")

	_, err := p.StartCPU(bad)
	assert.Error(t, err)
	assert.Error(t, p.WriteHeap(bad))
}

func TestStart_AllProfiles(t *testing.T) {
	// Given: all three profiles requested
	dir := t.TempDir()
	opts := Options{
		CPU:   filepath.Join(dir, "cpu.prof"),
		Heap:  filepath.Join(dir, "heap.prof"),
		Trace: filepath.Join(dir, "trace.out"),
	}
	require.True(t, opts.Enabled())

	// When: profiling some work
	stop, err := Start(opts)
	require.NoError(t, err)
	_ = busyWork()
	require.NoError(t, stop())

	// Then: every file has data
	nonEmpty(t, opts.CPU)
	nonEmpty(t, opts.Heap)
	nonEmpty(t, opts.Trace)
}

func TestStart_Nothing(t *testing.T) {
	assert.False(t, Options{}.Enabled())

	stop, err := Start(Options{})
	require.NoError(t, err)
	assert.NoError(t, stop())
}

func TestStart_TraceFailureStopsCPU(t *testing.T) {
	dir := t.TempDir()

	_, err := Start(Options{
		CPU:   filepath.Join(dir, "cpu.prof"),
		Trace: filepath.Join(dir, "missing", "trace.out"),
	})
	require.Error(t, err)

	// The CPU profile was stopped, so another can start.
	stop, err := Start(Options{CPU: filepath.Join(dir, "cpu2.prof")})
	require.NoError(t, err)
	require.NoError(t, stop())
}
