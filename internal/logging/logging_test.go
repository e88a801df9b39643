package logging

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLogPath(t *testing.T) {
	path := DefaultLogPath()
	assert.True(t, strings.HasSuffix(path, filepath.Join(".vexus", "logs", "vexus.log")), path)
	assert.Equal(t, DefaultLogDir(), filepath.Dir(path))
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, DefaultLogPath(), cfg.FilePath)
	assert.Equal(t, 10, cfg.MaxSizeMB)
	assert.Equal(t, 5, cfg.MaxFiles)
	assert.True(t, cfg.WriteToStderr)
}

func TestSetup_WritesJSONToFile(t *testing.T) {
	// Given: file logging without stderr
	path := filepath.Join(t.TempDir(), "nested", "vexus.log")
	logger, cleanup, err := Setup(Config{Level: "debug", FilePath: path, MaxSizeMB: 1, MaxFiles: 2})
	require.NoError(t, err)

	// When: logging an event
	logger.Debug("capacity_grow", slog.Int("from", 10), slog.Int("to", 15))
	cleanup()

	// Then: the file holds one JSON line with the attributes
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), `"msg":"capacity_grow"`)
	assert.Contains(t, string(content), `"to":15`)
}

func TestSetup_LevelFilters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vexus.log")
	logger, cleanup, err := Setup(Config{Level: "warn", FilePath: path})
	require.NoError(t, err)

	logger.Info("index_saved")
	logger.Warn("recovery_rows_skipped", slog.Int("skipped", 2))
	cleanup()

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(content), "index_saved")
	assert.Contains(t, string(content), "recovery_rows_skipped")
}

func TestSetup_NoFile(t *testing.T) {
	logger, cleanup, err := Setup(Config{Level: "info"})
	require.NoError(t, err)
	require.NotNil(t, logger)
	cleanup()
}

func TestNewConsole(t *testing.T) {
	var buf bytes.Buffer
	logger := NewConsole(&buf, "warn")

	logger.Info("hidden")
	logger.Warn("capacity_grow_failed", slog.Int("target", 15))

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "capacity_grow_failed")
	assert.Contains(t, buf.String(), "target=15")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseLevel(tt.in), tt.in)
	}

	assert.True(t, ValidLevel("Debug"))
	assert.False(t, ValidLevel("trace"))
}

func TestRotatingWriter_Rotation(t *testing.T) {
	// Given: a writer limited to 1 KB
	path := filepath.Join(t.TempDir(), "rotate.log")
	w, err := NewRotatingWriter(path, 1, 3)
	require.NoError(t, err)
	defer func() { _ = w.Close() }()
	w.maxSize = 1024

	// When: writing past the limit twice
	data := bytes.Repeat([]byte("x"), 2048)
	_, err = w.Write(data)
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)

	// Then: the first write is archived compressed and the second is current
	assert.FileExists(t, path)
	assert.FileExists(t, path+".1.zst")
	assert.Equal(t, data, readArchive(t, path+".1.zst"))

	current, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, data, current)
}

func readArchive(t *testing.T, path string) []byte {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	dec, err := zstd.NewReader(f)
	require.NoError(t, err)
	defer dec.Close()

	data, err := io.ReadAll(dec)
	require.NoError(t, err)
	return data
}

func TestRotatingWriter_MaxFilesLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "maxfiles.log")
	w, err := NewRotatingWriter(path, 1, 2)
	require.NoError(t, err)
	defer func() { _ = w.Close() }()
	w.maxSize = 512

	data := bytes.Repeat([]byte("y"), 1024)
	for i := 0; i < 6; i++ {
		_, _ = w.Write(data)
	}

	assert.FileExists(t, path+".1.zst")
	assert.FileExists(t, path+".2.zst")
	assert.NoFileExists(t, path+".3.zst")
}

func TestRotatingWriter_NonPositiveLimitsUseDefaults(t *testing.T) {
	w, err := NewRotatingWriter(filepath.Join(t.TempDir(), "d.log"), 0, 0)
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	assert.Equal(t, int64(10*1024*1024), w.maxSize)
	assert.Equal(t, 5, w.maxFiles)
}

func TestRotatingWriter_SyncAndClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync.log")
	w, err := NewRotatingWriter(path, 1, 3)
	require.NoError(t, err)

	_, err = w.Write([]byte("test data to sync\n"))
	require.NoError(t, err)
	require.NoError(t, w.Sync())
	require.NoError(t, w.Close())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "test data to sync")
}

func TestRotatingWriter_ConcurrentWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "concurrent.log")
	w, err := NewRotatingWriter(path, 10, 3)
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_, _ = w.Write([]byte(fmt.Sprintf(`{"id":%d,"iter":%d}`+"\n", id, j)))
			}
		}(i)
	}
	wg.Wait()

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 500, strings.Count(string(content), "\n"))
}
