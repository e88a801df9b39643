package ui

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlainRenderer_Lifecycle(t *testing.T) {
	// Given: a plain renderer
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf, WithTitle("recover chunks")))

	// When: running through a job
	require.NoError(t, r.Start(context.Background()))
	r.UpdateProgress(ProgressEvent{State: "running", Scanned: 1000, Inserted: 990, Skipped: 10, Elapsed: 2 * time.Second})
	r.Complete(CompletionStats{Scanned: 1500, Inserted: 1488, Skipped: 12, Duration: 3 * time.Second})
	require.NoError(t, r.Stop())

	// Then: each phase prints one line
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "[START] recover chunks", lines[0])
	assert.Equal(t, "[running] scanned 1000, inserted 990, skipped 10 (2s)", lines[1])
	assert.Equal(t, "[DONE] scanned 1500, inserted 1488, skipped 12 in 3s", lines[2])
}

func TestPlainRenderer_SuppressesRepeats(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	event := ProgressEvent{State: "running", Scanned: 5}
	r.UpdateProgress(event)
	event.Elapsed = time.Second
	r.UpdateProgress(event)

	assert.Equal(t, 1, strings.Count(buf.String(), "[running]"))
}

func TestPlainRenderer_CompleteWithError(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	r.Complete(CompletionStats{Scanned: 7, Err: errors.New("source query failed")})

	assert.Contains(t, buf.String(), "[FAILED] after 7 rows: source query failed")
}

func TestPlainRenderer_NoANSICodes(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	r.UpdateProgress(ProgressEvent{State: "running", Scanned: 1, Skipped: 1})
	r.Complete(CompletionStats{Scanned: 1, Skipped: 1})

	assert.NotContains(t, buf.String(), "\x1b[")
}
