package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// PlainRenderer outputs plain text progress (for CI/pipes).
type PlainRenderer struct {
	mu    sync.Mutex
	out   io.Writer
	title string
	last  ProgressEvent
}

// NewPlainRenderer creates a plain text renderer.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	return &PlainRenderer{out: cfg.Output, title: cfg.Title}
}

// Start implements Renderer.
func (r *PlainRenderer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = fmt.Fprintf(r.out, "[START] %s\n", r.title)
	return nil
}

// UpdateProgress implements Renderer. Repeated identical counts are not
// printed again.
func (r *PlainRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if event.Scanned == r.last.Scanned && event.State == r.last.State {
		return
	}
	r.last = event
	_, _ = fmt.Fprintf(r.out, "[%s] scanned %d, inserted %d, skipped %d (%s)\n",
		event.State, event.Scanned, event.Inserted, event.Skipped, formatDuration(event.Elapsed))
}

// Complete implements Renderer.
func (r *PlainRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if stats.Err != nil {
		_, _ = fmt.Fprintf(r.out, "[FAILED] after %d rows: %v\n", stats.Scanned, stats.Err)
		return
	}
	_, _ = fmt.Fprintf(r.out, "[DONE] scanned %d, inserted %d, skipped %d in %s\n",
		stats.Scanned, stats.Inserted, stats.Skipped, formatDuration(stats.Duration))
}

// Stop implements Renderer.
func (r *PlainRenderer) Stop() error {
	return nil
}

var _ Renderer = (*PlainRenderer)(nil)
