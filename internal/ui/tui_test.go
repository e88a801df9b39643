package ui

import (
	"bytes"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTUIRenderer_ErrorsForNonTTY(t *testing.T) {
	// Given: a non-TTY buffer
	cfg := NewConfig(&bytes.Buffer{})

	// When: creating a TUI renderer
	r, err := NewTUIRenderer(cfg)

	// Then: it is refused
	assert.Error(t, err)
	assert.Nil(t, r)
}

func TestProgressModel_InitialView(t *testing.T) {
	model := newProgressModel("recover")
	model.styles = NoColorStyles()

	view := model.View()

	assert.Contains(t, view, "recover")
	assert.Contains(t, view, "starting")
	assert.Contains(t, view, "q to detach")
}

func TestProgressModel_ShowsProgress(t *testing.T) {
	// Given: a model
	model := newProgressModel("recover")
	model.styles = NoColorStyles()

	// When: a progress update arrives
	_, cmd := model.Update(progressUpdateMsg{State: "running", Scanned: 200, Inserted: 198, Skipped: 2, Elapsed: 4 * time.Second})

	// Then: the counts and rate are shown
	assert.Nil(t, cmd)
	view := model.View()
	assert.Contains(t, view, "running")
	assert.Contains(t, view, "Scanned: 200")
	assert.Contains(t, view, "Inserted: 198")
	assert.Contains(t, view, "2 skipped")
	assert.Contains(t, view, "50 rows/s")
}

func TestProgressModel_CompleteQuits(t *testing.T) {
	// Given: a model
	model := newProgressModel("recover")
	model.styles = NoColorStyles()

	// When: the job completes
	_, cmd := model.Update(completeMsg{Scanned: 3, Inserted: 3, Duration: time.Second})

	// Then: the program quits and the summary is shown
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
	view := model.View()
	assert.Contains(t, view, "Complete")
	assert.Contains(t, view, "Scanned: 3")
	assert.Contains(t, view, "Duration: 1s")
}

func TestProgressModel_CompleteWithError(t *testing.T) {
	model := newProgressModel("recover")
	model.styles = NoColorStyles()

	model.Update(completeMsg{Scanned: 4, Err: errors.New("boom")})

	assert.Contains(t, model.View(), "Failed after 4 rows: boom")
}

func TestProgressModel_QuitKey(t *testing.T) {
	model := newProgressModel("recover")

	_, cmd := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})

	require.NotNil(t, cmd)
	assert.True(t, model.quitting)
	assert.Contains(t, model.View(), "Detached")
}

func TestProgressModel_WindowResize(t *testing.T) {
	model := newProgressModel("recover")

	model.Update(tea.WindowSizeMsg{Width: 120, Height: 40})

	assert.Equal(t, 120, model.width)
}

func TestGetStyles(t *testing.T) {
	plain := GetStyles(true)
	assert.Equal(t, "x", plain.Success.Render("x"))
	_ = GetStyles(false)
}
