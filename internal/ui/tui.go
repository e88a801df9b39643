package ui

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// TUIRenderer provides rich terminal UI using bubbletea.
type TUIRenderer struct {
	mu      sync.Mutex
	cfg     Config
	program *tea.Program
	model   *progressModel
	cancel  context.CancelFunc
	started bool
	done    chan struct{}
}

// NewTUIRenderer creates a TUI renderer.
// Returns an error if the output is not a TTY.
func NewTUIRenderer(cfg Config) (*TUIRenderer, error) {
	if !IsTTY(cfg.Output) {
		return nil, fmt.Errorf("output is not a TTY")
	}

	model := newProgressModel(cfg.Title)
	model.styles = GetStyles(cfg.NoColor || DetectNoColor())

	return &TUIRenderer{
		cfg:   cfg,
		model: model,
		done:  make(chan struct{}),
	}, nil
}

// Start implements Renderer.
func (r *TUIRenderer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return nil
	}

	ctx, r.cancel = context.WithCancel(ctx)

	opts := []tea.ProgramOption{tea.WithContext(ctx)}
	if f, ok := r.cfg.Output.(*os.File); ok {
		opts = append(opts, tea.WithOutput(f))
	}

	r.program = tea.NewProgram(r.model, opts...)
	r.started = true

	go func() {
		defer close(r.done)
		_, _ = r.program.Run()
	}()

	return nil
}

// UpdateProgress implements Renderer.
func (r *TUIRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.program != nil {
		r.program.Send(progressUpdateMsg(event))
	}
}

// Complete implements Renderer. The final view stays on screen.
func (r *TUIRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	program := r.program
	r.mu.Unlock()

	if program == nil {
		return
	}
	program.Send(completeMsg(stats))

	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
	}
}

// Stop implements Renderer.
func (r *TUIRenderer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.program != nil {
		r.program.Quit()

		// An unresponsive program must not hang Ctrl+C.
		select {
		case <-r.done:
		case <-time.After(2 * time.Second):
		}
	}
	if r.cancel != nil {
		r.cancel()
	}
	return nil
}

type progressUpdateMsg ProgressEvent
type completeMsg CompletionStats

// progressModel is the bubbletea model for a running job.
type progressModel struct {
	title    string
	event    ProgressEvent
	stats    CompletionStats
	complete bool
	quitting bool
	width    int
	spinner  spinner.Model
	styles   Styles
}

func newProgressModel(title string) *progressModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorLime))

	return &progressModel{
		title:   title,
		spinner: s,
		styles:  DefaultStyles(),
		width:   80,
	}
}

// Init implements tea.Model.
func (m *progressModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update implements tea.Model.
func (m *progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case progressUpdateMsg:
		m.event = ProgressEvent(msg)
		return m, nil

	case completeMsg:
		m.complete = true
		m.stats = CompletionStats(msg)
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View implements tea.Model.
func (m *progressModel) View() string {
	if m.quitting {
		return "Detached; the job keeps running until the command exits.\n"
	}
	if m.complete {
		return m.renderComplete()
	}

	lines := []string{
		fmt.Sprintf("%s %s", m.spinner.View(), m.styles.Active.Render(stateLabel(m.event.State))),
		m.renderCounts(m.event.Scanned, m.event.Inserted, m.event.Skipped),
		m.styles.Label.Render(fmt.Sprintf("Elapsed: %s  •  %.0f rows/s",
			formatDuration(m.event.Elapsed), rate(m.event.Scanned, m.event.Elapsed))),
	}
	return m.wrapInPanel(m.title, strings.Join(lines, "\n")) + "\n" +
		m.styles.Dim.Render("q to detach") + "\n"
}

func (m *progressModel) renderCounts(scanned, inserted, skipped int) string {
	counts := fmt.Sprintf("%s %d   %s %d",
		m.styles.Label.Render("Scanned:"), scanned,
		m.styles.Label.Render("Inserted:"), inserted)
	if skipped > 0 {
		counts += "   " + m.styles.Warning.Render(fmt.Sprintf("⚠ %d skipped", skipped))
	}
	return counts
}

func (m *progressModel) renderComplete() string {
	if m.stats.Err != nil {
		return m.styles.Error.Render(fmt.Sprintf("✗ Failed after %d rows: %v", m.stats.Scanned, m.stats.Err)) + "\n"
	}
	lines := []string{
		m.styles.Success.Render("✓ Complete"),
		m.renderCounts(m.stats.Scanned, m.stats.Inserted, m.stats.Skipped),
		m.styles.Label.Render("Duration: ") + m.styles.Active.Render(formatDuration(m.stats.Duration)),
	}
	return m.wrapInPanel(m.title, strings.Join(lines, "\n")) + "\n"
}

// wrapInPanel wraps content in a box border with title.
func (m *progressModel) wrapInPanel(title, content string) string {
	width := m.width - 4
	if width < 40 {
		width = 40
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.styles.Header.Render(title),
		m.styles.Panel.Width(width).Render(content),
	)
}

func stateLabel(state string) string {
	if state == "" {
		return "starting"
	}
	return state
}

var _ Renderer = (*TUIRenderer)(nil)
