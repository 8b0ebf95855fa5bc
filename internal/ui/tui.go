package ui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Aman-CERP/docrag/internal/ingest"
)

// TUIRenderer draws ingestion progress with bubbletea.
type TUIRenderer struct {
	mu      sync.Mutex
	cfg     Config
	program *tea.Program
	model   *ingestModel
	tracker *ProgressTracker
	cancel  context.CancelFunc
	started bool
	done    chan struct{}
}

// NewTUIRenderer creates a TUI renderer. It fails for non-TTY output.
func NewTUIRenderer(cfg Config) (*TUIRenderer, error) {
	if !IsTTY(cfg.Output) {
		return nil, errors.New("output is not a TTY")
	}

	tracker := NewProgressTracker()
	model := newIngestModel(tracker, cfg.Title)
	if cfg.NoColor || DetectNoColor() {
		model.styles = NoColorStyles()
	}

	return &TUIRenderer{
		cfg:     cfg,
		tracker: tracker,
		model:   model,
		done:    make(chan struct{}),
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

	var opts []tea.ProgramOption
	if f, ok := r.cfg.Output.(*os.File); ok {
		opts = append(opts, tea.WithOutput(f))
	}
	opts = append(opts, tea.WithContext(ctx))

	r.program = tea.NewProgram(r.model, opts...)
	r.started = true

	go func() {
		defer close(r.done)
		_, _ = r.program.Run()
	}()
	return nil
}

// Update implements Renderer.
func (r *TUIRenderer) Update(snap ingest.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tracker.Observe(snap)
	if r.program != nil {
		r.program.Send(snapshotMsg(snap))
	}
}

// Complete implements Renderer.
func (r *TUIRenderer) Complete(snap ingest.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tracker.Observe(snap)
	if r.program != nil {
		r.program.Send(completeMsg(snap))
	}
}

// Stop implements Renderer.
func (r *TUIRenderer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.program == nil {
		return nil
	}
	r.program.Quit()

	// An unresponsive program must not hang Ctrl+C.
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
	}
	if r.cancel != nil {
		r.cancel()
	}
	return nil
}

type snapshotMsg ingest.Snapshot
type completeMsg ingest.Snapshot
type tickMsg time.Time

// ingestModel is the bubbletea model for a running ingestion.
type ingestModel struct {
	tracker     *ProgressTracker
	width       int
	quitting    bool
	complete    bool
	final       ingest.Snapshot
	spinner     spinner.Model
	progressBar progress.Model
	styles      Styles
	title       string
}

func newIngestModel(tracker *ProgressTracker, title string) *ingestModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAccent))

	p := progress.New(
		progress.WithSolidFill(ColorAccent),
		progress.WithWidth(50),
		progress.WithoutPercentage(),
	)

	return &ingestModel{
		tracker:     tracker,
		spinner:     s,
		progressBar: p,
		styles:      DefaultStyles(),
		width:       80,
		title:       title,
	}
}

// Init implements tea.Model.
func (m *ingestModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickCmd())
}

func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update implements tea.Model.
func (m *ingestModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			// Leaves the run going; `docrag stop` ends it.
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.progressBar.Width = max(msg.Width-20, 20)

	case snapshotMsg:
		// tracker already updated by the renderer
		return m, nil

	case completeMsg:
		m.complete = true
		m.final = ingest.Snapshot(msg)
		return m, tea.Quit

	case tickMsg:
		return m, tickCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View implements tea.Model.
func (m *ingestModel) View() string {
	if m.quitting {
		return "Detached. Ingestion continues in the background.\n"
	}
	if m.complete {
		return m.renderComplete()
	}

	contentWidth := max(m.width-4, 40)
	stats := m.tracker.Stats()

	sections := []string{
		m.renderStages(stats.Stage),
		m.renderDivider(contentWidth),
		m.renderProgress(stats),
		m.renderSpeed(stats),
		m.renderDivider(contentWidth),
		m.styles.Sparkline.Render(m.tracker.RenderSparkline(max(contentWidth-14, 10))) +
			" " + m.styles.Dim.Render("docs/s"),
	}
	if stats.LastFile != "" {
		sections = append(sections,
			m.renderDivider(contentWidth),
			m.styles.Dim.Render(truncateFilePath(stats.LastFile, contentWidth-2)))
	}

	title := "docrag ingest"
	if m.title != "" {
		title = "docrag ingest • " + m.title
	}
	panel := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(ColorDarkGray)).
		Padding(0, 1).
		Width(contentWidth)

	return lipgloss.JoinVertical(lipgloss.Left,
		m.styles.Header.Render(title),
		panel.Render(strings.Join(sections, "\n")),
	) + "\n" + m.renderStatusBar(stats)
}

func (m *ingestModel) renderStages(current Stage) string {
	stages := []Stage{StageDiscovering, StageIngesting, StageComplete}

	var parts []string
	for _, s := range stages {
		var icon string
		var style lipgloss.Style
		switch {
		case s < current:
			icon, style = "●", m.styles.Success
		case s == current:
			icon, style = m.spinner.View(), m.styles.Active
		default:
			icon, style = "○", m.styles.Dim
		}
		parts = append(parts, style.Render(icon+" "+s.String()))
	}
	return strings.Join(parts, m.styles.Dim.Render(" → "))
}

func (m *ingestModel) renderProgress(stats ProgressStats) string {
	if stats.Total == 0 {
		return fmt.Sprintf("%s %s...", m.spinner.View(), stats.Stage)
	}

	bar := m.progressBar.ViewAs(stats.Progress)
	pct := m.styles.Active.Render(fmt.Sprintf("%3.0f%%", stats.Progress*100))
	count := m.styles.Label.Render(fmt.Sprintf("%d / %d documents • %d chunks", stats.Processed, stats.Total, stats.Chunks))
	return fmt.Sprintf("%s  %s\n%s", bar, pct, count)
}

func (m *ingestModel) renderSpeed(stats ProgressStats) string {
	speed := fmt.Sprintf("Speed: %.1f docs/s", stats.Speed.Current)
	if stats.Speed.Avg > 0 {
		speed += fmt.Sprintf(" (avg: %.1f, peak: %.1f)", stats.Speed.Avg, stats.Speed.Peak)
	}
	parts := []string{m.styles.Speed.Render(speed)}
	if stats.ETA > 0 {
		parts = append(parts, m.styles.Label.Render("ETA: "+formatDuration(stats.ETA)))
	}
	return strings.Join(parts, m.styles.Dim.Render("  •  "))
}

func (m *ingestModel) renderDivider(width int) string {
	return m.styles.Border.Render(strings.Repeat("─", width))
}

func (m *ingestModel) renderStatusBar(stats ProgressStats) string {
	var parts []string
	if stats.FailedChunks > 0 {
		parts = append(parts, m.styles.Warning.Render(fmt.Sprintf("⚠ %d chunks without entities", stats.FailedChunks)))
	}
	if stats.Failed > 0 {
		parts = append(parts, m.styles.Error.Render(fmt.Sprintf("✗ %d failed documents", stats.Failed)))
	}
	parts = append(parts, m.styles.Dim.Render("q to detach"))
	return strings.Join(parts, m.styles.Dim.Render("  │  "))
}

func (m *ingestModel) renderComplete() string {
	s := m.final

	header := m.styles.Success.Render("✓ Ingestion complete")
	border := ColorAccent
	switch s.State {
	case ingest.StateStopped:
		header = m.styles.Warning.Render("■ Ingestion stopped")
		border = ColorYellow
	case ingest.StateError:
		header = m.styles.Error.Render("✗ Ingestion failed")
		border = ColorRed
	}

	label := m.styles.Label.Render
	value := func(v any) string { return m.styles.Active.Render(fmt.Sprint(v)) }

	lines := []string{
		header,
		"",
		fmt.Sprintf("%s %s", label("Documents:"), value(fmt.Sprintf("%d/%d", s.Processed, s.Total))),
		fmt.Sprintf("%s    %s", label("Chunks:"), value(s.Chunks)),
		fmt.Sprintf("%s  %s", label("Duration:"), value(formatDuration(s.Elapsed(s.EndedAt)))),
	}
	if s.Removed > 0 {
		lines = append(lines, fmt.Sprintf("%s   %s", label("Removed:"), value(s.Removed)))
	}
	if s.Failed > 0 || s.FailedBatches > 0 {
		lines = append(lines, "", m.styles.Error.Render(
			fmt.Sprintf("✗ %d failed documents, %d failed batches", s.Failed, s.FailedBatches)))
	}
	if s.FailedChunks > 0 {
		lines = append(lines, m.styles.Warning.Render(fmt.Sprintf("⚠ %d chunks without entities", s.FailedChunks)))
	}
	if s.LastError != "" {
		lines = append(lines, m.styles.Error.Render(s.LastError))
	}

	panel := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(border)).
		Padding(1, 2).
		Width(max(m.width-4, 40))
	return panel.Render(strings.Join(lines, "\n")) + "\n"
}

// formatDuration formats a duration in a human-friendly way.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		if s == 0 {
			return fmt.Sprintf("%dm", m)
		}
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}

// truncateFilePath shortens path to maxLen, keeping the filename.
func truncateFilePath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}
	if maxLen < 4 {
		return "..."
	}

	slash := strings.LastIndex(path, "/")
	filename := path[slash+1:]
	if slash < 0 || len(filename)+4 > maxLen {
		return "..." + path[len(path)-maxLen+3:]
	}

	remaining := maxLen - len(filename) - 4
	prefix := path[:slash]
	return "..." + prefix[len(prefix)-remaining:] + "/" + filename
}

var _ Renderer = (*TUIRenderer)(nil)
