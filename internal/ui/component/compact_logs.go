package component

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rovshanmuradov/sonic-defi/internal/logger"
	"github.com/rovshanmuradov/sonic-defi/internal/ui/style"
)

const compactLogEntries = 50

// LogFilter defines what log levels to show
type LogFilter struct {
	ShowError   bool
	ShowWarning bool
	ShowInfo    bool
	ShowDebug   bool
}

// CompactLogViewer renders the tail of a LogBuffer.
type CompactLogViewer struct {
	buffer   *logger.LogBuffer
	viewport viewport.Model
	filter   LogFilter
	style    CompactLogStyle
	width    int
	height   int
	visible  bool
}

// CompactLogStyle contains all styling for the log viewer
type CompactLogStyle struct {
	container lipgloss.Style
	title     lipgloss.Style
	timestamp lipgloss.Style
	error     lipgloss.Style
	warning   lipgloss.Style
	info      lipgloss.Style
	debug     lipgloss.Style
}

func NewCompactLogViewer(buffer *logger.LogBuffer) *CompactLogViewer {
	palette := style.DefaultPalette()

	return &CompactLogViewer{
		buffer:  buffer,
		visible: true,
		filter:  LogFilter{ShowError: true, ShowWarning: true, ShowInfo: true},
		style: CompactLogStyle{
			container: lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(palette.Info).
				Padding(0, 1),
			title:     lipgloss.NewStyle().Foreground(palette.Info).Bold(true),
			timestamp: lipgloss.NewStyle().Foreground(palette.TextMuted),
			error:     lipgloss.NewStyle().Foreground(palette.Error).Bold(true),
			warning:   lipgloss.NewStyle().Foreground(palette.Warning),
			info:      lipgloss.NewStyle().Foreground(palette.Text),
			debug:     lipgloss.NewStyle().Foreground(palette.TextMuted),
		},
		viewport: viewport.New(50, 4),
	}
}

// SetSize sets the component dimensions
func (clv *CompactLogViewer) SetSize(width, height int) {
	clv.width = width
	clv.height = height
	clv.style.container = clv.style.container.Width(max(width-4, 10))
	clv.viewport.Width = max(width-6, 10)
	clv.viewport.Height = max(height-3, 2)
	clv.Refresh()
}

func (clv *CompactLogViewer) Toggle() {
	clv.visible = !clv.visible
}

func (clv *CompactLogViewer) IsVisible() bool {
	return clv.visible
}

func (clv *CompactLogViewer) SetFilter(filter LogFilter) {
	clv.filter = filter
	clv.Refresh()
}

// Update forwards scrolling to the viewport.
func (clv *CompactLogViewer) Update(msg tea.Msg) tea.Cmd {
	if !clv.visible {
		return nil
	}
	var cmd tea.Cmd
	clv.viewport, cmd = clv.viewport.Update(msg)
	return cmd
}

// Refresh reloads the viewport from the buffer and scrolls to the newest entry.
func (clv *CompactLogViewer) Refresh() {
	if clv.buffer == nil {
		clv.viewport.SetContent("No log buffer available")
		return
	}
	var lines []string
	for _, entry := range clv.buffer.Recent(compactLogEntries) {
		if clv.shouldShow(entry) {
			lines = append(lines, clv.format(entry))
		}
	}
	if len(lines) == 0 {
		clv.viewport.SetContent("No logs match current filter")
		return
	}
	clv.viewport.SetContent(strings.Join(lines, "\n"))
	clv.viewport.GotoBottom()
}

func (clv *CompactLogViewer) View() string {
	if !clv.visible {
		return ""
	}
	content := lipgloss.JoinVertical(lipgloss.Left,
		clv.style.title.Render("Logs [ctrl+l]"),
		clv.viewport.View())
	return clv.style.container.Render(content)
}

func (clv *CompactLogViewer) shouldShow(entry logger.LogEntry) bool {
	switch strings.ToLower(entry.Level) {
	case "error", "dpanic", "panic", "fatal":
		return clv.filter.ShowError
	case "warn", "warning":
		return clv.filter.ShowWarning
	case "debug":
		return clv.filter.ShowDebug
	default:
		return clv.filter.ShowInfo
	}
}

func (clv *CompactLogViewer) format(entry logger.LogEntry) string {
	ts := clv.style.timestamp.Render(entry.Timestamp.Format("15:04:05"))
	msg := entry.Message
	if hash, ok := entry.Fields["tx_hash"].(string); ok {
		msg = fmt.Sprintf("%s %s", msg, hash)
	}

	var styled string
	switch strings.ToLower(entry.Level) {
	case "error", "dpanic", "panic", "fatal":
		styled = clv.style.error.Render(msg)
	case "warn", "warning":
		styled = clv.style.warning.Render(msg)
	case "debug":
		styled = clv.style.debug.Render(msg)
	default:
		styled = clv.style.info.Render(msg)
	}
	return fmt.Sprintf("%s %s", ts, styled)
}

// GetHeight returns the component height for layout calculations
func (clv *CompactLogViewer) GetHeight() int {
	if !clv.visible {
		return 0
	}
	return clv.height
}
