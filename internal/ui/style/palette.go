package style

import "github.com/charmbracelet/lipgloss"

// Цвета дашборда
var (
	Cyan    = lipgloss.Color("#00E5FF")
	Magenta = lipgloss.Color("#FF1B6B")
	Yellow  = lipgloss.Color("#FFB500")
	Green   = lipgloss.Color("#2AFFAA")
	Red     = lipgloss.Color("#FF5555")
	Blue    = lipgloss.Color("#3B82F6")

	Base03 = lipgloss.Color("#1B1D23")
	Base01 = lipgloss.Color("#6C7280")
	Base2  = lipgloss.Color("#ECEFF4")
	Base1  = lipgloss.Color("#B4BCC8")
)

// Palette groups the colors by role.
type Palette struct {
	Primary   lipgloss.Color
	Secondary lipgloss.Color
	Success   lipgloss.Color
	Error     lipgloss.Color
	Warning   lipgloss.Color
	Info      lipgloss.Color

	Background    lipgloss.Color
	Text          lipgloss.Color
	TextMuted     lipgloss.Color
	TextSecondary lipgloss.Color

	// Simulated marks writes against placeholder contracts.
	Simulated lipgloss.Color
}

func DefaultPalette() Palette {
	return Palette{
		Primary:       Cyan,
		Secondary:     Magenta,
		Success:       Green,
		Error:         Red,
		Warning:       Yellow,
		Info:          Blue,
		Background:    Base03,
		Text:          Base2,
		TextMuted:     Base01,
		TextSecondary: Base1,
		Simulated:     Yellow,
	}
}

// Общие стили экрана
var (
	Title   = lipgloss.NewStyle().Foreground(Cyan).Bold(true)
	Label   = lipgloss.NewStyle().Foreground(Base1).Width(12)
	Focused = lipgloss.NewStyle().Foreground(Magenta).Bold(true)
	Muted   = lipgloss.NewStyle().Foreground(Base01)
	Success = lipgloss.NewStyle().Foreground(Green).Bold(true)
	Error   = lipgloss.NewStyle().Foreground(Red).Bold(true)
	Warning = lipgloss.NewStyle().Foreground(Yellow)
	Panel   = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(Cyan).
		Padding(0, 2)
)
