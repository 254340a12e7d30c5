package inspector

import "github.com/charmbracelet/lipgloss"

// Colors.
var (
	iris   = lipgloss.Color("#8B5CF6")
	slate  = lipgloss.Color("#667085")
	green  = lipgloss.Color("#22A06B")
	yellow = lipgloss.Color("#F59E0B")
)

// Icons.
const (
	check  = "✓"
	circle = "○"
	arrow  = "→"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(iris)
	headingStyle = lipgloss.NewStyle().Bold(true).MarginTop(1)
	mutedStyle   = lipgloss.NewStyle().Foreground(slate)
	okStyle      = lipgloss.NewStyle().Foreground(green)
	warnStyle    = lipgloss.NewStyle().Foreground(yellow)
	indentStyle  = lipgloss.NewStyle().PaddingLeft(2)
)
