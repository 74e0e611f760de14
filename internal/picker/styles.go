package picker

import "github.com/charmbracelet/lipgloss"

// Layout constants
const (
	MinWidth     = 40 // Narrowest layout the picker renders
	MaxWidth     = 96 // Content is capped at this width
	listChrome   = 8  // Lines used around the port list
	itemHeight   = 2
	itemSpacing  = 0
	cursorMarker = "▸ "
)

// Color palette
var (
	PrimaryColor   = lipgloss.Color("#7D56F4") // Purple
	HighlightColor = lipgloss.Color("#43BF6D") // Green
	WarningColor   = lipgloss.Color("#FFA500") // Orange
	ErrorColor     = lipgloss.Color("#FF5555") // Red
	SubtleColor    = lipgloss.Color("#626262") // Gray
	TextColor      = lipgloss.Color("#FFFFFF") // White
)

var (
	// Heading above the list
	TitleStyle = lipgloss.NewStyle().
			Foreground(PrimaryColor).
			Bold(true).
			MarginBottom(1)

	// Terminal geometry under the heading
	InfoStyle = lipgloss.NewStyle().
			Foreground(SubtleColor).
			Italic(true)

	// Port name, unselected
	PortStyle = lipgloss.NewStyle().
			PaddingLeft(2).
			Foreground(TextColor)

	// Port name under the cursor
	SelectedPortStyle = lipgloss.NewStyle().
				Foreground(HighlightColor).
				Bold(true)

	// Second line of a port entry
	DetailStyle = lipgloss.NewStyle().
			PaddingLeft(4).
			Foreground(SubtleColor)

	// Baud rate selector
	BaudStyle = lipgloss.NewStyle().
			Foreground(WarningColor).
			Bold(true).
			MarginTop(1)

	// Enumeration failure
	ErrorStyle = lipgloss.NewStyle().
			Foreground(ErrorColor).
			Bold(true)

	SpinnerStyle = lipgloss.NewStyle().
			Foreground(PrimaryColor)

	HelpStyle = lipgloss.NewStyle().
			Foreground(SubtleColor).
			MarginTop(1)

	// Outer frame
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(PrimaryColor).
			Padding(1, 2)
)

// contentWidth clamps the terminal width to the range the layout supports.
func contentWidth(terminalWidth int) int {
	w := terminalWidth - 6 // border and padding
	if w < MinWidth {
		w = MinWidth
	}
	if w > MaxWidth {
		w = MaxWidth
	}
	return w
}
