package ui

import (
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// Color palette for command output
var (
	PrimaryColor = lipgloss.Color("#7D56F4") // Purple - headers, borders
	SuccessColor = lipgloss.Color("#43BF6D") // Green - port names
	WarningColor = lipgloss.Color("#FFA500") // Orange - hints
	MutedColor   = lipgloss.Color("#626262") // Gray - secondary info
	TextColor    = lipgloss.Color("#FFFFFF") // White - main content
)

// Layout constants
const (
	MinTerminalWidth = 60  // Minimum supported terminal width
	MaxContentWidth  = 100 // Maximum content width before capping
	DefaultWidth     = 80  // Used when stdout is not a terminal
)

var (
	// HeaderTitleStyle is for the command title (e.g., "SERIAL PORTS")
	HeaderTitleStyle = lipgloss.NewStyle().
				Foreground(TextColor).
				Bold(true).
				PaddingLeft(2)

	// HeaderCommandStyle is for the command line (e.g., "beagle ports --all")
	HeaderCommandStyle = lipgloss.NewStyle().
				Foreground(MutedColor).
				PaddingLeft(2)

	// HeaderParamKeyStyle is for parameter keys (e.g., "Discovery:")
	HeaderParamKeyStyle = lipgloss.NewStyle().
				Foreground(MutedColor).
				PaddingLeft(2)

	HeaderParamValueStyle = lipgloss.NewStyle().
				Foreground(TextColor)

	// PortNameStyle is for the port a user would pass to --port
	PortNameStyle = lipgloss.NewStyle().
			Foreground(SuccessColor).
			Bold(true)

	// PortDetailStyle is for kind, description and serial number lines
	PortDetailStyle = lipgloss.NewStyle().
			Foreground(MutedColor).
			PaddingLeft(3)

	HintStyle = lipgloss.NewStyle().
			Foreground(WarningColor)
)

// TerminalWidth returns the width of the terminal on fd, clamped to the
// supported range, or DefaultWidth when fd is not a terminal.
func TerminalWidth(fd int) int {
	width, _, err := term.GetSize(fd)
	if err != nil || width <= 0 {
		return DefaultWidth
	}
	return clampWidth(width)
}

func clampWidth(width int) int {
	if width < MinTerminalWidth {
		return MinTerminalWidth
	}
	if width > MaxContentWidth {
		return MaxContentWidth
	}
	return width
}
