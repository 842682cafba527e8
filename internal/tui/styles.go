package tui

import "github.com/charmbracelet/lipgloss"

// Palette shared by every view.
var (
	ColorBlue   = lipgloss.Color("39")
	ColorGray   = lipgloss.Color("244")
	ColorWhite  = lipgloss.Color("255")
	ColorRed    = lipgloss.Color("196")
	ColorOrange = lipgloss.Color("208")
	ColorGreen  = lipgloss.Color("42")
	ColorPurple = lipgloss.Color("135")
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorBlue)

	sectionStyle = lipgloss.NewStyle().Bold(true)

	mutedStyle = lipgloss.NewStyle().Foreground(ColorGray)

	errorStyle = lipgloss.NewStyle().Foreground(ColorRed)

	okStyle = lipgloss.NewStyle().Foreground(ColorGreen)

	activeTabStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorWhite).
			Background(ColorBlue).
			Padding(0, 1)

	inactiveTabStyle = lipgloss.NewStyle().
				Foreground(ColorGray).
				Padding(0, 1)

	cursorStyle = lipgloss.NewStyle().Foreground(ColorBlue).Bold(true)
)

// statusColor maps a slot status name to its display color.
func statusColor(status string) lipgloss.Color {
	switch status {
	case "ready":
		return ColorGreen
	case "loading":
		return ColorOrange
	case "failed":
		return ColorRed
	default:
		return ColorGray
	}
}
