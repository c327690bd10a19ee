package tui

import "github.com/charmbracelet/lipgloss"

// Colors used throughout the browser.
var (
	colorRed     = lipgloss.Color("#FF3B30")
	colorGreen   = lipgloss.Color("#34C759")
	colorYellow  = lipgloss.Color("#FFCC00")
	colorCyan    = lipgloss.Color("#00FFFF")
	colorGray    = lipgloss.Color("#666666")
	colorDimGray = lipgloss.Color("#444444")
	colorWhite   = lipgloss.Color("#FFFFFF")
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorCyan)

	recordingDotStyle = lipgloss.NewStyle().
				Foreground(colorRed).
				Bold(true)

	pausedDotStyle = lipgloss.NewStyle().
			Foreground(colorYellow).
			Bold(true)

	idleDotStyle = lipgloss.NewStyle().
			Foreground(colorGray)

	searchStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorDimGray).
			Padding(0, 1)

	searchActiveStyle = searchStyle.
				BorderForeground(colorCyan)

	nameStyle = lipgloss.NewStyle().
			Foreground(colorWhite)

	selectedStyle = lipgloss.NewStyle().
			Foreground(colorCyan).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(colorGray)

	playingStyle = lipgloss.NewStyle().
			Foreground(colorGreen).
			Bold(true)

	buttonStyle = lipgloss.NewStyle().
			Padding(0, 2).
			Border(lipgloss.RoundedBorder())

	recordButtonStyle = buttonStyle.
				BorderForeground(colorRed).
				Foreground(colorRed)

	pauseButtonStyle = buttonStyle.
				BorderForeground(colorYellow).
				Foreground(colorYellow)

	errorStyle = lipgloss.NewStyle().
			Foreground(colorRed)

	noticeStyle = lipgloss.NewStyle().
			Foreground(colorGreen)

	footerKeyStyle = lipgloss.NewStyle().
			Foreground(colorYellow).
			Bold(true)

	footerDescStyle = lipgloss.NewStyle().
			Foreground(colorGray)

	dividerStyle = lipgloss.NewStyle().
			Foreground(colorDimGray)
)
