package tui

import "github.com/charmbracelet/lipgloss"

// Catppuccin Mocha, the subset the screens use.
const (
	colorMauve    lipgloss.Color = "#cba6f7"
	colorRed      lipgloss.Color = "#f38ba8"
	colorPeach    lipgloss.Color = "#fab387"
	colorGreen    lipgloss.Color = "#a6e3a1"
	colorTeal     lipgloss.Color = "#94e2d5"
	colorLavender lipgloss.Color = "#b4befe"
	colorText     lipgloss.Color = "#cdd6f4"
	colorSubtext0 lipgloss.Color = "#a6adc8"
	colorOverlay1 lipgloss.Color = "#7f849c"
	colorSurface1 lipgloss.Color = "#45475a"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(colorMauve)
	subtitleStyle = lipgloss.NewStyle().Foreground(colorSubtext0)
	textStyle     = lipgloss.NewStyle().Foreground(colorText)
	mutedStyle    = lipgloss.NewStyle().Foreground(colorOverlay1)
	cursorStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorLavender)
	helpStyle     = lipgloss.NewStyle().Foreground(colorOverlay1).MarginTop(1)

	badgeInstalled = lipgloss.NewStyle().Foreground(colorGreen)
	badgeSetup     = lipgloss.NewStyle().Foreground(colorPeach)
	badgeBusy      = lipgloss.NewStyle().Foreground(colorTeal)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorSurface1).
			Padding(1, 2)

	stepActive = lipgloss.NewStyle().Bold(true).Foreground(colorLavender)
	stepDone   = lipgloss.NewStyle().Foreground(colorGreen)

	toastInfo    = lipgloss.NewStyle().Foreground(colorTeal)
	toastSuccess = lipgloss.NewStyle().Foreground(colorGreen)
	toastError   = lipgloss.NewStyle().Foreground(colorRed)
)
