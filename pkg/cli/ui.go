package cli

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5f87ff"))
	subtitleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#808080"))
	successStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#5faf5f"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#d75f5f"))
	infoStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#5fafd7"))
	labelStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#808080")).Width(16)
	scoreStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#d7af5f"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#606060"))
)
