package ui

import "github.com/charmbracelet/lipgloss"

var (
	brandPrimary = lipgloss.Color("#10B981")
	brandAccent  = lipgloss.Color("#06B6D4")
	brandError   = lipgloss.Color("#EF4444")
	textMuted    = lipgloss.Color("#6B7280")

	titleStyle = lipgloss.NewStyle().
			Foreground(brandPrimary).
			Bold(true).
			MarginBottom(1)

	promptStyle = lipgloss.NewStyle().Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(brandError).
			Bold(true)

	dimStyle = lipgloss.NewStyle().Foreground(textMuted)

	selectedStyle = lipgloss.NewStyle().
			Foreground(brandAccent).
			Bold(true)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(brandPrimary).
			Padding(1, 2)
)
