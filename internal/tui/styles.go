package tui

import "github.com/charmbracelet/lipgloss"

var (
	accentColor = lipgloss.Color("#4ade80")
	dimColor    = lipgloss.Color("#6b7280")
	errColor    = lipgloss.Color("#f87171")

	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(accentColor)
	dimStyle    = lipgloss.NewStyle().Foreground(dimColor)
	errStyle    = lipgloss.NewStyle().Foreground(errColor)
	selfStyle   = lipgloss.NewStyle().Bold(true).Foreground(accentColor)
	authorStyle = lipgloss.NewStyle().Bold(true)
	adminStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#facc15"))
	systemStyle = lipgloss.NewStyle().Italic(true).Foreground(dimColor)
	quoteStyle  = lipgloss.NewStyle().Foreground(dimColor).PaddingLeft(2)
	inputStyle  = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderTop(true).
			BorderForeground(dimColor)
)
