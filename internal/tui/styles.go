package tui

import "github.com/charmbracelet/lipgloss"

// Styles contains lipgloss styles for the terminal client
type Styles struct {
	Title  lipgloss.Style
	Label  lipgloss.Style
	Value  lipgloss.Style
	Error  lipgloss.Style
	Notice lipgloss.Style
	Muted  lipgloss.Style
	Card   lipgloss.Style
	User   lipgloss.Style
	Guide  lipgloss.Style
	Help   lipgloss.Style
}

// DefaultStyles returns the default lipgloss styles
func DefaultStyles() Styles {
	return Styles{
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("99")).
			MarginBottom(1),
		Label: lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Width(16),
		Value: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("219")),
		Error: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("196")),
		Notice: lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")),
		Muted: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")),
		Card: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("99")).
			Padding(0, 2).
			MarginBottom(1),
		User: lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")),
		Guide: lipgloss.NewStyle().
			Foreground(lipgloss.Color("219")),
		Help: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			MarginTop(1),
	}
}
