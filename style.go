package main

import "github.com/charmbracelet/lipgloss"

var keyword = lipgloss.NewStyle().
	Foreground(lipgloss.AdaptiveColor{Light: "#04B575", Dark: "#04B575"}).
	Render

// paragraph formats help text the way the TUI styles its copy.
func paragraph(s string) string {
	return lipgloss.NewStyle().
		Width(78).
		Padding(0, 0, 0, 2).
		Render(s)
}
