package tui

import "github.com/charmbracelet/lipgloss"

type boardStyles struct {
	header    lipgloss.Style
	title     lipgloss.Style
	box       lipgloss.Style
	boxActive lipgloss.Style
	selected  lipgloss.Style
	muted     lipgloss.Style
	help      lipgloss.Style
	errLine   lipgloss.Style
	celebrate lipgloss.Style
	pending   lipgloss.Style
}

func newBoardStyles() boardStyles {
	return boardStyles{
		header:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")),
		title:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		box:       lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1).BorderForeground(lipgloss.Color("240")),
		boxActive: lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1).BorderForeground(lipgloss.Color("10")),
		selected:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("229")).Background(lipgloss.Color("57")),
		muted:     lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
		help:      lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
		errLine:   lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
		celebrate: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10")),
		pending:   lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("244")),
	}
}
