package commands

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// useColor is decided once per process. NO_COLOR disables styling.
var useColor = os.Getenv("NO_COLOR") == "" && term.IsTerminal(int(os.Stdout.Fd()))

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	aliasStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	agentStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	userStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	errorStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
)

var stateStyles = map[string]lipgloss.Style{
	"COMPLETED":              lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
	"FAILED":                 lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	"IN_PROGRESS":            lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
	"PLANNING":               lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
	"AWAITING_PLAN_APPROVAL": lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")),
	"AWAITING_USER_FEEDBACK": lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")),
}

func paint(style lipgloss.Style, text string) string {
	if !useColor {
		return text
	}
	return style.Render(text)
}

func paintState(state string) string {
	style, ok := stateStyles[state]
	if !ok {
		style = dimStyle
	}
	return paint(style, state)
}
