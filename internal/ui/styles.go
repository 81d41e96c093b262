package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// Palette. Adaptive colors keep the output readable on light terminals.
var (
	ColorAccent = lipgloss.AdaptiveColor{Light: "63", Dark: "105"}
	ColorPass   = lipgloss.AdaptiveColor{Light: "28", Dark: "78"}
	ColorWarn   = lipgloss.AdaptiveColor{Light: "130", Dark: "214"}
	ColorFail   = lipgloss.AdaptiveColor{Light: "124", Dark: "203"}
	ColorMuted  = lipgloss.AdaptiveColor{Light: "245", Dark: "241"}
)

var (
	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorAccent)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(ColorPass)

	WarningStyle = lipgloss.NewStyle().
			Foreground(ColorWarn)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorFail)

	HintStyle = lipgloss.NewStyle().
			Foreground(ColorMuted)

	TableHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(ColorAccent).
				Align(lipgloss.Center)

	TableBorderStyle = lipgloss.NewStyle().
				Foreground(ColorMuted)
)

// NewTable creates a table with the default border styling.
func NewTable(width int) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(TableBorderStyle).
		Width(width)
}
