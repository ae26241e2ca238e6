package output

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Color constants
const (
	ColorPrimary = lipgloss.Color("39")  // Cyan/blue
	ColorMuted   = lipgloss.Color("241") // Gray
	ColorGreen   = lipgloss.Color("82")  // Buys, success
	ColorRed     = lipgloss.Color("196") // Sells, errors
	ColorWarning = lipgloss.Color("220") // Yellow
)

// Shared styles
var (
	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary)

	InfoStyle = lipgloss.NewStyle().Foreground(ColorPrimary)

	LabelStyle = lipgloss.NewStyle().Foreground(ColorMuted)

	ValueStyle = lipgloss.NewStyle().Bold(true)

	GreenStyle = lipgloss.NewStyle().Foreground(ColorGreen)

	RedStyle = lipgloss.NewStyle().Foreground(ColorRed)

	ErrorStyle = lipgloss.NewStyle().Foreground(ColorRed).Bold(true)

	WarningStyle = lipgloss.NewStyle().Foreground(ColorWarning)
)

// Rule is a horizontal divider.
func Rule(ch string) string {
	return strings.Repeat(ch, 60)
}

// Banner renders title between two heavy rules.
func Banner(title string) string {
	rule := HeaderStyle.Render(Rule("="))
	pad := (60 - len(title)) / 2
	if pad < 0 {
		pad = 0
	}
	return rule + "\n" + HeaderStyle.Render(strings.Repeat(" ", pad)+title) + "\n" + rule
}
