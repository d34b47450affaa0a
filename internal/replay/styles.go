// Package replay renders recorded sessions as a colored timeline.
package replay

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Each agent part has its own color so interleaved runs stay readable.
var (
	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8")) // Gray - timestamps, metadata

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("15")) // White

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15"))

	nodeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("15"))

	// Tools - Blue
	toolStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12"))

	// Model turns - Cyan
	modelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("14"))

	// Human input - Magenta
	humanStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("13"))

	agentStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("13")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10")) // Green

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")) // Red

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11")) // Yellow

	seqStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8")).
			Width(5).
			Align(lipgloss.Right)

	timeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))

	divider = lipgloss.NewStyle().
		Foreground(lipgloss.Color("8")).
		Render(strings.Repeat("━", 60))
)

// outcomeStyle colors a pass/fail marker.
func outcomeStyle(ok *bool) (lipgloss.Style, string) {
	switch {
	case ok == nil:
		return dimStyle, "-"
	case *ok:
		return successStyle, "pass"
	default:
		return errorStyle, "fail"
	}
}
