package output

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	// ColorCyan marks identifiable nouns such as module ids and file names.
	ColorCyan = lipgloss.Color("14")

	// ColorBoldRed marks failures.
	ColorBoldRed = lipgloss.Color("204")
)

var (
	// StyleNoun styles module ids and resource names.
	StyleNoun = lipgloss.NewStyle().Foreground(ColorCyan)

	// StyleFailure styles error summaries.
	StyleFailure = lipgloss.NewStyle().Bold(true).Foreground(ColorBoldRed)

	// StyleDim styles stack trace lines.
	StyleDim = lipgloss.NewStyle().Faint(true)
)

// FormatFailure renders an error summary followed by its indented trace.
func FormatFailure(summary, trace string) string {
	var b strings.Builder
	b.WriteString(StyleFailure.Render(summary))
	b.WriteString("\n")
	for _, line := range strings.Split(strings.TrimRight(trace, "\n"), "\n") {
		if line == "" {
			continue
		}
		b.WriteString(StyleDim.Render(line))
		b.WriteString("\n")
	}
	return b.String()
}
