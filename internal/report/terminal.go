package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	colorBright = lipgloss.AdaptiveColor{Light: "#0f172a", Dark: "#f1f5f9"}
	colorDim    = lipgloss.AdaptiveColor{Light: "#94a3b8", Dark: "#64748b"}
	colorType   = lipgloss.AdaptiveColor{Light: "#7c3aed", Dark: "#a78bfa"}
	colorWarn   = lipgloss.AdaptiveColor{Light: "#b45309", Dark: "#fbbf24"}
	colorOK     = lipgloss.AdaptiveColor{Light: "#059669", Dark: "#34d399"}
)

var (
	styleTitle     = lipgloss.NewStyle().Foreground(colorBright).Bold(true)
	styleMeta      = lipgloss.NewStyle().Foreground(colorDim)
	styleStat      = lipgloss.NewStyle().Foreground(colorBright).Bold(true)
	styleStatLabel = lipgloss.NewStyle().Foreground(colorDim)
	styleType      = lipgloss.NewStyle().Foreground(colorType).Bold(true)
	styleWarn      = lipgloss.NewStyle().Foreground(colorWarn)
	styleOK        = lipgloss.NewStyle().Foreground(colorOK)
)

// TerminalRenderer prints a colored summary for interactive use.
type TerminalRenderer struct{}

func (r *TerminalRenderer) Render(w io.Writer, doc *Document) error {
	var b strings.Builder

	b.WriteString(styleTitle.Render(doc.Title))
	b.WriteString("\n")
	meta := []string{formatDuration(doc.Duration)}
	if doc.Guard != "" {
		meta = append(meta, "guard "+doc.Guard)
	}
	b.WriteString(styleMeta.Render(strings.Join(meta, " · ")))
	b.WriteString("\n\n")

	b.WriteString(styleStat.Render(fmt.Sprint(doc.Total)))
	b.WriteString(" ")
	b.WriteString(styleStatLabel.Render("replaced"))
	b.WriteString("\n")
	for _, tc := range doc.ByType {
		fmt.Fprintf(&b, "  %s %d\n", styleType.Render(string(tc.Type)), tc.Count)
	}

	if doc.GuardSkipped > 0 {
		b.WriteString(styleWarn.Render(fmt.Sprintf("guard skipped for %d input(s)", doc.GuardSkipped)))
		b.WriteString("\n")
		for _, e := range doc.GuardErrors {
			b.WriteString(styleMeta.Render("  " + e))
			b.WriteString("\n")
		}
	}
	if len(doc.SkippedRules) > 0 {
		b.WriteString(styleWarn.Render("rules timed out: " + strings.Join(doc.SkippedRules, ", ")))
		b.WriteString("\n")
	}

	if len(doc.Files) > 0 {
		b.WriteString("\n")
		for _, f := range doc.Files {
			if f.Error != "" && f.Records == 0 {
				fmt.Fprintf(&b, "%s %s %s\n", styleWarn.Render("✗"), f.Input, styleMeta.Render(f.Error))
				continue
			}
			fmt.Fprintf(&b, "%s %s %s\n", styleOK.Render("✓"), f.Input,
				styleMeta.Render(fmt.Sprintf("→ %s (%d records, %d findings)", f.Output, f.Records, f.Findings)))
		}
	}

	if len(doc.Findings) > 0 {
		b.WriteString("\n")
		for _, f := range doc.Findings {
			orig := ""
			if f.Original != "" {
				orig = f.Original + " → "
			}
			fmt.Fprintf(&b, "  %s %s%s %s\n",
				styleType.Render(fmt.Sprintf("%-14s", f.Type)),
				orig,
				f.Replacement,
				styleMeta.Render(fmt.Sprintf("[%d:%d] %s", f.Start, f.End, f.Source)))
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}
