package compare

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// WriteOptions tunes Report.Write.
type WriteOptions struct {
	// Color styles the output with ANSI colors.
	Color bool
	// All lists agreeing results as well.
	All bool
}

type reportStyles struct {
	title, same, differ, failed, added, removed, faint lipgloss.Style
}

func newReportStyles() reportStyles {
	return reportStyles{
		title:   lipgloss.NewStyle().Bold(true),
		same:    lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		differ:  lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Bold(true),
		failed:  lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		added:   lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		removed: lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
		faint:   lipgloss.NewStyle().Faint(true),
	}
}

// reportWriter accumulates the first write error.
type reportWriter struct {
	w      io.Writer
	color  bool
	styles reportStyles
	err    error
}

func (rw *reportWriter) paint(style lipgloss.Style, text string) string {
	if !rw.color {
		return text
	}

	return style.Render(text)
}

func (rw *reportWriter) printf(format string, args ...any) {
	if rw.err != nil {
		return
	}

	_, rw.err = fmt.Fprintf(rw.w, format, args...)
}

// Write prints the differing results with their diffs and
// a summary line.
func (r *Report) Write(w io.Writer, opts WriteOptions) error {
	const errCtx = "writing report"

	rw := &reportWriter{w: w, color: opts.Color, styles: newReportStyles()}
	st := rw.styles

	rw.printf(
		"%s %s -> %s\n\n",
		rw.paint(st.title, "comparing"), r.V1, r.V2,
	)

	for _, res := range r.Results {
		switch {
		case !res.Same():
			label := rw.paint(st.differ, "DIFF")
			if res.Failed() {
				label = rw.paint(st.failed, "FAIL")
			}

			rw.printf("%s %s %s\n", label, res.Model, res.Template)
			rw.writeDiff(res.Diff)
		case opts.All:
			rw.printf("%s %s %s\n", rw.paint(st.same, "SAME"), res.Model, res.Template)
		}
	}

	sum := r.Summary()
	rw.printf(
		"\n%s total=%d same=%d different=%d failed=%d\n",
		rw.paint(st.title, "summary"),
		sum.Total, sum.Same, sum.Different, sum.Failed,
	)

	if rw.err != nil {
		return fmt.Errorf("%s: %w", errCtx, rw.err)
	}

	return nil
}

func (rw *reportWriter) writeDiff(diff string) {
	st := rw.styles

	for _, line := range strings.Split(strings.TrimRight(diff, "\n"), "\n") {
		trimmed := strings.TrimLeft(line, " \t")

		switch {
		case strings.HasPrefix(trimmed, "+"):
			line = rw.paint(st.added, line)
		case strings.HasPrefix(trimmed, "-"):
			line = rw.paint(st.removed, line)
		default:
			line = rw.paint(st.faint, line)
		}

		rw.printf("    %s\n", line)
	}
}
