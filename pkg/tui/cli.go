// Package tui renders run reports and progress on the terminal.
// Simple, streaming output: no full-screen UI.
package tui

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/schollz/progressbar/v3"

	cerrors "github.com/logflow/uppaal2octopus/pkg/errors"
)

// Colors (Swiss minimal)
var (
	accent  = lipgloss.Color("#FF0000")
	muted   = lipgloss.Color("#666666")
	success = lipgloss.Color("#00CC66")
	white   = lipgloss.Color("#FFFFFF")
)

// Styles
var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(white)
	accentStyle  = lipgloss.NewStyle().Foreground(accent).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)
	successStyle = lipgloss.NewStyle().Foreground(success).Bold(true)
	labelStyle   = lipgloss.NewStyle().Foreground(muted).Width(12)
)

const rule = "  ─────────────────────────────────────"

// RunReport is the summary of one conversion.
type RunReport struct {
	RunID      string
	Model      string
	Trace      string
	Output     string
	Format     string
	Events     int64
	Intervals  int64
	Suppressed int64
	Flushed    int64
	Locations  int
	LastClock  uint32
	Duration   time.Duration
}

// PrintReport writes a styled summary of r to w.
func PrintReport(w io.Writer, r RunReport) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %s %s\n", successStyle.Render("✓"), titleStyle.Render("Converted "+r.Trace))
	fmt.Fprintln(w, mutedStyle.Render(rule))
	row(w, "Run", r.RunID)
	if r.Model != "" {
		row(w, "Model", r.Model)
	}
	row(w, "Output", fmt.Sprintf("%s (%s)", r.Output, r.Format))
	row(w, "Events", formatNumber(r.Events))
	row(w, "Intervals", fmt.Sprintf("%s, %s suppressed, %s flushed",
		formatNumber(r.Intervals), formatNumber(r.Suppressed), formatNumber(r.Flushed)))
	row(w, "Locations", fmt.Sprintf("%d", r.Locations))
	row(w, "Last clock", fmt.Sprintf("%d", r.LastClock))
	row(w, "Time", formatDuration(r.Duration))
	fmt.Fprintln(w, mutedStyle.Render(rule))
}

// ProcessSummary describes one process of a model.
type ProcessSummary struct {
	Name      string
	Initial   string
	Locations []string
	Edges     int
}

// ModelSummary describes a loaded model.
type ModelSummary struct {
	Path        string
	Processes   []ProcessSummary
	Clocks      []string
	Variables   []string
	Expressions int
}

// PrintModelSummary writes a styled description of s to w.
func PrintModelSummary(w io.Writer, s ModelSummary) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, titleStyle.Render("  "+s.Path))
	fmt.Fprintln(w, mutedStyle.Render(rule))
	row(w, "Clocks", strings.Join(s.Clocks, ", "))
	row(w, "Variables", fmt.Sprintf("%d", len(s.Variables)))
	row(w, "Expressions", fmt.Sprintf("%d", s.Expressions))
	fmt.Fprintln(w)

	for _, p := range s.Processes {
		fmt.Fprintf(w, "  %s %s\n", accentStyle.Render("▸"), titleStyle.Render(p.Name))
		locs := make([]string, len(p.Locations))
		for i, l := range p.Locations {
			if l == p.Initial {
				l = successStyle.Render(l)
			}
			locs[i] = l
		}
		row(w, "  Locations", strings.Join(locs, " "))
		row(w, "  Edges", fmt.Sprintf("%d", p.Edges))
	}
	fmt.Fprintln(w, mutedStyle.Render(rule))
}

// PrintError writes a failed run to w. With verbose set, the stack
// captured by a coded error is printed below the message.
func PrintError(w io.Writer, err error, verbose bool) {
	fmt.Fprintf(w, "  %s %s\n", accentStyle.Render("✗"), err.Error())
	if !verbose {
		return
	}
	var cErr *cerrors.ConvertError
	if errors.As(err, &cErr) && len(cErr.StackTrace) > 0 {
		fmt.Fprint(w, mutedStyle.Render(strings.TrimRight(cErr.FormatStack(), "\n")))
		fmt.Fprintln(w)
	}
}

func row(w io.Writer, label, value string) {
	fmt.Fprintf(w, "  %s %s\n", labelStyle.Render(label+":"), value)
}

// ShowProgress creates a byte progress bar on stderr. A negative total
// renders a spinner.
func ShowProgress(total int64, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions64(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "",
			BarEnd:        "",
		}),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}

// ProgressReader reports bytes read from r on a progress bar.
func ProgressReader(r io.Reader, size int64, description string) io.Reader {
	return io.TeeReader(r, ShowProgress(size, description))
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}

func formatNumber(n int64) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	}
	return fmt.Sprintf("%.1fM", float64(n)/1000000)
}
