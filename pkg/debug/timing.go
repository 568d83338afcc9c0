// Package debug provides instrumentation for verbose flame graph runs.
package debug

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

const shareBarWidth = 20

var (
	debugTitle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	debugHeader = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("62")).Padding(0, 1)
	debugDim    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	debugCell   = lipgloss.NewStyle().Padding(0, 1)
	debugSlow   = debugCell.Foreground(lipgloss.Color("214"))
	debugTotal  = debugCell.Bold(true)
)

// StageTiming records how long one pipeline stage took.
type StageTiming struct {
	Name     string
	Duration time.Duration
}

// Timer records stage durations in the order stages run.
type Timer struct {
	timings []StageTiming
	now     func() time.Time
}

// NewTimer returns an empty Timer.
func NewTimer() *Timer {
	return &Timer{now: time.Now}
}

// Time runs fn and records its duration under stage, whether or not it
// fails.
func (t *Timer) Time(stage string, fn func() error) error {
	start := t.now()
	err := fn()
	t.timings = append(t.timings, StageTiming{
		Name:     stage,
		Duration: t.now().Sub(start),
	})
	return err
}

// Timings returns the recorded stages.
func (t *Timer) Timings() []StageTiming {
	return append([]StageTiming(nil), t.timings...)
}

// Total is the sum of all recorded stages.
func (t *Timer) Total() time.Duration {
	var total time.Duration
	for _, s := range t.timings {
		total += s.Duration
	}
	return total
}

// TimingReport prints each stage's wall time and its share of the run as a
// table, with a bar scaled to the share, and names the slowest stage.
func TimingReport(w io.Writer, timings []StageTiming) {
	var total time.Duration
	slowest := -1
	for i, t := range timings {
		total += t.Duration
		if slowest < 0 || t.Duration > timings[slowest].Duration {
			slowest = i
		}
	}

	rows := make([][]string, 0, len(timings)+1)
	for _, t := range timings {
		pct := share(t.Duration, total)
		rows = append(rows, []string{
			t.Name,
			t.Duration.Round(time.Millisecond).String(),
			fmt.Sprintf("%.1f%%", pct),
			strings.Repeat("▇", int(pct/100*shareBarWidth+0.5)),
		})
	}
	rows = append(rows, []string{"total", total.Round(time.Millisecond).String(), "", ""})

	tbl := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(debugDim).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return debugHeader
			case row == slowest:
				return debugSlow
			case row == len(rows)-1:
				return debugTotal
			}
			return debugCell
		}).
		Headers("STAGE", "TIME", "SHARE", "").
		Rows(rows...)

	fmt.Fprintln(w)
	fmt.Fprintln(w, debugTitle.Render("Stage Timing Report"))
	fmt.Fprintln(w, tbl)
	if slowest >= 0 && total > 0 {
		fmt.Fprintln(w, debugDim.Render(fmt.Sprintf("slowest stage: %s", timings[slowest].Name)))
	}
}

// share is d as a percentage of total.
func share(d, total time.Duration) float64 {
	if total <= 0 {
		return 0
	}
	return float64(d) / float64(total) * 100
}
