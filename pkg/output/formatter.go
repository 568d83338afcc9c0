// Package output provides formatters for displaying flame graph runs.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"

	"github.com/danpilch/flamegraph/pkg/errdefs"
)

// Format represents the output format type.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatTSV   Format = "tsv"
	FormatNone  Format = "none"
)

// ParseFormat maps a format name to a Format.
func ParseFormat(name string) (Format, error) {
	switch f := Format(strings.ToLower(name)); f {
	case FormatTable, FormatJSON, FormatTSV, FormatNone:
		return f, nil
	case "":
		return FormatTable, nil
	}
	return "", errdefs.New(errdefs.ErrConfig, "unknown summary format %q (want table, json, tsv or none)", name)
}

// Summary describes a finished run.
type Summary struct {
	Output   string        `json:"output"`
	Bytes    int64         `json:"bytes"`
	Backend  string        `json:"backend"`
	Workload string        `json:"workload"`
	Samples  int64         `json:"samples"`
	Stacks   int           `json:"stacks"`
	Frames   int           `json:"frames"`
	Ignored  int           `json:"ignored"`
	Duration time.Duration `json:"duration_ns"`
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)
	cellStyle = lipgloss.NewStyle().Padding(0, 1)
)

// Formatter handles output formatting.
type Formatter struct {
	format Format
	writer io.Writer
}

// NewFormatter creates a new formatter.
func NewFormatter(format Format, writer io.Writer) *Formatter {
	return &Formatter{
		format: format,
		writer: writer,
	}
}

// Render outputs the summary in the configured format.
func (f *Formatter) Render(s Summary) error {
	switch f.format {
	case FormatNone:
		return nil
	case FormatJSON:
		return f.renderJSON(s)
	case FormatTSV:
		return f.renderTSV(s)
	default:
		return f.renderTable(s)
	}
}

func (f *Formatter) renderJSON(s Summary) error {
	enc := json.NewEncoder(f.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

// renderTable outputs the summary as a styled table.
func (f *Formatter) renderTable(s Summary) error {
	fmt.Fprintln(f.writer, titleStyle.Render("Flame Graph"))

	rows := [][]string{
		{"output", s.Output},
		{"size", humanize.Bytes(uint64(s.Bytes))},
		{"samples", humanize.Comma(s.Samples)},
		{"stacks", humanize.Comma(int64(s.Stacks))},
		{"frames", humanize.Comma(int64(s.Frames))},
		{"backend", s.Backend},
		{"workload", s.Workload},
		{"duration", s.Duration.Round(time.Millisecond).String()},
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers("FIELD", "VALUE").
		Rows(rows...)
	fmt.Fprintln(f.writer, t)

	if s.Ignored > 0 {
		fmt.Fprintln(f.writer, warnStyle.Render(fmt.Sprintf("%d malformed folded lines ignored", s.Ignored)))
		return nil
	}
	fmt.Fprintln(f.writer, okStyle.Render("Flame graph written to "+s.Output))
	return nil
}

// renderTSV outputs the summary as tab-separated values.
func (f *Formatter) renderTSV(s Summary) error {
	fmt.Fprintln(f.writer, "OUTPUT\tBYTES\tBACKEND\tWORKLOAD\tSAMPLES\tSTACKS\tFRAMES\tIGNORED\tDURATION_MS")
	_, err := fmt.Fprintf(f.writer, "%s\t%d\t%s\t%s\t%d\t%d\t%d\t%d\t%d\n",
		s.Output, s.Bytes, s.Backend, s.Workload, s.Samples, s.Stacks, s.Frames, s.Ignored, s.Duration.Milliseconds())
	return err
}
