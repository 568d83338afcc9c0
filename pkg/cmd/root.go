// Package cmd is the flamegraph command line.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/danpilch/flamegraph/pkg/backend"
	"github.com/danpilch/flamegraph/pkg/errdefs"
	"github.com/danpilch/flamegraph/pkg/flamegraph"
	"github.com/danpilch/flamegraph/pkg/output"
	"github.com/danpilch/flamegraph/pkg/privilege"
	"github.com/danpilch/flamegraph/pkg/render"
	"github.com/danpilch/flamegraph/pkg/workload"
)

const logLevelWarn = "warn"

var errorStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))

// Options holds the parsed flags of the root command.
type Options struct {
	pids     []int
	perfData string

	root      bool
	rootFlags string
	inverted  bool
	palette   string

	logLevel string
	format   string

	gen flamegraph.Options

	*CommonOptions
}

func NewRootCmd(opts *CommonOptions) *cobra.Command {
	o := &Options{gen: flamegraph.DefaultOptions(), CommonOptions: opts}

	cmd := &cobra.Command{
		Use:   "flamegraph [flags] [-- command args...]",
		Short: "flamegraph profiles a program and renders a flame graph",
		Long: `flamegraph samples a command, running processes, or a saved trace with the
platform profiler (perf on Linux, dtrace or xctrace on macOS) and writes an
interactive SVG flame graph.`,
		Example: `  flamegraph -- ./server --port 8080
  flamegraph --pid 1234 --root
  flamegraph --perfdata perf.data -o cpu.svg`,
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		SilenceErrors:     true,
		RunE:              o.Run,
	}
	// Everything after the workload command belongs to it.
	cmd.Flags().SetInterspersed(false)

	f := cmd.Flags()
	f.IntSliceVarP(&o.pids, "pid", "p", nil, "Profile running processes by id (repeatable or comma separated)")
	f.StringVar(&o.perfData, "perfdata", "", "Render an existing trace file instead of recording")

	f.StringVarP(&o.gen.Output, "output", "o", o.gen.Output, "Output SVG file")
	f.BoolVar(&o.gen.Open, "open", false, "Open the SVG in the default viewer when done")

	f.BoolVar(&o.root, "root", false, "Run the profiler through sudo")
	f.StringVar(&o.rootFlags, "root-flags", "", "Extra flags passed to sudo (implies --root)")

	f.IntVarP(&o.gen.Frequency, "freq", "F", 0, fmt.Sprintf("Sampling frequency in Hz (default %d)", backend.DefaultFrequency))
	f.StringVarP(&o.gen.CustomCmd, "cmd", "c", "", "Custom profiler arguments, replacing the defaults")
	f.BoolVar(&o.gen.IgnoreStatus, "ignore-status", false, "Render even if the profiled command exits with an error")
	f.BoolVar(&o.gen.NoInline, "no-inline", false, "Skip inline frame resolution in perf script")
	f.IntVar(&o.gen.CompressionLevel, "compression-level", 0, "perf record zstd compression level")
	f.StringVar(&o.gen.PostProcess, "post-process", "", "Filter folded stacks through this command before rendering")

	f.BoolVarP(&o.gen.Verbose, "verbose", "v", false, "Print profiler commands, hottest stacks and stage timings")
	f.StringVar(&o.logLevel, "log-level", logLevelWarn, "Log level (trace, debug, info, warn, error)")
	f.StringVar(&o.format, "format", string(output.FormatTable), "Run summary format (table, json, tsv, none)")

	a := &o.gen.Appearance
	f.StringVar(&a.Title, "title", "", "Title of the flame graph")
	f.StringVar(&a.Subtitle, "subtitle", "", "Second line under the title")
	f.StringVar(&a.Notes, "notes", "", "Notes embedded in the SVG description")
	f.BoolVar(&a.Deterministic, "deterministic", false, "Colour frames by name so repeated runs look the same")
	f.BoolVarP(&o.inverted, "inverted", "i", false, "Draw an icicle graph with the root at the top")
	f.BoolVar(&a.Reverse, "reverse", false, "Reverse stacks so leaf functions become roots")
	f.BoolVar(&a.FlameChart, "flamechart", false, "Keep samples in time order (flame chart)")
	f.Float64Var(&a.MinWidth, "min-width", a.MinWidth, "Omit frames narrower than this many pixels")
	f.IntVar(&a.ImageWidth, "image-width", a.ImageWidth, "SVG width in pixels")
	f.StringVar(&o.palette, "palette", string(render.PaletteHot), "Colour palette: "+strings.Join(render.Palettes(), ", "))
	f.StringArrayVar(&a.SkipAfter, "skip-after", nil, "Drop frames above this function (perf only, repeatable)")

	return cmd
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	// Interrupts are handled by the supervisor, not a signal context.
	opts := NewCommonOptions(
		WithLogger(logger),
		WithEnv(backend.LoadEnv()),
		WithProgress(output.NewSpinner(os.Stderr)),
	)

	if err := NewRootCmd(opts).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error:"), err)
		os.Exit(1)
	}
}

func (o *Options) Run(cmd *cobra.Command, args []string) error {
	level, err := logrus.ParseLevel(o.logLevel)
	if err != nil {
		return errdefs.Wrapf(errdefs.ErrConfig, err, "invalid --log-level %q", o.logLevel)
	}
	if o.gen.Verbose {
		level = logrus.DebugLevel
	}
	o.Logger.SetLevel(level)

	format, err := output.ParseFormat(o.format)
	if err != nil {
		return err
	}
	palette, err := render.ParsePalette(o.palette)
	if err != nil {
		return err
	}
	o.gen.Appearance.Palette = palette
	if o.inverted {
		o.gen.Appearance.Direction = render.DirectionInverted
	}
	if o.root || o.rootFlags != "" {
		o.gen.Privilege = privilege.Sudo(o.rootFlags)
	}

	w, err := o.workload(args)
	if err != nil {
		return err
	}

	gopts := []flamegraph.Option{
		flamegraph.WithEnv(o.Env),
		flamegraph.WithLogger(o.Logger),
		flamegraph.WithOutput(cmd.OutOrStdout()),
	}
	if o.Progress != nil {
		gopts = append(gopts, flamegraph.WithProgress(o.Progress))
	}
	if o.Opener != nil {
		gopts = append(gopts, flamegraph.WithOpener(o.Opener))
	}

	summary, err := flamegraph.NewGenerator(gopts...).Generate(o.Ctx, w, o.gen)
	if err != nil {
		return err
	}
	return output.NewFormatter(format, cmd.OutOrStdout()).Render(*summary)
}

// workload picks the single workload named by the flags and trailing args.
func (o *Options) workload(args []string) (workload.Workload, error) {
	given := 0
	for _, set := range []bool{len(args) > 0, len(o.pids) > 0, o.perfData != ""} {
		if set {
			given++
		}
	}
	if given > 1 {
		return workload.Workload{}, errdefs.New(errdefs.ErrConfig, "give only one of a command, --pid or --perfdata")
	}

	switch {
	case len(args) > 0:
		return workload.Command(args...), nil
	case len(o.pids) > 0:
		return workload.Pids(o.pids...), nil
	case o.perfData != "":
		return workload.ReadPerf(o.perfData), nil
	}
	return workload.Workload{}, errdefs.New(errdefs.ErrConfig, "no workload given; pass a command after --, --pid or --perfdata")
}
