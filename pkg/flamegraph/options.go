// Package flamegraph records a workload with the platform profiler and
// renders the result as an SVG flame graph.
package flamegraph

import (
	"github.com/danpilch/flamegraph/pkg/backend"
	"github.com/danpilch/flamegraph/pkg/collapse"
	"github.com/danpilch/flamegraph/pkg/errdefs"
	"github.com/danpilch/flamegraph/pkg/postprocess"
	"github.com/danpilch/flamegraph/pkg/privilege"
	"github.com/danpilch/flamegraph/pkg/render"
)

// Appearance configures how the flame graph looks.
type Appearance struct {
	Title         string
	Subtitle      string
	Notes         string
	Deterministic bool
	Direction     render.Direction
	// Reverse flips stacks so leaves are drawn as roots.
	Reverse bool
	// FlameChart keeps samples in time order instead of merging them.
	FlameChart bool
	// MinWidth hides frames narrower than this many pixels.
	MinWidth   float64
	ImageWidth int
	Palette    render.Palette
	// SkipAfter drops the callers of these frames. Only perf traces honour
	// it.
	SkipAfter []string
}

// Options configures a flame graph run.
type Options struct {
	// Output is the SVG path.
	Output string
	// Open shows the SVG in the default viewer once written.
	Open      bool
	Privilege privilege.Spec

	// Frequency is the sampling rate in Hz; 0 uses the backend default.
	Frequency int
	// CustomCmd replaces the sampler's own arguments.
	CustomCmd        string
	IgnoreStatus     bool
	NoInline         bool
	CompressionLevel int
	Verbose          bool

	// PostProcess filters folded stacks through a shell-quoted command.
	PostProcess string

	Appearance Appearance
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		Output: "flamegraph.svg",
		Appearance: Appearance{
			MinWidth:   0.01,
			ImageWidth: 1200,
			Palette:    render.PaletteHot,
		},
	}
}

// Validate rejects inconsistent options before anything is spawned.
func (o Options) Validate() error {
	if o.Output == "" {
		return errdefs.New(errdefs.ErrConfig, "output path is empty")
	}
	if o.Frequency != 0 && o.CustomCmd != "" {
		return errdefs.New(errdefs.ErrConfig, "--freq cannot be combined with --cmd")
	}
	if o.Frequency < 0 {
		return errdefs.New(errdefs.ErrConfig, "--freq must be positive, got %d", o.Frequency)
	}
	if o.CompressionLevel < 0 {
		return errdefs.New(errdefs.ErrConfig, "--compression-level must be positive, got %d", o.CompressionLevel)
	}
	if err := o.Privilege.Validate(); err != nil {
		return err
	}
	if o.PostProcess != "" {
		if _, err := postprocess.Split(o.PostProcess); err != nil {
			return err
		}
	}

	a := o.Appearance
	if a.Reverse && a.FlameChart {
		return errdefs.New(errdefs.ErrConfig, "--reverse cannot be combined with --flamechart")
	}
	if a.MinWidth < 0 {
		return errdefs.New(errdefs.ErrConfig, "--min-width must not be negative, got %g", a.MinWidth)
	}
	if a.ImageWidth < 0 {
		return errdefs.New(errdefs.ErrConfig, "--image-width must be positive, got %d", a.ImageWidth)
	}
	if a.ImageWidth != 0 && a.ImageWidth < render.MinImageWidth {
		return errdefs.New(errdefs.ErrConfig, "--image-width must be at least %d, got %d", render.MinImageWidth, a.ImageWidth)
	}
	if _, err := render.ParsePalette(string(a.Palette)); err != nil {
		return err
	}
	return nil
}

func (o Options) request() backend.Request {
	return backend.Request{
		Start: backend.StartOptions{
			Frequency:        o.Frequency,
			CustomCmd:        o.CustomCmd,
			CompressionLevel: o.CompressionLevel,
			Privilege:        o.Privilege,
		},
		Collect: backend.CollectOptions{
			NoInline:  o.NoInline,
			Privilege: o.Privilege,
		},
	}
}

func (o Options) collapseOptions() collapse.Options {
	return collapse.Options{SkipAfter: o.Appearance.SkipAfter}
}

func (o Options) renderOptions() render.Options {
	a := o.Appearance
	opts := render.DefaultOptions()
	opts.Title = a.Title
	opts.Subtitle = a.Subtitle
	opts.Notes = a.Notes
	opts.Deterministic = a.Deterministic
	opts.Direction = a.Direction
	opts.Reverse = a.Reverse
	opts.FlameChart = a.FlameChart
	opts.MinWidth = a.MinWidth
	if a.ImageWidth > 0 {
		opts.Width = a.ImageWidth
	}
	if a.Palette != "" {
		opts.Palette = a.Palette
	}
	return opts
}
