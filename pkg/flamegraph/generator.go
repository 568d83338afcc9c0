package flamegraph

import (
	"bytes"
	"context"
	"io"
	"os"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/skratchdot/open-golang/open"

	"github.com/danpilch/flamegraph/pkg/backend"
	"github.com/danpilch/flamegraph/pkg/collapse"
	"github.com/danpilch/flamegraph/pkg/debug"
	"github.com/danpilch/flamegraph/pkg/errdefs"
	"github.com/danpilch/flamegraph/pkg/output"
	"github.com/danpilch/flamegraph/pkg/postprocess"
	"github.com/danpilch/flamegraph/pkg/render"
	"github.com/danpilch/flamegraph/pkg/supervisor"
	"github.com/danpilch/flamegraph/pkg/workload"
)

// hotStacks is how many stacks the verbose report lists.
const hotStacks = 10

// Generator runs the record, collapse and render pipeline.
type Generator struct {
	backend  backend.Backend
	env      backend.Env
	logger   *logrus.Logger
	out      io.Writer
	progress backend.Progress
	opener   func(path string) error
}

// Option configures a Generator.
type Option func(g *Generator)

// WithBackend sets the profiler backend. By default the platform backend is
// built for each run from the run's options.
func WithBackend(b backend.Backend) Option {
	return func(g *Generator) {
		g.backend = b
	}
}

// WithEnv sets the environment the default backend resolves tools from.
func WithEnv(env backend.Env) Option {
	return func(g *Generator) {
		g.env = env
	}
}

func WithLogger(logger *logrus.Logger) Option {
	return func(g *Generator) {
		g.logger = logger
	}
}

// WithOutput sets where verbose reports are written.
func WithOutput(w io.Writer) Option {
	return func(g *Generator) {
		g.out = w
	}
}

// WithProgress shows progress while the default backend extracts traces.
func WithProgress(p backend.Progress) Option {
	return func(g *Generator) {
		g.progress = p
	}
}

// WithOpener replaces the function that shows the finished SVG.
func WithOpener(opener func(path string) error) Option {
	return func(g *Generator) {
		g.opener = opener
	}
}

// NewGenerator creates a Generator.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		out:    os.Stdout,
		opener: open.Run,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = logrus.New()
		g.logger.SetLevel(logrus.WarnLevel)
	}
	return g
}

// backendFor returns the injected backend, or the platform default wired
// to a supervisor configured from opts.
func (g *Generator) backendFor(opts Options) backend.Backend {
	if g.backend != nil {
		return g.backend
	}
	runner := supervisor.New(
		supervisor.WithLogger(g.logger),
		supervisor.WithVerbose(opts.Verbose, g.out),
		supervisor.WithIgnoreStatus(opts.IgnoreStatus),
	)
	bopts := []backend.Option{backend.WithRunner(runner), backend.WithLogger(g.logger)}
	if g.progress != nil {
		bopts = append(bopts, backend.WithProgress(g.progress))
	}
	return backend.Default(g.env, bopts...)
}

// Generate profiles w and writes the flame graph to opts.Output.
func (g *Generator) Generate(ctx context.Context, w workload.Workload, opts Options) (*output.Summary, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}

	started := time.Now()
	timer := debug.NewTimer()
	log := g.logger.WithField("workload", w.String())

	folded, source, err := g.fold(ctx, w, opts, timer)
	if err != nil {
		return nil, err
	}

	if opts.PostProcess != "" {
		err := timer.Time("post-process", func() error {
			var err error
			folded, err = postprocess.Run(ctx, opts.PostProcess, folded)
			return err
		})
		if err != nil {
			return nil, err
		}
	}

	var svg bytes.Buffer
	var stats *render.Stats
	err = timer.Time("render", func() error {
		var err error
		stats, err = render.Render(bytes.NewReader(folded), &svg, opts.renderOptions())
		return err
	})
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(opts.Output, svg.Bytes(), 0o644); err != nil {
		return nil, errdefs.Wrapf(errdefs.ErrIO, err, "cannot write %s", opts.Output)
	}
	log.WithFields(logrus.Fields{
		"output":  opts.Output,
		"samples": stats.Samples,
	}).Info("Flame graph written")

	if opts.Open {
		if err := g.opener(opts.Output); err != nil {
			log.WithError(err).Warn("Could not open flame graph")
		}
	}

	if opts.Verbose {
		debug.DumpHotStacks(g.out, folded, hotStacks)
		debug.TimingReport(g.out, timer.Timings())
	}

	return &output.Summary{
		Output:   opts.Output,
		Bytes:    int64(svg.Len()),
		Backend:  source,
		Workload: w.String(),
		Samples:  stats.Samples,
		Stacks:   bytes.Count(folded, []byte("\n")),
		Frames:   stats.Frames,
		Ignored:  stats.Ignored,
		Duration: time.Since(started),
	}, nil
}

// fold turns w into folded stacks. It reports where the stacks came from:
// the backend name, or "pprof" for a recorded Go profile.
func (g *Generator) fold(ctx context.Context, w workload.Workload, opts Options, timer *debug.Timer) (folded []byte, source string, err error) {
	if w.Kind() == workload.KindReadPerf {
		var ok bool
		err := timer.Time("collapse", func() error {
			var err error
			folded, ok, err = foldProfile(w.Path(), opts.collapseOptions())
			return err
		})
		if err != nil {
			return nil, "", err
		}
		if ok {
			return folded, string(collapse.FormatPprof), nil
		}
	}

	b := g.backendFor(opts)
	req := opts.request()
	req.Workload = w
	if err := b.Validate(req); err != nil {
		return nil, "", err
	}
	if w.Kind() == workload.KindPid {
		g.describeTargets(w)
	}

	var h *backend.Handle
	err = timer.Time("record", func() error {
		var err error
		h, err = b.Start(ctx, w, req.Start)
		return err
	})
	if err != nil {
		return nil, "", err
	}
	defer func() {
		cerr := h.Cleanup()
		switch {
		case cerr == nil:
		case err != nil:
			err = multierror.Append(err, cerr)
		default:
			g.logger.WithError(cerr).Warn("Could not remove trace")
		}
	}()

	var raw *backend.RawTrace
	err = timer.Time("collect", func() error {
		var err error
		raw, err = b.Collect(ctx, h, req.Collect)
		return err
	})
	if err != nil {
		return nil, "", err
	}

	data := raw.Data
	if raw.Format.NeedsDemangle() {
		err = timer.Time("demangle", func() error {
			var out bytes.Buffer
			if err := collapse.DemangleXML(bytes.NewReader(data), &out); err != nil {
				return err
			}
			data = out.Bytes()
			return nil
		})
		if err != nil {
			return nil, "", err
		}
	}

	err = timer.Time("collapse", func() error {
		var err error
		folded, err = collapse.Bytes(raw.Format, opts.collapseOptions(), data)
		return err
	})
	if err != nil {
		return nil, "", err
	}
	return folded, b.Name(), nil
}

// describeTargets logs the processes a Pid workload attaches to.
func (g *Generator) describeTargets(w workload.Workload) {
	for _, pid := range w.Pids() {
		info, err := workload.LookupProcess(pid)
		if errors.Is(err, workload.ErrProcessInfoUnsupported) {
			return
		}
		if err != nil {
			g.logger.WithError(err).WithField("pid", pid).Warn("Target process not found")
			continue
		}
		g.logger.WithFields(logrus.Fields{
			"pid":     info.PID,
			"command": info.Command,
			"user":    info.User,
			"state":   info.State,
		}).Debug("Attaching to process")
	}
}

// foldProfile folds path directly when it holds a pprof profile. It
// reports false when path is some other trace for the backend to read.
func foldProfile(path string, opts collapse.Options) ([]byte, bool, error) {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return nil, false, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, false, errdefs.Wrapf(errdefs.ErrIO, err, "cannot open %s", path)
	}
	defer f.Close()

	head := make([]byte, 2)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, false, errdefs.Wrapf(errdefs.ErrIO, err, "cannot read %s", path)
	}
	if !collapse.IsProfile(head[:n]) {
		return nil, false, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false, errdefs.Wrapf(errdefs.ErrIO, err, "cannot read %s", path)
	}
	folded, err := collapse.Bytes(collapse.FormatPprof, opts, data)
	if err != nil {
		if bytes.HasPrefix(data, []byte{0x1f, 0x8b}) {
			return nil, false, err
		}
		// a text trace that merely starts with a newline
		return nil, false, nil
	}
	return folded, true, nil
}
