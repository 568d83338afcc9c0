package backend

import (
	"context"
	"strconv"

	"github.com/danpilch/flamegraph/pkg/collapse"
	"github.com/danpilch/flamegraph/pkg/errdefs"
	"github.com/danpilch/flamegraph/pkg/privilege"
	"github.com/danpilch/flamegraph/pkg/workload"
)

const (
	// TraceBundle is where xctrace records.
	TraceBundle = "flamegraph.trace"

	timeProfileXPath = `/trace-toc/*/data/table[@schema="time-profile"]`
)

// XCTrace samples with Instruments' Time Profiler.
type XCTrace struct {
	env Env
	cfg config
}

// NewXCTrace returns the xctrace backend.
func NewXCTrace(env Env, opts ...Option) *XCTrace {
	return &XCTrace{env: env, cfg: newConfig(opts)}
}

func (x *XCTrace) Name() string { return "xctrace" }

func (x *XCTrace) Validate(req Request) error {
	if err := validateCommon(req); err != nil {
		return err
	}
	switch {
	case req.Workload.Kind() == workload.KindPid && len(req.Workload.Pids()) > 1:
		return errdefs.New(errdefs.ErrConfig, "xctrace can only attach to one process")
	case req.Start.Frequency != 0:
		return errdefs.New(errdefs.ErrConfig, "xctrace does not support a sampling frequency")
	case req.Start.CustomCmd != "":
		return errdefs.New(errdefs.ErrConfig, "xctrace does not support a custom sampler command")
	case req.Start.CompressionLevel != 0:
		return errdefs.New(errdefs.ErrConfig, "compression is only supported by perf")
	case req.Collect.NoInline:
		return errdefs.New(errdefs.ErrConfig, "--no-inline is only supported by perf")
	}
	return nil
}

// resolve finds xctrace directly or through xcrun.
func (x *XCTrace) resolve() ([]string, error) {
	if x.env.XCTrace != "" {
		path, err := x.env.resolve(x.env.XCTrace, "xctrace", "XCTRACE")
		if err != nil {
			return nil, err
		}
		return []string{path}, nil
	}
	if path, err := x.env.lookPath("xctrace"); err == nil {
		return []string{path}, nil
	}
	xcrun, err := x.env.resolve("", "xcrun", "XCTRACE")
	if err != nil {
		return nil, errdefs.Wrap(errdefs.ErrToolMissing, err, "could not find xctrace")
	}
	return []string{xcrun, "xctrace"}, nil
}

func (x *XCTrace) Start(ctx context.Context, w workload.Workload, opts StartOptions) (*Handle, error) {
	if err := x.Validate(Request{Workload: w, Start: opts}); err != nil {
		return nil, err
	}
	tool, err := x.resolve()
	if err != nil {
		return nil, err
	}
	if w.Kind() == workload.KindReadPerf {
		return &Handle{Workload: w, Path: w.Path(), tool: tool}, nil
	}

	args := append(append([]string{}, tool[1:]...), "record", "--template", "Time Profiler", "--output", TraceBundle)
	switch w.Kind() {
	case workload.KindCommand:
		args = append(args, "--target-stdout", "-", "--launch", "--")
		args = append(args, w.Argv()...)
	case workload.KindPid:
		args = append(args, "--attach", strconv.Itoa(w.Pids()[0]))
	}

	cmd, err := opts.Privilege.Command(ctx, tool[0], args...)
	if err != nil {
		return nil, err
	}
	h := &Handle{
		Workload: w,
		Path:     TraceBundle,
		Owned:    true,
		Elevated: opts.Privilege.Elevated(),
		tool:     tool,
	}
	return record(x.cfg.runner, cmd, h)
}

func (x *XCTrace) Collect(ctx context.Context, h *Handle, opts CollectOptions) (*RawTrace, error) {
	if err := chownArtifact(ctx, x.cfg.runner, x.env, h, opts.Privilege, true); err != nil {
		return nil, err
	}

	args := append(append([]string{}, h.tool[1:]...), "export", "--input", h.Path, "--xpath", timeProfileXPath)
	cmd, err := privilege.Spec{}.Command(ctx, h.tool[0], args...)
	if err != nil {
		return nil, err
	}
	done := x.cfg.progress.Begin("xctrace export")
	out, err := x.cfg.runner.Output(cmd)
	done()
	if err != nil {
		return nil, err
	}
	if err := h.Cleanup(); err != nil {
		return nil, err
	}
	return &RawTrace{Data: out, Format: collapse.FormatXCTrace, Path: h.Path}, nil
}
