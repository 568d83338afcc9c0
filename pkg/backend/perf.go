package backend

import (
	"context"
	"strconv"
	"strings"

	"github.com/danpilch/flamegraph/pkg/collapse"
	"github.com/danpilch/flamegraph/pkg/errdefs"
	"github.com/danpilch/flamegraph/pkg/workload"
)

// PerfDataFile is where perf record writes when the user names no output.
const PerfDataFile = "perf.data"

// Perf samples with linux perf.
type Perf struct {
	env Env
	cfg config
}

// NewPerf returns the perf backend.
func NewPerf(env Env, opts ...Option) *Perf {
	return &Perf{env: env, cfg: newConfig(opts)}
}

func (p *Perf) Name() string { return "perf" }

func (p *Perf) Validate(req Request) error {
	if err := validateCommon(req); err != nil {
		return err
	}
	if req.Start.CustomCmd != "" {
		if _, err := perfOutput(strings.Fields(req.Start.CustomCmd)); err != nil {
			return err
		}
	}
	return nil
}

func (p *Perf) Start(ctx context.Context, w workload.Workload, opts StartOptions) (*Handle, error) {
	if err := p.Validate(Request{Workload: w, Start: opts}); err != nil {
		return nil, err
	}
	perf, err := p.env.resolve(p.env.Perf, "perf", "PERF")
	if err != nil {
		return nil, err
	}

	if w.Kind() == workload.KindReadPerf {
		return &Handle{Workload: w, Path: w.Path(), tool: []string{perf}}, nil
	}

	args, output, owned, err := perfRecordArgs(w, opts)
	if err != nil {
		return nil, err
	}
	cmd, err := opts.Privilege.Command(ctx, perf, args...)
	if err != nil {
		return nil, err
	}
	p.cfg.logger.WithField("output", output).Debug("Recording with perf")

	h := &Handle{
		Workload: w,
		Path:     output,
		Owned:    owned,
		Elevated: opts.Privilege.Elevated(),
		tool:     []string{perf},
	}
	return record(p.cfg.runner, cmd, h)
}

func (p *Perf) Collect(ctx context.Context, h *Handle, opts CollectOptions) (*RawTrace, error) {
	args := []string{"script", "--force"}
	if opts.NoInline {
		args = append(args, "--no-inline")
	}
	args = append(args, "-i", h.Path)

	cmd, err := opts.Privilege.Command(ctx, h.tool[0], args...)
	if err != nil {
		return nil, err
	}
	done := p.cfg.progress.Begin("perf script")
	out, err := p.cfg.runner.Output(cmd)
	done()
	if err != nil {
		return nil, err
	}
	out, replaced := collapse.Lossy(out)
	if replaced {
		p.cfg.logger.WithField("file", h.Path).Info("Replaced invalid UTF-8 in perf script output")
	}
	return &RawTrace{Data: out, Format: collapse.FormatPerf, Path: h.Path}, nil
}

// perfRecordArgs builds the perf arguments for w. It reports the data file
// perf will write and whether this run owns it.
func perfRecordArgs(w workload.Workload, opts StartOptions) ([]string, string, bool, error) {
	var args []string
	if opts.CustomCmd != "" {
		args = strings.Fields(opts.CustomCmd)
	} else {
		args = []string{"record", "-F", strconv.Itoa(frequency(opts)), "--call-graph", "dwarf,16384", "-g"}
	}

	output, err := perfOutput(args)
	if err != nil {
		return nil, "", false, err
	}
	owned := false
	if output == "" {
		output = PerfDataFile
		owned = true
		args = append(args, "-o", output)
	}
	if opts.CompressionLevel > 0 {
		args = append(args, "--compression-level="+strconv.Itoa(opts.CompressionLevel))
	}

	switch w.Kind() {
	case workload.KindCommand:
		args = append(args, w.Argv()...)
	case workload.KindPid:
		args = append(args, "-p", w.JoinPids(","))
	}
	return args, output, owned, nil
}

// perfOutput returns the file named by -o or --output in args, or "".
func perfOutput(args []string) (string, error) {
	for i, arg := range args {
		switch {
		case arg == "-o" || arg == "--output":
			if i+1 >= len(args) {
				return "", errdefs.New(errdefs.ErrConfig, "%s in the sampler command needs a file name", arg)
			}
			return args[i+1], nil
		case strings.HasPrefix(arg, "--output="):
			return strings.TrimPrefix(arg, "--output="), nil
		}
	}
	return "", nil
}
