package backend

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/danpilch/flamegraph/pkg/collapse"
	"github.com/danpilch/flamegraph/pkg/errdefs"
	"github.com/danpilch/flamegraph/pkg/privilege"
	"github.com/danpilch/flamegraph/pkg/workload"
)

// StacksFile is where dtrace writes aggregated stacks.
const StacksFile = "flamegraph.stacks"

// DTrace samples with dtrace's profile provider.
type DTrace struct {
	env Env
	cfg config
}

// NewDTrace returns the dtrace backend.
func NewDTrace(env Env, opts ...Option) *DTrace {
	return &DTrace{env: env, cfg: newConfig(opts)}
}

func (d *DTrace) Name() string { return "dtrace" }

func (d *DTrace) Validate(req Request) error {
	if err := validateCommon(req); err != nil {
		return err
	}
	if req.Collect.NoInline {
		return errdefs.New(errdefs.ErrConfig, "--no-inline is only supported by perf")
	}
	return nil
}

func (d *DTrace) Start(ctx context.Context, w workload.Workload, opts StartOptions) (*Handle, error) {
	if err := d.Validate(Request{Workload: w, Start: opts}); err != nil {
		return nil, err
	}
	if w.Kind() == workload.KindReadPerf {
		return &Handle{Workload: w, Path: w.Path()}, nil
	}

	dtrace, err := d.env.resolve(d.env.DTrace, "dtrace", "DTRACE")
	if err != nil {
		if d.cfg.sampleSeconds > 0 && w.Kind() == workload.KindPid {
			d.cfg.logger.WithError(err).Warn("Falling back to sample(1)")
			return d.startSample(ctx, w, opts)
		}
		return nil, err
	}

	cmd, err := opts.Privilege.Command(ctx, dtrace, dtraceArgs(w, opts)...)
	if err != nil {
		return nil, err
	}
	if d.cfg.archHint && d.env.ArchPreference == "" && w.Kind() == workload.KindCommand {
		arch, err := archPreference(w.Argv()[0], d.env.lookPath)
		switch {
		case err != nil:
			d.cfg.logger.WithError(err).Warn("Could not determine target architecture")
		case arch != "":
			d.cfg.logger.WithField("arch", arch).Debug("Setting ARCHPREFERENCE")
			cmd.Env = append(os.Environ(), "ARCHPREFERENCE="+arch)
		}
	}

	h := &Handle{
		Workload: w,
		Path:     StacksFile,
		Owned:    true,
		Elevated: opts.Privilege.Elevated(),
	}
	return record(d.cfg.runner, cmd, h)
}

func (d *DTrace) Collect(ctx context.Context, h *Handle, opts CollectOptions) (*RawTrace, error) {
	if err := chownArtifact(ctx, d.cfg.runner, d.env, h, opts.Privilege, false); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(h.Path)
	if err != nil {
		return nil, errdefs.Wrapf(errdefs.ErrIO, err, "cannot read %s", h.Path)
	}
	if err := h.Cleanup(); err != nil {
		return nil, err
	}

	if h.sampled {
		if data, err = sampleToStacks(data); err != nil {
			return nil, err
		}
	}
	data, replaced := collapse.Lossy(data)
	if replaced {
		d.cfg.logger.WithField("file", h.Path).Info("Replaced invalid UTF-8 in sampled stacks")
	}
	return &RawTrace{Data: data, Format: collapse.FormatDTrace, Path: h.Path}, nil
}

// dtraceArgs builds the dtrace arguments for w.
func dtraceArgs(w workload.Workload, opts StartOptions) []string {
	script := opts.CustomCmd
	if script == "" {
		script = fmt.Sprintf("profile-%d /pid == $target/ { @[ustack(100)] = count(); }", frequency(opts))
	}
	args := []string{"-x", "ustackframes=100", "-n", script, "-o", StacksFile}

	switch w.Kind() {
	case workload.KindCommand:
		args = append(args, "-c", escapeCommand(w.Argv()))
	case workload.KindPid:
		for _, pid := range w.Pids() {
			args = append(args, "-p", strconv.Itoa(pid))
		}
	}
	return args
}

// escapeCommand joins argv into the single -c string dtrace splits on
// unescaped spaces.
func escapeCommand(argv []string) string {
	escaped := make([]string, len(argv))
	for i, arg := range argv {
		escaped[i] = strings.ReplaceAll(arg, " ", `\ `)
	}
	return strings.Join(escaped, " ")
}

// chownArtifact hands an artifact written by a root sampler back to the
// invoking user.
func chownArtifact(ctx context.Context, runner Runner, env Env, h *Handle, spec privilege.Spec, recursive bool) error {
	if !h.Elevated || !h.Owned {
		return nil
	}
	if env.User == "" {
		return errdefs.New(errdefs.ErrConfig, "cannot take ownership of %s: USER is not set", h.Path)
	}
	if !spec.Elevated() {
		spec = privilege.Sudo("")
	}
	cmd, err := spec.ChownCommand(ctx, env.User, h.Path, recursive)
	if err != nil {
		return err
	}
	_, err = runner.Output(cmd)
	return err
}
