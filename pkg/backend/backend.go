// Package backend drives the platform profilers that record a workload.
//
// A Backend starts a sampler over a workload and then collects the raw
// trace it produced. Exactly one backend is compiled in as the default for
// each target OS; see Default.
package backend

import (
	"context"
	"os"
	"os/exec"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/danpilch/flamegraph/pkg/collapse"
	"github.com/danpilch/flamegraph/pkg/errdefs"
	"github.com/danpilch/flamegraph/pkg/privilege"
	"github.com/danpilch/flamegraph/pkg/supervisor"
	"github.com/danpilch/flamegraph/pkg/workload"
)

// DefaultFrequency is the sampling rate in Hz used when none is given.
const DefaultFrequency = 997

// Backend records a workload with one profiler.
type Backend interface {
	Name() string
	// Validate rejects requests this backend cannot honour. It has no side
	// effects and never spawns anything.
	Validate(req Request) error
	// Start runs the sampler until the workload ends or is interrupted.
	Start(ctx context.Context, w workload.Workload, opts StartOptions) (*Handle, error)
	// Collect extracts the raw trace from a finished sampler.
	Collect(ctx context.Context, h *Handle, opts CollectOptions) (*RawTrace, error)
}

// StartOptions configures recording.
type StartOptions struct {
	// Frequency is the sampling rate in Hz; 0 selects DefaultFrequency.
	Frequency int
	// CustomCmd replaces the backend's recording arguments.
	CustomCmd        string
	CompressionLevel int
	Privilege        privilege.Spec
}

// CollectOptions configures trace extraction.
type CollectOptions struct {
	NoInline  bool
	Privilege privilege.Spec
}

// Request is everything a run asks of a backend.
type Request struct {
	Workload workload.Workload
	Start    StartOptions
	Collect  CollectOptions
}

// RawTrace is profiler output ready for folding.
type RawTrace struct {
	Data   []byte
	Format collapse.Format
	// Path is the on-disk artifact the data was extracted from, if any.
	Path string
}

// Handle refers to a finished sampler and the artifact it wrote.
type Handle struct {
	Workload workload.Workload
	// Path is the trace artifact: a file, or a bundle directory for xctrace.
	Path string
	// Owned marks Path as a temporary created by this run.
	Owned bool
	// Elevated reports whether the artifact was written by a root sampler.
	Elevated bool

	tool    []string
	sampled bool
	cleaned bool
}

// Cleanup removes the artifact when it is owned by this run. Files the user
// named are never touched. Cleanup is idempotent.
func (h *Handle) Cleanup() error {
	if h == nil || h.cleaned || !h.Owned || h.Path == "" {
		return nil
	}
	h.cleaned = true
	return errdefs.Wrapf(errdefs.ErrIO, os.RemoveAll(h.Path), "cannot remove %s", h.Path)
}

// Runner executes profiler commands. *supervisor.Supervisor is the
// production implementation.
type Runner interface {
	// Run runs a sampler in the foreground, forwarding interrupts.
	Run(cmd *exec.Cmd) error
	// Output runs an extraction command and returns its stdout.
	Output(cmd *exec.Cmd) ([]byte, error)
}

// Progress reports long running extraction steps.
type Progress interface {
	Begin(label string) (done func())
}

type nopProgress struct{}

func (nopProgress) Begin(string) func() { return func() {} }

type config struct {
	runner        Runner
	logger        *logrus.Logger
	progress      Progress
	archHint      bool
	sampleSeconds int
}

// Option configures a backend.
type Option func(c *config)

// WithRunner sets the command runner. The default is a plain supervisor.
func WithRunner(r Runner) Option {
	return func(c *config) {
		c.runner = r
	}
}

func WithLogger(logger *logrus.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithProgress shows progress while traces are extracted.
func WithProgress(p Progress) Option {
	return func(c *config) {
		c.progress = p
	}
}

// WithArchHint makes dtrace set ARCHPREFERENCE from the target binary's
// Mach-O header when the environment does not.
func WithArchHint(enabled bool) Option {
	return func(c *config) {
		c.archHint = enabled
	}
}

// WithSampleFallback lets dtrace fall back to sample(1) for the given
// number of seconds when dtrace is not installed. Zero disables it.
func WithSampleFallback(seconds int) Option {
	return func(c *config) {
		c.sampleSeconds = seconds
	}
}

func newConfig(opts []Option) config {
	c := config{progress: nopProgress{}}
	for _, opt := range opts {
		opt(&c)
	}
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.SetLevel(logrus.WarnLevel)
	}
	if c.runner == nil {
		c.runner = supervisor.New(supervisor.WithLogger(c.logger))
	}
	return c
}

// validateCommon applies the checks every backend shares.
func validateCommon(req Request) error {
	if err := req.Workload.Validate(); err != nil {
		return err
	}
	if req.Start.Frequency < 0 {
		return errdefs.New(errdefs.ErrConfig, "sampling frequency must be positive, got %d", req.Start.Frequency)
	}
	if req.Start.Frequency != 0 && req.Start.CustomCmd != "" {
		return errdefs.New(errdefs.ErrConfig, "a sampling frequency cannot be combined with a custom sampler command")
	}
	if req.Start.CompressionLevel < 0 {
		return errdefs.New(errdefs.ErrConfig, "compression level must be positive, got %d", req.Start.CompressionLevel)
	}
	if err := req.Start.Privilege.Validate(); err != nil {
		return err
	}
	return req.Collect.Privilege.Validate()
}

func frequency(opts StartOptions) int {
	if opts.Frequency == 0 {
		return DefaultFrequency
	}
	return opts.Frequency
}

// record runs the sampler for h and cleans up its artifact on failure.
func record(runner Runner, cmd *exec.Cmd, h *Handle) (*Handle, error) {
	if err := runner.Run(cmd); err != nil {
		if cerr := h.Cleanup(); cerr != nil {
			return nil, multierror.Append(err, cerr)
		}
		return nil, err
	}
	return h, nil
}
