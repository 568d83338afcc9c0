// Package supervisor runs sampler commands as foreground children.
//
// While a sampler runs, an interactive interrupt must reach the sampled
// process group rather than kill the tool driving it, so that samples are
// flushed and the pipeline can go on to render what was collected.
package supervisor

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/danpilch/flamegraph/pkg/errdefs"
)

var (
	cmdLabel = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	cmdDim   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// ExitStatus is the subset of *os.ProcessState used to classify how a
// sampler ended.
type ExitStatus interface {
	Success() bool
	ExitCode() int
	Sys() any
	String() string
}

// Supervisor spawns and waits for sampler commands.
type Supervisor struct {
	logger       *logrus.Logger
	out          io.Writer
	stdin        io.Reader
	stdout       io.Writer
	stderr       io.Writer
	verbose      bool
	ignoreStatus bool
}

// Option configures a Supervisor.
type Option func(s *Supervisor)

// New creates a Supervisor. By default the child inherits the standard
// streams and a non-zero exit is a sampling failure.
func New(opts ...Option) *Supervisor {
	s := &Supervisor{
		out:    os.Stdout,
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logrus.New()
		s.logger.SetLevel(logrus.WarnLevel)
	}
	return s
}

func WithLogger(logger *logrus.Logger) Option {
	return func(s *Supervisor) {
		s.logger = logger
	}
}

// WithVerbose echoes every command to out before it is spawned.
func WithVerbose(verbose bool, out io.Writer) Option {
	return func(s *Supervisor) {
		s.verbose = verbose
		if out != nil {
			s.out = out
		}
	}
}

// WithIgnoreStatus makes any sampler exit status count as success.
func WithIgnoreStatus(ignore bool) Option {
	return func(s *Supervisor) {
		s.ignoreStatus = ignore
	}
}

// WithStdio sets the streams used for children that have none of their own.
func WithStdio(stdin io.Reader, stdout, stderr io.Writer) Option {
	return func(s *Supervisor) {
		s.stdin = stdin
		s.stdout = stdout
		s.stderr = stderr
	}
}

// Run spawns cmd, waits for it with interrupts forwarded to its process
// group, and classifies how it ended. A child stopped by SIGINT or SIGTERM
// is a normal, user-initiated stop.
func (s *Supervisor) Run(cmd *exec.Cmd) error {
	name := s.announce(cmd)
	if cmd.Stdin == nil {
		cmd.Stdin = s.stdin
	}
	if cmd.Stdout == nil {
		cmd.Stdout = s.stdout
	}
	if cmd.Stderr == nil {
		cmd.Stderr = s.stderr
	}

	restore := forwardInterrupts()
	if err := cmd.Start(); err != nil {
		restore()
		return errdefs.Wrapf(errdefs.ErrSpawn, err, "could not spawn %s", name)
	}
	s.logger.WithFields(logrus.Fields{
		"command": name,
		"pid":     cmd.Process.Pid,
	}).Debug("Sampler started")

	waitErr := cmd.Wait()
	restore()

	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		return errdefs.Wrapf(errdefs.ErrSampling, waitErr, "unable to wait for %s child command to exit", name)
	}
	return s.classify(name, cmd.ProcessState)
}

func (s *Supervisor) classify(name string, status ExitStatus) error {
	fields := logrus.Fields{
		"command": name,
		"status":  status.String(),
	}
	if !terminatedByError(status) {
		s.logger.WithFields(fields).Debug("Sampler stopped")
		return nil
	}
	if s.ignoreStatus {
		s.logger.WithFields(fields).Warn("Ignoring sampler exit status")
		return nil
	}
	return errdefs.New(errdefs.ErrSampling, "failed to sample program: %s exited with %s (exit code %d)",
		name, status.String(), status.ExitCode())
}

// Output runs an extraction command to completion and returns its stdout.
// Interrupts are not forwarded and any non-zero exit fails, with the
// command's stderr in the message.
func (s *Supervisor) Output(cmd *exec.Cmd) ([]byte, error) {
	name := s.announce(cmd)

	var stdout, stderr bytes.Buffer
	if cmd.Stdout == nil {
		cmd.Stdout = &stdout
	}
	if cmd.Stderr == nil {
		cmd.Stderr = &stderr
	}
	if err := cmd.Start(); err != nil {
		return nil, errdefs.Wrapf(errdefs.ErrSpawn, err, "could not spawn %s", name)
	}
	if err := cmd.Wait(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, errdefs.Wrapf(errdefs.ErrSampling, err, "%s failed: %s", name, msg)
		}
		return nil, errdefs.Wrapf(errdefs.ErrSampling, err, "%s failed", name)
	}
	return stdout.Bytes(), nil
}

// announce echoes cmd in verbose mode and returns its short name.
func (s *Supervisor) announce(cmd *exec.Cmd) string {
	name := filepath.Base(cmd.Path)
	if len(cmd.Args) > 0 {
		name = filepath.Base(cmd.Args[0])
	}
	if s.verbose {
		fmt.Fprintf(s.out, "%s %s\n", cmdLabel.Render("command"), cmdDim.Render(strings.Join(cmd.Args, " ")))
	}
	return name
}
