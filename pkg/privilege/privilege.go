// Package privilege wraps external command invocations with optional sudo
// elevation. Elevation is applied per command and never held across a run.
package privilege

import (
	"context"
	"os/exec"
	"strings"

	"github.com/google/shlex"

	"github.com/danpilch/flamegraph/pkg/errdefs"
)

// SudoBinary is the elevation helper every elevated command is prefixed with.
const SudoBinary = "sudo"

// Mode selects whether commands run elevated.
type Mode int

const (
	None Mode = iota
	Elevate
)

// Spec is the per-run privilege configuration.
type Spec struct {
	Mode Mode
	// Flags are extra sudo arguments, split with shell quoting rules.
	Flags string
}

// Sudo returns a Spec that elevates with the given extra sudo flags.
func Sudo(flags string) Spec {
	return Spec{Mode: Elevate, Flags: flags}
}

// Elevated reports whether commands built from s run through sudo.
func (s Spec) Elevated() bool {
	return s.Mode == Elevate
}

// Validate checks that the extra flags can be split.
func (s Spec) Validate() error {
	if _, err := s.flags(); err != nil {
		return err
	}
	return nil
}

func (s Spec) flags() ([]string, error) {
	if !s.Elevated() || strings.TrimSpace(s.Flags) == "" {
		return nil, nil
	}
	flags, err := shlex.Split(s.Flags)
	if err != nil {
		return nil, errdefs.Wrapf(errdefs.ErrConfig, err, "cannot parse sudo flags %q", s.Flags)
	}
	return flags, nil
}

// Argv returns the full command line for name and args under s.
func (s Spec) Argv(name string, args ...string) ([]string, error) {
	if !s.Elevated() {
		return append([]string{name}, args...), nil
	}
	flags, err := s.flags()
	if err != nil {
		return nil, err
	}
	argv := make([]string, 0, len(flags)+len(args)+2)
	argv = append(argv, SudoBinary)
	argv = append(argv, flags...)
	argv = append(argv, name)
	return append(argv, args...), nil
}

// Command builds an *exec.Cmd for name and args, prefixed with sudo when
// elevated.
func (s Spec) Command(ctx context.Context, name string, args ...string) (*exec.Cmd, error) {
	argv, err := s.Argv(name, args...)
	if err != nil {
		return nil, err
	}
	return exec.CommandContext(ctx, argv[0], argv[1:]...), nil
}

// ChownCommand builds the command that hands path back to user after an
// elevated sampler created it as root.
func (s Spec) ChownCommand(ctx context.Context, user, path string, recursive bool) (*exec.Cmd, error) {
	args := []string{}
	if recursive {
		args = append(args, "-R")
	}
	args = append(args, user, path)
	return s.Command(ctx, "chown", args...)
}
