// Package workload describes what the flame graph pipeline profiles: a
// command to launch, a set of running processes, or a trace file recorded
// earlier.
package workload

import (
	"strconv"
	"strings"

	"github.com/danpilch/flamegraph/pkg/errdefs"
)

// Kind identifies which arm of a Workload is populated.
type Kind int

const (
	KindNone Kind = iota
	KindCommand
	KindPid
	KindReadPerf
)

func (k Kind) String() string {
	switch k {
	case KindCommand:
		return "command"
	case KindPid:
		return "pid"
	case KindReadPerf:
		return "read-perf"
	default:
		return "none"
	}
}

// Workload is the profiling target. Exactly one arm is populated; build one
// with Command, Pids or ReadPerf.
type Workload struct {
	kind Kind
	argv []string
	pids []int
	path string
}

// Command returns a workload that launches argv under the sampler.
func Command(argv ...string) Workload {
	return Workload{kind: KindCommand, argv: append([]string(nil), argv...)}
}

// Pids returns a workload that attaches to running processes. Duplicate ids
// are dropped, first occurrence wins.
func Pids(pids ...int) Workload {
	seen := make(map[int]struct{}, len(pids))
	uniq := make([]int, 0, len(pids))
	for _, p := range pids {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		uniq = append(uniq, p)
	}
	return Workload{kind: KindPid, pids: uniq}
}

// ReadPerf returns a workload that reads a previously recorded trace.
func ReadPerf(path string) Workload {
	return Workload{kind: KindReadPerf, path: path}
}

// Kind returns the populated arm.
func (w Workload) Kind() Kind {
	return w.kind
}

// Argv returns a copy of the command line of a Command workload.
func (w Workload) Argv() []string {
	return append([]string(nil), w.argv...)
}

// Pids returns a copy of the process ids of a Pid workload.
func (w Workload) Pids() []int {
	return append([]int(nil), w.pids...)
}

// Path returns the trace path of a ReadPerf workload.
func (w Workload) Path() string {
	return w.path
}

// JoinPids renders the process ids with sep, e.g. "12,34".
func (w Workload) JoinPids(sep string) string {
	parts := make([]string, len(w.pids))
	for i, p := range w.pids {
		parts[i] = strconv.Itoa(p)
	}
	return strings.Join(parts, sep)
}

// Validate checks that the populated arm carries a usable value.
func (w Workload) Validate() error {
	switch w.kind {
	case KindCommand:
		if len(w.argv) == 0 || w.argv[0] == "" {
			return errdefs.New(errdefs.ErrConfig, "no command given to generate a flamegraph for")
		}
	case KindPid:
		if len(w.pids) == 0 {
			return errdefs.New(errdefs.ErrConfig, "no process id given to generate a flamegraph for")
		}
		for _, p := range w.pids {
			if p <= 0 {
				return errdefs.New(errdefs.ErrConfig, "invalid process id %d", p)
			}
		}
	case KindReadPerf:
		if w.path == "" {
			return errdefs.New(errdefs.ErrConfig, "no trace file given to generate a flamegraph for")
		}
	default:
		return errdefs.New(errdefs.ErrConfig, "no workload given to generate a flamegraph for")
	}
	return nil
}

func (w Workload) String() string {
	switch w.kind {
	case KindCommand:
		return "command " + strings.Join(w.argv, " ")
	case KindPid:
		return "pid " + w.JoinPids(",")
	case KindReadPerf:
		return "trace " + w.path
	default:
		return "none"
	}
}
