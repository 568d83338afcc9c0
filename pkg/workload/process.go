package workload

import "github.com/pkg/errors"

var ErrProcessInfoUnsupported = errors.New("process lookup is not supported on this platform")

// ProcessInfo holds what is known about a process the sampler attaches to.
type ProcessInfo struct {
	PID     int
	User    string
	Command string
	State   string
}

// LookupProcess describes a running process. Platform-specific
// implementation in process_linux.go and process_darwin.go.
func LookupProcess(pid int) (ProcessInfo, error) {
	return lookupProcess(pid)
}
