//go:build !linux && !darwin

package workload

func lookupProcess(pid int) (ProcessInfo, error) {
	return ProcessInfo{}, ErrProcessInfoUnsupported
}
