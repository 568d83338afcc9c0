//go:build darwin

package workload

import (
	"strconv"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// p_stat values from sys/proc.h.
var procStates = map[int8]string{
	1: "I",
	2: "R",
	3: "S",
	4: "T",
	5: "Z",
}

func lookupProcess(pid int) (ProcessInfo, error) {
	kp, err := unix.SysctlKinfoProc("kern.proc.pid", pid)
	if err != nil {
		return ProcessInfo{}, errors.Wrapf(err, "cannot inspect process %d", pid)
	}
	if int(kp.Proc.P_pid) != pid {
		return ProcessInfo{}, errors.Errorf("process %d not found", pid)
	}

	state, ok := procStates[kp.Proc.P_stat]
	if !ok {
		state = "?"
	}
	return ProcessInfo{
		PID:     pid,
		User:    strconv.FormatUint(uint64(kp.Eproc.Ucred.Uid), 10),
		State:   state,
		Command: unix.ByteSliceToString(kp.Proc.P_comm[:]),
	}, nil
}
