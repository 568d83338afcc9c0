//go:build unix

package supervisor

import (
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sys/unix"
)

// forwardInterrupts catches SIGINT with a handler that does nothing. A
// caught signal is reset to its default disposition in an exec'd child, so
// Ctrl-C still stops the sampler and its workload through the foreground
// process group while this process survives to collect and render.
func forwardInterrupts() (restore func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, unix.SIGINT)
	return func() {
		signal.Stop(ch)
		signal.Reset(unix.SIGINT)
	}
}

// terminatedByError reports whether the child failed, as opposed to having
// been stopped by the user with SIGINT or SIGTERM.
func terminatedByError(status ExitStatus) bool {
	if ws, ok := status.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		if sig := ws.Signal(); sig == unix.SIGINT || sig == unix.SIGTERM {
			return false
		}
		return true
	}
	return !status.Success()
}
