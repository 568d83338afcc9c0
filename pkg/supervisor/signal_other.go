//go:build !unix

package supervisor

func forwardInterrupts() (restore func()) {
	return func() {}
}

func terminatedByError(status ExitStatus) bool {
	return !status.Success()
}
