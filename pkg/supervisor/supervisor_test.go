//go:build unix

package supervisor

import (
	"bytes"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/danpilch/flamegraph/pkg/errdefs"
)

type fakeStatus struct {
	ws syscall.WaitStatus
}

func (f fakeStatus) Success() bool  { return f.ws == 0 }
func (f fakeStatus) ExitCode() int  { return f.ws.ExitStatus() }
func (f fakeStatus) Sys() any       { return f.ws }
func (f fakeStatus) String() string { return "fake" }

// Wait statuses as encoded by wait(2): the low seven bits carry the
// terminating signal, the next byte the exit code.
func signaled(sig syscall.Signal) fakeStatus { return fakeStatus{ws: syscall.WaitStatus(sig)} }
func exited(code int) fakeStatus             { return fakeStatus{ws: syscall.WaitStatus(code << 8)} }

func newTestSupervisor(opts ...Option) (*Supervisor, *bytes.Buffer) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	out := new(bytes.Buffer)
	opts = append([]Option{
		WithLogger(logger),
		WithStdio(strings.NewReader(""), io.Discard, io.Discard),
		WithVerbose(false, out),
	}, opts...)
	return New(opts...), out
}

func TestTerminatedByError(t *testing.T) {
	tests := []struct {
		name   string
		status ExitStatus
		want   bool
	}{
		{name: "success", status: exited(0), want: false},
		{name: "interrupted", status: signaled(syscall.SIGINT), want: false},
		{name: "terminated", status: signaled(syscall.SIGTERM), want: false},
		{name: "segfault", status: signaled(syscall.SIGSEGV), want: true},
		{name: "killed", status: signaled(syscall.SIGKILL), want: true},
		{name: "non-zero exit", status: exited(1), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, terminatedByError(tt.status))
		})
	}
}

func TestClassify(t *testing.T) {
	s, _ := newTestSupervisor()
	require.NoError(t, s.classify("perf", signaled(syscall.SIGINT)))

	err := s.classify("perf", signaled(syscall.SIGSEGV))
	require.Error(t, err)
	require.ErrorIs(t, err, errdefs.ErrSampling)

	ignoring, _ := newTestSupervisor(WithIgnoreStatus(true))
	require.NoError(t, ignoring.classify("perf", signaled(syscall.SIGSEGV)))
	require.NoError(t, ignoring.classify("perf", exited(2)))
}

func TestRun(t *testing.T) {
	tests := []struct {
		name   string
		script string
		opts   []Option
		kind   error
	}{
		{name: "clean exit", script: "exit 0"},
		{name: "interrupt is a normal stop", script: "kill -INT $$"},
		{name: "terminate is a normal stop", script: "kill -TERM $$"},
		{name: "fatal signal", script: "kill -KILL $$", kind: errdefs.ErrSampling},
		{name: "non-zero exit", script: "exit 3", kind: errdefs.ErrSampling},
		{name: "non-zero exit ignored", script: "exit 3", opts: []Option{WithIgnoreStatus(true)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestSupervisor(tt.opts...)
			err := s.Run(exec.Command("/bin/sh", "-c", tt.script))
			if tt.kind == nil {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.ErrorIs(t, err, tt.kind)
		})
	}
}

func TestRunExitCodeInDiagnostic(t *testing.T) {
	s, _ := newTestSupervisor()
	err := s.Run(exec.Command("/bin/sh", "-c", "exit 3"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "exit code 3")
	require.Contains(t, err.Error(), "failed to sample program")
}

func TestRunSpawnFailure(t *testing.T) {
	s, _ := newTestSupervisor()
	err := s.Run(exec.Command("/nonexistent/perf", "record"))
	require.Error(t, err)
	require.ErrorIs(t, err, errdefs.ErrSpawn)
	require.Contains(t, err.Error(), "could not spawn perf")
}

func TestRunVerbose(t *testing.T) {
	s, out := newTestSupervisor(WithVerbose(true, nil))
	require.NoError(t, s.Run(exec.Command("/bin/sh", "-c", "true")))
	require.Contains(t, out.String(), "/bin/sh -c true")
}

func TestOutput(t *testing.T) {
	s, _ := newTestSupervisor()
	out, err := s.Output(exec.Command("/bin/sh", "-c", "printf 'main;run 1\\n'"))
	require.NoError(t, err)
	require.Equal(t, "main;run 1\n", string(out))

	_, err = s.Output(exec.Command("/bin/sh", "-c", "echo 'no such file' >&2; exit 2"))
	require.Error(t, err)
	require.ErrorIs(t, err, errdefs.ErrSampling)
	require.Contains(t, err.Error(), "sh failed: no such file")

	// ignoring the sampler's status never hides a failed extraction
	ignoring, _ := newTestSupervisor(WithIgnoreStatus(true))
	_, err = ignoring.Output(exec.Command("/bin/sh", "-c", "exit 1"))
	require.ErrorIs(t, err, errdefs.ErrSampling)

	_, err = s.Output(exec.Command("/nonexistent/perf", "script"))
	require.ErrorIs(t, err, errdefs.ErrSpawn)
}

func TestRunSurvivesInterrupt(t *testing.T) {
	s, _ := newTestSupervisor()

	sent := make(chan error, 1)
	go func() {
		time.Sleep(100 * time.Millisecond)
		sent <- syscall.Kill(os.Getpid(), syscall.SIGINT)
	}()

	require.NoError(t, s.Run(exec.Command("sleep", "0.5")))
	require.NoError(t, <-sent)
}
