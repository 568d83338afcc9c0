//go:build unix

package flamegraph

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/google/pprof/profile"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/danpilch/flamegraph/pkg/backend"
	"github.com/danpilch/flamegraph/pkg/collapse"
	"github.com/danpilch/flamegraph/pkg/errdefs"
	"github.com/danpilch/flamegraph/pkg/output"
	"github.com/danpilch/flamegraph/pkg/workload"
)

const stacks = `

              libsystem_kernel.dylib` + "`" + `__psynch_cvwait+0xa
              app` + "`" + `compute+0x1a
              app` + "`" + `main+0x20
              libdyld.dylib` + "`" + `start+0x1
               17

              app` + "`" + `compute+0x1a
              app` + "`" + `main+0x20
              libdyld.dylib` + "`" + `start+0x1
                5
`

// fakeBackend hands back a canned trace and records what was asked of it.
type fakeBackend struct {
	artifact   string
	trace      *backend.RawTrace
	startErr   error
	collectErr error

	validated int
	started   int
	collected int
	requests  []backend.Request
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Validate(req backend.Request) error {
	f.validated++
	f.requests = append(f.requests, req)
	return nil
}

func (f *fakeBackend) Start(_ context.Context, w workload.Workload, _ backend.StartOptions) (*backend.Handle, error) {
	f.started++
	if f.startErr != nil {
		return nil, f.startErr
	}
	return &backend.Handle{Workload: w, Path: f.artifact, Owned: f.artifact != ""}, nil
}

func (f *fakeBackend) Collect(_ context.Context, h *backend.Handle, _ backend.CollectOptions) (*backend.RawTrace, error) {
	f.collected++
	if f.collectErr != nil {
		return nil, f.collectErr
	}
	return f.trace, nil
}

func (f *fakeBackend) calls() int { return f.validated + f.started + f.collected }

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{})
	return logger
}

func newFake(t *testing.T) *fakeBackend {
	t.Helper()
	artifact := filepath.Join(t.TempDir(), "trace.stacks")
	require.NoError(t, os.WriteFile(artifact, []byte(stacks), 0o644))
	return &fakeBackend{
		artifact: artifact,
		trace:    &backend.RawTrace{Data: []byte(stacks), Format: collapse.FormatDTrace, Path: artifact},
	}
}

func TestGenerate(t *testing.T) {
	tests := []struct {
		name      string
		configure func(opts *Options)
		fake      func(f *fakeBackend)
		wantErr   error
		validate  func(t *testing.T, f *fakeBackend, opts Options, s *output.Summary)
	}{
		{
			name: "writes svg and summary",
			validate: func(t *testing.T, f *fakeBackend, opts Options, s *output.Summary) {
				svg, err := os.ReadFile(opts.Output)
				require.NoError(t, err)
				require.Contains(t, string(svg), "<svg")
				require.Contains(t, string(svg), "app`compute")

				require.Equal(t, "fake", s.Backend)
				require.Equal(t, opts.Output, s.Output)
				require.Equal(t, int64(len(svg)), s.Bytes)
				require.Equal(t, int64(22), s.Samples)
				require.Equal(t, 2, s.Stacks)
				require.Equal(t, "command ./app", s.Workload)
				require.Equal(t, 1, f.started)
				require.Equal(t, 1, f.collected)
			},
		},
		{
			name: "removes owned artifact",
			validate: func(t *testing.T, f *fakeBackend, _ Options, _ *output.Summary) {
				require.NoFileExists(t, f.artifact)
			},
		},
		{
			name: "frequency with custom command spawns nothing",
			configure: func(opts *Options) {
				opts.Frequency = 99
				opts.CustomCmd = "record -g"
			},
			wantErr: errdefs.ErrConfig,
			validate: func(t *testing.T, f *fakeBackend, opts Options, _ *output.Summary) {
				require.Zero(t, f.calls())
				require.NoFileExists(t, opts.Output)
			},
		},
		{
			name: "failing filter leaves no output",
			configure: func(opts *Options) {
				opts.PostProcess = "sh -c 'exit 3'"
			},
			wantErr: errdefs.ErrPostProcess,
			validate: func(t *testing.T, f *fakeBackend, opts Options, _ *output.Summary) {
				require.NoFileExists(t, opts.Output)
				require.NoFileExists(t, f.artifact)
			},
		},
		{
			name: "filter rewrites stacks",
			configure: func(opts *Options) {
				opts.PostProcess = "sed s/compute/crunch/"
			},
			validate: func(t *testing.T, _ *fakeBackend, opts Options, _ *output.Summary) {
				svg, err := os.ReadFile(opts.Output)
				require.NoError(t, err)
				require.Contains(t, string(svg), "app`crunch")
				require.NotContains(t, string(svg), "app`compute")
			},
		},
		{
			name: "sampling failure still cleans up",
			fake: func(f *fakeBackend) {
				f.collectErr = errdefs.New(errdefs.ErrSampling, "sampler died")
			},
			wantErr: errdefs.ErrSampling,
			validate: func(t *testing.T, f *fakeBackend, opts Options, _ *output.Summary) {
				require.NoFileExists(t, f.artifact)
				require.NoFileExists(t, opts.Output)
			},
		},
		{
			name: "start failure",
			fake: func(f *fakeBackend) {
				f.startErr = errdefs.New(errdefs.ErrToolMissing, "could not find perf")
			},
			wantErr: errdefs.ErrToolMissing,
			validate: func(t *testing.T, f *fakeBackend, _ Options, _ *output.Summary) {
				require.Zero(t, f.collected)
			},
		},
		{
			name: "request carries run options",
			configure: func(opts *Options) {
				opts.Frequency = 250
				opts.NoInline = true
				opts.CompressionLevel = 3
			},
			validate: func(t *testing.T, f *fakeBackend, _ Options, _ *output.Summary) {
				require.Len(t, f.requests, 1)
				req := f.requests[0]
				require.Equal(t, 250, req.Start.Frequency)
				require.Equal(t, 3, req.Start.CompressionLevel)
				require.True(t, req.Collect.NoInline)
				require.Equal(t, workload.KindCommand, req.Workload.Kind())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFake(t)
			if tt.fake != nil {
				tt.fake(f)
			}
			opts := DefaultOptions()
			opts.Output = filepath.Join(t.TempDir(), "flamegraph.svg")
			opts.Appearance.Deterministic = true
			if tt.configure != nil {
				tt.configure(&opts)
			}

			g := NewGenerator(WithBackend(f), WithLogger(quietLogger()), WithOutput(&bytes.Buffer{}))
			s, err := g.Generate(context.Background(), workload.Command("./app"), opts)
			if tt.wantErr != nil {
				require.Error(t, err)
				require.ErrorIs(t, err, tt.wantErr)
				require.Nil(t, s)
			} else {
				require.NoError(t, err)
				require.NotNil(t, s)
			}
			if tt.validate != nil {
				tt.validate(t, f, opts, s)
			}
		})
	}
}

func TestGenerateInvalidWorkload(t *testing.T) {
	f := newFake(t)
	opts := DefaultOptions()
	opts.Output = filepath.Join(t.TempDir(), "flamegraph.svg")

	g := NewGenerator(WithBackend(f), WithLogger(quietLogger()))
	_, err := g.Generate(context.Background(), workload.Pids(), opts)
	require.ErrorIs(t, err, errdefs.ErrConfig)
	require.Zero(t, f.calls())
}

func TestGenerateOpen(t *testing.T) {
	tests := []struct {
		name    string
		openErr error
	}{
		{name: "opens the svg"},
		{name: "open failure only warns", openErr: errors.New("no viewer")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			opts.Output = filepath.Join(t.TempDir(), "flamegraph.svg")
			opts.Open = true

			var opened []string
			g := NewGenerator(
				WithBackend(newFake(t)),
				WithLogger(quietLogger()),
				WithOpener(func(path string) error {
					opened = append(opened, path)
					return tt.openErr
				}),
			)
			_, err := g.Generate(context.Background(), workload.Command("./app"), opts)
			require.NoError(t, err)
			require.Equal(t, []string{opts.Output}, opened)
			require.FileExists(t, opts.Output)
		})
	}
}

func TestGenerateVerbose(t *testing.T) {
	opts := DefaultOptions()
	opts.Output = filepath.Join(t.TempDir(), "flamegraph.svg")
	opts.Verbose = true

	var out bytes.Buffer
	g := NewGenerator(WithBackend(newFake(t)), WithLogger(quietLogger()), WithOutput(&out))
	_, err := g.Generate(context.Background(), workload.Command("./app"), opts)
	require.NoError(t, err)

	require.Contains(t, out.String(), "Hottest Stacks")
	require.Contains(t, out.String(), "__psynch_cvwait")
	require.Contains(t, out.String(), "Stage Timing Report")
	require.Contains(t, out.String(), "collapse")
	require.Contains(t, out.String(), "render")
}

func TestGenerateReadPerf(t *testing.T) {
	dir := t.TempDir()

	fn := &profile.Function{ID: 1, Name: "main.main"}
	loc := &profile.Location{ID: 1, Address: 0x10, Line: []profile.Line{{Function: fn}}}
	p := &profile.Profile{
		SampleType: []*profile.ValueType{{Type: "samples", Unit: "count"}},
		Sample:     []*profile.Sample{{Location: []*profile.Location{loc}, Value: []int64{4}}},
		Location:   []*profile.Location{loc},
		Function:   []*profile.Function{fn},
	}
	var buf bytes.Buffer
	require.NoError(t, p.Write(&buf))
	pprofPath := filepath.Join(dir, "cpu.pprof")
	require.NoError(t, os.WriteFile(pprofPath, buf.Bytes(), 0o644))

	stacksPath := filepath.Join(dir, "saved.stacks")
	require.NoError(t, os.WriteFile(stacksPath, []byte(stacks), 0o644))

	tests := []struct {
		name     string
		path     string
		validate func(t *testing.T, f *fakeBackend, s *output.Summary)
	}{
		{
			name: "pprof profile skips the backend",
			path: pprofPath,
			validate: func(t *testing.T, f *fakeBackend, s *output.Summary) {
				require.Zero(t, f.calls())
				require.Equal(t, "pprof", s.Backend)
				require.Equal(t, int64(4), s.Samples)
			},
		},
		{
			name: "dtrace stacks go through the backend",
			path: stacksPath,
			validate: func(t *testing.T, f *fakeBackend, s *output.Summary) {
				require.Equal(t, 1, f.started)
				require.Equal(t, "fake", s.Backend)
				require.FileExists(t, stacksPath)
			},
		},
		{
			name: "trace bundle directory goes through the backend",
			path: dir,
			validate: func(t *testing.T, f *fakeBackend, _ *output.Summary) {
				require.Equal(t, 1, f.started)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeBackend{
				trace: &backend.RawTrace{Data: []byte(stacks), Format: collapse.FormatDTrace, Path: tt.path},
			}
			opts := DefaultOptions()
			opts.Output = filepath.Join(t.TempDir(), "flamegraph.svg")

			g := NewGenerator(WithBackend(f), WithLogger(quietLogger()))
			s, err := g.Generate(context.Background(), workload.ReadPerf(tt.path), opts)
			require.NoError(t, err)
			tt.validate(t, f, s)
		})
	}
}

func TestGenerateToolMissing(t *testing.T) {
	env := backend.Env{LookPath: func(file string) (string, error) {
		return "", errors.New("not found")
	}}
	opts := DefaultOptions()
	opts.Output = filepath.Join(t.TempDir(), "flamegraph.svg")

	g := NewGenerator(WithEnv(env), WithLogger(quietLogger()), WithOutput(&bytes.Buffer{}))
	_, err := g.Generate(context.Background(), workload.Command("./app"), opts)
	require.ErrorIs(t, err, errdefs.ErrToolMissing)
	require.NoFileExists(t, opts.Output)
}

// countingRunner fails every command it is handed.
type countingRunner struct{ runs int }

func (r *countingRunner) Run(*exec.Cmd) error {
	r.runs++
	return errors.New("unexpected run")
}

func (r *countingRunner) Output(*exec.Cmd) ([]byte, error) {
	r.runs++
	return nil, errors.New("unexpected output")
}

func TestGenerateRejectsPidsBeforeInspecting(t *testing.T) {
	env := backend.Env{LookPath: func(file string) (string, error) {
		return "/usr/bin/" + file, nil
	}}
	runner := &countingRunner{}
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	opts := DefaultOptions()
	opts.Output = filepath.Join(t.TempDir(), "flamegraph.svg")

	g := NewGenerator(
		WithBackend(backend.NewXCTrace(env, backend.WithRunner(runner))),
		WithLogger(logger),
		WithOutput(&bytes.Buffer{}),
	)
	_, err := g.Generate(context.Background(), workload.Pids(os.Getpid(), 1<<30), opts)
	require.ErrorIs(t, err, errdefs.ErrConfig)
	require.Contains(t, err.Error(), "one process")
	require.Zero(t, runner.runs)
	for _, e := range hook.AllEntries() {
		require.NotEqual(t, "Attaching to process", e.Message)
		require.NotEqual(t, "Target process not found", e.Message)
	}
	require.NoFileExists(t, opts.Output)
}
