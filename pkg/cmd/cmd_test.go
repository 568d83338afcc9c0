package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/pprof/profile"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/danpilch/flamegraph/pkg/backend"
	"github.com/danpilch/flamegraph/pkg/errdefs"
	"github.com/danpilch/flamegraph/pkg/output"
	"github.com/danpilch/flamegraph/pkg/workload"
)

func testOptions() *CommonOptions {
	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{})
	return NewCommonOptions(
		WithContext(context.Background()),
		WithLogger(logger),
		WithEnv(backend.Env{LookPath: func(string) (string, error) {
			return "", errors.New("not found")
		}}),
	)
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd(testOptions())
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	// cobra falls back to os.Args for a nil slice
	cmd.SetArgs(append([]string{}, args...))
	err := cmd.Execute()
	return out.String(), err
}

// writeProfile writes a one-frame CPU profile and returns its path.
func writeProfile(t *testing.T, dir, name string, count int64) string {
	t.Helper()
	fn := &profile.Function{ID: 1, Name: name}
	loc := &profile.Location{ID: 1, Address: 0x10, Line: []profile.Line{{Function: fn}}}
	p := &profile.Profile{
		SampleType: []*profile.ValueType{{Type: "samples", Unit: "count"}},
		Sample:     []*profile.Sample{{Location: []*profile.Location{loc}, Value: []int64{count}}},
		Location:   []*profile.Location{loc},
		Function:   []*profile.Function{fn},
	}
	var buf bytes.Buffer
	require.NoError(t, p.Write(&buf))
	path := filepath.Join(dir, "cpu.pprof")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestNewRootCmd(t *testing.T) {
	cmd := NewRootCmd(testOptions())
	require.Equal(t, "flamegraph", cmd.Name())
	require.Contains(t, cmd.Short, "flame graph")

	tests := []struct {
		flag     string
		kind     string
		defValue string
	}{
		{flag: "output", kind: "string", defValue: "flamegraph.svg"},
		{flag: "pid", kind: "intSlice", defValue: "[]"},
		{flag: "freq", kind: "int", defValue: "0"},
		{flag: "log-level", kind: "string", defValue: "warn"},
		{flag: "format", kind: "string", defValue: "table"},
		{flag: "palette", kind: "string", defValue: "hot"},
		{flag: "min-width", kind: "float64", defValue: "0.01"},
		{flag: "image-width", kind: "int", defValue: "1200"},
		{flag: "skip-after", kind: "stringArray", defValue: "[]"},
	}
	for _, tt := range tests {
		t.Run(tt.flag, func(t *testing.T) {
			flag := cmd.Flags().Lookup(tt.flag)
			require.NotNil(t, flag)
			require.Equal(t, tt.kind, flag.Value.Type())
			require.Equal(t, tt.defValue, flag.DefValue)
		})
	}

	for short, long := range map[string]string{"o": "output", "F": "freq", "c": "cmd", "v": "verbose", "i": "inverted", "p": "pid"} {
		require.Equal(t, long, cmd.Flags().ShorthandLookup(short).Name)
	}
}

func TestWorkload(t *testing.T) {
	tests := []struct {
		name     string
		opts     Options
		args     []string
		wantErr  bool
		validate func(t *testing.T, w workload.Workload)
	}{
		{
			name: "command",
			args: []string{"./app", "--flag", "x"},
			validate: func(t *testing.T, w workload.Workload) {
				require.Equal(t, workload.KindCommand, w.Kind())
				require.Equal(t, []string{"./app", "--flag", "x"}, w.Argv())
			},
		},
		{
			name: "pids",
			opts: Options{pids: []int{3, 1, 3}},
			validate: func(t *testing.T, w workload.Workload) {
				require.Equal(t, workload.KindPid, w.Kind())
				require.Equal(t, []int{3, 1}, w.Pids())
			},
		},
		{
			name: "trace file",
			opts: Options{perfData: "perf.data"},
			validate: func(t *testing.T, w workload.Workload) {
				require.Equal(t, workload.KindReadPerf, w.Kind())
				require.Equal(t, "perf.data", w.Path())
			},
		},
		{
			name:    "command and pid",
			opts:    Options{pids: []int{1}},
			args:    []string{"./app"},
			wantErr: true,
		},
		{
			name:    "nothing",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := tt.opts.workload(tt.args)
			if tt.wantErr {
				require.ErrorIs(t, err, errdefs.ErrConfig)
				return
			}
			require.NoError(t, err)
			tt.validate(t, w)
		})
	}
}

func TestRunRejectsBadFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "log level", args: []string{"--log-level", "loud", "--", "true"}, want: "--log-level"},
		{name: "format", args: []string{"--format", "xml", "--", "true"}, want: "summary format"},
		{name: "palette", args: []string{"--palette", "plaid", "--", "true"}, want: "palette"},
		{name: "frequency with cmd", args: []string{"-F", "99", "-c", "record -g", "--", "true"}, want: "--freq cannot be combined"},
		{name: "no workload", args: nil, want: "no workload given"},
		{name: "reverse flame chart", args: []string{"--reverse", "--flamechart", "--", "true"}, want: "--reverse"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, tt.args...)
			require.ErrorIs(t, err, errdefs.ErrConfig)
			require.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRunToolMissing(t *testing.T) {
	dir := t.TempDir()
	svg := filepath.Join(dir, "out.svg")

	_, err := run(t, "-o", svg, "--", "true")
	require.ErrorIs(t, err, errdefs.ErrToolMissing)
	require.NoFileExists(t, svg)
}

func TestRunProfile(t *testing.T) {
	dir := t.TempDir()

	trace := writeProfile(t, dir, "main.spin", 9)
	svg := filepath.Join(dir, "cpu.svg")

	out, err := run(t, "--perfdata", trace, "-o", svg, "--format", "json", "--title", "spin", "-i", "--deterministic")
	require.NoError(t, err)

	var summary output.Summary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	require.Equal(t, "pprof", summary.Backend)
	require.Equal(t, svg, summary.Output)
	require.Equal(t, int64(9), summary.Samples)

	data, err := os.ReadFile(svg)
	require.NoError(t, err)
	require.Contains(t, string(data), "spin")
	require.Contains(t, string(data), "main.spin")
}

func TestRunOpen(t *testing.T) {
	dir := t.TempDir()
	trace := writeProfile(t, dir, "main.main", 1)

	var opened []string
	opts := testOptions()
	WithOpener(func(path string) error {
		opened = append(opened, path)
		return nil
	})(opts)

	svg := filepath.Join(dir, "cpu.svg")
	cmd := NewRootCmd(opts)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--perfdata", trace, "-o", svg, "--open", "--format", "none"})
	require.NoError(t, cmd.Execute())
	require.Equal(t, []string{svg}, opened)
}
