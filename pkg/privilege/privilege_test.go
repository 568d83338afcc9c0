package privilege_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/danpilch/flamegraph/pkg/errdefs"
	"github.com/danpilch/flamegraph/pkg/privilege"
)

func TestArgv(t *testing.T) {
	tests := []struct {
		name string
		spec privilege.Spec
		want []string
	}{
		{
			name: "no elevation",
			spec: privilege.Spec{},
			want: []string{"perf", "record", "-g"},
		},
		{
			name: "sudo",
			spec: privilege.Sudo(""),
			want: []string{"sudo", "perf", "record", "-g"},
		},
		{
			name: "sudo with quoted flags",
			spec: privilege.Sudo(`-E --prompt "pw: "`),
			want: []string{"sudo", "-E", "--prompt", "pw: ", "perf", "record", "-g"},
		},
		{
			name: "flags ignored when not elevated",
			spec: privilege.Spec{Mode: privilege.None, Flags: "-E"},
			want: []string{"perf", "record", "-g"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.spec.Argv("perf", "record", "-g")
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestInvalidFlags(t *testing.T) {
	spec := privilege.Sudo(`-E "unterminated`)
	err := spec.Validate()
	require.Error(t, err)
	require.ErrorIs(t, err, errdefs.ErrConfig)

	_, err = spec.Command(context.Background(), "dtrace")
	require.ErrorIs(t, err, errdefs.ErrConfig)
}

func TestChownCommand(t *testing.T) {
	cmd, err := privilege.Sudo("").ChownCommand(context.Background(), "alice", "flamegraph.trace", true)
	require.NoError(t, err)
	require.Equal(t, []string{"sudo", "chown", "-R", "alice", "flamegraph.trace"}, cmd.Args)
}
