package backend

import (
	"os/exec"
	"os/user"

	"github.com/spf13/viper"

	"github.com/danpilch/flamegraph/pkg/errdefs"
)

// Env is the process environment the backends consult. It is loaded once at
// the CLI boundary so backends never read the environment themselves.
type Env struct {
	// Perf, DTrace and XCTrace override the profiler binaries.
	Perf    string
	DTrace  string
	XCTrace string
	// ArchPreference, when set, disables Mach-O arch hinting.
	ArchPreference string
	// User owns artifacts written by an elevated sampler.
	User string

	// LookPath resolves executables; exec.LookPath when nil.
	LookPath func(file string) (string, error)
}

// LoadEnv reads PERF, DTRACE, XCTRACE, ARCHPREFERENCE and USER.
func LoadEnv() Env {
	v := viper.New()
	v.AutomaticEnv()

	env := Env{
		Perf:           v.GetString("PERF"),
		DTrace:         v.GetString("DTRACE"),
		XCTrace:        v.GetString("XCTRACE"),
		ArchPreference: v.GetString("ARCHPREFERENCE"),
		User:           v.GetString("USER"),
		LookPath:       exec.LookPath,
	}
	if env.User == "" {
		if u, err := user.Current(); err == nil {
			env.User = u.Username
		}
	}
	return env
}

func (e Env) lookPath(file string) (string, error) {
	if e.LookPath == nil {
		return exec.LookPath(file)
	}
	return e.LookPath(file)
}

// resolve finds tool, honouring the override taken from envVar.
func (e Env) resolve(override, tool, envVar string) (string, error) {
	if override != "" {
		path, err := e.lookPath(override)
		if err != nil {
			return "", errdefs.Wrapf(errdefs.ErrToolMissing, err, "%s=%s is not executable", envVar, override)
		}
		return path, nil
	}
	path, err := e.lookPath(tool)
	if err != nil {
		return "", errdefs.Wrapf(errdefs.ErrToolMissing, err, "could not find %s; install it or set %s", tool, envVar)
	}
	return path, nil
}
