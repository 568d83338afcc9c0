// Package postprocess pipes folded stacks through a user supplied filter.
package postprocess

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/google/shlex"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/danpilch/flamegraph/pkg/errdefs"
)

// Split parses command with shell quoting rules.
func Split(command string) ([]string, error) {
	if strings.TrimSpace(command) == "" {
		return nil, errdefs.New(errdefs.ErrConfig, "post-process command is empty")
	}
	argv, err := shlex.Split(command)
	if err != nil {
		return nil, errdefs.Wrapf(errdefs.ErrConfig, err, "cannot parse post-process command %q", command)
	}
	if len(argv) == 0 {
		return nil, errdefs.New(errdefs.ErrConfig, "post-process command is empty")
	}
	return argv, nil
}

// Run feeds folded to command's stdin and returns what it writes to stdout.
// The filter's stderr goes to ours.
func Run(ctx context.Context, command string, folded []byte) ([]byte, error) {
	argv, err := Split(command)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stderr = os.Stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errdefs.Wrap(errdefs.ErrSpawn, err, "cannot open post-process stdin")
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errdefs.Wrap(errdefs.ErrSpawn, err, "cannot open post-process stdout")
	}
	if err := cmd.Start(); err != nil {
		return nil, errdefs.Wrapf(errdefs.ErrSpawn, err, "could not spawn post-process command %s", argv[0])
	}

	var out bytes.Buffer
	var g errgroup.Group
	g.Go(func() error {
		_, err := io.Copy(&out, stdout)
		return err
	})

	_, writeErr := stdin.Write(folded)
	if err := stdin.Close(); err != nil && writeErr == nil {
		writeErr = err
	}
	readErr := g.Wait()
	waitErr := cmd.Wait()

	var exitErr *exec.ExitError
	switch {
	case errors.As(waitErr, &exitErr):
		return nil, errdefs.Wrapf(errdefs.ErrPostProcess, waitErr, "post-process command %s failed", argv[0])
	case waitErr != nil:
		return nil, errdefs.Wrapf(errdefs.ErrPostProcess, waitErr, "unable to wait for post-process command %s", argv[0])
	case writeErr != nil:
		return nil, errdefs.Wrap(errdefs.ErrIO, writeErr, "cannot write folded stacks to post-process command")
	case readErr != nil:
		return nil, errdefs.Wrap(errdefs.ErrIO, readErr, "cannot read post-process output")
	}
	return out.Bytes(), nil
}
