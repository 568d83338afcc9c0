package collapse

import (
	"io"
	"strconv"
	"strings"

	"github.com/danpilch/flamegraph/pkg/errdefs"
)

type dtraceFolder struct{}

// Collapse folds the output of a dtrace ustack() aggregation. Each stack
// lists frames leaf first and ends with a line holding only its count.
//
//	              app`compute+0x1a
//	              app`main+0x20
//	              libdyld.dylib`start+0x1
//	               17
func (f *dtraceFolder) Collapse(r io.Reader, w io.Writer) error {
	stacks := make(stackCounts)
	scanner := newScanner(r)

	var frames []string
	for scanner.Scan() {
		trimmed := strings.TrimSpace(scanner.Text())

		if trimmed == "" {
			// A stack with no count line is not an aggregation entry
			frames = nil
			continue
		}

		if isCountLine(trimmed) {
			if len(frames) > 0 {
				count, err := strconv.ParseInt(trimmed, 10, 64)
				if err != nil {
					return errdefs.Wrapf(errdefs.ErrParse, err, "invalid dtrace sample count %q", trimmed)
				}
				stacks.add(frames, count)
			}
			frames = nil
			continue
		}

		frames = append(frames, stripOffset(trimmed))
	}
	if err := scanner.Err(); err != nil {
		return errdefs.Wrap(errdefs.ErrParse, err, "cannot read dtrace stacks")
	}

	return stacks.write(w)
}
