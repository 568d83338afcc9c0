package backend

import (
	"bufio"
	"bytes"
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/danpilch/flamegraph/pkg/errdefs"
	"github.com/danpilch/flamegraph/pkg/workload"
)

// SampleFile is where sample(1) writes its report.
const SampleFile = "flamegraph.sample.txt"

// startSample records a single process with sample(1), used when dtrace is
// unavailable.
func (d *DTrace) startSample(ctx context.Context, w workload.Workload, opts StartOptions) (*Handle, error) {
	sample, err := d.env.resolve("", "sample", "PATH")
	if err != nil {
		return nil, errdefs.Wrap(errdefs.ErrToolMissing, err, "neither dtrace nor sample is available")
	}
	pids := w.Pids()
	if len(pids) != 1 {
		return nil, errdefs.New(errdefs.ErrConfig, "sample can only attach to one process, got %d", len(pids))
	}
	if opts.Frequency != 0 || opts.CustomCmd != "" {
		d.cfg.logger.Warn("sample ignores --freq and --cmd")
	}

	args := []string{strconv.Itoa(pids[0]), strconv.Itoa(d.cfg.sampleSeconds), "-file", SampleFile}
	cmd, err := opts.Privilege.Command(ctx, sample, args...)
	if err != nil {
		return nil, err
	}
	h := &Handle{
		Workload: w,
		Path:     SampleFile,
		Owned:    true,
		Elevated: opts.Privilege.Elevated(),
		sampled:  true,
	}
	return record(d.cfg.runner, cmd, h)
}

// sampleLine matches a call graph entry such as
//
//	+   2663 main  (in app) + 50  [0x10d9c6f32]
//
// capturing the indentation, the sample count and the frame.
var sampleLine = regexp.MustCompile(`^([ +!:|]*)(\d+)\s+(.+)$`)

type sampleNode struct {
	column int
	name   string
	count  int64
	inner  int64
}

// sampleToStacks converts the "Call graph" section of a sample(1) report to
// dtrace aggregated stacks. Each node's self samples, its count minus its
// children's, become one leaf-first stack.
func sampleToStacks(report []byte) ([]byte, error) {
	var (
		out     bytes.Buffer
		path    []*sampleNode
		inGraph bool
		found   bool
	)

	emit := func(n *sampleNode) {
		self := n.count - n.inner
		// the first entry is the thread, which is not a frame
		if self <= 0 || len(path) < 2 {
			return
		}
		out.WriteString("\n")
		for i := len(path) - 1; i >= 1; i-- {
			out.WriteString("  " + path[i].name + "\n")
		}
		out.WriteString("  " + strconv.FormatInt(self, 10) + "\n")
	}
	pop := func() {
		n := path[len(path)-1]
		emit(n)
		path = path[:len(path)-1]
		if len(path) > 0 {
			path[len(path)-1].inner += n.count
		}
	}

	scanner := bufio.NewScanner(bytes.NewReader(report))
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !inGraph {
			inGraph = strings.HasPrefix(line, "Call graph:")
			found = found || inGraph
			continue
		}
		if strings.TrimSpace(line) == "" {
			break
		}
		m := sampleLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		count, err := strconv.ParseInt(m[2], 10, 64)
		if err != nil {
			continue
		}
		n := &sampleNode{column: len(m[1]), name: sampleFrame(m[3]), count: count}
		for len(path) > 0 && path[len(path)-1].column >= n.column {
			pop()
		}
		path = append(path, n)
	}
	if err := scanner.Err(); err != nil {
		return nil, errdefs.Wrap(errdefs.ErrIO, err, "cannot read sample report")
	}
	if !found {
		return nil, errdefs.New(errdefs.ErrParse, "sample report has no call graph")
	}
	for len(path) > 0 {
		pop()
	}
	return out.Bytes(), nil
}

// sampleFrame turns "main  (in app) + 50  [0x10d9c6f32]" into "app`main".
func sampleFrame(s string) string {
	fn, rest, ok := strings.Cut(s, "  (in ")
	if !ok {
		if idx := strings.Index(s, "  "); idx > 0 {
			return s[:idx]
		}
		return s
	}
	module, _, ok := strings.Cut(rest, ")")
	if !ok {
		return fn
	}
	return module + "`" + fn
}
