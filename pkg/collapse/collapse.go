// Package collapse converts raw profiler output into folded stack format.
//
// Folded stacks are one line per unique call stack, frames joined root
// first with ';' and followed by a sample count:
//
//	main;run;compute 42
//
// Each supported profiler has its own Folder. Identical stacks are merged
// by summing their counts, and lines are written sorted so that folding the
// same input twice yields identical bytes.
package collapse

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/danpilch/flamegraph/pkg/errdefs"
)

// Format names a raw profiler output grammar.
type Format string

const (
	FormatPerf    Format = "perf"
	FormatDTrace  Format = "dtrace"
	FormatXCTrace Format = "xctrace"
	FormatPprof   Format = "pprof"
)

// NeedsDemangle reports whether raw output in this format carries mangled
// symbol names that must go through DemangleXML before folding.
func (f Format) NeedsDemangle() bool {
	return f == FormatXCTrace
}

// Options configures folding.
type Options struct {
	// SkipAfter lists boundary frame names. Once a boundary frame is seen
	// walking a stack from its leaf, every caller below it is discarded.
	// Only the perf folder honours it.
	SkipAfter []string
}

// Folder folds one profiler's output into folded stacks.
type Folder interface {
	Collapse(r io.Reader, w io.Writer) error
}

// New returns the Folder for format.
func New(format Format, opts Options) (Folder, error) {
	switch format {
	case FormatPerf:
		return newPerfFolder(opts), nil
	case FormatDTrace:
		return &dtraceFolder{}, nil
	case FormatXCTrace:
		return &xctraceFolder{}, nil
	case FormatPprof:
		return &pprofFolder{}, nil
	default:
		return nil, errdefs.New(errdefs.ErrParse, "unsupported profile format %q", format)
	}
}

// Bytes folds raw with the Folder for format and returns the folded text.
func Bytes(format Format, opts Options, raw []byte) ([]byte, error) {
	folder, err := New(format, opts)
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := folder.Collapse(bytes.NewReader(raw), &out); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// stackCounts accumulates sample counts per folded stack.
type stackCounts map[string]int64

// add records count samples for frames given leaf first.
func (s stackCounts) add(leafFirst []string, count int64) {
	if len(leafFirst) == 0 || count <= 0 {
		return
	}
	rootFirst := make([]string, len(leafFirst))
	for i, f := range leafFirst {
		rootFirst[len(leafFirst)-1-i] = f
	}
	s[strings.Join(rootFirst, ";")] += count
}

func (s stackCounts) write(w io.Writer) error {
	// Sort for deterministic output
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	bw := bufio.NewWriter(w)
	for _, k := range keys {
		if _, err := fmt.Fprintf(bw, "%s %d\n", k, s[k]); err != nil {
			return errdefs.Wrap(errdefs.ErrIO, err, "cannot write folded stacks")
		}
	}
	return errdefs.Wrap(errdefs.ErrIO, bw.Flush(), "cannot write folded stacks")
}

// newScanner returns a line scanner that tolerates the very long symbol
// names templated C++ and Rust produce.
func newScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	return scanner
}

// stripOffset removes a trailing "+0x1a" style offset from a symbol.
func stripOffset(sym string) string {
	if idx := strings.LastIndex(sym, "+0x"); idx > 0 {
		return sym[:idx]
	}
	return sym
}

func isCountLine(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return len(s) > 0
}
