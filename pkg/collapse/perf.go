package collapse

import (
	"io"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/danpilch/flamegraph/pkg/errdefs"
)

// perfHeader matches the event line that opens each sample of
// `perf script` output: "<comm> <pid>[/<tid>] ...". The command name may
// contain spaces.
var perfHeader = regexp.MustCompile(`^(.+?)\s+\d+(?:/\d+)?\s`)

type perfFolder struct {
	skipAfter map[string]struct{}
}

func newPerfFolder(opts Options) *perfFolder {
	f := &perfFolder{skipAfter: make(map[string]struct{}, len(opts.SkipAfter))}
	for _, name := range opts.SkipAfter {
		f.skipAfter[name] = struct{}{}
	}
	return f
}

// Collapse folds `perf script` output. Each sample is an event line
// followed by one indented frame per line, leaf first, and ends with a
// blank line. The process name becomes the root frame.
//
//	app 4242 12345.678901: 250000 cpu-clock:
//		    55d0c3a1 compute+0x1a (/usr/bin/app)
//		    55d0c3f0 main+0x20 (/usr/bin/app)
func (f *perfFolder) Collapse(r io.Reader, w io.Writer) error {
	stacks := make(stackCounts)
	scanner := newScanner(r)

	var (
		comm    string
		frames  []string
		inEvent bool
		skip    bool
	)
	flush := func() {
		if inEvent {
			stacks.add(append(frames, comm), 1)
		}
		comm, frames, inEvent, skip = "", nil, false, false
	}

	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			flush()
			continue
		}

		if line[0] != ' ' && line[0] != '\t' {
			flush()
			m := perfHeader.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			comm = strings.ReplaceAll(strings.TrimSpace(m[1]), " ", "_")
			inEvent = true
			continue
		}

		if !inEvent || skip {
			continue
		}
		name := perfFrameName(trimmed)
		if name == "" {
			continue
		}
		frames = append(frames, name)
		if _, ok := f.skipAfter[name]; ok {
			skip = true
		}
	}
	if err := scanner.Err(); err != nil {
		return errdefs.Wrap(errdefs.ErrParse, err, "cannot read perf script output")
	}
	flush()

	return stacks.write(w)
}

// perfFrameName extracts the function name from a frame line such as
// "7f3a2b1c std::vector<int, std::allocator<int> >::push_back+0x1f (/usr/lib/libapp.so)".
func perfFrameName(line string) string {
	fields := strings.SplitN(line, " ", 2)
	if len(fields) < 2 {
		return "[unknown]"
	}
	rest := strings.TrimSpace(fields[1])

	var module string
	if strings.HasSuffix(rest, ")") {
		if idx := strings.LastIndex(rest, " ("); idx >= 0 {
			module = rest[idx+2 : len(rest)-1]
			rest = strings.TrimSpace(rest[:idx])
		} else if strings.HasPrefix(rest, "(") {
			module = rest[1 : len(rest)-1]
			rest = ""
		}
	}

	sym := stripOffset(rest)
	if sym == "" || sym == "[unknown]" {
		if module != "" && module != "[unknown]" {
			return "[" + filepath.Base(module) + "]"
		}
		return "[unknown]"
	}
	return sym
}
