package collapse

import (
	"encoding/xml"
	"io"
	"strings"

	"github.com/danpilch/flamegraph/pkg/errdefs"
)

type xctraceFolder struct{}

// xctraceRow is the sample being assembled while streaming one <row>.
type xctraceRow struct {
	process string
	frames  []string
}

// Collapse folds an `xctrace export` of the time-profile table. The export
// deduplicates repeated values: the first occurrence of an element carries
// an id attribute, later ones are empty elements with a matching ref. Each
// <row> is one sample whose <backtrace> lists frames leaf first.
func (f *xctraceFolder) Collapse(r io.Reader, w io.Writer) error {
	stacks := make(stackCounts)
	dec := xml.NewDecoder(r)

	var (
		frameNames = make(map[string]string)
		backtraces = make(map[string][]string)
		processes  = make(map[string]string)
		threads    = make(map[string]string)

		row         *xctraceRow
		thread      string
		backtrace   string
		inBacktrace bool
		frames      []string
		frameDepth  int
	)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errdefs.Wrap(errdefs.ErrParse, err, "cannot parse xctrace export")
		}

		switch t := tok.(type) {
		case xml.StartElement:
			id, ref := attr(t, "id"), attr(t, "ref")
			switch t.Name.Local {
			case "row":
				row = &xctraceRow{}
			case "thread":
				if row == nil {
					continue
				}
				if ref != "" {
					row.process = threads[ref]
				} else {
					thread = id
				}
			case "process":
				if row == nil {
					continue
				}
				name := processes[ref]
				if ref == "" {
					name = processName(attr(t, "fmt"))
					processes[id] = name
				}
				if thread != "" {
					threads[thread] = name
				}
				row.process = name
			case "backtrace":
				if row == nil {
					continue
				}
				if ref != "" {
					row.frames = backtraces[ref]
					continue
				}
				inBacktrace, backtrace, frames = true, id, nil
			case "frame":
				if !inBacktrace {
					continue
				}
				frameDepth++
				// Frames nested in a frame describe it, they are not part of the stack
				if frameDepth > 1 {
					continue
				}
				if ref != "" {
					frames = append(frames, frameNames[ref])
					continue
				}
				name := attr(t, "name")
				if name == "" {
					name = attr(t, "addr")
				}
				if name == "" {
					name = "[unknown]"
				}
				frameNames[id] = name
				frames = append(frames, name)
			}

		case xml.EndElement:
			switch t.Name.Local {
			case "frame":
				if inBacktrace {
					frameDepth--
				}
			case "thread":
				thread = ""
			case "backtrace":
				if inBacktrace {
					if backtrace != "" {
						backtraces[backtrace] = frames
					}
					if row != nil {
						row.frames = frames
					}
					inBacktrace, backtrace, frames, frameDepth = false, "", nil, 0
				}
			case "row":
				if row != nil && len(row.frames) > 0 {
					leafFirst := append([]string(nil), row.frames...)
					if row.process != "" {
						leafFirst = append(leafFirst, row.process)
					}
					stacks.add(leafFirst, 1)
				}
				row = nil
			}
		}
	}

	return stacks.write(w)
}

func attr(el xml.StartElement, name string) string {
	for _, a := range el.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

// processName trims the pid suffix from a process label such as
// "app (4242)".
func processName(label string) string {
	label = strings.TrimSpace(label)
	if strings.HasSuffix(label, ")") {
		if idx := strings.LastIndex(label, " ("); idx > 0 {
			return label[:idx]
		}
	}
	return label
}
