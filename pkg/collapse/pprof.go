package collapse

import (
	"bytes"
	"fmt"
	"io"

	"github.com/google/pprof/profile"

	"github.com/danpilch/flamegraph/pkg/errdefs"
)

var gzipMagic = []byte{0x1f, 0x8b}

// IsProfile reports whether head, the first bytes of a file, looks like a
// pprof profile: gzip-compressed, or a raw protobuf opening with the
// sample_type field.
func IsProfile(head []byte) bool {
	if bytes.HasPrefix(head, gzipMagic) {
		return true
	}
	return len(head) > 0 && head[0] == 0x0a
}

type pprofFolder struct{}

// Collapse folds a pprof profile. Inlined calls are expanded into their own
// frames. Samples are weighted by the "samples" value when the profile has
// one, and by its first value otherwise.
func (f *pprofFolder) Collapse(r io.Reader, w io.Writer) error {
	p, err := profile.Parse(r)
	if err != nil {
		return errdefs.Wrap(errdefs.ErrParse, err, "cannot parse pprof profile")
	}

	idx := 0
	for i, st := range p.SampleType {
		if st.Type == "samples" {
			idx = i
			break
		}
	}

	stacks := make(stackCounts)
	for _, s := range p.Sample {
		if idx >= len(s.Value) {
			continue
		}
		var frames []string
		for _, loc := range s.Location {
			if len(loc.Line) == 0 {
				frames = append(frames, fmt.Sprintf("0x%x", loc.Address))
				continue
			}
			// Line[0] is the innermost inlined call
			for _, line := range loc.Line {
				if line.Function == nil || line.Function.Name == "" {
					frames = append(frames, fmt.Sprintf("0x%x", loc.Address))
					continue
				}
				frames = append(frames, line.Function.Name)
			}
		}
		stacks.add(frames, s.Value[idx])
	}

	return stacks.write(w)
}
