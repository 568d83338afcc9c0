// Package render lays out folded stacks as an SVG flame graph.
package render

import (
	"bufio"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/danpilch/flamegraph/pkg/errdefs"
)

// Direction sets which way stacks grow.
type Direction int

const (
	// DirectionNormal draws the root at the bottom.
	DirectionNormal Direction = iota
	// DirectionInverted draws the root at the top (an icicle graph).
	DirectionInverted
)

// Options configures the flame graph SVG output.
type Options struct {
	Title    string
	Subtitle string
	Notes    string

	// Width is the image width in pixels.
	Width int
	// MinWidth culls frames narrower than this many pixels.
	MinWidth float64

	Palette       Palette
	Deterministic bool
	Direction     Direction

	// Reverse flips every stack so leaves become roots.
	Reverse bool
	// FlameChart keeps input order instead of sorting stacks.
	FlameChart bool

	// CountName labels the sample unit in tooltips.
	CountName string
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		Width:     1200,
		MinWidth:  0.01,
		Palette:   PaletteHot,
		CountName: "samples",
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Width <= 0 {
		o.Width = d.Width
	}
	if o.MinWidth < 0 {
		o.MinWidth = 0
	}
	if o.Palette == "" {
		o.Palette = d.Palette
	}
	if o.CountName == "" {
		o.CountName = d.CountName
	}
	if o.Title == "" {
		o.Title = "Flame Graph"
		if o.FlameChart {
			o.Title = "Flame Chart"
		}
	}
	return o
}

// Stats summarises a rendered graph.
type Stats struct {
	// Samples is the total sample count across all stacks.
	Samples int64
	// Frames is the number of frames drawn after culling.
	Frames int
	// Depth is the deepest drawn frame, with the root at 0.
	Depth int
	// Ignored counts input lines that were not valid folded stacks.
	Ignored int
	Height  int
}

type stack struct {
	frames []string
	count  int64
}

// Render reads folded stacks and writes an SVG flame graph to w.
func Render(folded io.Reader, w io.Writer, opts Options) (*Stats, error) {
	opts = opts.withDefaults()

	stacks, ignored, err := parse(folded, opts.Reverse)
	if err != nil {
		return nil, err
	}
	if len(stacks) == 0 {
		return nil, errdefs.New(errdefs.ErrRender, "no stack counts found")
	}

	if !opts.FlameChart {
		slices.SortStableFunc(stacks, func(a, b stack) int {
			return slices.Compare(a.frames, b.frames)
		})
	}

	if opts.Width < MinImageWidth {
		return nil, errdefs.New(errdefs.ErrRender, "image width %d is below the minimum of %d", opts.Width, MinImageWidth)
	}

	root := buildTree(stacks)
	boxes := layout(root, opts)
	if len(boxes) == 0 {
		return nil, errdefs.New(errdefs.ErrRender, "every frame is narrower than the minimum width of %gpx", opts.MinWidth)
	}
	stats := &Stats{Samples: root.value, Ignored: ignored}
	if err := writeSVG(w, boxes, opts, stats); err != nil {
		return nil, errdefs.Wrap(errdefs.ErrIO, err, "cannot write flame graph")
	}
	return stats, nil
}

func parse(r io.Reader, reverse bool) ([]stack, int, error) {
	var (
		stacks  []stack
		ignored int
	)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		idx := strings.LastIndexByte(line, ' ')
		if idx <= 0 {
			ignored++
			continue
		}
		count, err := strconv.ParseInt(line[idx+1:], 10, 64)
		if err != nil || count < 0 {
			ignored++
			continue
		}
		if count == 0 {
			continue
		}
		frames := strings.Split(strings.TrimRight(line[:idx], " "), ";")
		if reverse {
			slices.Reverse(frames)
		}
		stacks = append(stacks, stack{frames: frames, count: count})
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, errdefs.Wrap(errdefs.ErrIO, err, "cannot read folded stacks")
	}
	return stacks, ignored, nil
}

// frame represents a stack frame in the flame graph tree.
type frame struct {
	name     string
	value    int64
	children []*frame
}

// buildTree merges each stack into the tree by following the last child
// while names match. Sorted input therefore merges every shared prefix,
// while unsorted input keeps the order stacks arrived in.
func buildTree(stacks []stack) *frame {
	root := &frame{name: "all"}
	for _, s := range stacks {
		root.value += s.count
		node := root
		for _, name := range s.frames {
			var child *frame
			if n := len(node.children); n > 0 && node.children[n-1].name == name {
				child = node.children[n-1]
			} else {
				child = &frame{name: name}
				node.children = append(node.children, child)
			}
			child.value += s.count
			node = child
		}
	}
	return root
}
