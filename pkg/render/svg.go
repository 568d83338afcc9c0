package render

import (
	"bufio"
	"fmt"
	"html"
	"io"

	"github.com/dustin/go-humanize"
)

const (
	frameHeight = 16
	fontSize    = 12
	fontWidth   = 0.59
	xpad        = 10
)

// MinImageWidth is the narrowest image that leaves room for frames
// between the side margins.
const MinImageWidth = 2*xpad + 1

// box is a laid out frame.
type box struct {
	f     *frame
	x, w  float64
	depth int
}

// layout positions every frame wider than opts.MinWidth.
func layout(root *frame, opts Options) []box {
	perSample := float64(opts.Width-2*xpad) / float64(root.value)
	var boxes []box
	var walk func(f *frame, x float64, depth int)
	walk = func(f *frame, x float64, depth int) {
		w := float64(f.value) * perSample
		if w < opts.MinWidth {
			return
		}
		boxes = append(boxes, box{f: f, x: x, w: w, depth: depth})
		for _, child := range f.children {
			walk(child, x, depth+1)
			x += float64(child.value) * perSample
		}
	}
	walk(root, xpad, 0)
	return boxes
}

func writeSVG(out io.Writer, boxes []box, opts Options, stats *Stats) error {
	for _, b := range boxes {
		stats.Depth = max(stats.Depth, b.depth)
	}
	stats.Frames = len(boxes)

	ypadTop := fontSize * 3
	if opts.Subtitle != "" {
		ypadTop += fontSize * 2
	}
	ypadBottom := fontSize*2 + 10
	height := (stats.Depth+1)*frameHeight + ypadTop + ypadBottom
	stats.Height = height

	w := bufio.NewWriter(out)
	fmt.Fprintf(w, `<?xml version="1.0" standalone="no"?>
<!DOCTYPE svg PUBLIC "-//W3C//DTD SVG 1.1//EN" "http://www.w3.org/Graphics/SVG/1.1/DTD/svg11.dtd">
<svg version="1.1" width="%d" height="%d" viewBox="0 0 %d %d" xmlns="http://www.w3.org/2000/svg">
`, opts.Width, height, opts.Width, height)
	if opts.Notes != "" {
		fmt.Fprintf(w, "<desc>%s</desc>\n", html.EscapeString(opts.Notes))
	}
	fmt.Fprintf(w, `<style>
  .func:hover { stroke:black; stroke-width:0.5; cursor:pointer; }
  text { font-family: Verdana, monospace; font-size: %dpx; }
</style>
<rect x="0" y="0" width="%d" height="%d" fill="#eeeeee"/>
<text x="%d" y="%d" text-anchor="middle" style="font-size:17px;">%s</text>
`, fontSize, opts.Width, height, opts.Width/2, fontSize*2, html.EscapeString(opts.Title))
	if opts.Subtitle != "" {
		fmt.Fprintf(w, `<text x="%d" y="%d" text-anchor="middle" style="fill:#a0a0a0;">%s</text>
`, opts.Width/2, fontSize*4, html.EscapeString(opts.Subtitle))
	}
	fmt.Fprintf(w, `<text x="%d" y="%d" style="fill:#666;">%s %s</text>
`, xpad, height-fontSize, humanize.Comma(stats.Samples), html.EscapeString(opts.CountName))

	c := colorer{palette: opts.Palette, deterministic: opts.Deterministic}
	for _, b := range boxes {
		var y int
		if opts.Direction == DirectionInverted {
			y = ypadTop + b.depth*frameHeight
		} else {
			y = height - ypadBottom - (b.depth+1)*frameHeight
		}

		fill := rgb{250, 250, 250}
		if b.depth > 0 {
			fill = c.color(b.f.name)
		}
		pct := float64(b.f.value) / float64(stats.Samples) * 100
		fmt.Fprintf(w, `<g class="func">
<title>%s (%s %s, %.2f%%)</title>
<rect x="%.1f" y="%d" width="%.1f" height="%d" fill="rgb(%d,%d,%d)" rx="2" ry="2"/>
`, html.EscapeString(b.f.name), humanize.Comma(b.f.value), html.EscapeString(opts.CountName), pct,
			b.x, y, b.w, frameHeight-1, fill.r, fill.g, fill.b)
		if label := fitLabel(b.f.name, b.w); label != "" {
			fmt.Fprintf(w, `<text x="%.1f" y="%d">%s</text>
`, b.x+3, y+frameHeight-5, html.EscapeString(label))
		}
		fmt.Fprintln(w, "</g>")
	}

	fmt.Fprintln(w, "</svg>")
	return w.Flush()
}

// fitLabel truncates name to the characters that fit in width pixels.
func fitLabel(name string, width float64) string {
	charWidth := fontSize * fontWidth
	if width < 3*charWidth {
		return ""
	}
	chars := int(width / charWidth)
	runes := []rune(name)
	if len(runes) <= chars {
		return name
	}
	return string(runes[:chars-2]) + ".."
}
