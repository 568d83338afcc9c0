package output

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// Spinner shows an activity indicator while a step runs. It draws nothing
// unless its output is a terminal.
type Spinner struct {
	out     io.Writer
	enabled bool
}

// NewSpinner returns a Spinner drawing to f when f is a terminal.
func NewSpinner(f *os.File) *Spinner {
	fd := f.Fd()
	return &Spinner{
		out:     f,
		enabled: isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd),
	}
}

// Begin starts a spinner labelled label. The returned func stops it and
// waits for the final frame to be drawn.
func (s *Spinner) Begin(label string) func() {
	if s == nil || !s.enabled {
		return func() {}
	}
	// enabled already means a terminal, so refresh regardless of what mpb
	// detects on out.
	p := mpb.New(mpb.WithOutput(s.out), mpb.WithWidth(1), mpb.WithAutoRefresh())
	bar := p.New(0, mpb.SpinnerStyle(),
		mpb.PrependDecorators(decor.Name(label, decor.WCSyncSpaceR)),
		mpb.AppendDecorators(decor.Elapsed(decor.ET_STYLE_GO)),
	)
	return func() {
		bar.SetTotal(-1, true)
		p.Wait()
	}
}
