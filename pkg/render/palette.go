package render

import (
	"hash/fnv"
	"math/rand"
	"strings"

	"github.com/danpilch/flamegraph/pkg/errdefs"
)

// Palette selects how frames are colored.
type Palette string

const (
	PaletteHot    Palette = "hot"
	PaletteMem    Palette = "mem"
	PaletteIO     Palette = "io"
	PaletteWakeup Palette = "wakeup"
	PaletteJava   Palette = "java"
	PaletteJS     Palette = "js"
	PalettePerl   Palette = "perl"
	PalettePython Palette = "python"
	PaletteRust   Palette = "rust"
	PaletteRed    Palette = "red"
	PaletteGreen  Palette = "green"
	PaletteBlue   Palette = "blue"
	PaletteAqua   Palette = "aqua"
	PaletteYellow Palette = "yellow"
	PalettePurple Palette = "purple"
	PaletteOrange Palette = "orange"
)

var palettes = []Palette{
	PaletteHot, PaletteMem, PaletteIO, PaletteWakeup,
	PaletteJava, PaletteJS, PalettePerl, PalettePython, PaletteRust,
	PaletteRed, PaletteGreen, PaletteBlue, PaletteAqua, PaletteYellow, PalettePurple, PaletteOrange,
}

// Palettes lists every accepted palette name.
func Palettes() []string {
	names := make([]string, len(palettes))
	for i, p := range palettes {
		names[i] = string(p)
	}
	return names
}

// ParsePalette maps a palette name to a Palette. The empty string is hot.
func ParsePalette(name string) (Palette, error) {
	if name == "" {
		return PaletteHot, nil
	}
	for _, p := range palettes {
		if string(p) == strings.ToLower(name) {
			return p, nil
		}
	}
	return "", errdefs.New(errdefs.ErrConfig, "unknown palette %q (want one of %s)", name, strings.Join(Palettes(), ", "))
}

type rgb struct{ r, g, b int }

// colorer picks frame colors. Deterministic colorers hash the frame name so
// a function keeps its color across runs.
type colorer struct {
	palette       Palette
	deterministic bool
}

func (c colorer) color(name string) rgb {
	v1, v2, v3 := c.weights(name)
	switch c.palette {
	case PaletteMem:
		return rgb{0, 190 + scale(50, v2), scale(210, v1)}
	case PaletteIO:
		r := 80 + scale(60, v1)
		return rgb{r, r, 190 + scale(55, v2)}
	case PaletteWakeup, PaletteAqua:
		return aqua(v1)
	case PaletteRed:
		return red(v1)
	case PaletteGreen:
		return green(v1)
	case PaletteBlue:
		return blue(v1)
	case PaletteYellow:
		return yellow(v1)
	case PalettePurple:
		return rgb{190 + scale(65, v1), 80 + scale(60, v1), 190 + scale(65, v1)}
	case PaletteOrange:
		return orange(v1)
	case PaletteJava:
		switch {
		case strings.HasSuffix(name, "_[k]"):
			return orange(v1)
		case strings.HasSuffix(name, "_[j]"), strings.Contains(name, "/"):
			return green(v1)
		case strings.HasSuffix(name, "_[i]"):
			return aqua(v1)
		case strings.Contains(name, "::"):
			return yellow(v1)
		}
		return red(v1)
	case PaletteJS:
		switch {
		case strings.HasSuffix(name, "_[k]"):
			return orange(v1)
		case strings.HasSuffix(name, "_[j]"), strings.Contains(name, ".js"), strings.Contains(name, "/"):
			return green(v1)
		case strings.Contains(name, ":"):
			return aqua(v1)
		}
		return red(v1)
	case PalettePerl:
		switch {
		case strings.HasSuffix(name, "_[k]"):
			return orange(v1)
		case strings.Contains(name, "Perl"), strings.Contains(name, ".pl"):
			return green(v1)
		case strings.Contains(name, "::"):
			return yellow(v1)
		}
		return red(v1)
	case PalettePython:
		switch {
		case strings.HasSuffix(name, "_[k]"):
			return orange(v1)
		case strings.Contains(name, ".py"):
			return green(v1)
		}
		return red(v1)
	case PaletteRust:
		bare := name
		if i := strings.LastIndexByte(bare, '`'); i >= 0 {
			bare = bare[i+1:]
		}
		switch {
		case strings.HasPrefix(bare, "core::"), strings.HasPrefix(bare, "std::"), strings.HasPrefix(bare, "alloc::"):
			return orange(v1)
		case strings.Contains(bare, "::"):
			return aqua(v1)
		}
		return yellow(v1)
	default:
		return rgb{205 + scale(50, v3), scale(230, v1), scale(55, v2)}
	}
}

// weights returns three values in [0,1).
func (c colorer) weights(name string) (float64, float64, float64) {
	if !c.deterministic {
		return rand.Float64(), rand.Float64(), rand.Float64()
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	sum := h.Sum32()
	return float64(sum&0xff) / 256, float64((sum>>8)&0xff) / 256, float64((sum>>16)&0xff) / 256
}

func scale(n int, v float64) int { return int(float64(n) * v) }

func red(v float64) rgb {
	g := 50 + scale(80, v)
	return rgb{200 + scale(55, v), g, g}
}

func green(v float64) rgb {
	r := 50 + scale(60, v)
	return rgb{r, 200 + scale(55, v), r}
}

func blue(v float64) rgb {
	r := 80 + scale(60, v)
	return rgb{r, r, 205 + scale(50, v)}
}

func yellow(v float64) rgb {
	r := 175 + scale(55, v)
	return rgb{r, r, 50 + scale(20, v)}
}

func aqua(v float64) rgb {
	g := 165 + scale(55, v)
	return rgb{50 + scale(60, v), g, g}
}

func orange(v float64) rgb {
	return rgb{190 + scale(65, v), 90 + scale(65, v), 0}
}
