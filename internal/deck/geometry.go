package deck

import "math"

// EMUPerInch is the Office Open XML length unit ratio.
const EMUPerInch = 914400

// AspectWide is the only canvas the assembler ships with.
const AspectWide = "16:9"

// Rect is a frame on the canvas in EMU.
type Rect struct {
	X, Y, W, H int64
}

// Area returns W*H as a float to avoid overflow on large frames.
func (r Rect) Area() float64 { return float64(r.W) * float64(r.H) }

// Shrink returns r inset by d on every side.
func (r Rect) Shrink(d int64) Rect {
	out := Rect{X: r.X + d, Y: r.Y + d, W: r.W - 2*d, H: r.H - 2*d}
	if out.W < 0 {
		out.W = 0
	}
	if out.H < 0 {
		out.H = 0
	}
	return out
}

func inches(x, y, w, h float64) Rect {
	return Rect{X: emu(x), Y: emu(y), W: emu(w), H: emu(h)}
}

func emu(in float64) int64 { return int64(math.Round(in * EMUPerInch)) }

// Geometry holds the fixed frames of one canvas aspect.
type Geometry struct {
	Canvas  Rect
	Title   Rect
	Divider Rect
	Content Rect
	Insight Rect
	Footer  Rect
	// Inset is the text padding inside panels.
	Inset int64
}

// ContentText is the area bullets are laid out in.
func (g Geometry) ContentText() Rect { return g.Content.Shrink(g.Inset) }

var geometries = map[string]Geometry{
	AspectWide: {
		Canvas:  Rect{W: 12192000, H: 6858000},
		Title:   inches(0.5, 0.4, 12.33, 1.0),
		Divider: inches(0.5, 1.4, 3.0, 0.05),
		Content: inches(0.5, 1.6, 8.5, 5.1),
		Insight: inches(9.2, 1.6, 3.63, 3.0),
		Footer:  Rect{Y: emu(7.0), W: 12192000, H: emu(0.5)},
		Inset:   emu(0.2),
	},
}

// Palette colours are RGB hex strings without '#'.
type Palette struct {
	Background    string
	Title         string
	Accent        string
	Panel         string
	Body          string
	InsightPanel  string
	InsightBorder string
	InsightBody   string
	FooterBand    string
	FooterText    string
}

// DefaultPalette is the dark theme used by every generated deck.
var DefaultPalette = Palette{
	Background:    "0A0F19",
	Title:         "00D2FF",
	Accent:        "00D2FF",
	Panel:         "191E2D",
	Body:          "FFFFFF",
	InsightPanel:  "232D41",
	InsightBorder: "FFBE00",
	InsightBody:   "F0F0F0",
	FooterBand:    "05080F",
	FooterText:    "00F7FF",
}
