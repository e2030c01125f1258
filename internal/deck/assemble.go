package deck

import (
	"fmt"
	"strings"

	"slide-master/internal/domain"
)

// DefaultBrand is printed in every footer band.
const DefaultBrand = "Slide Master AI"

const (
	titleSize    = 36
	labelSize    = 14
	insightSize  = 15
	footerSize   = 12
	fallbackName = "Untitled"
)

// ElementKind is the primitive shape behind an Element.
type ElementKind int

const (
	ShapeRect ElementKind = iota
	ShapeRoundRect
	ShapeText
)

// Align is horizontal paragraph alignment.
type Align int

const (
	AlignLeft Align = iota
	AlignCenter
	AlignRight
)

// Anchor is vertical text anchoring inside a frame.
type Anchor int

const (
	AnchorTop Anchor = iota
	AnchorMiddle
)

// Run is a span of uniformly styled text.
type Run struct {
	Text  string
	Bold  bool
	Size  int // points
	Color string
}

type Paragraph struct {
	Runs        []Run
	Align       Align
	SpaceBefore int // points
}

// Element is one drawable on a slide. Fill and Line are hex colours; empty means none.
type Element struct {
	Name       string
	Kind       ElementKind
	Frame      Rect
	Fill       string
	Line       string
	Inset      int64
	Anchor     Anchor
	Paragraphs []Paragraph
}

type Slide struct {
	Elements []Element
}

// Document is a complete assembled deck ready for encoding.
type Document struct {
	Title  string
	Width  int64
	Height int64
	Slides []Slide
}

// Position is the 1-based ordinal of a slide in its deck.
type Position struct {
	Ordinal int
	Total   int
}

// Assembler lays out slides on a fixed canvas. It is safe for concurrent use.
type Assembler struct {
	geometry Geometry
	palette  Palette
	brand    string
}

// NewAssembler returns an assembler for the 16:9 canvas. An empty brand uses DefaultBrand.
func NewAssembler(brand string) *Assembler {
	if strings.TrimSpace(brand) == "" {
		brand = DefaultBrand
	}
	return &Assembler{
		geometry: geometries[AspectWide],
		palette:  DefaultPalette,
		brand:    brand,
	}
}

// Region is the content region plans are computed against.
func (a *Assembler) Region() Region {
	return Region{Frame: a.geometry.ContentText(), Capacity: DefaultCapacity}
}

// Plan computes a layout plan per slide.
func (a *Assembler) Plan(d domain.Deck) []Plan {
	region := a.Region()
	plans := make([]Plan, len(d.Slides))
	for i, s := range d.Slides {
		plans[i] = Allocate(s.Content, region)
	}
	return plans
}

// Assemble plans and lays out every slide of d.
func (a *Assembler) Assemble(d domain.Deck) Document {
	return a.AssemblePlanned(d, a.Plan(d))
}

// AssemblePlanned lays out d with precomputed plans. Missing plans are computed.
func (a *Assembler) AssemblePlanned(d domain.Deck, plans []Plan) Document {
	doc := Document{
		Title:  collapse(d.Topic),
		Width:  a.geometry.Canvas.W,
		Height: a.geometry.Canvas.H,
		Slides: make([]Slide, 0, len(d.Slides)),
	}
	if doc.Title == "" {
		doc.Title = fallbackName
	}
	total := len(d.Slides)
	for i, spec := range d.Slides {
		plan := Plan{}
		if i < len(plans) {
			plan = plans[i]
		} else {
			plan = Allocate(spec.Content, a.Region())
		}
		doc.Slides = append(doc.Slides, a.Slide(spec, plan, Position{Ordinal: i + 1, Total: total}))
	}
	return doc
}

// Slide lays out one slide. It never fails; absent data yields fewer elements.
func (a *Assembler) Slide(spec domain.SlideSpec, plan Plan, pos Position) Slide {
	g, p := a.geometry, a.palette

	title := strings.ToUpper(collapse(spec.Title))
	if title == "" {
		title = strings.ToUpper(fallbackName)
	}

	els := []Element{
		{Name: "background", Kind: ShapeRect, Frame: g.Canvas, Fill: p.Background},
		{
			Name:   "title",
			Kind:   ShapeText,
			Frame:  g.Title,
			Anchor: AnchorMiddle,
			Paragraphs: []Paragraph{{
				Runs: []Run{{Text: title, Bold: true, Size: titleSize, Color: p.Title}},
			}},
		},
		{Name: "divider", Kind: ShapeRect, Frame: g.Divider, Fill: p.Accent},
		{
			Name:       "content",
			Kind:       ShapeRoundRect,
			Frame:      g.Content,
			Fill:       p.Panel,
			Inset:      g.Inset,
			Paragraphs: a.bullets(plan),
		},
	}

	if spec.Insight != nil && strings.TrimSpace(spec.Insight.Body) != "" {
		label := collapse(spec.Insight.Label)
		if label == "" {
			label = DefaultInsightLabel
		}
		els = append(els, Element{
			Name:  "insight",
			Kind:  ShapeRoundRect,
			Frame: g.Insight,
			Fill:  p.InsightPanel,
			Line:  p.InsightBorder,
			Inset: g.Inset,
			Paragraphs: []Paragraph{
				{Runs: []Run{{Text: strings.ToUpper(label), Bold: true, Size: labelSize, Color: p.InsightBorder}}},
				{Runs: []Run{{Text: collapse(spec.Insight.Body), Size: insightSize, Color: p.InsightBody}}, SpaceBefore: 6},
			},
		})
	}

	footerText := g.Footer.Shrink(g.Inset / 2)
	els = append(els,
		Element{Name: "footer", Kind: ShapeRect, Frame: g.Footer, Fill: p.FooterBand},
		Element{
			Name:   "footer-brand",
			Kind:   ShapeText,
			Frame:  footerText,
			Anchor: AnchorMiddle,
			Paragraphs: []Paragraph{{
				Runs: []Run{{Text: a.brand, Bold: true, Size: footerSize, Color: p.FooterText}},
			}},
		},
		Element{
			Name:   "footer-ordinal",
			Kind:   ShapeText,
			Frame:  footerText,
			Anchor: AnchorMiddle,
			Paragraphs: []Paragraph{{
				Align: AlignRight,
				Runs:  []Run{{Text: fmt.Sprintf("%d / %d", pos.Ordinal, pos.Total), Size: footerSize, Color: p.FooterText}},
			}},
		},
	)
	return Slide{Elements: els}
}

func (a *Assembler) bullets(plan Plan) []Paragraph {
	size := plan.Tier.Points()
	out := make([]Paragraph, 0, len(plan.Items))
	for i, it := range plan.Items {
		para := Paragraph{Runs: []Run{{Text: "• ", Size: size, Color: a.palette.Accent}}}
		if i > 0 {
			para.SpaceBefore = size / 2
		}
		if it.Kind == domain.PointLabeled && it.Label != "" {
			para.Runs = append(para.Runs, Run{Text: it.Label + ": ", Bold: true, Size: size, Color: a.palette.Title})
		}
		para.Runs = append(para.Runs, Run{Text: it.Body, Size: size, Color: a.palette.Body})
		out = append(out, para)
	}
	return out
}
