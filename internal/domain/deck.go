package domain

// PointKind tags the ContentPoint variant.
type PointKind int

const (
	PointText PointKind = iota
	PointLabeled
)

// ContentPoint is one bullet. Label is only set for PointLabeled.
type ContentPoint struct {
	Kind  PointKind
	Label string
	Body  string
}

// TextPoint builds a plain bullet.
func TextPoint(body string) ContentPoint {
	return ContentPoint{Kind: PointText, Body: body}
}

// LabeledPoint builds an emphasis-label/body bullet.
func LabeledPoint(label, body string) ContentPoint {
	return ContentPoint{Kind: PointLabeled, Label: label, Body: body}
}

// Insight is the optional side annotation of a slide.
type Insight struct {
	Label string
	Body  string
}

// SlideSpec is the sanitized description of a single slide.
type SlideSpec struct {
	Title   string
	Content []ContentPoint
	Insight *Insight
}

// Deck is the ordered list of slides produced for one request.
type Deck struct {
	Topic  string
	Slides []SlideSpec
}
