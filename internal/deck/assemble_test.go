package deck

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"slide-master/internal/domain"
)

func elementNames(s Slide) []string {
	names := make([]string, len(s.Elements))
	for i, el := range s.Elements {
		names[i] = el.Name
	}
	return names
}

func findElement(t *testing.T, s Slide, name string) Element {
	t.Helper()
	for _, el := range s.Elements {
		if el.Name == name {
			return el
		}
	}
	t.Fatalf("element %q not found in %v", name, elementNames(s))
	return Element{}
}

func paragraphText(p Paragraph) string {
	var b strings.Builder
	for _, r := range p.Runs {
		b.WriteString(r.Text)
	}
	return b.String()
}

func TestAssembler_SlideElements(t *testing.T) {
	a := NewAssembler("")
	spec := domain.SlideSpec{
		Title: "energy mix",
		Content: []domain.ContentPoint{
			domain.TextPoint("Solar grows fastest"),
			domain.LabeledPoint("Wind", "offshore expansion"),
		},
		Insight: &domain.Insight{Label: "Fact", Body: "Costs fell 90%"},
	}
	slide := a.Slide(spec, Allocate(spec.Content, a.Region()), Position{Ordinal: 2, Total: 5})

	require.Equal(t, []string{
		"background", "title", "divider", "content", "insight",
		"footer", "footer-brand", "footer-ordinal",
	}, elementNames(slide))

	title := findElement(t, slide, "title")
	require.Equal(t, "ENERGY MIX", paragraphText(title.Paragraphs[0]))
	require.True(t, title.Paragraphs[0].Runs[0].Bold)

	content := findElement(t, slide, "content")
	require.Equal(t, ShapeRoundRect, content.Kind)
	require.Len(t, content.Paragraphs, 2)
	require.Equal(t, "• Solar grows fastest", paragraphText(content.Paragraphs[0]))
	require.Equal(t, "• Wind: offshore expansion", paragraphText(content.Paragraphs[1]))
	require.True(t, content.Paragraphs[1].Runs[1].Bold)
	require.False(t, content.Paragraphs[1].Runs[2].Bold)
	require.Equal(t, TierLarge.Points(), content.Paragraphs[1].Runs[2].Size)

	insight := findElement(t, slide, "insight")
	require.Equal(t, "FACT", paragraphText(insight.Paragraphs[0]))
	require.Equal(t, "Costs fell 90%", paragraphText(insight.Paragraphs[1]))

	require.Equal(t, DefaultBrand, paragraphText(findElement(t, slide, "footer-brand").Paragraphs[0]))
	ordinal := findElement(t, slide, "footer-ordinal")
	require.Equal(t, "2 / 5", paragraphText(ordinal.Paragraphs[0]))
	require.Equal(t, AlignRight, ordinal.Paragraphs[0].Align)
}

func TestAssembler_MissingData(t *testing.T) {
	a := NewAssembler("Brand")
	slide := a.Slide(domain.SlideSpec{}, Plan{}, Position{Ordinal: 1, Total: 1})

	require.NotContains(t, elementNames(slide), "insight")
	require.Equal(t, "UNTITLED", paragraphText(findElement(t, slide, "title").Paragraphs[0]))
	require.Empty(t, findElement(t, slide, "content").Paragraphs)
	require.Equal(t, "Brand", paragraphText(findElement(t, slide, "footer-brand").Paragraphs[0]))
}

func TestAssembler_BlankInsightOmitted(t *testing.T) {
	a := NewAssembler("")
	slide := a.Slide(domain.SlideSpec{Title: "x", Insight: &domain.Insight{Body: "  "}}, Plan{}, Position{Ordinal: 1, Total: 1})
	require.NotContains(t, elementNames(slide), "insight")
}

func TestAssembler_ContentNeverExceedsCapacity(t *testing.T) {
	a := NewAssembler("")
	spec := domain.SlideSpec{Title: "Long", Content: points(12, 25)}
	doc := a.Assemble(domain.Deck{Topic: "t", Slides: []domain.SlideSpec{spec}})

	require.Len(t, doc.Slides, 1)
	content := findElement(t, doc.Slides[0], "content")
	require.Len(t, content.Paragraphs, DefaultCapacity)
	for i, p := range content.Paragraphs {
		require.Equal(t, "• "+spec.Content[i].Body, paragraphText(p))
	}
}

func TestAssembler_Document(t *testing.T) {
	a := NewAssembler("")
	d := domain.Deck{Topic: "Climate", Slides: []domain.SlideSpec{{Title: "a"}, {Title: "b"}, {Title: "c"}}}
	doc := a.Assemble(d)

	require.Equal(t, "Climate", doc.Title)
	require.Equal(t, int64(12192000), doc.Width)
	require.Equal(t, int64(6858000), doc.Height)
	require.Len(t, doc.Slides, 3)
	require.Equal(t, "3 / 3", paragraphText(findElement(t, doc.Slides[2], "footer-ordinal").Paragraphs[0]))
	require.Equal(t, doc, a.Assemble(d))
}
