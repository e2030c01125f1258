package deck

import (
	"encoding/json"
	"strings"

	"slide-master/internal/domain"
)

// DefaultInsightLabel is shown when the model gives an insight without a label.
const DefaultInsightLabel = "INFO"

var (
	titleKeys   = []string{"title", "heading"}
	contentKeys = []string{"content", "points", "bullets"}
	labelKeys   = []string{"bold", "label", "title", "heading"}
	bodyKeys    = []string{"text", "body", "description", "content"}
)

// Decode turns a sanitized tree into a Deck, resolving every default once.
// Entries that are not objects are skipped; at most requested slides are kept
// in their original order. A result without slides is a MalformedError.
func Decode(tree map[string]any, topic string, requested int) (domain.Deck, error) {
	raw, _ := tree[keySlides].([]any)
	topic = collapse(topic)

	capHint := len(raw)
	if requested > 0 && requested < capHint {
		capHint = requested
	}
	slides := make([]domain.SlideSpec, 0, capHint)
	for _, entry := range raw {
		if requested > 0 && len(slides) == requested {
			break
		}
		obj, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		slides = append(slides, decodeSlide(obj, topic))
	}
	if len(slides) == 0 {
		return domain.Deck{}, malformed("no_slides", nil)
	}
	return domain.Deck{Topic: topic, Slides: slides}, nil
}

func decodeSlide(obj map[string]any, topic string) domain.SlideSpec {
	title := cleanInline(firstString(obj, titleKeys...))
	if title == "" {
		title = topic
	}
	return domain.SlideSpec{
		Title:   title,
		Content: decodeContent(firstValue(obj, contentKeys...)),
		Insight: decodeInsight(obj["insight"]),
	}
}

func decodeContent(v any) []domain.ContentPoint {
	var items []any
	switch t := v.(type) {
	case []any:
		items = t
	case string, json.Number, map[string]any:
		items = []any{t}
	default:
		return nil
	}

	points := make([]domain.ContentPoint, 0, len(items))
	for _, item := range items {
		if p, ok := decodePoint(item); ok {
			points = append(points, p)
		}
	}
	return points
}

func decodePoint(v any) (domain.ContentPoint, bool) {
	switch t := v.(type) {
	case string:
		return normalizePoint(t)
	case json.Number:
		return domain.TextPoint(t.String()), true
	case map[string]any:
		label := cleanInline(firstString(t, labelKeys...))
		body := cleanInline(firstString(t, bodyKeys...))
		switch {
		case label != "" && body != "":
			return domain.LabeledPoint(strings.TrimSuffix(label, ":"), body), true
		case body != "":
			return domain.TextPoint(body), true
		case label != "":
			return domain.TextPoint(label), true
		}
	}
	return domain.ContentPoint{}, false
}

func decodeInsight(v any) *domain.Insight {
	var label, body string
	switch t := v.(type) {
	case string:
		body = cleanInline(t)
	case map[string]any:
		label = cleanInline(firstString(t, "label", "title"))
		body = cleanInline(firstString(t, "text", "body", "content"))
	}
	if body == "" {
		return nil
	}
	if label == "" {
		label = DefaultInsightLabel
	}
	return &domain.Insight{Label: label, Body: body}
}

func firstValue(obj map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := obj[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func firstString(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := obj[k].(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				return v
			}
		case json.Number:
			return v.String()
		}
	}
	return ""
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
