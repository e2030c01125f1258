package deck

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"

	"slide-master/internal/domain"
)

// inlineParser reads model text as a single paragraph. Block syntax such as
// "1990." or "> 50%" is kept as text; only inline markup is interpreted.
// Nothing is ever rendered as markup.
var inlineParser = parser.NewParser(
	parser.WithBlockParsers(util.Prioritized(parser.NewParagraphParser(), 100)),
	parser.WithInlineParsers(parser.DefaultInlineParsers()...),
)

var (
	bulletGlyphs  = []string{"•", "▪", "◦", "·", "●", "■", "►"}
	bulletMarkers = []string{"- ", "* ", "– ", "— "}
)

var labelSeparators = []string{":", " - ", " – ", " — "}

type textRun struct {
	text   string
	strong bool
}

// normalizePoint turns one model bullet into a ContentPoint. A leading strong
// span followed by a separator ("**Label:** body") becomes a labeled point.
// All inline markdown syntax is dropped from the displayed text.
func normalizePoint(s string) (domain.ContentPoint, bool) {
	runs := inlineRuns(s)
	if label, body, ok := splitLabel(runs); ok {
		return domain.LabeledPoint(label, body), true
	}
	plain := joinRuns(runs)
	if plain == "" {
		plain = collapse(stripBullet(s))
	}
	if plain == "" {
		return domain.ContentPoint{}, false
	}
	return domain.TextPoint(plain), true
}

// cleanInline flattens inline markdown in s to plain, single-spaced text.
func cleanInline(s string) string {
	if plain := joinRuns(inlineRuns(s)); plain != "" {
		return plain
	}
	return collapse(stripBullet(s))
}

func stripBullet(s string) string {
	s = strings.TrimSpace(s)
	for {
		trimmed := s
		for _, g := range bulletGlyphs {
			trimmed = strings.TrimPrefix(trimmed, g)
		}
		for _, m := range bulletMarkers {
			trimmed = strings.TrimPrefix(trimmed, m)
		}
		trimmed = strings.TrimSpace(trimmed)
		if trimmed == s {
			return s
		}
		s = trimmed
	}
}

func inlineRuns(s string) []textRun {
	src := []byte(stripBullet(s))
	if len(src) == 0 {
		return nil
	}
	doc := inlineParser.Parse(text.NewReader(src))

	var (
		runs   []textRun
		strong int
	)
	emit := func(b []byte) {
		if len(b) == 0 {
			return
		}
		on := strong > 0
		if n := len(runs); n > 0 && runs[n-1].strong == on {
			runs[n-1].text += string(b)
			return
		}
		runs = append(runs, textRun{text: string(b), strong: on})
	}

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if n.Type() == ast.TypeBlock {
			if !entering {
				emit([]byte(" "))
			}
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Emphasis:
			if node.Level >= 2 {
				if entering {
					strong++
				} else {
					strong--
				}
			}
		case *ast.Text:
			if entering {
				emit(node.Segment.Value(src))
				if node.SoftLineBreak() || node.HardLineBreak() {
					emit([]byte(" "))
				}
			}
		case *ast.String:
			if entering {
				emit(node.Value)
			}
		case *ast.AutoLink:
			if entering {
				emit(node.Label(src))
			}
			return ast.WalkSkipChildren, nil
		case *ast.RawHTML:
			if entering {
				var buf bytes.Buffer
				for i := 0; i < node.Segments.Len(); i++ {
					seg := node.Segments.At(i)
					buf.Write(seg.Value(src))
				}
				emit(buf.Bytes())
			}
		}
		return ast.WalkContinue, nil
	})
	return runs
}

func splitLabel(runs []textRun) (label, body string, ok bool) {
	for len(runs) > 0 && strings.TrimSpace(runs[0].text) == "" {
		runs = runs[1:]
	}
	if len(runs) < 2 || !runs[0].strong {
		if len(runs) == 1 && runs[0].strong {
			// "**Label: body**" with everything in bold.
			return splitPlain(runs[0].text)
		}
		return "", "", false
	}

	label = collapse(runs[0].text)
	rest := strings.TrimSpace(joinRuns(runs[1:]))
	switch {
	case strings.HasSuffix(label, ":"):
		label = strings.TrimSpace(strings.TrimSuffix(label, ":"))
	default:
		matched := false
		for _, sep := range labelSeparators {
			trimmed := strings.TrimSpace(sep)
			if strings.HasPrefix(rest, trimmed) {
				rest = strings.TrimSpace(strings.TrimPrefix(rest, trimmed))
				matched = true
				break
			}
		}
		if !matched {
			return "", "", false
		}
	}
	if label == "" || rest == "" {
		return "", "", false
	}
	return label, rest, true
}

func splitPlain(s string) (string, string, bool) {
	s = collapse(s)
	i := strings.Index(s, ":")
	if i <= 0 || i == len(s)-1 {
		return "", "", false
	}
	label := strings.TrimSpace(s[:i])
	body := strings.TrimSpace(s[i+1:])
	if label == "" || body == "" {
		return "", "", false
	}
	return label, body, true
}

func joinRuns(runs []textRun) string {
	var b strings.Builder
	for _, r := range runs {
		b.WriteString(r.text)
	}
	return collapse(b.String())
}
