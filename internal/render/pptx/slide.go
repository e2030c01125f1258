package pptx

import (
	"fmt"
	"strings"

	"slide-master/internal/deck"
)

const groupHeader = `<p:nvGrpSpPr><p:cNvPr id="1" name=""/><p:cNvGrpSpPr/><p:nvPr/></p:nvGrpSpPr>` +
	`<p:grpSpPr><a:xfrm><a:off x="0" y="0"/><a:ext cx="0" cy="0"/><a:chOff x="0" y="0"/><a:chExt cx="0" cy="0"/></a:xfrm></p:grpSpPr>`

func slideXML(s deck.Slide) string {
	var b strings.Builder
	b.WriteString(xmlHeader)
	fmt.Fprintf(&b, `<p:sld xmlns:a="%s" xmlns:r="%s" xmlns:p="%s">`, nsA, nsR, nsP)
	b.WriteString(`<p:cSld><p:spTree>`)
	b.WriteString(groupHeader)
	for i, el := range s.Elements {
		writeShape(&b, el, i+2)
	}
	b.WriteString(`</p:spTree></p:cSld>`)
	b.WriteString(`<p:clrMapOvr><a:masterClrMapping/></p:clrMapOvr>`)
	b.WriteString(`</p:sld>`)
	return b.String()
}

func writeShape(b *strings.Builder, el deck.Element, id int) {
	name := el.Name
	if name == "" {
		name = fmt.Sprintf("Shape %d", id)
	}
	fmt.Fprintf(b, `<p:sp><p:nvSpPr><p:cNvPr id="%d" name="%s"/><p:cNvSpPr/><p:nvPr/></p:nvSpPr>`, id, escape(name))

	b.WriteString(`<p:spPr>`)
	fmt.Fprintf(b, `<a:xfrm><a:off x="%d" y="%d"/><a:ext cx="%d" cy="%d"/></a:xfrm>`,
		el.Frame.X, el.Frame.Y, el.Frame.W, el.Frame.H)
	geom := "rect"
	if el.Kind == deck.ShapeRoundRect {
		geom = "roundRect"
	}
	fmt.Fprintf(b, `<a:prstGeom prst="%s"><a:avLst/></a:prstGeom>`, geom)
	if el.Fill != "" {
		writeSolid(b, el.Fill)
	} else {
		b.WriteString(`<a:noFill/>`)
	}
	if el.Line != "" {
		fmt.Fprintf(b, `<a:ln w="%d">`, borderWidth)
		writeSolid(b, el.Line)
		b.WriteString(`</a:ln>`)
	} else {
		b.WriteString(`<a:ln><a:noFill/></a:ln>`)
	}
	b.WriteString(`</p:spPr>`)

	if el.Kind != deck.ShapeRect || len(el.Paragraphs) > 0 {
		writeText(b, el)
	}
	b.WriteString(`</p:sp>`)
}

func writeText(b *strings.Builder, el deck.Element) {
	anchor := "t"
	if el.Anchor == deck.AnchorMiddle {
		anchor = "ctr"
	}
	fmt.Fprintf(b, `<p:txBody><a:bodyPr wrap="square" lIns="%d" tIns="%d" rIns="%d" bIns="%d" anchor="%s"><a:noAutofit/></a:bodyPr><a:lstStyle/>`,
		el.Inset, el.Inset, el.Inset, el.Inset, anchor)
	if len(el.Paragraphs) == 0 {
		b.WriteString(`<a:p><a:endParaRPr lang="en-US"/></a:p>`)
	}
	for _, p := range el.Paragraphs {
		b.WriteString(`<a:p>`)
		fmt.Fprintf(b, `<a:pPr algn="%s">`, align(p.Align))
		if p.SpaceBefore > 0 {
			fmt.Fprintf(b, `<a:spcBef><a:spcPts val="%d"/></a:spcBef>`, p.SpaceBefore*100)
		}
		b.WriteString(`</a:pPr>`)
		for _, r := range p.Runs {
			writeRun(b, r)
		}
		b.WriteString(`<a:endParaRPr lang="en-US"/></a:p>`)
	}
	b.WriteString(`</p:txBody>`)
}

func writeRun(b *strings.Builder, r deck.Run) {
	b.WriteString(`<a:r><a:rPr lang="en-US"`)
	if r.Size > 0 {
		fmt.Fprintf(b, ` sz="%d"`, r.Size*100)
	}
	if r.Bold {
		b.WriteString(` b="1"`)
	}
	b.WriteString(` dirty="0">`)
	if r.Color != "" {
		writeSolid(b, r.Color)
	}
	fmt.Fprintf(b, `</a:rPr><a:t>%s</a:t></a:r>`, escape(r.Text))
}

func writeSolid(b *strings.Builder, hex string) {
	fmt.Fprintf(b, `<a:solidFill><a:srgbClr val="%s"/></a:solidFill>`, escape(strings.ToUpper(hex)))
}

func align(a deck.Align) string {
	switch a {
	case deck.AlignCenter:
		return "ctr"
	case deck.AlignRight:
		return "r"
	default:
		return "l"
	}
}
