// Package pptx encodes assembled decks as PresentationML packages.
package pptx

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"

	"slide-master/internal/deck"
)

// ContentType is the MIME type of an encoded deck.
const ContentType = "application/vnd.openxmlformats-officedocument.presentationml.presentation"

const (
	xmlHeader = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n"

	nsA   = "http://schemas.openxmlformats.org/drawingml/2006/main"
	nsR   = "http://schemas.openxmlformats.org/officeDocument/2006/relationships"
	nsP   = "http://schemas.openxmlformats.org/presentationml/2006/main"
	nsRel = "http://schemas.openxmlformats.org/package/2006/relationships"

	relOffice    = nsR + "/officeDocument"
	relExtended  = nsR + "/extended-properties"
	relCore      = "http://schemas.openxmlformats.org/package/2006/relationships/metadata/core-properties"
	relMaster    = nsR + "/slideMaster"
	relLayout    = nsR + "/slideLayout"
	relTheme     = nsR + "/theme"
	relSlide     = nsR + "/slide"
	firstSlideID = 256
	borderWidth  = 19050
	appName      = "Slide Master"
)

// zipEpoch pins entry timestamps so equal documents encode to equal bytes.
var zipEpoch = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)

type part struct {
	name string
	body string
}

// Encode returns the .pptx bytes for doc.
func Encode(doc deck.Document) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write streams the .pptx package for doc to w.
func Write(w io.Writer, doc deck.Document) error {
	if len(doc.Slides) == 0 {
		return fmt.Errorf("pptx: document has no slides")
	}
	if doc.Width <= 0 || doc.Height <= 0 {
		return fmt.Errorf("pptx: invalid canvas %dx%d", doc.Width, doc.Height)
	}

	zw := zip.NewWriter(w)
	for _, p := range parts(doc) {
		hdr := &zip.FileHeader{Name: p.name, Method: zip.Deflate, Modified: zipEpoch}
		fw, err := zw.CreateHeader(hdr)
		if err != nil {
			return fmt.Errorf("pptx: create %s: %w", p.name, err)
		}
		if _, err := io.WriteString(fw, p.body); err != nil {
			return fmt.Errorf("pptx: write %s: %w", p.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("pptx: close package: %w", err)
	}
	return nil
}

func parts(doc deck.Document) []part {
	n := len(doc.Slides)
	out := []part{
		{"[Content_Types].xml", contentTypes(n)},
		{"_rels/.rels", rootRels()},
		{"docProps/core.xml", coreProps(doc.Title)},
		{"docProps/app.xml", appProps(n)},
		{"ppt/presentation.xml", presentation(doc, n)},
		{"ppt/_rels/presentation.xml.rels", presentationRels(n)},
		{"ppt/slideMasters/slideMaster1.xml", slideMaster},
		{"ppt/slideMasters/_rels/slideMaster1.xml.rels", relationships(
			rel{"rId1", relLayout, "../slideLayouts/slideLayout1.xml"},
			rel{"rId2", relTheme, "../theme/theme1.xml"},
		)},
		{"ppt/slideLayouts/slideLayout1.xml", slideLayout},
		{"ppt/slideLayouts/_rels/slideLayout1.xml.rels", relationships(
			rel{"rId1", relMaster, "../slideMasters/slideMaster1.xml"},
		)},
		{"ppt/theme/theme1.xml", theme},
	}
	for i, s := range doc.Slides {
		out = append(out,
			part{fmt.Sprintf("ppt/slides/slide%d.xml", i+1), slideXML(s)},
			part{fmt.Sprintf("ppt/slides/_rels/slide%d.xml.rels", i+1), relationships(
				rel{"rId1", relLayout, "../slideLayouts/slideLayout1.xml"},
			)},
		)
	}
	return out
}

type rel struct {
	id, typ, target string
}

func relationships(rels ...rel) string {
	var b strings.Builder
	b.WriteString(xmlHeader)
	fmt.Fprintf(&b, `<Relationships xmlns="%s">`, nsRel)
	for _, r := range rels {
		fmt.Fprintf(&b, `<Relationship Id="%s" Type="%s" Target="%s"/>`, r.id, r.typ, r.target)
	}
	b.WriteString(`</Relationships>`)
	return b.String()
}

func rootRels() string {
	return relationships(
		rel{"rId1", relOffice, "ppt/presentation.xml"},
		rel{"rId2", relCore, "docProps/core.xml"},
		rel{"rId3", relExtended, "docProps/app.xml"},
	)
}

func contentTypes(slides int) string {
	const pml = "application/vnd.openxmlformats-officedocument.presentationml."
	var b strings.Builder
	b.WriteString(xmlHeader)
	b.WriteString(`<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">`)
	b.WriteString(`<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>`)
	b.WriteString(`<Default Extension="xml" ContentType="application/xml"/>`)
	override := func(name, typ string) {
		fmt.Fprintf(&b, `<Override PartName="%s" ContentType="%s"/>`, name, typ)
	}
	override("/ppt/presentation.xml", pml+"presentation.main+xml")
	override("/ppt/slideMasters/slideMaster1.xml", pml+"slideMaster+xml")
	override("/ppt/slideLayouts/slideLayout1.xml", pml+"slideLayout+xml")
	override("/ppt/theme/theme1.xml", "application/vnd.openxmlformats-officedocument.theme+xml")
	for i := 1; i <= slides; i++ {
		override(fmt.Sprintf("/ppt/slides/slide%d.xml", i), pml+"slide+xml")
	}
	override("/docProps/core.xml", "application/vnd.openxmlformats-package.core-properties+xml")
	override("/docProps/app.xml", "application/vnd.openxmlformats-officedocument.extended-properties+xml")
	b.WriteString(`</Types>`)
	return b.String()
}

func coreProps(title string) string {
	var b strings.Builder
	b.WriteString(xmlHeader)
	b.WriteString(`<cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties" xmlns:dc="http://purl.org/dc/elements/1.1/">`)
	fmt.Fprintf(&b, `<dc:title>%s</dc:title><dc:creator>%s</dc:creator>`, escape(title), appName)
	b.WriteString(`</cp:coreProperties>`)
	return b.String()
}

func appProps(slides int) string {
	return xmlHeader +
		`<Properties xmlns="http://schemas.openxmlformats.org/officeDocument/2006/extended-properties">` +
		fmt.Sprintf(`<Application>%s</Application><Slides>%d</Slides>`, appName, slides) +
		`</Properties>`
}

func presentation(doc deck.Document, slides int) string {
	var b strings.Builder
	b.WriteString(xmlHeader)
	fmt.Fprintf(&b, `<p:presentation xmlns:a="%s" xmlns:r="%s" xmlns:p="%s">`, nsA, nsR, nsP)
	b.WriteString(`<p:sldMasterIdLst><p:sldMasterId id="2147483648" r:id="rId1"/></p:sldMasterIdLst>`)
	b.WriteString(`<p:sldIdLst>`)
	for i := 0; i < slides; i++ {
		fmt.Fprintf(&b, `<p:sldId id="%d" r:id="rId%d"/>`, firstSlideID+i, i+3)
	}
	b.WriteString(`</p:sldIdLst>`)
	fmt.Fprintf(&b, `<p:sldSz cx="%d" cy="%d"/>`, doc.Width, doc.Height)
	b.WriteString(`<p:notesSz cx="6858000" cy="9144000"/>`)
	b.WriteString(`</p:presentation>`)
	return b.String()
}

func presentationRels(slides int) string {
	rels := []rel{
		{"rId1", relMaster, "slideMasters/slideMaster1.xml"},
		{"rId2", relTheme, "theme/theme1.xml"},
	}
	for i := 1; i <= slides; i++ {
		rels = append(rels, rel{fmt.Sprintf("rId%d", i+2), relSlide, fmt.Sprintf("slides/slide%d.xml", i)})
	}
	return relationships(rels...)
}

func escape(s string) string {
	var b strings.Builder
	// EscapeText only fails when the writer does.
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}
