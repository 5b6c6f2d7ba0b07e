package deck

import (
	"bytes"
	"encoding/xml"
	"io"
)

// Placeholder identifies the shape designated to receive analysis text.
type Placeholder struct {
	SlideIndex int
	SlidePart  string
	ShapeName  string

	shapeStart int64
	shapeEnd   int64
}

// shapeElements are the spTree children that carry non-visual properties and
// can therefore be named or carry alternate text.
var shapeElements = map[string]bool{
	"sp":           true,
	"pic":          true,
	"graphicFrame": true,
	"grpSp":        true,
	"cxnSp":        true,
}

// FindPlaceholder returns the first shape, in slide-then-shape traversal
// order, whose display name or alternate text equals sentinel. Matching is
// exact: no trimming, no case folding. Absence is a normal outcome reported
// through the boolean, never an error.
func (p *Package) FindPlaceholder(sentinel string) (Placeholder, bool) {
	if sentinel == "" {
		return Placeholder{}, false
	}
	for idx, slide := range p.slides {
		if ph, ok := findShapeInSlide(slide.data, sentinel); ok {
			ph.SlideIndex = idx
			ph.SlidePart = slide.name
			return ph, true
		}
	}
	return Placeholder{}, false
}

type openShape struct {
	local string
	start int64
	depth int
}

// findShapeInSlide scans one slide's XML, tracking byte offsets so a match
// records the exact extent of its owning shape element.
func findShapeInSlide(data []byte, sentinel string) (Placeholder, bool) {
	var (
		stack   []openShape
		depth   int
		matched = -1
		found   Placeholder
	)

	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		offset := dec.InputOffset()
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if shapeElements[t.Name.Local] {
				stack = append(stack, openShape{local: t.Name.Local, start: offset, depth: depth})
			}
			if t.Name.Local == "cNvPr" && matched < 0 && len(stack) > 0 {
				name, descr := cNvPrIdentity(t)
				if name == sentinel || descr == sentinel {
					matched = len(stack) - 1
					found.ShapeName = name
					found.shapeStart = stack[matched].start
				}
			}
		case xml.EndElement:
			if len(stack) > 0 && stack[len(stack)-1].depth == depth {
				top := len(stack) - 1
				if matched == top {
					found.shapeEnd = dec.InputOffset()
					return found, true
				}
				stack = stack[:top]
			}
			depth--
		}
	}
	return Placeholder{}, false
}

func cNvPrIdentity(start xml.StartElement) (name, descr string) {
	for _, attr := range start.Attr {
		switch attr.Name.Local {
		case "name":
			name = attr.Value
		case "descr":
			descr = attr.Value
		}
	}
	return name, descr
}
