package deck

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// MaxModelChars is the default character budget for text handed to the model.
const MaxModelChars = 80000

// ExtractText flattens every slide into one document string. Each slide
// contributes its text-shape paragraphs in document order plus every table
// cell's text in row-major order; slide fragments are separated by a blank
// line. Extraction is a pure read and always deterministic.
func (p *Package) ExtractText() string {
	var fragments []string
	for idx, slide := range p.slides {
		lines := extractSlideLines(slide.data)
		if len(lines) == 0 {
			continue
		}
		fragments = append(fragments, fmt.Sprintf("--- Slide %d ---\n%s", idx+1, strings.Join(lines, "\n")))
	}
	return strings.Join(fragments, "\n\n")
}

// TruncateForModel clamps text to at most budget characters with a plain
// suffix cut. Inputs already under budget pass through unmodified.
func TruncateForModel(text string, budget int) string {
	if budget <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= budget {
		return text
	}
	return string(runes[:budget])
}

// extractSlideLines walks one slide's XML in token order. Paragraphs inside
// table cells accumulate into the cell's text; everything else is emitted
// per paragraph, so output follows shape z-order as stored in the part.
func extractSlideLines(data []byte) []string {
	var (
		lines     []string
		paragraph strings.Builder
		cell      []string
		inText    bool
		tblDepth  int
		tcDepth   int
	)

	flushParagraph := func() {
		text := strings.TrimSpace(paragraph.String())
		paragraph.Reset()
		if text == "" {
			return
		}
		if tcDepth > 0 {
			cell = append(cell, text)
			return
		}
		lines = append(lines, text)
	}

	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Slides are verified well-formed at Open.
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "tbl":
				tblDepth++
			case "tc":
				if tblDepth > 0 {
					tcDepth++
				}
			case "t":
				inText = true
			}
		case xml.CharData:
			if inText {
				paragraph.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				flushParagraph()
			case "tc":
				if tcDepth > 0 {
					tcDepth--
					if text := strings.TrimSpace(strings.Join(cell, "\n")); text != "" {
						lines = append(lines, text)
					}
					cell = cell[:0]
				}
			case "tbl":
				if tblDepth > 0 {
					tblDepth--
				}
			}
		}
	}
	return lines
}
