package deck

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// Rewrite produces new package bytes in which the placeholder shape's text is
// replaced by text, one paragraph per line. The first original paragraph's
// properties and first run's properties are captured verbatim and applied to
// every output line, so bullet and font formatting survive even when the line
// count changes. Every zip entry other than the rewritten slide is copied raw
// and stays byte-identical. The source package is never modified.
func (p *Package) Rewrite(sentinel, text string) ([]byte, error) {
	placeholder, ok := p.FindPlaceholder(sentinel)
	if !ok {
		return nil, fmt.Errorf("%w: no shape named or described %q in any slide", ErrPlaceholderNotFound, sentinel)
	}
	return p.RewriteAt(placeholder, text)
}

// RewriteAt rewrites a previously located placeholder. Callers that already
// ran FindPlaceholder avoid a second traversal.
func (p *Package) RewriteAt(placeholder Placeholder, text string) ([]byte, error) {
	if placeholder.SlideIndex < 0 || placeholder.SlideIndex >= len(p.slides) {
		return nil, fmt.Errorf("%w: placeholder slide index %d out of range", ErrRewriteFailed, placeholder.SlideIndex)
	}
	slide := p.slides[placeholder.SlideIndex]
	if placeholder.shapeEnd <= placeholder.shapeStart || placeholder.shapeEnd > int64(len(slide.data)) {
		return nil, fmt.Errorf("%w: placeholder extent invalid for %s", ErrRewriteFailed, slide.name)
	}

	shape := slide.data[placeholder.shapeStart:placeholder.shapeEnd]
	body, err := scanTextBody(shape)
	if err != nil {
		return nil, fmt.Errorf("%w: shape %q in %s: %w", ErrRewriteFailed, placeholder.ShapeName, slide.name, err)
	}

	rebuilt := body.rebuild(text)

	newShape := make([]byte, 0, len(shape)+len(rebuilt))
	newShape = append(newShape, shape[:body.start]...)
	newShape = append(newShape, rebuilt...)
	newShape = append(newShape, shape[body.end:]...)

	newSlide := make([]byte, 0, len(slide.data)+len(newShape))
	newSlide = append(newSlide, slide.data[:placeholder.shapeStart]...)
	newSlide = append(newSlide, newShape...)
	newSlide = append(newSlide, slide.data[placeholder.shapeEnd:]...)

	return p.repack(slide.name, newSlide)
}

// textBody captures the raw pieces of the placeholder's <p:txBody> needed to
// reassemble it around freshly built paragraphs.
type textBody struct {
	start int64 // offset of <p:txBody> within the shape bytes
	end   int64 // offset just past </p:txBody>

	openTag  []byte // raw start tag, attributes preserved
	closeTag []byte // raw end tag
	preamble []byte // raw <a:bodyPr> and <a:lstStyle>, if present

	paraTag string // raw paragraph element name, e.g. "a:p"
	paraPr  []byte // raw first-paragraph properties, may be empty
	runPr   []byte // raw first-run properties, may be empty
}

// scanTextBody locates the shape's direct text body and captures the style
// template from its first paragraph and run. Shapes without a text body
// (pictures, tables) cannot be rewritten.
func scanTextBody(shape []byte) (*textBody, error) {
	var (
		body       *textBody
		depth      int
		bodyDepth  = -1
		paraDepth  = -1
		runDepth   = -1
		paraSeen   bool
		endParaRPr []byte
	)

	dec := xml.NewDecoder(bytes.NewReader(shape))
	for {
		offset := dec.InputOffset()
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("scan text body: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			switch {
			case t.Name.Local == "txBody" && body == nil && depth == 2:
				after := dec.InputOffset()
				body = &textBody{
					start:   offset,
					openTag: clone(shape[offset:after]),
				}
				bodyDepth = depth
			case body != nil && depth == bodyDepth+1 && (t.Name.Local == "bodyPr" || t.Name.Local == "lstStyle"):
				raw, err := rawElement(dec, shape, offset, t)
				if err != nil {
					return nil, err
				}
				body.preamble = append(body.preamble, raw...)
				depth-- // rawElement consumed the matching end tag
			case body != nil && depth == bodyDepth+1 && t.Name.Local == "p" && !paraSeen:
				paraSeen = true
				paraDepth = depth
				body.paraTag = rawTagName(shape[offset:])
			case paraDepth > 0 && depth == paraDepth+1 && t.Name.Local == "pPr" && body.paraPr == nil:
				raw, err := rawElement(dec, shape, offset, t)
				if err != nil {
					return nil, err
				}
				body.paraPr = raw
				depth--
			case paraDepth > 0 && depth == paraDepth+1 && t.Name.Local == "r" && runDepth < 0:
				runDepth = depth
			case runDepth > 0 && depth == runDepth+1 && t.Name.Local == "rPr" && body.runPr == nil:
				raw, err := rawElement(dec, shape, offset, t)
				if err != nil {
					return nil, err
				}
				body.runPr = raw
				depth--
			case paraDepth > 0 && depth == paraDepth+1 && t.Name.Local == "endParaRPr" && endParaRPr == nil:
				raw, err := rawElement(dec, shape, offset, t)
				if err != nil {
					return nil, err
				}
				endParaRPr = raw
				depth--
			}
		case xml.EndElement:
			if body != nil && depth == bodyDepth && t.Name.Local == "txBody" && body.closeTag == nil {
				body.closeTag = clone(shape[offset:dec.InputOffset()])
				body.end = dec.InputOffset()
			}
			if depth == paraDepth && t.Name.Local == "p" {
				paraDepth = -1
			}
			if depth == runDepth && t.Name.Local == "r" {
				runDepth = -1
			}
			depth--
		}
	}

	if body == nil || body.closeTag == nil {
		return nil, fmt.Errorf("shape has no text body")
	}
	if body.runPr == nil && endParaRPr != nil {
		// A paragraph with no runs keeps its run formatting on the paragraph
		// mark; promote it to run properties for the rebuilt lines.
		body.runPr = renameElement(endParaRPr, "endParaRPr", "rPr")
	}
	if body.paraTag == "" {
		// No paragraphs at all: borrow the drawing prefix from bodyPr when
		// present, otherwise assume the conventional binding.
		if len(body.preamble) > 0 {
			body.paraTag = prefixOf(rawTagName(body.preamble)) + "p"
		} else {
			body.paraTag = "a:p"
		}
	}
	return body, nil
}

// rebuild assembles a replacement text body: preserved open tag, bodyPr and
// list style, then one templated paragraph per line of text. Empty text
// yields a single empty paragraph.
func (b *textBody) rebuild(text string) []byte {
	prefix := prefixOf(b.paraTag)
	var lines []string
	if text != "" {
		lines = strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	}

	var out bytes.Buffer
	out.Write(b.openTag)
	out.Write(b.preamble)

	if len(lines) == 0 {
		out.WriteString("<" + b.paraTag + ">")
		out.Write(b.paraPr)
		out.WriteString("</" + b.paraTag + ">")
	}
	for _, line := range lines {
		out.WriteString("<" + b.paraTag + ">")
		out.Write(b.paraPr)
		if line != "" {
			out.WriteString("<" + prefix + "r>")
			out.Write(b.runPr)
			out.WriteString("<" + prefix + "t>")
			_ = xml.EscapeText(&out, []byte(line))
			out.WriteString("</" + prefix + "t>")
			out.WriteString("</" + prefix + "r>")
		}
		out.WriteString("</" + b.paraTag + ">")
	}

	out.Write(b.closeTag)
	return out.Bytes()
}

// repack writes a new archive, copying every entry raw except the modified
// slide part, which is recompressed under its original header settings.
func (p *Package) repack(modifiedPart string, content []byte) ([]byte, error) {
	var out bytes.Buffer
	writer := zip.NewWriter(&out)

	for _, file := range p.reader.File {
		if file.Name == modifiedPart {
			header := &zip.FileHeader{
				Name:     file.Name,
				Method:   file.Method,
				Modified: file.Modified,
			}
			w, err := writer.CreateHeader(header)
			if err != nil {
				return nil, fmt.Errorf("%w: write %s: %w", ErrRewriteFailed, file.Name, err)
			}
			if _, err := w.Write(content); err != nil {
				return nil, fmt.Errorf("%w: write %s: %w", ErrRewriteFailed, file.Name, err)
			}
			continue
		}
		raw, err := file.OpenRaw()
		if err != nil {
			return nil, fmt.Errorf("%w: copy %s: %w", ErrRewriteFailed, file.Name, err)
		}
		header := file.FileHeader
		w, err := writer.CreateRaw(&header)
		if err != nil {
			return nil, fmt.Errorf("%w: copy %s: %w", ErrRewriteFailed, file.Name, err)
		}
		if _, err := io.Copy(w, raw); err != nil {
			return nil, fmt.Errorf("%w: copy %s: %w", ErrRewriteFailed, file.Name, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("%w: finalize archive: %w", ErrRewriteFailed, err)
	}
	return out.Bytes(), nil
}

// rawElement returns the exact bytes of the element whose start tag was just
// read, consuming tokens through its matching end tag.
func rawElement(dec *xml.Decoder, data []byte, start int64, elem xml.StartElement) ([]byte, error) {
	if err := dec.Skip(); err != nil {
		return nil, fmt.Errorf("capture <%s>: %w", elem.Name.Local, err)
	}
	return clone(data[start:dec.InputOffset()]), nil
}

// rawTagName reads the element name as written, including its prefix.
func rawTagName(raw []byte) string {
	if len(raw) == 0 || raw[0] != '<' {
		return ""
	}
	end := 1
	for end < len(raw) {
		c := raw[end]
		if c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == '>' || c == '/' {
			break
		}
		end++
	}
	return string(raw[1:end])
}

// prefixOf returns the namespace prefix of a raw tag name including its
// colon, or the empty string for unqualified names.
func prefixOf(tag string) string {
	if idx := strings.IndexByte(tag, ':'); idx >= 0 {
		return tag[:idx+1]
	}
	return ""
}

func renameElement(raw []byte, from, to string) []byte {
	s := string(raw)
	s = strings.Replace(s, "<"+prefixOf(rawTagName(raw))+from, "<"+prefixOf(rawTagName(raw))+to, 1)
	s = strings.Replace(s, "</"+prefixOf(rawTagName(raw))+from+">", "</"+prefixOf(rawTagName(raw))+to+">", 1)
	return []byte(s)
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
