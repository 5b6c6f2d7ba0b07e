package deck

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

// DefaultSentinel identifies the shape that receives generated analysis text.
// Matching is exact and case-sensitive.
const DefaultSentinel = "AI_SUMMARY"

var (
	// ErrPackageUnreadable marks input that cannot be opened as a
	// presentation package. Not retried.
	ErrPackageUnreadable = errors.New("package unreadable")

	// ErrPlaceholderNotFound marks a rewrite against a package that has no
	// placeholder shape. Callers decide whether absence is fatal.
	ErrPlaceholderNotFound = errors.New("placeholder shape not found")

	// ErrRewriteFailed marks an internal inconsistency during paragraph
	// reconstruction. No partial package is ever returned alongside it.
	ErrRewriteFailed = errors.New("rewrite failed")
)

const presentationPart = "ppt/presentation.xml"

// Package is an opened presentation. It never mutates the source bytes:
// extraction derives a string and Rewrite produces a fresh byte slice.
type Package struct {
	raw    []byte
	reader *zip.Reader
	slides []slidePart
}

type slidePart struct {
	name string
	data []byte
}

// Open parses raw bytes as a presentation package. Slide order follows the
// sldIdLst in ppt/presentation.xml resolved through its relationships part,
// giving a fixed total order for all traversals.
func Open(raw []byte) (*Package, error) {
	reader, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, fmt.Errorf("%w: open archive: %w", ErrPackageUnreadable, err)
	}

	pkg := &Package{raw: raw, reader: reader}

	presentation, err := pkg.readPart(presentationPart)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrPackageUnreadable, presentationPart, err)
	}
	rels, err := pkg.readPart("ppt/_rels/presentation.xml.rels")
	if err != nil {
		return nil, fmt.Errorf("%w: presentation relationships: %w", ErrPackageUnreadable, err)
	}

	order, err := slideOrder(presentation, rels)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPackageUnreadable, err)
	}

	for _, name := range order {
		data, err := pkg.readPart(name)
		if err != nil {
			return nil, fmt.Errorf("%w: slide part %s: %w", ErrPackageUnreadable, name, err)
		}
		if err := checkWellFormed(data); err != nil {
			return nil, fmt.Errorf("%w: slide part %s: %w", ErrPackageUnreadable, name, err)
		}
		pkg.slides = append(pkg.slides, slidePart{name: name, data: data})
	}

	return pkg, nil
}

// SlideCount reports the number of slides in presentation order.
func (p *Package) SlideCount() int {
	return len(p.slides)
}

func (p *Package) readPart(name string) ([]byte, error) {
	for _, file := range p.reader.File {
		if file.Name != name {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("open part: %w", err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("read part: %w", err)
		}
		return data, nil
	}
	return nil, errors.New("part missing")
}

// slideOrder resolves the presentation's slide id list against the
// relationship targets, preserving document order.
func slideOrder(presentation, rels []byte) ([]string, error) {
	targets, err := relationshipTargets(rels)
	if err != nil {
		return nil, err
	}

	var order []string
	dec := xml.NewDecoder(bytes.NewReader(presentation))
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse presentation: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "sldId" {
			continue
		}
		var rid string
		for _, attr := range start.Attr {
			if attr.Name.Local == "id" && attr.Name.Space != "" {
				rid = attr.Value
			}
		}
		if rid == "" {
			return nil, errors.New("slide id missing relationship reference")
		}
		target, ok := targets[rid]
		if !ok {
			return nil, fmt.Errorf("unresolved slide relationship %q", rid)
		}
		order = append(order, resolvePartName(target))
	}
	return order, nil
}

func relationshipTargets(rels []byte) (map[string]string, error) {
	targets := make(map[string]string)
	dec := xml.NewDecoder(bytes.NewReader(rels))
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse relationships: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "Relationship" {
			continue
		}
		var id, target string
		for _, attr := range start.Attr {
			switch attr.Name.Local {
			case "Id":
				id = attr.Value
			case "Target":
				target = attr.Value
			}
		}
		if id != "" && target != "" {
			targets[id] = target
		}
	}
	return targets, nil
}

// resolvePartName maps a relationship target to a zip entry name. Targets are
// relative to ppt/ unless they start with a slash.
func resolvePartName(target string) string {
	if strings.HasPrefix(target, "/") {
		return path.Clean(strings.TrimPrefix(target, "/"))
	}
	return path.Clean(path.Join("ppt", target))
}

func checkWellFormed(data []byte) error {
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		if _, err := dec.Token(); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("malformed xml: %w", err)
		}
	}
}
