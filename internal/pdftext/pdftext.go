// Package pdftext extracts plain text from companion PDF renditions of a
// deck. The output supplements the slide text sent to the model; it is never
// written back into any document.
package pdftext

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"rsc.io/pdf"
)

// Extract returns the text of every page, in page order, one string per
// page. Pages with no extractable text come back empty. The underlying
// reader panics on malformed files, so failures surface as errors instead.
func Extract(data []byte) (pages []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("parse pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	total := reader.NumPage()
	pages = make([]string, 0, total)
	for number := 1; number <= total; number++ {
		page := reader.Page(number)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		pages = append(pages, pageText(page))
	}
	return pages, nil
}

// ExtractJoined returns all page text as one string with page breaks
// collapsed to blank lines, skipping empty pages.
func ExtractJoined(data []byte) (string, error) {
	pages, err := Extract(data)
	if err != nil {
		return "", err
	}
	var kept []string
	for _, page := range pages {
		if strings.TrimSpace(page) != "" {
			kept = append(kept, strings.TrimSpace(page))
		}
	}
	return strings.Join(kept, "\n\n"), nil
}

// pageText reassembles a page's text fragments into lines. Fragments sharing
// a baseline are joined left to right; lines are ordered top to bottom.
func pageText(page pdf.Page) string {
	content := page.Content()
	if len(content.Text) == 0 {
		return ""
	}

	fragments := make([]pdf.Text, len(content.Text))
	copy(fragments, content.Text)
	sort.SliceStable(fragments, func(i, j int) bool {
		if fragments[i].Y != fragments[j].Y {
			return fragments[i].Y > fragments[j].Y
		}
		return fragments[i].X < fragments[j].X
	})

	var (
		b     strings.Builder
		lastY = fragments[0].Y
	)
	for i, fragment := range fragments {
		if i > 0 {
			if fragment.Y != lastY {
				b.WriteByte('\n')
				lastY = fragment.Y
			}
		}
		b.WriteString(fragment.S)
	}
	return b.String()
}
