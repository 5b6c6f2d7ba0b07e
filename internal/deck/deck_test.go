package deck_test

import (
	"archive/zip"
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"factsheet/internal/deck"
	"factsheet/internal/testsupport"
)

func mustOpen(t *testing.T, raw []byte) *deck.Package {
	t.Helper()
	pkg, err := deck.Open(raw)
	if err != nil {
		t.Fatalf("deck.Open: %v", err)
	}
	return pkg
}

func TestOpenRejectsGarbage(t *testing.T) {
	for _, raw := range [][]byte{nil, []byte("not a zip"), []byte("PK\x03\x04truncated")} {
		if _, err := deck.Open(raw); !errors.Is(err, deck.ErrPackageUnreadable) {
			t.Errorf("expected ErrPackageUnreadable, got %v", err)
		}
	}
}

func TestOpenRejectsNonPresentationZip(t *testing.T) {
	var buf bytes.Buffer
	writer := zip.NewWriter(&buf)
	w, _ := writer.Create("readme.txt")
	_, _ = w.Write([]byte("hello"))
	_ = writer.Close()

	if _, err := deck.Open(buf.Bytes()); !errors.Is(err, deck.ErrPackageUnreadable) {
		t.Fatalf("expected ErrPackageUnreadable, got %v", err)
	}
}

func TestOpenRejectsMalformedSlide(t *testing.T) {
	raw := testsupport.BuildDeck(t, "<p:sld><unclosed>")
	if _, err := deck.Open(raw); !errors.Is(err, deck.ErrPackageUnreadable) {
		t.Fatalf("expected ErrPackageUnreadable, got %v", err)
	}
}

func TestExtractTextFollowsSlideOrder(t *testing.T) {
	raw := testsupport.BuildDeck(t,
		testsupport.Slide(testsupport.TextShape("Title 1", "", "First slide title", "Second paragraph")),
		testsupport.Slide(testsupport.TextShape("Title 2", "", "Second slide title")),
	)
	pkg := mustOpen(t, raw)
	if pkg.SlideCount() != 2 {
		t.Fatalf("expected 2 slides, got %d", pkg.SlideCount())
	}

	text := pkg.ExtractText()
	want := "--- Slide 1 ---\nFirst slide title\nSecond paragraph\n\n--- Slide 2 ---\nSecond slide title"
	if text != want {
		t.Fatalf("unexpected extraction:\n%s", text)
	}

	// Extraction is a pure read: repeated calls agree.
	if again := pkg.ExtractText(); again != text {
		t.Fatal("expected deterministic extraction")
	}
}

func TestExtractTextIncludesTableCells(t *testing.T) {
	raw := testsupport.BuildDeck(t,
		testsupport.Slide(
			testsupport.TextShape("Title 1", "", "Metrics"),
			testsupport.Table(
				[]string{"Metric", "Value"},
				[]string{"Emissions", "12kt"},
			),
		),
	)
	pkg := mustOpen(t, raw)

	text := pkg.ExtractText()
	for _, want := range []string{"Metrics", "Metric", "Value", "Emissions", "12kt"} {
		if !strings.Contains(text, want) {
			t.Errorf("expected %q in extraction:\n%s", want, text)
		}
	}
	// Row-major order: first row's cells before the second row's.
	if strings.Index(text, "Value") > strings.Index(text, "Emissions") {
		t.Fatalf("expected row-major cell order:\n%s", text)
	}
}

func TestExtractTextSkipsEmptySlides(t *testing.T) {
	raw := testsupport.BuildDeck(t,
		testsupport.Slide(),
		testsupport.Slide(testsupport.TextShape("Title 1", "", "Only content")),
	)
	pkg := mustOpen(t, raw)

	text := pkg.ExtractText()
	if strings.Contains(text, "--- Slide 1 ---") {
		t.Fatalf("expected empty slide omitted:\n%s", text)
	}
	if !strings.Contains(text, "--- Slide 2 ---") {
		t.Fatalf("expected numbering to keep original slide positions:\n%s", text)
	}
}

func TestTruncateForModel(t *testing.T) {
	cases := []struct {
		name   string
		text   string
		budget int
		want   string
	}{
		{"under budget", "short", 10, "short"},
		{"exact budget", "12345", 5, "12345"},
		{"over budget", "1234567890", 4, "1234"},
		{"multibyte runes", "héllo wörld", 5, "héllo"},
		{"zero budget", "anything", 0, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := deck.TruncateForModel(tc.text, tc.budget); got != tc.want {
				t.Fatalf("TruncateForModel(%q, %d) = %q, want %q", tc.text, tc.budget, got, tc.want)
			}
		})
	}
}

func TestFindPlaceholderByNameAndDescr(t *testing.T) {
	byName := testsupport.BuildDeck(t,
		testsupport.Slide(testsupport.TextShape("AI_SUMMARY", "", "pending")),
	)
	if ph, ok := mustOpen(t, byName).FindPlaceholder("AI_SUMMARY"); !ok || ph.SlideIndex != 0 {
		t.Fatalf("expected match by name, got %+v ok=%v", ph, ok)
	}

	byDescr := testsupport.BuildDeck(t,
		testsupport.Slide(testsupport.TextShape("TextBox 7", "AI_SUMMARY", "pending")),
	)
	if ph, ok := mustOpen(t, byDescr).FindPlaceholder("AI_SUMMARY"); !ok || ph.ShapeName != "TextBox 7" {
		t.Fatalf("expected match by alternate text, got %+v ok=%v", ph, ok)
	}
}

func TestFindPlaceholderIsExact(t *testing.T) {
	raw := testsupport.BuildDeck(t,
		testsupport.Slide(
			testsupport.TextShape("ai_summary", "", "lowercase"),
			testsupport.TextShape(" AI_SUMMARY", "", "padded"),
			testsupport.TextShape("AI_SUMMARY_2", "", "suffixed"),
		),
	)
	pkg := mustOpen(t, raw)

	if _, ok := pkg.FindPlaceholder("AI_SUMMARY"); ok {
		t.Fatal("expected no match: near-miss names must not match")
	}
	if _, ok := pkg.FindPlaceholder(""); ok {
		t.Fatal("expected empty sentinel to never match")
	}
	if _, ok := pkg.FindPlaceholder("ai_summary"); !ok {
		t.Fatal("expected exact lowercase sentinel to match lowercase name")
	}
}

func TestFindPlaceholderPicksFirstInSlideOrder(t *testing.T) {
	raw := testsupport.BuildDeck(t,
		testsupport.Slide(testsupport.TextShape("Other", "", "first slide")),
		testsupport.Slide(testsupport.TextShape("AI_SUMMARY", "", "second slide")),
		testsupport.Slide(testsupport.TextShape("AI_SUMMARY", "", "third slide")),
	)
	ph, ok := mustOpen(t, raw).FindPlaceholder("AI_SUMMARY")
	if !ok {
		t.Fatal("expected placeholder found")
	}
	if ph.SlideIndex != 1 {
		t.Fatalf("expected slide index 1, got %d", ph.SlideIndex)
	}
	if ph.SlidePart != "ppt/slides/slide2.xml" {
		t.Fatalf("unexpected slide part %s", ph.SlidePart)
	}
}

func TestFindPlaceholderInGroupedShape(t *testing.T) {
	grouped := `<p:grpSp><p:nvGrpSpPr><p:cNvPr id="9" name="Group 1"/><p:cNvGrpSpPr/><p:nvPr/></p:nvGrpSpPr><p:grpSpPr/>` +
		testsupport.TextShape("AI_SUMMARY", "", "inside group") +
		`</p:grpSp>`
	raw := testsupport.BuildDeck(t, testsupport.Slide(grouped))
	pkg := mustOpen(t, raw)

	ph, ok := pkg.FindPlaceholder("AI_SUMMARY")
	if !ok {
		t.Fatal("expected placeholder found inside group")
	}
	if ph.ShapeName != "AI_SUMMARY" {
		t.Fatalf("expected innermost shape, got %q", ph.ShapeName)
	}

	// The rewrite targets the inner shape, leaving the group intact.
	out, err := pkg.Rewrite("AI_SUMMARY", "replaced")
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	text := mustOpen(t, out).ExtractText()
	if !strings.Contains(text, "replaced") || strings.Contains(text, "inside group") {
		t.Fatalf("unexpected rewrite result:\n%s", text)
	}
}

func TestRewriteReplacesTextAndKeepsFormatting(t *testing.T) {
	raw := testsupport.BuildDeck(t,
		testsupport.Slide(
			testsupport.TextShape("Title 1", "", "Untouched title"),
			testsupport.TextShape("AI_SUMMARY", "", "old line one", "old line two"),
		),
	)
	pkg := mustOpen(t, raw)

	out, err := pkg.Rewrite("AI_SUMMARY", "new first\nnew second\nnew third")
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}

	rewritten := mustOpen(t, out)
	text := rewritten.ExtractText()
	for _, want := range []string{"Untouched title", "new first", "new second", "new third"} {
		if !strings.Contains(text, want) {
			t.Errorf("expected %q in rewritten deck:\n%s", want, text)
		}
	}
	if strings.Contains(text, "old line") {
		t.Fatal("expected old placeholder text removed")
	}

	// Every rebuilt paragraph carries the original paragraph and run
	// properties from the first source paragraph.
	slideXML := readEntry(t, out, "ppt/slides/slide1.xml")
	if got := strings.Count(slideXML, `<a:buChar char="•"/>`); got < 3 {
		t.Fatalf("expected bullet properties on each new paragraph, found %d", got)
	}
	if got := strings.Count(slideXML, `<a:rPr lang="en-US" sz="1100" b="1"/>`); got < 3 {
		t.Fatalf("expected run properties on each new run, found %d", got)
	}
}

func TestRewriteEscapesMarkup(t *testing.T) {
	raw := testsupport.BuildDeck(t,
		testsupport.Slide(testsupport.TextShape("AI_SUMMARY", "", "old")),
	)
	out, err := mustOpen(t, raw).Rewrite("AI_SUMMARY", `risk < 5% & growth > 10% "net"`)
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	text := mustOpen(t, out).ExtractText()
	if !strings.Contains(text, `risk < 5% & growth > 10% "net"`) {
		t.Fatalf("expected special characters round-tripped:\n%s", text)
	}
}

func TestRewriteEmptyTextYieldsEmptyParagraph(t *testing.T) {
	raw := testsupport.BuildDeck(t,
		testsupport.Slide(testsupport.TextShape("AI_SUMMARY", "", "old content")),
	)
	out, err := mustOpen(t, raw).Rewrite("AI_SUMMARY", "")
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}

	rewritten := mustOpen(t, out)
	if text := rewritten.ExtractText(); strings.Contains(text, "old content") {
		t.Fatalf("expected placeholder emptied:\n%s", text)
	}
	slideXML := readEntry(t, out, "ppt/slides/slide1.xml")
	if !strings.Contains(slideXML, "<a:p>") {
		t.Fatal("expected one empty paragraph to remain")
	}
}

func TestRewriteRunlessPlaceholderKeepsMarkFormatting(t *testing.T) {
	// A placeholder with no runs keeps its formatting on endParaRPr.
	raw := testsupport.BuildDeck(t,
		testsupport.Slide(testsupport.TextShape("AI_SUMMARY", "")),
	)
	out, err := mustOpen(t, raw).Rewrite("AI_SUMMARY", "fresh text")
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	slideXML := readEntry(t, out, "ppt/slides/slide1.xml")
	if !strings.Contains(slideXML, `<a:rPr lang="en-US" sz="1100"/>`) {
		t.Fatalf("expected promoted run properties:\n%s", slideXML)
	}
	if !strings.Contains(mustOpen(t, out).ExtractText(), "fresh text") {
		t.Fatal("expected new text present")
	}
}

func TestRewriteCRLFNormalization(t *testing.T) {
	raw := testsupport.BuildDeck(t,
		testsupport.Slide(testsupport.TextShape("AI_SUMMARY", "", "old")),
	)
	out, err := mustOpen(t, raw).Rewrite("AI_SUMMARY", "line one\r\nline two")
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	text := mustOpen(t, out).ExtractText()
	if !strings.Contains(text, "line one\nline two") {
		t.Fatalf("expected CRLF treated as one break:\n%q", text)
	}
}

func TestRewriteMissingPlaceholder(t *testing.T) {
	raw := testsupport.BuildDeck(t,
		testsupport.Slide(testsupport.TextShape("Title 1", "", "content")),
	)
	_, err := mustOpen(t, raw).Rewrite("AI_SUMMARY", "text")
	if !errors.Is(err, deck.ErrPlaceholderNotFound) {
		t.Fatalf("expected ErrPlaceholderNotFound, got %v", err)
	}
	if !strings.Contains(err.Error(), "AI_SUMMARY") {
		t.Fatalf("expected sentinel named in error, got %v", err)
	}
}

func TestRewritePictureShapeFails(t *testing.T) {
	raw := testsupport.BuildDeck(t,
		testsupport.Slide(testsupport.PictureShape("AI_SUMMARY")),
	)
	_, err := mustOpen(t, raw).Rewrite("AI_SUMMARY", "text")
	if !errors.Is(err, deck.ErrRewriteFailed) {
		t.Fatalf("expected ErrRewriteFailed for shape without text body, got %v", err)
	}
}

func TestRewriteLeavesOtherEntriesByteIdentical(t *testing.T) {
	raw := testsupport.BuildDeck(t,
		testsupport.Slide(testsupport.TextShape("Title 1", "", "slide one")),
		testsupport.Slide(testsupport.TextShape("AI_SUMMARY", "", "slide two placeholder")),
		testsupport.Slide(testsupport.Table([]string{"a", "b"})),
	)
	out, err := mustOpen(t, raw).Rewrite("AI_SUMMARY", "rewritten")
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}

	before := rawEntries(t, raw)
	after := rawEntries(t, out)
	if len(before) != len(after) {
		t.Fatalf("entry count changed: %d -> %d", len(before), len(after))
	}
	for i := range before {
		if before[i].name != after[i].name {
			t.Fatalf("entry order changed at %d: %s -> %s", i, before[i].name, after[i].name)
		}
		if before[i].name == "ppt/slides/slide2.xml" {
			if bytes.Equal(before[i].raw, after[i].raw) {
				t.Fatal("expected rewritten slide to change")
			}
			continue
		}
		if !bytes.Equal(before[i].raw, after[i].raw) {
			t.Fatalf("entry %s not byte-identical", before[i].name)
		}
	}
}

func TestRewriteSourceUnchanged(t *testing.T) {
	raw := testsupport.BuildDeck(t,
		testsupport.Slide(testsupport.TextShape("AI_SUMMARY", "", "original")),
	)
	snapshot := append([]byte(nil), raw...)
	pkg := mustOpen(t, raw)
	if _, err := pkg.Rewrite("AI_SUMMARY", "changed"); err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	if !bytes.Equal(raw, snapshot) {
		t.Fatal("expected source bytes untouched")
	}
	if !strings.Contains(pkg.ExtractText(), "original") {
		t.Fatal("expected opened package unchanged after rewrite")
	}
}

type zipEntry struct {
	name string
	raw  []byte
}

// rawEntries returns each entry's compressed stream, in archive order.
func rawEntries(t *testing.T, data []byte) []zipEntry {
	t.Helper()
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	entries := make([]zipEntry, 0, len(reader.File))
	for _, file := range reader.File {
		rc, err := file.OpenRaw()
		if err != nil {
			t.Fatalf("open raw %s: %v", file.Name, err)
		}
		content, err := io.ReadAll(rc)
		if err != nil {
			t.Fatalf("read raw %s: %v", file.Name, err)
		}
		entries = append(entries, zipEntry{name: file.Name, raw: content})
	}
	return entries
}

func readEntry(t *testing.T, data []byte, name string) string {
	t.Helper()
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	for _, file := range reader.File {
		if file.Name != name {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			t.Fatalf("open %s: %v", name, err)
		}
		defer rc.Close()
		content, err := io.ReadAll(rc)
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		return string(content)
	}
	t.Fatalf("entry %s not found", name)
	return ""
}
