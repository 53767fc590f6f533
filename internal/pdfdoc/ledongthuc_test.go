package pdfdoc_test

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"paperchat/internal/outline"
	"paperchat/internal/pdfdoc"
)

// buildPDF writes a three page document whose outline reaches its pages
// through an inline /Dest array, a name in the catalog /Dests dictionary and a
// /GoTo action.
func buildPDF() []byte {
	bodies := []string{"Intro body", "Method body", "Results body"}
	objs := []string{
		"<< /Type /Catalog /Pages 2 0 R /Outlines 3 0 R /Dests 4 0 R >>",
		"<< /Type /Pages /Kids [5 0 R 6 0 R 7 0 R] /Count 3 >>",
		"<< /Type /Outlines /First 8 0 R /Last 10 0 R /Count 3 >>",
		"<< /method [6 0 R /Fit] >>",
	}
	for i := range bodies {
		objs = append(objs, fmt.Sprintf(
			"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 300 300] /Resources << /Font << /F1 11 0 R >> >> /Contents %d 0 R >>", 12+i))
	}
	objs = append(objs,
		"<< /Title (Introduction) /Parent 3 0 R /Next 9 0 R /Dest [5 0 R /XYZ 0 300 0] >>",
		"<< /Title (Method) /Parent 3 0 R /Prev 8 0 R /Next 10 0 R /Dest /method >>",
		"<< /Title (Results) /Parent 3 0 R /Prev 9 0 R /A << /S /GoTo /D [7 0 R /Fit] >> >>",
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	)
	for _, body := range bodies {
		content := fmt.Sprintf("BT /F1 12 Tf 20 250 Td (%s) Tj ET", body)
		objs = append(objs, fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content))
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, obj := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return buf.Bytes()
}

func writePDF(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "paper.pdf")
	if err := os.WriteFile(path, buildPDF(), 0o644); err != nil {
		t.Fatalf("write pdf: %v", err)
	}
	return path
}

func TestLedongthucOutlineDestinations(t *testing.T) {
	ctx := context.Background()
	doc, err := pdfdoc.Load(buildPDF())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	defer doc.Close()

	if doc.NumPages() != 3 {
		t.Fatalf("pages: %d", doc.NumPages())
	}
	items, err := doc.Outline(ctx)
	if err != nil {
		t.Fatalf("outline: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("outline items: %d", len(items))
	}

	if items[0].Dest == nil || len(items[0].Dest.Array) == 0 {
		t.Fatalf("introduction should carry an inline destination: %+v", items[0].Dest)
	}
	if items[1].Dest == nil || items[1].Dest.Name != "method" {
		t.Fatalf("method should carry a named destination: %+v", items[1].Dest)
	}
	named, err := doc.Destination(ctx, "method")
	if err != nil {
		t.Fatalf("named destination: %v", err)
	}
	if items[2].Dest == nil || len(items[2].Dest.Array) == 0 {
		t.Fatalf("results should carry the GoTo destination: %+v", items[2].Dest)
	}

	refs := []any{items[0].Dest.Array[0], named[0], items[2].Dest.Array[0]}
	for want, ref := range refs {
		idx, err := doc.PageIndex(ctx, ref)
		if err != nil {
			t.Fatalf("page index %d: %v", want, err)
		}
		if idx != want {
			t.Fatalf("page index: got %d want %d", idx, want)
		}
	}

	if _, err := doc.Destination(ctx, "appendix"); err == nil {
		t.Fatalf("expected an error for an unknown name")
	}
}

func TestOutlineExtractFromPDFFile(t *testing.T) {
	ctx := context.Background()
	doc, err := pdfdoc.Open(writePDF(t))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer doc.Close()

	nodes, err := outline.Extract(ctx, doc)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	want := []struct {
		title string
		page  int
		body  string
	}{
		{"Introduction", 1, "Intro body"},
		{"Method", 2, "Method body"},
		{"Results", 3, "Results body"},
	}
	if len(nodes) != len(want) {
		t.Fatalf("nodes: %d", len(nodes))
	}
	for i, w := range want {
		n := nodes[i]
		if n.Title != w.title || n.PageNumber == nil || *n.PageNumber != w.page {
			t.Fatalf("node %d: %+v", i, n)
		}
		text, err := doc.PageText(ctx, w.page)
		if err != nil {
			t.Fatalf("page %d text: %v", w.page, err)
		}
		if !strings.Contains(text, w.body) {
			t.Fatalf("page %d text: %q, want %q", w.page, text, w.body)
		}
	}

	if _, err := doc.PageText(ctx, 4); err == nil {
		t.Fatalf("expected an out of range error")
	}
}
