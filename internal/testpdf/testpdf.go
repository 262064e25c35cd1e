// Package testpdf builds small, structurally valid PDF documents for tests.
package testpdf

import (
	"bytes"
	"fmt"

	"github.com/drummonds/godocs-raster/engine/page"
)

// Letter is the US Letter page size in points
var Letter = page.Geometry{Width: 612, Height: 792}

// A4 is the ISO A4 page size in points
var A4 = page.Geometry{Width: 595, Height: 842}

// Build returns a PDF with one page per geometry, each page carrying a filled
// rectangle so renderers have something to draw.
func Build(sizes ...page.Geometry) []byte {
	if len(sizes) == 0 {
		sizes = []page.Geometry{Letter}
	}

	var buf bytes.Buffer
	var offsets []int

	object := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n")

	// objects 1 and 2 are the catalog and page tree; each page n uses
	// object 3+2n for the page and 4+2n for its content stream
	kids := ""
	for i := range sizes {
		kids += fmt.Sprintf("%d 0 R ", 3+2*i)
	}
	object("<< /Type /Catalog /Pages 2 0 R >>")
	object(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids, len(sizes)))

	for i, size := range sizes {
		object(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %.0f %.0f] /Contents %d 0 R /Resources << >> >>",
			size.Width, size.Height, 4+2*i))
		content := fmt.Sprintf("0 0 0 rg 72 %d 200 %d re f", 100+10*i, 20+i)
		object(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content))
	}

	xrefOffset := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xrefOffset)

	return buf.Bytes()
}

// Pages returns a PDF with n Letter-sized pages
func Pages(n int) []byte {
	sizes := make([]page.Geometry, n)
	for i := range sizes {
		sizes[i] = Letter
	}
	return Build(sizes...)
}
