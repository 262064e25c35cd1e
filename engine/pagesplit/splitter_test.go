package pagesplit

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/drummonds/godocs-raster/internal/testpdf"
)

func TestProbe_PageCountAndGeometry(t *testing.T) {
	data := testpdf.Build(testpdf.Letter, testpdf.A4, testpdf.Letter)

	geometries, err := Probe(data)
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if len(geometries) != 3 {
		t.Fatalf("Expected 3 pages, got %d", len(geometries))
	}
	if geometries[1] == nil {
		t.Fatal("Expected geometry for page 2")
	}
	if geometries[1].Width != 595 || geometries[1].Height != 842 {
		t.Errorf("Expected A4 geometry on page 2, got %v", *geometries[1])
	}
}

func TestProbe_Malformed(t *testing.T) {
	inputs := map[string][]byte{
		"empty":     nil,
		"not a pdf": []byte("this is plainly not a PDF document"),
		"truncated": testpdf.Pages(2)[:40],
	}

	for name, data := range inputs {
		t.Run(name, func(t *testing.T) {
			_, err := Probe(data)
			if !errors.Is(err, ErrMalformedDocument) {
				t.Errorf("Expected ErrMalformedDocument, got %v", err)
			}
		})
	}
}

func TestSplit_SinglePagePassthrough(t *testing.T) {
	data := testpdf.Pages(1)
	splitter := NewSplitter()
	defer splitter.Close()

	pages, err := splitter.Split(context.Background(), data)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if len(pages) != 1 {
		t.Fatalf("Expected 1 page, got %d", len(pages))
	}
	if !bytes.Equal(pages[0].Data, data) {
		t.Error("Expected single-page document to be passed through unchanged")
	}
	if splitter.instance != nil {
		t.Error("Expected PDFium not to be started for a single-page document")
	}
}

func TestSplit_MalformedAbortsRequest(t *testing.T) {
	splitter := NewSplitter()
	defer splitter.Close()

	_, err := splitter.Split(context.Background(), []byte("%PDF-1.4 garbage"))
	if !errors.Is(err, ErrMalformedDocument) {
		t.Fatalf("Expected ErrMalformedDocument, got %v", err)
	}
}

func TestSplit_MultiPage(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping PDFium WebAssembly test in short mode")
	}

	for _, n := range []int{2, 3, 5} {
		data := testpdf.Pages(n)
		splitter := NewSplitter()

		pages, err := splitter.Split(context.Background(), data)
		splitter.Close()
		if err != nil {
			t.Fatalf("Split of %d pages failed: %v", n, err)
		}
		if len(pages) != n {
			t.Fatalf("Expected %d pages, got %d", n, len(pages))
		}

		for i, p := range pages {
			if p.Number != i+1 {
				t.Errorf("Expected page number %d, got %d", i+1, p.Number)
			}
			geometries, err := Probe(p.Data)
			if err != nil {
				t.Errorf("Page %d is not a parseable PDF: %v", p.Number, err)
				continue
			}
			if len(geometries) != 1 {
				t.Errorf("Page %d: expected a one-page document, got %d pages", p.Number, len(geometries))
			}
		}
	}
}

func TestSplit_CancelledContext(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping PDFium WebAssembly test in short mode")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	splitter := NewSplitter()
	defer splitter.Close()

	_, err := splitter.Split(ctx, testpdf.Pages(3))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
