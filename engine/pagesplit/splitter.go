package pagesplit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/drummonds/godocs-raster/engine/page"
	"github.com/klippa-app/go-pdfium"
	"github.com/klippa-app/go-pdfium/references"
	"github.com/klippa-app/go-pdfium/requests"
	"github.com/klippa-app/go-pdfium/webassembly"
	"github.com/ledongthuc/pdf"
)

// Logger is global since we will need it everywhere
var Logger = slog.Default()

// ErrMalformedDocument is returned when the page count cannot be determined or a
// page cannot be extracted. It aborts the whole conversion request.
var ErrMalformedDocument = errors.New("malformed document")

// Page is a single-page PDF cut from the source document
type Page struct {
	Number   int
	Data     []byte
	Geometry *page.Geometry
}

// Splitter splits multi-page PDFs into independent single-page documents.
// PDFium (WebAssembly, pure Go) is only started for documents with more than one page.
type Splitter struct {
	mu       sync.Mutex
	pool     pdfium.Pool
	instance pdfium.Pdfium
}

// NewSplitter creates a splitter; the PDFium pool is initialised on first use
func NewSplitter() *Splitter {
	return &Splitter{}
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedDocument, fmt.Sprintf(format, args...))
}

// Split returns one buffer per page in source order
func (s *Splitter) Split(ctx context.Context, data []byte) ([]Page, error) {
	geometries, err := Probe(data)
	if err != nil {
		return nil, err
	}

	numPages := len(geometries)
	Logger.Debug("PDF has pages", "count", numPages, "bytes", len(data))

	if numPages == 1 {
		return []Page{{Number: 1, Data: data, Geometry: geometries[0]}}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.init(); err != nil {
		return nil, fmt.Errorf("failed to initialize PDFium: %w", err)
	}

	src, err := s.instance.OpenDocument(&requests.OpenDocument{
		File: &data,
	})
	if err != nil {
		return nil, malformed("unable to open PDF document: %v", err)
	}
	defer s.instance.FPDF_CloseDocument(&requests.FPDF_CloseDocument{
		Document: src.Document,
	})

	pages := make([]Page, 0, numPages)
	for pageNum := 1; pageNum <= numPages; pageNum++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		single, err := s.extract(src.Document, pageNum)
		if err != nil {
			return nil, malformed("unable to extract page %d: %v", pageNum, err)
		}
		pages = append(pages, Page{Number: pageNum, Data: single, Geometry: geometries[pageNum-1]})
	}

	return pages, nil
}

// extract copies one page (1-indexed) into a new document and serializes it
func (s *Splitter) extract(src references.FPDF_DOCUMENT, pageNum int) ([]byte, error) {
	dst, err := s.instance.FPDF_CreateNewDocument(&requests.FPDF_CreateNewDocument{})
	if err != nil {
		return nil, fmt.Errorf("unable to create document: %w", err)
	}
	defer s.instance.FPDF_CloseDocument(&requests.FPDF_CloseDocument{
		Document: dst.Document,
	})

	pageRange := strconv.Itoa(pageNum)
	if _, err := s.instance.FPDF_ImportPages(&requests.FPDF_ImportPages{
		Source:      src,
		Destination: dst.Document,
		PageRange:   &pageRange,
		Index:       0,
	}); err != nil {
		return nil, fmt.Errorf("unable to import page: %w", err)
	}

	saved, err := s.instance.FPDF_SaveAsCopy(&requests.FPDF_SaveAsCopy{
		Document: dst.Document,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to save page: %w", err)
	}
	if saved.FileBytes == nil || len(*saved.FileBytes) == 0 {
		return nil, errors.New("saved page is empty")
	}
	return *saved.FileBytes, nil
}

func (s *Splitter) init() error {
	if s.instance != nil {
		return nil
	}

	pool, err := webassembly.Init(webassembly.Config{
		MinIdle:  1,
		MaxIdle:  1,
		MaxTotal: 1,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize PDFium WebAssembly: %w", err)
	}

	instance, err := pool.GetInstance(time.Second * 30)
	if err != nil {
		pool.Close()
		return fmt.Errorf("failed to get PDFium instance: %w", err)
	}

	s.pool = pool
	s.instance = instance
	return nil
}

// Close releases the PDFium pool
func (s *Splitter) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pool != nil {
		s.pool.Close()
		s.pool = nil
	}
	s.instance = nil
	return nil
}

// Probe reads the page count and per-page MediaBox without rendering anything.
// A nil geometry means the page had no readable MediaBox.
func Probe(data []byte) (geometries []*page.Geometry, err error) {
	defer func() {
		if r := recover(); r != nil {
			geometries = nil
			err = malformed("panic while reading PDF structure: %v", r)
		}
	}()

	if len(data) == 0 {
		return nil, malformed("empty document")
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, malformed("failed to create PDF reader: %v", err)
	}

	numPages := reader.NumPage()
	if numPages <= 0 {
		return nil, malformed("page count is %d", numPages)
	}

	geometries = make([]*page.Geometry, numPages)
	for pageNum := 1; pageNum <= numPages; pageNum++ {
		geometries[pageNum-1] = mediaBox(reader.Page(pageNum).V)
	}
	return geometries, nil
}

// mediaBox walks up the page tree since MediaBox is inheritable
func mediaBox(v pdf.Value) *page.Geometry {
	for depth := 0; depth < 32 && v.Kind() == pdf.Dict; depth++ {
		box := v.Key("MediaBox")
		if box.Kind() == pdf.Array && box.Len() == 4 {
			width := box.Index(2).Float64() - box.Index(0).Float64()
			height := box.Index(3).Float64() - box.Index(1).Float64()
			if width < 0 {
				width = -width
			}
			if height < 0 {
				height = -height
			}
			if width == 0 || height == 0 {
				return nil
			}
			return &page.Geometry{Width: width, Height: height}
		}
		v = v.Key("Parent")
	}
	return nil
}
