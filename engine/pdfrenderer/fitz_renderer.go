package pdfrenderer

import (
	"context"
	"fmt"

	"github.com/drummonds/godocs-raster/engine/page"
	"github.com/gen2brain/go-fitz"
)

// FitzRenderer rasterizes in-process with go-fitz (MuPDF). It is the last
// variant tried and only in unrestricted environments.
type FitzRenderer struct {
	opts    Options
	enabled bool
}

// NewFitzRenderer creates a new Fitz-based page renderer
func NewFitzRenderer(enabled bool, opts Options) *FitzRenderer {
	return &FitzRenderer{opts: opts.withDefaults(), enabled: enabled}
}

func (r *FitzRenderer) Name() page.Source {
	return page.SourceMuPDF
}

func (r *FitzRenderer) Available() error {
	if !r.enabled {
		return NewRenderError(r.Name(), ErrCodeUnavailable, "MuPDF renderer disabled", nil)
	}
	return nil
}

// Render opens the page from its temp file like the external backends do, so
// the same cleanup contract holds; no output file is produced
func (r *FitzRenderer) Render(ctx context.Context, req RenderRequest) (data []byte, err error) {
	files := newTempFiles(workDir(req, r.opts), r.Name(), req.PageNumber, ".jpg")
	defer files.cleanup()

	// MuPDF errors surface as panics in some builds
	defer func() {
		if rec := recover(); rec != nil {
			data = nil
			err = NewRenderError(r.Name(), ErrCodeFailed, fmt.Sprintf("panic in MuPDF: %v", rec), nil)
		}
	}()

	if err := r.Available(); err != nil {
		return nil, err
	}
	if err := writeInput(r.Name(), files, req.Data); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, NewRenderError(r.Name(), ErrCodeFailed, "render cancelled", err)
	}

	doc, err := fitz.New(files.input)
	if err != nil {
		return nil, NewRenderError(r.Name(), ErrCodeFailed, "unable to open PDF document", err)
	}
	defer doc.Close()

	if doc.NumPage() < 1 {
		return nil, NewRenderError(r.Name(), ErrCodeFailed, "document has no pages", nil)
	}

	img, err := doc.ImageDPI(0, float64(r.opts.DPI))
	if err != nil {
		return nil, NewRenderError(r.Name(), ErrCodeFailed, "unable to render page", err)
	}

	return encodeCanvas(r.Name(), img, r.opts)
}

var _ Renderer = (*FitzRenderer)(nil)
