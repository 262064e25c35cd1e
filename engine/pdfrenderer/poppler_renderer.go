package pdfrenderer

import (
	"bytes"
	"context"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/drummonds/godocs-raster/engine/page"
)

const defaultPdftoppmPath = "pdftoppm"

// PopplerRenderer rasterizes with poppler's pdftoppm; first choice where native
// binaries can be relied on
type PopplerRenderer struct {
	opts Options
	bin  *binary
}

// NewPopplerRenderer creates a pdftoppm renderer; binaryPath may be a bare name
// searched in PATH
func NewPopplerRenderer(binaryPath string, opts Options) *PopplerRenderer {
	if binaryPath == "" {
		binaryPath = defaultPdftoppmPath
	}
	return &PopplerRenderer{
		opts: opts.withDefaults(),
		bin:  &binary{name: page.SourcePoppler, configured: binaryPath},
	}
}

func (r *PopplerRenderer) Name() page.Source {
	return page.SourcePoppler
}

func (r *PopplerRenderer) Available() error {
	return r.bin.available()
}

// Render converts the page with pdftoppm -singlefile, which appends ".jpg" to
// the output prefix. pdftoppm only renders at the fixed density; fitting onto
// the canvas happens here so the aspect ratio matches the other variants.
func (r *PopplerRenderer) Render(ctx context.Context, req RenderRequest) ([]byte, error) {
	files := newTempFiles(workDir(req, r.opts), r.Name(), req.PageNumber, ".jpg")
	defer files.cleanup()

	if err := r.Available(); err != nil {
		return nil, err
	}
	if err := writeInput(r.Name(), files, req.Data); err != nil {
		return nil, err
	}

	args := []string{
		"-jpeg",
		"-jpegopt", "quality=" + strconv.Itoa(r.opts.Quality),
		"-r", strconv.Itoa(r.opts.DPI),
		"-f", "1", "-l", "1",
		"-singlefile",
		files.input,
		strings.TrimSuffix(files.output, ".jpg"),
	}
	if err := r.bin.run(ctx, args...); err != nil {
		return nil, err
	}

	data, err := readOutput(r.Name(), files.output)
	if err != nil {
		return nil, err
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, NewRenderError(r.Name(), ErrCodeFailed, "unable to decode pdftoppm output", err)
	}
	return encodeCanvas(r.Name(), img, r.opts)
}

var _ Renderer = (*PopplerRenderer)(nil)
