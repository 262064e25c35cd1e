package pdfrenderer

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/drummonds/godocs-raster/engine/page"
)

const defaultMagickPath = "gm"

// MagickRenderer rasterizes through GraphicsMagick ("gm convert") or ImageMagick
// ("magick" / "convert"), both of which delegate PDF decoding to Ghostscript
type MagickRenderer struct {
	opts Options
	bin  *binary
}

// NewMagickRenderer creates a GraphicsMagick/ImageMagick renderer
func NewMagickRenderer(binaryPath string, opts Options) *MagickRenderer {
	if binaryPath == "" {
		binaryPath = defaultMagickPath
	}
	return &MagickRenderer{
		opts: opts.withDefaults(),
		bin:  &binary{name: page.SourceMagick, configured: binaryPath},
	}
}

func (r *MagickRenderer) Name() page.Source {
	return page.SourceMagick
}

func (r *MagickRenderer) Available() error {
	return r.bin.available()
}

func (r *MagickRenderer) Render(ctx context.Context, req RenderRequest) ([]byte, error) {
	files := newTempFiles(workDir(req, r.opts), r.Name(), req.PageNumber, ".jpg")
	defer files.cleanup()

	if err := r.Available(); err != nil {
		return nil, err
	}
	if err := writeInput(r.Name(), files, req.Data); err != nil {
		return nil, err
	}

	if err := r.bin.run(ctx, r.buildArgs(files)...); err != nil {
		return nil, err
	}

	return readOutput(r.Name(), files.output)
}

// buildArgs renders the first page at the fixed density, fits it into the canvas
// and pads it to the exact canvas size
func (r *MagickRenderer) buildArgs(files tempFiles) []string {
	var args []string
	if strings.TrimSuffix(filepath.Base(r.bin.configured), ".exe") == "gm" {
		args = append(args, "convert")
	}

	canvas := fmt.Sprintf("%dx%d", r.opts.Width, r.opts.Height)
	args = append(args,
		"-density", strconv.Itoa(r.opts.DPI),
		files.input+"[0]",
		"-background", "white",
		"-flatten",
		"-resize", canvas,
		"-gravity", "center",
		"-extent", canvas,
		"-quality", strconv.Itoa(r.opts.Quality),
		"jpeg:"+files.output,
	)
	return args
}

var _ Renderer = (*MagickRenderer)(nil)
