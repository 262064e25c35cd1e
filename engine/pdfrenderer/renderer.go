package pdfrenderer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"
	"github.com/drummonds/godocs-raster/engine/page"
)

// Logger is global since we will need it everywhere
var Logger = slog.Default()

const (
	DefaultDPI          = 150
	DefaultCanvasWidth  = 1240
	DefaultCanvasHeight = 1754
	DefaultQuality      = 90
)

// Options are the fixed raster settings shared by every renderer variant
type Options struct {
	// TempDir is used when a request carries no work directory of its own
	TempDir string
	DPI     int
	// Width and Height are the target canvas in pixels
	Width   int
	Height  int
	Quality int
}

func (o Options) withDefaults() Options {
	if o.TempDir == "" {
		o.TempDir = os.TempDir()
	}
	if o.DPI == 0 {
		o.DPI = DefaultDPI
	}
	if o.Width == 0 {
		o.Width = DefaultCanvasWidth
	}
	if o.Height == 0 {
		o.Height = DefaultCanvasHeight
	}
	if o.Quality == 0 {
		o.Quality = DefaultQuality
	}
	return o
}

// RenderRequest is one single-page document to rasterize
type RenderRequest struct {
	Data       []byte
	PageNumber int
	// WorkDir overrides Options.TempDir for this request's temporary files
	WorkDir string
}

// Renderer rasterizes a single-page PDF into a JPEG
type Renderer interface {
	// Name identifies the variant in logs and in the produced page file
	Name() page.Source

	// Available probes the backend lazily; the result is cached
	Available() error

	// Render returns JPEG bytes or a *RenderError
	Render(ctx context.Context, req RenderRequest) ([]byte, error)
}

// Error codes for rendering failures
const (
	ErrCodeUnavailable = "RENDERER_UNAVAILABLE"
	ErrCodeFailed      = "RENDER_FAILED"
)

// RenderError represents a failed render attempt
type RenderError struct {
	Renderer page.Source
	Code     string
	Message  string
	Cause    error
}

func (e *RenderError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Renderer, e.Message)
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *RenderError) Unwrap() error {
	return e.Cause
}

// NewRenderError creates a new RenderError
func NewRenderError(renderer page.Source, code, message string, cause error) *RenderError {
	return &RenderError{
		Renderer: renderer,
		Code:     code,
		Message:  message,
		Cause:    cause,
	}
}

// IsUnavailable reports whether err means the backend is not present at all
func IsUnavailable(err error) bool {
	var renderErr *RenderError
	if errors.As(err, &renderErr) {
		return renderErr.Code == ErrCodeUnavailable
	}
	return errors.Is(err, exec.ErrNotFound)
}

// resolveBinaryPath finds the full path to the binary
func resolveBinaryPath(path string) (string, error) {
	if filepath.IsAbs(path) {
		info, err := os.Stat(path)
		if err != nil {
			return "", err
		}
		if info.IsDir() {
			return "", fmt.Errorf("%s is a directory, not an executable", path)
		}
		return path, nil
	}

	return exec.LookPath(path)
}

// tempFiles are the per-attempt input and output paths; both are removed on
// every exit path of a render
type tempFiles struct {
	input  string
	output string
}

// newTempFiles names files "<unix millis>_page<n>_<variant>_<marker>" so
// concurrent variants and pages never collide and the janitor can find leftovers
func newTempFiles(dir string, renderer page.Source, pageNumber int, outputExt string) tempFiles {
	stem := fmt.Sprintf("%d_page%d_%s_%s", time.Now().UnixMilli(), pageNumber, renderer, page.TempMarker)
	return tempFiles{
		input:  filepath.Join(dir, stem+".pdf"),
		output: filepath.Join(dir, stem+outputExt),
	}
}

func (t tempFiles) cleanup() {
	for _, path := range []string{t.input, t.output} {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			Logger.Warn("Unable to remove renderer temp file", "path", path, "error", err)
		}
	}
}

func workDir(req RenderRequest, opts Options) string {
	if req.WorkDir != "" {
		return req.WorkDir
	}
	return opts.TempDir
}

// readOutput loads the produced raster, rejecting empty output
func readOutput(renderer page.Source, path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewRenderError(renderer, ErrCodeFailed, "failed to read generated image", err)
	}
	if len(data) == 0 {
		return nil, NewRenderError(renderer, ErrCodeFailed, "generated image is empty", nil)
	}
	if !IsJPEG(data) {
		return nil, NewRenderError(renderer, ErrCodeFailed, "generated image is not a JPEG", nil)
	}
	return data, nil
}

// IsJPEG checks the SOI marker
func IsJPEG(data []byte) bool {
	return len(data) >= 3 && data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF
}

// encodeCanvas fits img into the canvas keeping its aspect ratio, centers it on
// white padding of the exact canvas size and encodes the result as JPEG
func encodeCanvas(renderer page.Source, img image.Image, opts Options) ([]byte, error) {
	fitted := imaging.Fit(img, opts.Width, opts.Height, imaging.Lanczos)
	canvas := imaging.New(opts.Width, opts.Height, color.White)
	canvas = imaging.PasteCenter(canvas, fitted)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, canvas, imaging.JPEG, imaging.JPEGQuality(opts.Quality)); err != nil {
		return nil, NewRenderError(renderer, ErrCodeFailed, "unable to encode JPEG", err)
	}
	return buf.Bytes(), nil
}
