// Package pipeline turns a PDF into one JPEG page file per source page.
// Pages are split, rendered through the renderer cascade, replaced by a
// placeholder when every renderer failed, then optimized.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/drummonds/godocs-raster/config"
	"github.com/drummonds/godocs-raster/engine/imageopt"
	"github.com/drummonds/godocs-raster/engine/janitor"
	"github.com/drummonds/godocs-raster/engine/page"
	"github.com/drummonds/godocs-raster/engine/pagesplit"
	"github.com/drummonds/godocs-raster/engine/pdfrenderer"
	"github.com/drummonds/godocs-raster/engine/placeholder"
	"github.com/dustin/go-humanize"
	"github.com/oklog/ulid/v2"
)

// Logger is global since we will need it everywhere
var Logger = slog.Default()

// Splitter produces single-page documents from a PDF
type Splitter interface {
	Split(ctx context.Context, data []byte) ([]pagesplit.Page, error)
}

// PageReport is the per-page record of what was tried
type PageReport struct {
	PageNumber int         `json:"pageNumber"`
	Source     page.Source `json:"source"`
	Attempts   []Attempt   `json:"attempts"`
}

// Conversion is the result of one Convert call. The caller owns it and must
// hand it back to Release once the page buffers have been consumed.
type Conversion struct {
	RunID   ulid.ULID
	Pages   []page.File
	Reports []PageReport
	WorkDir string
}

// Pipeline wires the splitter, cascade, placeholder, optimizer and janitor
type Pipeline struct {
	splitter    Splitter
	cascade     *Cascade
	placeholder *placeholder.Generator
	optimizer   *imageopt.Optimizer
	janitor     *janitor.Janitor
	tempDir     string
}

// New assembles a pipeline from its parts; tempDir is where per-run work
// directories are created
func New(splitter Splitter, cascade *Cascade, generator *placeholder.Generator, optimizer *imageopt.Optimizer, jan *janitor.Janitor, tempDir string) *Pipeline {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	if jan == nil {
		jan = janitor.New(0)
	}
	return &Pipeline{
		splitter:    splitter,
		cascade:     cascade,
		placeholder: generator,
		optimizer:   optimizer,
		janitor:     jan,
		tempDir:     tempDir,
	}
}

// NewFromConfig builds the production pipeline: pdftoppm, then
// GraphicsMagick, then in-process MuPDF
func NewFromConfig(cfg config.RasterConfig) *Pipeline {
	if err := os.MkdirAll(cfg.TempDir, 0o755); err != nil {
		Logger.Error("Unable to create temp directory", "path", cfg.TempDir, "error", err)
	}

	opts := pdfrenderer.Options{
		TempDir: cfg.TempDir,
		DPI:     cfg.DPI,
		Width:   cfg.CanvasWidth,
		Height:  cfg.CanvasHeight,
		Quality: cfg.JPEGQuality,
	}
	renderers := []pdfrenderer.Renderer{
		pdfrenderer.NewPopplerRenderer(cfg.PdftoppmPath, opts),
		pdfrenderer.NewMagickRenderer(cfg.MagickPath, opts),
		pdfrenderer.NewFitzRenderer(cfg.MuPDFEnabled, opts),
	}

	env := DetectEnvironment(cfg.Environment)
	Logger.Info("Pipeline environment", "environment", env, "mode", cfg.Environment, "restrictedTimeout", cfg.RestrictedTimeout)

	return New(
		pagesplit.NewSplitter(),
		NewCascade(env, renderers, cfg.RestrictedTimeout),
		placeholder.NewGenerator(cfg.PlaceholderComposer, cfg.CanvasWidth, cfg.CanvasHeight),
		imageopt.NewOptimizer(cfg.OptimizeEnabled, cfg.OptimizeMaxWidth, cfg.OptimizeMaxHeight, cfg.OptimizeQuality),
		janitor.New(cfg.CleanupMaxAge),
		cfg.TempDir,
	)
}

// Cascade exposes the renderer cascade for status reporting
func (p *Pipeline) Cascade() *Cascade {
	return p.cascade
}

// Placeholder exposes the generator so callers can report composer status
func (p *Pipeline) Placeholder() *placeholder.Generator {
	return p.placeholder
}

// Optimizer exposes the optimizer settings
func (p *Pipeline) Optimizer() *imageopt.Optimizer {
	return p.optimizer
}

// Janitor exposes the janitor used for this pipeline's temp directory
func (p *Pipeline) Janitor() *janitor.Janitor {
	return p.janitor
}

// TempDir is the root under which run work directories are created
func (p *Pipeline) TempDir() string {
	return p.tempDir
}

// Convert rasterizes every page of data. The only error surfaced for bad
// input is pagesplit.ErrMalformedDocument; render failures become
// placeholder pages. On any error the temp state is cleaned up here.
func (p *Pipeline) Convert(ctx context.Context, data []byte, fileName string) (*Conversion, error) {
	start := time.Now()
	runID := ulid.Make()
	workDir := filepath.Join(p.tempDir, page.TempMarker+"-"+runID.String())
	if err := os.MkdirAll(workDir, 0o700); err != nil {
		Logger.Error("Unable to create run work directory", "runId", runID, "path", workDir, "error", err)
		return nil, fmt.Errorf("unable to create work directory: %w", err)
	}

	Logger.Info("Converting document", "runId", runID, "file", fileName, "size", humanize.Bytes(uint64(len(data))))

	pages, err := p.splitter.Split(ctx, data)
	if err != nil {
		Logger.Error("Unable to split document", "runId", runID, "file", fileName, "error", err)
		p.cleanup(nil, workDir)
		return nil, err
	}

	conv := &Conversion{
		RunID:   runID,
		Pages:   make([]page.File, 0, len(pages)),
		Reports: make([]PageReport, 0, len(pages)),
		WorkDir: workDir,
	}

	for i := range pages {
		if err := ctx.Err(); err != nil {
			Logger.Warn("Conversion cancelled", "runId", runID, "page", pages[i].Number, "error", err)
			p.cleanup(conv.Pages, workDir)
			return nil, err
		}

		file, report := p.convertPage(ctx, pages[i], fileName, workDir)
		conv.Pages = append(conv.Pages, file)
		conv.Reports = append(conv.Reports, report)
		pages[i].Data = nil
	}

	Logger.Info("Document converted",
		"runId", runID,
		"file", fileName,
		"pages", len(conv.Pages),
		"duration", time.Since(start))
	return conv, nil
}

func (p *Pipeline) convertPage(ctx context.Context, src pagesplit.Page, fileName, workDir string) (page.File, PageReport) {
	data, source, attempts := p.cascade.Render(ctx, pdfrenderer.RenderRequest{
		Data:       src.Data,
		PageNumber: src.Number,
		WorkDir:    workDir,
	})

	if data != nil {
		data = p.optimizer.Optimize(data)
	} else {
		result := p.placeholder.Generate(src.Number, src.Geometry, len(src.Data))
		source = result.Source()
		data = result.Data
		if !result.Degraded {
			data = p.optimizer.Optimize(data)
		}
		Logger.Warn("Using placeholder page", "page", src.Number, "source", source, "attempts", len(attempts))
	}

	file := page.File{
		PageNumber: src.Number,
		FileName:   page.FileName(fileName, src.Number),
		Buffer:     data,
		MimeType:   page.MimeJPEG,
		Source:     source,
	}
	return file, PageReport{PageNumber: src.Number, Source: source, Attempts: attempts}
}

// Release drops the page buffers and removes the run's temp files
func (p *Pipeline) Release(conv *Conversion) {
	if conv == nil {
		return
	}
	p.cleanup(conv.Pages, conv.WorkDir)
}

func (p *Pipeline) cleanup(pages []page.File, workDir string) {
	p.janitor.FullCleanup(pages, workDir)
	if workDir != "" && workDir != p.tempDir {
		// an abandoned restricted render may still be writing here; the
		// age sweep below removes the directory on a later run
		if err := os.Remove(workDir); err != nil && !os.IsNotExist(err) {
			Logger.Debug("Run work directory not removed", "path", workDir, "error", err)
		}
	}

	// leftovers of crashed earlier runs live next to this run's directory
	if _, err := p.janitor.CleanupByAge(p.tempDir, p.janitor.MaxAge); err != nil {
		Logger.Warn("Stale temp file sweep failed", "dir", p.tempDir, "error", err)
	}
}

// Close releases the splitter's PDFium pool when it has one
func (p *Pipeline) Close() error {
	if closer, ok := p.splitter.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
