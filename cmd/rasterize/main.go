package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/dustin/go-humanize"

	config "github.com/drummonds/godocs-raster/config"
	"github.com/drummonds/godocs-raster/engine/imageopt"
	"github.com/drummonds/godocs-raster/engine/janitor"
	"github.com/drummonds/godocs-raster/engine/pagesplit"
	"github.com/drummonds/godocs-raster/engine/pdfrenderer"
	"github.com/drummonds/godocs-raster/engine/pipeline"
	"github.com/drummonds/godocs-raster/engine/placeholder"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger

// injectGlobals injects all of our globals into their packages
func injectGlobals(logger *slog.Logger) {
	Logger = logger
	config.Logger = Logger
	pipeline.Logger = Logger
	pagesplit.Logger = Logger
	pdfrenderer.Logger = Logger
	placeholder.Logger = Logger
	imageopt.Logger = Logger
	janitor.Logger = Logger
}

func main() {
	in := flag.String("in", "", "PDF document to rasterize")
	out := flag.String("out", ".", "Directory the page images are written to")
	env := flag.String("env", "", "Override RASTER_ENVIRONMENT (auto, restricted, unrestricted)")
	flag.Parse()

	if *in == "" {
		fmt.Fprintln(os.Stderr, "usage: rasterize -in document.pdf [-out dir] [-env mode]")
		os.Exit(2)
	}

	rasterConfig, logger := config.SetupRaster()
	injectGlobals(logger)
	if *env != "" {
		rasterConfig.Environment = *env
	}

	if err := run(*in, *out, rasterConfig); err != nil {
		fmt.Fprintln(os.Stderr, "rasterize:", err)
		os.Exit(1)
	}
}

func run(inPath, outDir string, rasterConfig config.RasterConfig) error {
	data, err := os.ReadFile(inPath)
	if err != nil {
		return fmt.Errorf("unable to read %s: %w", inPath, err)
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("unable to create output directory: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rasterPipeline := pipeline.NewFromConfig(rasterConfig)
	defer rasterPipeline.Close()

	conv, err := rasterPipeline.Convert(ctx, data, filepath.Base(inPath))
	if err != nil {
		return err
	}
	defer rasterPipeline.Release(conv)

	for _, pageFile := range conv.Pages {
		path := filepath.Join(outDir, pageFile.FileName)
		if err := os.WriteFile(path, pageFile.Buffer, 0644); err != nil {
			return fmt.Errorf("unable to write page %d: %w", pageFile.PageNumber, err)
		}
		fmt.Printf("page %d -> %s (%s, %s)\n", pageFile.PageNumber, path, pageFile.Source, humanize.Bytes(uint64(len(pageFile.Buffer))))
	}
	Logger.Info("Rasterization finished", "runId", conv.RunID, "pages", len(conv.Pages), "out", outDir)
	return nil
}
