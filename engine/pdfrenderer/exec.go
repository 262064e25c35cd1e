package pdfrenderer

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/drummonds/godocs-raster/engine/page"
)

// binary is an external conversion backend probed lazily on first use
type binary struct {
	name       page.Source
	configured string

	once     sync.Once
	resolved string
	probeErr error
}

func (b *binary) available() error {
	b.once.Do(func() {
		if b.configured == "" {
			b.probeErr = NewRenderError(b.name, ErrCodeUnavailable, "no binary configured", nil)
			return
		}
		path, err := resolveBinaryPath(b.configured)
		if err != nil {
			b.probeErr = NewRenderError(b.name, ErrCodeUnavailable, "binary not found: "+b.configured, err)
			Logger.Info("Renderer backend not available", "renderer", b.name, "binary", b.configured, "error", err)
			return
		}
		b.resolved = path
		Logger.Debug("Renderer backend found", "renderer", b.name, "path", path)
	})
	return b.probeErr
}

// run executes the backend, classifying a missing binary as unavailable and
// anything else as a render failure
func (b *binary) run(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, b.resolved, args...)

	var stdBuffer bytes.Buffer
	cmd.Stdout = &stdBuffer
	cmd.Stderr = &stdBuffer

	start := time.Now()
	err := cmd.Run()
	Logger.Debug("Renderer command run was", "command", cmd.String(), "duration", time.Since(start))
	if err == nil {
		return nil
	}

	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
		return NewRenderError(b.name, ErrCodeUnavailable, "binary disappeared: "+b.resolved, err)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return NewRenderError(b.name, ErrCodeFailed, "render cancelled", ctxErr)
	}

	detail := strings.TrimSpace(stdBuffer.String())
	Logger.Warn("Renderer backend failed", "renderer", b.name, "error", err, "detail", detail)
	return NewRenderError(b.name, ErrCodeFailed, "execution failed: "+detail, err)
}

// writeInput stores the page for the backend to read
func writeInput(renderer page.Source, files tempFiles, data []byte) error {
	if len(data) == 0 {
		return NewRenderError(renderer, ErrCodeFailed, "page data is empty", nil)
	}
	if err := os.WriteFile(files.input, data, 0600); err != nil {
		return NewRenderError(renderer, ErrCodeFailed, "failed to write temp input", err)
	}
	return nil
}
