package imageopt

import (
	"bytes"
	"fmt"
	"log/slog"

	"github.com/disintegration/imaging"
)

// Logger is global since we will need it everywhere
var Logger = slog.Default()

const (
	DefaultMaxWidth  = 2000
	DefaultMaxHeight = 2000
	DefaultQuality   = 85
)

// Optimizer normalizes rendered pages: fit within a maximum canvas without
// upscaling and re-encode as JPEG. It never fails; on any problem the input is
// returned unchanged.
type Optimizer struct {
	Enabled   bool
	MaxWidth  int
	MaxHeight int
	Quality   int
}

// NewOptimizer creates an optimizer with defaults for zero values
func NewOptimizer(enabled bool, maxWidth, maxHeight, quality int) *Optimizer {
	if maxWidth <= 0 {
		maxWidth = DefaultMaxWidth
	}
	if maxHeight <= 0 {
		maxHeight = DefaultMaxHeight
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	return &Optimizer{Enabled: enabled, MaxWidth: maxWidth, MaxHeight: maxHeight, Quality: quality}
}

// Optimize returns the normalized JPEG, or data itself when optimization is
// disabled or not possible
func (o *Optimizer) Optimize(data []byte) []byte {
	if o == nil || !o.Enabled || len(data) == 0 {
		return data
	}

	out, err := o.optimize(data)
	if err != nil {
		Logger.Debug("Image optimization skipped, passing through", "bytes", len(data), "error", err)
		return data
	}
	return out
}

func (o *Optimizer) optimize(data []byte) (out []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("panic while optimizing image: %v", r)
		}
	}()

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("unable to decode image: %w", err)
	}

	// Fit never upscales images that are already within bounds
	fitted := imaging.Fit(img, o.MaxWidth, o.MaxHeight, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, fitted, imaging.JPEG, imaging.JPEGQuality(o.Quality)); err != nil {
		return nil, fmt.Errorf("unable to encode JPEG: %w", err)
	}

	Logger.Debug("Image optimized", "before", len(data), "after", buf.Len(),
		"width", fitted.Bounds().Dx(), "height", fitted.Bounds().Dy())
	return buf.Bytes(), nil
}
