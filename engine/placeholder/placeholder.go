// Package placeholder synthesizes a substitute page image when no renderer
// succeeded. Generate never fails: without the image composer it returns a
// small non-JPEG buffer that is still reported as image/jpeg.
package placeholder

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"math/rand"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/drummonds/godocs-raster/engine/page"
	"github.com/dustin/go-humanize"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Logger is global since we will need it everywhere
var Logger = slog.Default()

var errComposerUnavailable = errors.New("image composer unavailable")

// Default canvas and layout constants for the synthetic page
const (
	CanvasWidth  = 1240
	CanvasHeight = 1754
	Quality      = 80

	headerHeight = 160
	footerHeight = 140
	margin       = 100
	bodyLines    = 18
	lineHeight   = 22
	lineSpacing  = 64
)

var (
	headerColor = color.NRGBA{R: 0xE8, G: 0xEC, B: 0xF1, A: 0xFF}
	footerColor = color.NRGBA{R: 0xF3, G: 0xF3, B: 0xF3, A: 0xFF}
	lineColor   = color.NRGBA{R: 0xC8, G: 0xC8, B: 0xC8, A: 0xFF}
	textColor   = color.NRGBA{R: 0x33, G: 0x33, B: 0x33, A: 0xFF}
)

// Result is the generated page image
type Result struct {
	Data []byte
	// Degraded is set when the composer was unavailable and Data is not a JPEG
	Degraded bool
}

// Source reports the page source matching this result
func (r Result) Source() page.Source {
	if r.Degraded {
		return page.SourcePlaceholderDegraded
	}
	return page.SourcePlaceholder
}

// composer draws text and bands; it is optional and may be missing at runtime
type composer struct {
	face font.Face
}

// Generator produces placeholder pages
type Generator struct {
	enabled bool
	width   int
	height  int

	once     sync.Once
	comp     *composer
	loadErr  error
	randMu   sync.Mutex
	rnd      *rand.Rand
	loadFunc func() (*composer, error)
}

// NewGenerator creates a generator drawing on a width x height canvas, which
// should match the renderers' canvas; zero sizes use the defaults.
// composerEnabled=false forces the degraded path.
func NewGenerator(composerEnabled bool, width, height int) *Generator {
	if width <= 0 {
		width = CanvasWidth
	}
	if height <= 0 {
		height = CanvasHeight
	}
	return &Generator{
		enabled:  composerEnabled,
		width:    width,
		height:   height,
		rnd:      rand.New(rand.NewSource(rand.Int63())),
		loadFunc: loadComposer,
	}
}

func loadComposer() (*composer, error) {
	return &composer{face: basicfont.Face7x13}, nil
}

// composer resolves the capability once; callers must branch on the error
func (g *Generator) composer() (*composer, error) {
	if !g.enabled {
		return nil, errComposerUnavailable
	}
	g.once.Do(func() {
		defer func() {
			if r := recover(); r != nil {
				g.comp = nil
				g.loadErr = fmt.Errorf("%w: %v", errComposerUnavailable, r)
				Logger.Warn("Placeholder composer failed to load, placeholders will be degraded", "panic", r)
			}
		}()
		g.comp, g.loadErr = g.loadFunc()
		if g.loadErr != nil {
			Logger.Warn("Placeholder composer failed to load, placeholders will be degraded", "error", g.loadErr)
		}
	})
	return g.comp, g.loadErr
}

// Available reports whether composed (valid JPEG) placeholders can be produced
func (g *Generator) Available() bool {
	_, err := g.composer()
	return err == nil
}

// Generate returns a placeholder for the page. It never panics out and never
// returns an empty buffer.
func (g *Generator) Generate(pageNumber int, geometry *page.Geometry, sourceSize int) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			Logger.Error("Panic recovered while composing placeholder", "page", pageNumber, "panic", r)
			result = degraded(pageNumber)
		}
	}()

	comp, err := g.composer()
	if err != nil {
		Logger.Debug("Composer unavailable, returning degraded placeholder", "page", pageNumber, "error", err)
		return degraded(pageNumber)
	}

	data, err := g.compose(comp, pageNumber, geometry, sourceSize)
	if err != nil {
		Logger.Warn("Unable to compose placeholder", "page", pageNumber, "error", err)
		return degraded(pageNumber)
	}
	return Result{Data: data}
}

// degraded returns text, not an image; callers still label it image/jpeg
func degraded(pageNumber int) Result {
	return Result{Data: []byte(fmt.Sprintf("placeholder page %d", pageNumber)), Degraded: true}
}

func (g *Generator) compose(comp *composer, pageNumber int, geometry *page.Geometry, sourceSize int) ([]byte, error) {
	canvas := imaging.New(g.width, g.height, color.White)

	// Header band
	canvas = imaging.Paste(canvas, imaging.New(g.width, headerHeight, headerColor), image.Pt(0, 0))
	comp.drawText(canvas, fmt.Sprintf("Page %d", pageNumber), margin, headerHeight/2+5)
	comp.drawText(canvas, "Preview unavailable - placeholder image", margin, headerHeight/2+30)

	// Body: fixed count and spacing, only the widths vary
	maxWidth := max(g.width-2*margin, 1)
	top := headerHeight + margin
	for i := 0; i < bodyLines; i++ {
		width := g.lineWidth(maxWidth)
		canvas = imaging.Paste(canvas, imaging.New(width, lineHeight, lineColor), image.Pt(margin, top+i*lineSpacing))
	}

	// Footer band
	footerTop := g.height - footerHeight
	canvas = imaging.Paste(canvas, imaging.New(g.width, footerHeight, footerColor), image.Pt(0, footerTop))
	dimensions := "unknown"
	if geometry != nil {
		dimensions = geometry.String()
	}
	comp.drawText(canvas, "Original page: "+dimensions, margin, footerTop+footerHeight/2-5)
	comp.drawText(canvas, "Source document: "+humanize.Bytes(uint64(max(sourceSize, 0))), margin, footerTop+footerHeight/2+20)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, canvas, imaging.JPEG, imaging.JPEGQuality(Quality)); err != nil {
		return nil, fmt.Errorf("failed to encode placeholder: %w", err)
	}
	return buf.Bytes(), nil
}

// lineWidth picks a pseudo-text line width between 40% and 100% of the body
func (g *Generator) lineWidth(maxWidth int) int {
	g.randMu.Lock()
	defer g.randMu.Unlock()
	return max(maxWidth*4/10, 1) + g.rnd.Intn(maxWidth*6/10+1)
}

func (c *composer) drawText(dst *image.NRGBA, text string, x, y int) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(textColor),
		Face: c.face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}
