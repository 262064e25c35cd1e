package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/drummonds/godocs-raster/engine/page"
	"github.com/drummonds/godocs-raster/engine/pdfrenderer"
)

// DefaultRestrictedTimeout bounds the single render attempt in restricted mode
const DefaultRestrictedTimeout = 8 * time.Second

// Outcome is the result class of one render attempt
type Outcome string

const (
	OutcomeSuccess     Outcome = "success"
	OutcomeUnavailable Outcome = "unavailable"
	OutcomeError       Outcome = "error"
	OutcomeTimeout     Outcome = "timeout"
)

// Attempt records one renderer invocation for a page
type Attempt struct {
	Renderer page.Source   `json:"renderer"`
	Outcome  Outcome       `json:"outcome"`
	Err      error         `json:"-"`
	Duration time.Duration `json:"duration"`
}

// Cascade tries renderers in a fixed order until one produces a raster.
// In a restricted environment the first renderer is skipped and the second
// one runs alone against a deadline.
type Cascade struct {
	env               Environment
	renderers         []pdfrenderer.Renderer
	restrictedTimeout time.Duration
}

// NewCascade takes renderers in priority order
func NewCascade(env Environment, renderers []pdfrenderer.Renderer, restrictedTimeout time.Duration) *Cascade {
	if restrictedTimeout <= 0 {
		restrictedTimeout = DefaultRestrictedTimeout
	}
	return &Cascade{
		env:               env,
		renderers:         renderers,
		restrictedTimeout: restrictedTimeout,
	}
}

// Environment returns the class the cascade was built for
func (c *Cascade) Environment() Environment {
	return c.env
}

// Renderers returns every configured renderer, in priority order
func (c *Cascade) Renderers() []pdfrenderer.Renderer {
	return c.renderers
}

// Plan returns the renderers that will actually be attempted
func (c *Cascade) Plan() []pdfrenderer.Renderer {
	if c.env == Restricted {
		if len(c.renderers) < 2 {
			return nil
		}
		return c.renderers[1:2]
	}
	return c.renderers
}

// Render returns the first successful raster and its source. A nil result
// means every attempt failed and the caller must fall back to a placeholder.
func (c *Cascade) Render(ctx context.Context, req pdfrenderer.RenderRequest) ([]byte, page.Source, []Attempt) {
	var attempts []Attempt

	for _, renderer := range c.Plan() {
		var attempt Attempt
		var data []byte
		if c.env == Restricted {
			data, attempt = c.race(ctx, renderer, req)
		} else {
			data, attempt = invoke(ctx, renderer, req)
		}
		attempts = append(attempts, attempt)

		logAttempt(req.PageNumber, attempt)
		if attempt.Outcome == OutcomeSuccess {
			return data, renderer.Name(), attempts
		}
		if c.env == Restricted {
			break
		}
	}

	return nil, "", attempts
}

type renderResult struct {
	data    []byte
	attempt Attempt
}

// race runs the renderer in a goroutine and stops waiting at the deadline.
// The renderer keeps the caller's context, so a slow subprocess is abandoned
// rather than killed; its deferred cleanup still runs when it exits.
func (c *Cascade) race(ctx context.Context, renderer pdfrenderer.Renderer, req pdfrenderer.RenderRequest) ([]byte, Attempt) {
	start := time.Now()
	results := make(chan renderResult, 1)

	go func() {
		data, attempt := invoke(ctx, renderer, req)
		results <- renderResult{data: data, attempt: attempt}
	}()

	timer := time.NewTimer(c.restrictedTimeout)
	defer timer.Stop()

	select {
	case res := <-results:
		return res.data, res.attempt
	case <-timer.C:
		return nil, Attempt{
			Renderer: renderer.Name(),
			Outcome:  OutcomeTimeout,
			Err:      fmt.Errorf("%s did not finish within %s", renderer.Name(), c.restrictedTimeout),
			Duration: time.Since(start),
		}
	case <-ctx.Done():
		return nil, Attempt{
			Renderer: renderer.Name(),
			Outcome:  OutcomeError,
			Err:      ctx.Err(),
			Duration: time.Since(start),
		}
	}
}

// invoke calls a renderer and classifies what came back. Panics are
// converted to errors so one broken backend cannot take down the request.
func invoke(ctx context.Context, renderer pdfrenderer.Renderer, req pdfrenderer.RenderRequest) (data []byte, attempt Attempt) {
	start := time.Now()
	attempt.Renderer = renderer.Name()

	defer func() {
		if r := recover(); r != nil {
			data = nil
			attempt.Outcome = OutcomeError
			attempt.Err = fmt.Errorf("%s panicked: %v", renderer.Name(), r)
		}
		attempt.Duration = time.Since(start)
	}()

	if err := renderer.Available(); err != nil {
		attempt.Outcome = OutcomeUnavailable
		attempt.Err = err
		return nil, attempt
	}

	data, err := renderer.Render(ctx, req)
	attempt.Outcome = classify(data, err)
	attempt.Err = err
	if attempt.Outcome != OutcomeSuccess {
		if attempt.Err == nil {
			attempt.Err = fmt.Errorf("%s returned no image data", renderer.Name())
		}
		return nil, attempt
	}
	return data, attempt
}

func classify(data []byte, err error) Outcome {
	switch {
	case err == nil && len(data) > 0:
		return OutcomeSuccess
	case err != nil && pdfrenderer.IsUnavailable(err):
		return OutcomeUnavailable
	default:
		return OutcomeError
	}
}

func logAttempt(pageNumber int, attempt Attempt) {
	if attempt.Outcome == OutcomeSuccess {
		Logger.Debug("Page rendered", "page", pageNumber, "renderer", attempt.Renderer, "duration", attempt.Duration)
		return
	}
	Logger.Warn("Render attempt failed",
		"page", pageNumber,
		"renderer", attempt.Renderer,
		"outcome", attempt.Outcome,
		"duration", attempt.Duration,
		"error", attempt.Err)
}
