package engine

import (
	"encoding/base64"
	"errors"
	"io"
	"net/http"

	"github.com/drummonds/godocs-raster/config"
	"github.com/drummonds/godocs-raster/engine/pagesplit"
	"github.com/drummonds/godocs-raster/engine/pipeline"
	"github.com/dustin/go-humanize"
	"github.com/labstack/echo/v4"
)

// ServerHandler will inject the variables needed into routes
type ServerHandler struct {
	Echo         *echo.Echo
	ServerConfig config.ServerConfig
	Pipeline     *pipeline.Pipeline
}

type rasterizedPage struct {
	PageNumber int    `json:"pageNumber"`
	FileName   string `json:"fileName"`
	MimeType   string `json:"mimeType"`
	Source     string `json:"source"`
	Size       int    `json:"size"`
	HumanSize  string `json:"humanSize"`
	Data       string `json:"data"`
}

type rasterizeResponse struct {
	RunID    string                `json:"runId"`
	FileName string                `json:"fileName"`
	Pages    []rasterizedPage      `json:"pages"`
	Reports  []pipeline.PageReport `json:"reports"`
}

type rendererStatus struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
	Planned   bool   `json:"planned"`
	Error     string `json:"error,omitempty"`
}

// AddRoutes registers every API route on the handler's echo instance
func (serverHandler *ServerHandler) AddRoutes() {
	e := serverHandler.Echo
	e.POST("/api/rasterize", serverHandler.RasterizeDocument)
	e.GET("/api/renderers", serverHandler.GetRenderers)
	e.GET("/api/health", serverHandler.GetHealth)
}

// RasterizeDocument converts an uploaded PDF into one JPEG per page
// @Summary Rasterize a PDF
// @Description Split the uploaded document and return every page as a base64 JPEG
// @Tags Raster
// @Accept multipart/form-data
// @Produce json
// @Param document formData file true "PDF document"
// @Success 200 {object} rasterizeResponse "Rasterized pages"
// @Failure 400 {object} map[string]interface{} "No document uploaded"
// @Failure 422 {object} map[string]interface{} "Malformed document"
// @Router /rasterize [post]
func (serverHandler *ServerHandler) RasterizeDocument(c echo.Context) error {
	file, fileHeader, err := c.Request().FormFile("document")
	if err != nil {
		Logger.Debug("Rasterize request without document", "error", err)
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "Missing form file 'document'",
		})
	}
	defer file.Close()

	body, err := io.ReadAll(file)
	if err != nil {
		Logger.Error("Unable to read uploaded document", "fileName", fileHeader.Filename, "error", err)
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "Unable to read uploaded document",
		})
	}
	if len(body) == 0 {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "Uploaded document is empty",
		})
	}

	conv, err := serverHandler.Pipeline.Convert(c.Request().Context(), body, fileHeader.Filename)
	if err != nil {
		if errors.Is(err, pagesplit.ErrMalformedDocument) {
			return c.JSON(http.StatusUnprocessableEntity, map[string]interface{}{
				"error":   "Malformed document",
				"message": err.Error(),
			})
		}
		Logger.Error("Rasterization failed", "fileName", fileHeader.Filename, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "Rasterization failed",
		})
	}
	defer serverHandler.Pipeline.Release(conv)

	response := rasterizeResponse{
		RunID:    conv.RunID.String(),
		FileName: fileHeader.Filename,
		Pages:    make([]rasterizedPage, 0, len(conv.Pages)),
		Reports:  conv.Reports,
	}
	for _, pageFile := range conv.Pages {
		response.Pages = append(response.Pages, rasterizedPage{
			PageNumber: pageFile.PageNumber,
			FileName:   pageFile.FileName,
			MimeType:   pageFile.MimeType,
			Source:     string(pageFile.Source),
			Size:       len(pageFile.Buffer),
			HumanSize:  humanize.Bytes(uint64(len(pageFile.Buffer))),
			Data:       base64.StdEncoding.EncodeToString(pageFile.Buffer),
		})
	}

	return c.JSON(http.StatusOK, response)
}

// GetRenderers reports which renderers are installed and which will be tried
// @Summary Renderer status
// @Description Availability of each renderer and the detected environment class
// @Tags Raster
// @Produce json
// @Success 200 {object} map[string]interface{} "Renderer status"
// @Router /renderers [get]
func (serverHandler *ServerHandler) GetRenderers(c echo.Context) error {
	cascade := serverHandler.Pipeline.Cascade()

	planned := map[string]bool{}
	for _, renderer := range cascade.Plan() {
		planned[string(renderer.Name())] = true
	}

	renderers := []rendererStatus{}
	for _, renderer := range cascade.Renderers() {
		status := rendererStatus{Name: string(renderer.Name()), Planned: planned[string(renderer.Name())]}
		if err := renderer.Available(); err != nil {
			status.Error = err.Error()
		} else {
			status.Available = true
		}
		renderers = append(renderers, status)
	}

	optimizer := serverHandler.Pipeline.Optimizer()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"environment":         cascade.Environment().String(),
		"restrictedTimeout":   serverHandler.ServerConfig.RestrictedTimeout.String(),
		"renderers":           renderers,
		"placeholderComposer": serverHandler.Pipeline.Placeholder().Available(),
		"optimizerEnabled":    optimizer != nil && optimizer.Enabled,
	})
}

// GetHealth is the liveness probe
// @Summary Health check
// @Tags Health
// @Produce json
// @Success 200 {object} map[string]string "Service healthy"
// @Router /health [get]
func (serverHandler *ServerHandler) GetHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "godocs-raster",
	})
}
