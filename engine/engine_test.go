package engine

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/drummonds/godocs-raster/config"
	"github.com/drummonds/godocs-raster/engine/page"
	"github.com/drummonds/godocs-raster/engine/pipeline"
	"github.com/drummonds/godocs-raster/internal/testpdf"
	"github.com/labstack/echo/v4"
)

// newTestServer wires a real pipeline whose renderers are all missing, so
// every page comes back as a composed placeholder
func newTestServer(t *testing.T) (*ServerHandler, string) {
	t.Helper()
	tempDir := t.TempDir()
	missing := filepath.Join(tempDir, "no-such-binary")

	serverConfig := config.ServerConfig{
		SweepInterval:    0,
		SweepMaxAgeHours: 1,
		RasterConfig: config.RasterConfig{
			TempDir:             filepath.Join(tempDir, "raster"),
			Environment:         "unrestricted",
			RestrictedTimeout:   time.Second,
			PdftoppmPath:        missing,
			MagickPath:          missing,
			MuPDFEnabled:        false,
			OptimizeEnabled:     true,
			PlaceholderComposer: true,
		},
	}

	e := echo.New()
	serverHandler := &ServerHandler{
		Echo:         e,
		ServerConfig: serverConfig,
		Pipeline:     pipeline.NewFromConfig(serverConfig.RasterConfig),
	}
	t.Cleanup(func() { serverHandler.Pipeline.Close() })
	serverHandler.AddRoutes()
	return serverHandler, serverConfig.TempDir
}

func multipartBody(t *testing.T, field, fileName string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile(field, fileName)
	if err != nil {
		t.Fatalf("Failed to create form file: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("Failed to write form file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Failed to close multipart writer: %v", err)
	}
	return body, writer.FormDataContentType()
}

func TestRasterizeDocument_SinglePage(t *testing.T) {
	serverHandler, tempDir := newTestServer(t)

	body, contentType := multipartBody(t, "document", "invoice.pdf", testpdf.Build(testpdf.A4))
	req := httptest.NewRequest(http.MethodPost, "/api/rasterize", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := httptest.NewRecorder()
	serverHandler.Echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var response rasterizeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if response.RunID == "" {
		t.Error("Expected a run id")
	}
	if len(response.Pages) != 1 {
		t.Fatalf("Expected 1 page, got %d", len(response.Pages))
	}

	got := response.Pages[0]
	if got.PageNumber != 1 || got.FileName != "invoice_page_1.jpg" || got.MimeType != page.MimeJPEG {
		t.Errorf("Unexpected page metadata: %+v", got)
	}
	if got.Source != string(page.SourcePlaceholder) {
		t.Errorf("Expected placeholder source, got %s", got.Source)
	}
	data, err := base64.StdEncoding.DecodeString(got.Data)
	if err != nil {
		t.Fatalf("Page data is not base64: %v", err)
	}
	if len(data) != got.Size || len(data) < 3 || data[0] != 0xFF || data[1] != 0xD8 {
		t.Errorf("Expected JPEG data of %d bytes, got %d", got.Size, len(data))
	}
	if len(response.Reports) != 1 || len(response.Reports[0].Attempts) != 3 {
		t.Errorf("Expected three unavailable attempts reported, got %+v", response.Reports)
	}

	entries, err := os.ReadDir(tempDir)
	if err != nil {
		t.Fatalf("Failed to read temp dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected temp dir to be empty after the request, found %d entries", len(entries))
	}
}

func TestRasterizeDocument_MissingFile(t *testing.T) {
	serverHandler, _ := newTestServer(t)

	body, contentType := multipartBody(t, "file", "invoice.pdf", testpdf.Build())
	req := httptest.NewRequest(http.MethodPost, "/api/rasterize", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := httptest.NewRecorder()
	serverHandler.Echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rec.Code)
	}
}

func TestRasterizeDocument_Malformed(t *testing.T) {
	serverHandler, _ := newTestServer(t)

	body, contentType := multipartBody(t, "document", "notes.pdf", []byte("this is not a pdf"))
	req := httptest.NewRequest(http.MethodPost, "/api/rasterize", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := httptest.NewRecorder()
	serverHandler.Echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("Expected status 422, got %d: %s", rec.Code, rec.Body.String())
	}
	var response map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if response["error"] != "Malformed document" {
		t.Errorf("Unexpected error body: %v", response)
	}
}

func TestGetRenderers(t *testing.T) {
	serverHandler, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/renderers", nil)
	rec := httptest.NewRecorder()
	serverHandler.Echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	var response struct {
		Environment         string           `json:"environment"`
		Renderers           []rendererStatus `json:"renderers"`
		PlaceholderComposer bool             `json:"placeholderComposer"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if response.Environment != "unrestricted" {
		t.Errorf("Expected unrestricted environment, got %s", response.Environment)
	}
	if len(response.Renderers) != 3 {
		t.Fatalf("Expected 3 renderers, got %d", len(response.Renderers))
	}
	wantOrder := []page.Source{page.SourcePoppler, page.SourceMagick, page.SourceMuPDF}
	for i, status := range response.Renderers {
		if status.Name != string(wantOrder[i]) {
			t.Errorf("Renderer %d: expected %s, got %s", i, wantOrder[i], status.Name)
		}
		if status.Available || status.Error == "" || !status.Planned {
			t.Errorf("Expected %s to be planned but unavailable, got %+v", status.Name, status)
		}
	}
	if !response.PlaceholderComposer {
		t.Error("Expected placeholder composer to be available")
	}
}

func TestGetHealth(t *testing.T) {
	serverHandler, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	serverHandler.Echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rec.Code)
	}
}

func TestStartupChecks(t *testing.T) {
	serverHandler, tempDir := newTestServer(t)
	if err := os.RemoveAll(tempDir); err != nil {
		t.Fatalf("Failed to remove temp dir: %v", err)
	}

	if err := serverHandler.StartupChecks(); err != nil {
		t.Fatalf("StartupChecks failed: %v", err)
	}
	if info, err := os.Stat(tempDir); err != nil || !info.IsDir() {
		t.Errorf("Expected temp dir to be recreated, err = %v", err)
	}

	if available := rendererChecks(serverHandler.Pipeline.Cascade()); available != 0 {
		t.Errorf("Expected no renderers available, got %d", available)
	}
}

func TestTempDirectoryChecks_NotADirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}
	if err := tempDirectoryChecks(path); err == nil {
		t.Error("Expected error when temp path is a file")
	}
}

func TestSweepJobFunc(t *testing.T) {
	serverHandler, tempDir := newTestServer(t)

	old := time.Now().Add(-3 * time.Hour)
	stale := filepath.Join(tempDir, "1000_page1_magick_godocsraster.pdf")
	fresh := filepath.Join(tempDir, "2000_page1_magick_godocsraster.pdf")
	for _, path := range []string{stale, fresh} {
		if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
			t.Fatalf("Failed to create %s: %v", path, err)
		}
	}
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatalf("Failed to age file: %v", err)
	}

	serverHandler.sweepJobFunc()

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("Expected stale temp file to be swept")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Error("Expected fresh temp file to be kept")
	}

	if c := serverHandler.InitializeSchedules(); c != nil {
		t.Error("Expected no scheduler when the sweep interval is zero")
	}
}
