package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	config "github.com/drummonds/godocs-raster/config"
	engine "github.com/drummonds/godocs-raster/engine"
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
	engine.Logger = Logger
	pipeline.Logger = Logger
	pagesplit.Logger = Logger
	pdfrenderer.Logger = Logger
	placeholder.Logger = Logger
	imageopt.Logger = Logger
	janitor.Logger = Logger
}

// @title godocs-raster API
// @version 1.0
// @description Page rasterization service - converts PDFs into one JPEG per page

// @BasePath /api
// @schemes http https

// @tag.name Raster
// @tag.description Document rasterization

// @tag.name Health
// @tag.description Service health check

func main() {
	// Parse command-line flags
	port := flag.String("port", "", "Port to run the raster server on (overrides SERVER_PORT)")
	flag.Parse()

	fmt.Println("\n" + strings.Repeat("=", 50))
	fmt.Println("🖨️  godocs-raster API Server")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Println("• POST /api/rasterize with a 'document' form file")
	fmt.Println("• Renderers: pdftoppm, GraphicsMagick, MuPDF")
	fmt.Println(strings.Repeat("=", 50) + "\n")

	serverConfig, logger := config.SetupServer()
	injectGlobals(logger) //inject the logger into all of the packages

	rasterPipeline := pipeline.NewFromConfig(serverConfig.RasterConfig)
	defer rasterPipeline.Close()

	// Initialize Echo
	e := echo.New()
	e.HideBanner = true

	// Custom 404 handler for API endpoints
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
		}

		if code == http.StatusNotFound {
			c.JSON(http.StatusNotFound, map[string]string{
				"error":   "Not Found",
				"message": "The requested API endpoint does not exist",
				"path":    c.Request().URL.Path,
			})
			return
		}

		// For other errors, use default handler
		e.DefaultHTTPErrorHandler(err, c)
	}

	serverHandler := engine.ServerHandler{Echo: e, ServerConfig: serverConfig, Pipeline: rasterPipeline}
	Logger.Info("Initializing raster services...")
	if err := serverHandler.StartupChecks(); err != nil { //Run all the sanity checks
		Logger.Error("Startup checks failed", "error", err)
		os.Exit(1)
	}
	if scheduler := serverHandler.InitializeSchedules(); scheduler != nil { //initialize the temp file sweep
		defer scheduler.Stop()
	}
	Logger.Info("Raster services initialized")

	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit(fmt.Sprintf("%dM", serverConfig.MaxUploadMB)))

	// CORS configuration - allow callers from any origin
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	// Request logging
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "method=${method}, uri=${uri}, status=${status}, latency=${latency_human}\n",
	}))

	Logger.Info("Setting up API routes...")
	serverHandler.AddRoutes()

	if *port != "" {
		serverConfig.ListenAddrPort = *port
	}

	// Start server
	addr := fmt.Sprintf("%s:%s", serverConfig.ListenAddrIP, serverConfig.ListenAddrPort)
	Logger.Info("Starting Raster API Server", "address", addr)
	fmt.Printf("\n✅  Raster API Server running on %s\n", addr)
	fmt.Printf("📡  Rasterize: POST http://%s/api/rasterize\n", addr)
	fmt.Printf("🏥  Health check: http://%s/api/health\n\n", addr)

	if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
		Logger.Error("Server failed to start", "error", err)
		os.Exit(1)
	}
}
