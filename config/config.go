package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger

// ServerConfig contains all of the server settings
type ServerConfig struct {
	ListenAddrIP     string
	ListenAddrPort   string
	MaxUploadMB      int
	SweepInterval    int // minutes between stale temp file sweeps, 0 disables
	SweepMaxAgeHours int
	RasterConfig
}

// RasterConfig stores the rasterization pipeline settings
type RasterConfig struct {
	TempDir             string // absolute path, renderers work in per-request subdirectories
	Environment         string // auto, restricted or unrestricted
	RestrictedTimeout   time.Duration
	DPI                 int
	CanvasWidth         int
	CanvasHeight        int
	JPEGQuality         int
	PdftoppmPath        string
	MagickPath          string
	MuPDFEnabled        bool
	OptimizeEnabled     bool
	OptimizeMaxWidth    int
	OptimizeMaxHeight   int
	OptimizeQuality     int
	PlaceholderComposer bool
	CleanupMaxAge       time.Duration
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	boolVal, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return boolVal
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intVal, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intVal
}

// getEnvDuration accepts Go durations ("8s") or a plain number of seconds
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}

// SetupServer loads configuration and returns ServerConfig and Logger
func SetupServer() (ServerConfig, *slog.Logger) {
	serverConfigLive := ServerConfig{}

	// Load .env file (silently ignore if doesn't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load("config.env")

	logger := setupLogging()
	Logger = logger

	serverConfigLive.ListenAddrPort = getEnv("SERVER_PORT", "8002")
	serverConfigLive.ListenAddrIP = getEnv("SERVER_ADDR", "")
	serverConfigLive.MaxUploadMB = getEnvInt("MAX_UPLOAD_MB", 32)
	serverConfigLive.SweepInterval = getEnvInt("RASTER_SWEEP_INTERVAL", 30)
	serverConfigLive.SweepMaxAgeHours = getEnvInt("RASTER_SWEEP_MAX_AGE_HOURS", 1)

	serverConfigLive.RasterConfig = loadRasterConfig(logger)
	if serverConfigLive.SweepMaxAgeHours > 0 {
		serverConfigLive.CleanupMaxAge = time.Duration(serverConfigLive.SweepMaxAgeHours) * time.Hour
	}

	fmt.Println("\n========================================")
	fmt.Println("   godocs-raster - Page Rasterization Service")
	fmt.Println("========================================")
	fmt.Printf("Server will start on: %s:%s\n", serverConfigLive.ListenAddrIP, serverConfigLive.ListenAddrPort)
	if serverConfigLive.ListenAddrIP == "" {
		fmt.Println("(Listening on all network interfaces)")
	}
	fmt.Printf("Detailed logs: %s\n", getEnv("LOG_FILE", "godocs-raster.log"))
	fmt.Println("Initializing...")

	return serverConfigLive, logger
}

// SetupRaster loads only the pipeline configuration, for the one-shot CLI
func SetupRaster() (RasterConfig, *slog.Logger) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load("config.env")

	logger := setupLogging()
	Logger = logger

	rasterConfig := loadRasterConfig(logger)
	rasterConfig.CleanupMaxAge = time.Duration(getEnvInt("RASTER_SWEEP_MAX_AGE_HOURS", 1)) * time.Hour
	return rasterConfig, logger
}

func loadRasterConfig(logger *slog.Logger) RasterConfig {
	rasterConfig := RasterConfig{}

	tempDir := filepath.ToSlash(getEnv("RASTER_TEMP_DIR", filepath.Join(os.TempDir(), "godocs-raster")))
	tempDirAbs, err := filepath.Abs(tempDir)
	if err != nil {
		logger.Error("Failed creating absolute path for temp directory", "path", tempDir, "error", err)
		tempDirAbs = tempDir
	}
	rasterConfig.TempDir = tempDirAbs

	rasterConfig.Environment = strings.ToLower(getEnv("RASTER_ENVIRONMENT", "auto"))
	switch rasterConfig.Environment {
	case "auto", "restricted", "unrestricted":
	default:
		logger.Warn("Unknown RASTER_ENVIRONMENT, falling back to auto detection", "value", rasterConfig.Environment)
		rasterConfig.Environment = "auto"
	}
	rasterConfig.RestrictedTimeout = getEnvDuration("RASTER_RESTRICTED_TIMEOUT", 8*time.Second)

	rasterConfig.DPI = getEnvInt("RASTER_DPI", 150)
	rasterConfig.CanvasWidth = getEnvInt("RASTER_CANVAS_WIDTH", 1240)
	rasterConfig.CanvasHeight = getEnvInt("RASTER_CANVAS_HEIGHT", 1754)
	rasterConfig.JPEGQuality = getEnvInt("RASTER_JPEG_QUALITY", 90)

	rasterConfig.PdftoppmPath = getEnv("PDFTOPPM_PATH", "pdftoppm")
	rasterConfig.MagickPath = getEnv("MAGICK_PATH", "gm")
	rasterConfig.MuPDFEnabled = getEnvBool("RASTER_MUPDF_ENABLED", true)

	rasterConfig.OptimizeEnabled = getEnvBool("RASTER_OPTIMIZE", true)
	rasterConfig.OptimizeMaxWidth = getEnvInt("RASTER_MAX_WIDTH", 2000)
	rasterConfig.OptimizeMaxHeight = getEnvInt("RASTER_MAX_HEIGHT", 2000)
	rasterConfig.OptimizeQuality = getEnvInt("RASTER_OPTIMIZE_QUALITY", 85)

	rasterConfig.PlaceholderComposer = getEnvBool("RASTER_PLACEHOLDER_COMPOSER", true)

	logger.Info("Raster configuration loaded",
		"tempDir", rasterConfig.TempDir,
		"environment", rasterConfig.Environment,
		"restrictedTimeout", rasterConfig.RestrictedTimeout,
		"dpi", rasterConfig.DPI,
		"canvas", fmt.Sprintf("%dx%d", rasterConfig.CanvasWidth, rasterConfig.CanvasHeight))

	return rasterConfig
}

// setupLogging configures the application logger
func setupLogging() *slog.Logger {
	logLevel := getEnv("LOG_LEVEL", "debug")
	var level slog.Level

	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelDebug
	}

	handlerOptions := &slog.HandlerOptions{Level: level}

	logOutput := getEnv("LOG_OUTPUT", "file")
	var logWriter io.Writer

	if logOutput == "stdout" {
		logWriter = os.Stdout
	} else if logOutput == "stderr" {
		logWriter = os.Stderr
	} else {
		logPath, err := filepath.Abs(filepath.ToSlash(getEnv("LOG_FILE", "godocs-raster.log")))
		if err != nil {
			fmt.Printf("Error creating log file path: %v\n", err)
			logWriter = os.Stdout
		} else {
			logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
			if err != nil {
				fmt.Printf("Failed to open log file: %v\n", err)
				logWriter = os.Stdout
			} else {
				logWriter = logFile
				fmt.Println("Logging to file: ", logPath)
			}
		}
	}

	handler := slog.NewTextHandler(logWriter, handlerOptions)
	return slog.New(handler)
}
