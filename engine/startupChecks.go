package engine

import (
	"fmt"
	"os"

	"github.com/drummonds/godocs-raster/engine/pipeline"
)

// StartupChecks performs all the checks to make sure everything works
func (serverHandler *ServerHandler) StartupChecks() error {
	if err := tempDirectoryChecks(serverHandler.Pipeline.TempDir()); err != nil {
		return err
	}
	rendererChecks(serverHandler.Pipeline.Cascade())
	return nil
}

// rendererChecks probes every renderer once so the log shows what this host can do.
// Missing renderers are not fatal, pages fall back to placeholders.
func rendererChecks(cascade *pipeline.Cascade) int {
	available := 0
	for _, renderer := range cascade.Renderers() {
		if err := renderer.Available(); err != nil {
			Logger.Warn("Renderer unavailable", "renderer", renderer.Name(), "error", err)
			continue
		}
		Logger.Info("Renderer available", "renderer", renderer.Name())
		available++
	}

	usable := 0
	for _, renderer := range cascade.Plan() {
		if renderer.Available() == nil {
			usable++
		}
	}
	if usable == 0 {
		Logger.Warn("No renderer will run in this environment, every page will be a placeholder", "environment", cascade.Environment())
	}
	return available
}

// tempDirectoryChecks ensures the temp directory exists
func tempDirectoryChecks(tempDir string) error {
	if tempDir == "" {
		Logger.Warn("Temp path not configured, using system temp directory")
		return nil
	}

	// Check if directory exists
	tempInfo, err := os.Stat(tempDir)
	if err != nil {
		if os.IsNotExist(err) {
			Logger.Info("Creating temp directory", "path", tempDir)
			err = os.MkdirAll(tempDir, 0755)
			if err != nil {
				Logger.Error("Failed to create temp directory", "path", tempDir, "error", err)
				return err
			}
			Logger.Info("Temp directory created successfully", "path", tempDir)
			return nil
		}
		Logger.Error("Error checking temp directory", "path", tempDir, "error", err)
		return err
	}

	// Check if it's actually a directory
	if !tempInfo.IsDir() {
		Logger.Error("Temp path exists but is not a directory", "path", tempDir)
		return fmt.Errorf("temp path is not a directory: %s", tempDir)
	}

	Logger.Info("Temp directory exists", "path", tempDir)
	return nil
}
