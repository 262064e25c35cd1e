package engine

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Logger is global since we will need it everywhere
var Logger = slog.Default()

// InitializeSchedules starts the stale temp file sweep; the returned cron is
// nil when sweeping is disabled
func (serverHandler *ServerHandler) InitializeSchedules() *cron.Cron {
	interval := serverHandler.ServerConfig.SweepInterval
	if interval <= 0 {
		Logger.Info("Temp file sweep disabled")
		return nil
	}

	// Sweep once at startup so crashes before a restart don't leave files behind
	Logger.Info("Running temp file sweep at startup")
	go serverHandler.sweepJobFunc()

	c := cron.New()
	var sweepJob cron.Job
	sweepJob = cron.FuncJob(serverHandler.sweepJobFunc)
	sweepJob = cron.NewChain(cron.SkipIfStillRunning(cron.DefaultLogger)).Then(sweepJob) //ensure we don't kick off another if old one is still running
	if _, err := c.AddJob(fmt.Sprintf("@every %dm", interval), sweepJob); err != nil {
		Logger.Error("Unable to schedule temp file sweep", "error", err)
		return nil
	}
	Logger.Info("Adding temp file sweep scheduler", "interval_minutes", interval)
	c.Start()
	return c
}

// sweepJobFunc removes temp files and work directories older than the max age
func (serverHandler *ServerHandler) sweepJobFunc() {
	defer func() {
		if r := recover(); r != nil {
			Logger.Error("Panic recovered in sweep job", "panic", r)
		}
	}()

	jan := serverHandler.Pipeline.Janitor()
	maxAge := jan.MaxAge
	if hours := serverHandler.ServerConfig.SweepMaxAgeHours; hours > 0 {
		maxAge = time.Duration(hours) * time.Hour
	}

	removed, err := jan.CleanupByAge(serverHandler.Pipeline.TempDir(), maxAge)
	if err != nil {
		Logger.Warn("Temp file sweep finished with errors", "removed", removed, "error", err)
		return
	}
	Logger.Debug("Temp file sweep finished", "removed", removed)
}
