package janitor

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/drummonds/godocs-raster/engine/page"
)

// Logger is global since we will need it everywhere
var Logger = slog.Default()

// tempNamePattern matches renderer temp files: a numeric (timestamp) prefix
// followed by a separator, or the marker token anywhere in the name
var tempNamePattern = regexp.MustCompile(`^\d+[_-]|` + regexp.QuoteMeta(page.TempMarker))

// IsTempName reports whether a file name looks like one of our temp files
func IsTempName(name string) bool {
	return tempNamePattern.MatchString(name)
}

// DefaultMaxAge is the age after which leftover temp files are considered orphaned
const DefaultMaxAge = time.Hour

// Janitor removes renderer temp files and releases page buffers
type Janitor struct {
	// MaxAge is used by FullCleanup's age sweep
	MaxAge time.Duration
	now    func() time.Time
}

// New creates a janitor; maxAge <= 0 uses DefaultMaxAge
func New(maxAge time.Duration) *Janitor {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Janitor{MaxAge: maxAge, now: time.Now}
}

// CleanupByPattern deletes regular files in dir whose names match pattern.
// An empty pattern falls back to the temp-file heuristic so unrelated files in
// a shared directory are left alone. A missing dir is not an error.
func (j *Janitor) CleanupByPattern(dir, pattern string) (int, error) {
	match := IsTempName
	if pattern != "" {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return 0, fmt.Errorf("invalid cleanup pattern %q: %w", pattern, err)
		}
		match = re.MatchString
	}

	entries, err := readDir(dir)
	if err != nil {
		return 0, err
	}

	removed := 0
	var firstErr error
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !match(entry.Name()) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := os.Remove(path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			Logger.Warn("Unable to delete temp file", "path", path, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		removed++
	}

	if removed > 0 {
		Logger.Debug("Removed temp files", "dir", dir, "count", removed)
	}
	return removed, firstErr
}

// CleanupByAge deletes heuristic-matching files older than maxAge, plus work
// directories carrying the marker token, so leftovers of crashed runs go away
func (j *Janitor) CleanupByAge(dir string, maxAge time.Duration) (int, error) {
	entries, err := readDir(dir)
	if err != nil {
		return 0, err
	}

	cutoff := j.now().Add(-maxAge)
	removed := 0
	var firstErr error
	for _, entry := range entries {
		name := entry.Name()
		isWorkDir := entry.IsDir() && strings.Contains(name, page.TempMarker)
		if !isWorkDir && (!entry.Type().IsRegular() || !IsTempName(name)) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}

		path := filepath.Join(dir, name)
		if isWorkDir {
			err = os.RemoveAll(path)
		} else {
			err = os.Remove(path)
		}
		if err != nil && !os.IsNotExist(err) {
			Logger.Warn("Unable to delete stale temp entry", "path", path, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		removed++
	}

	if removed > 0 {
		Logger.Info("Removed stale temp files", "dir", dir, "count", removed, "maxAge", maxAge)
	}
	return removed, firstErr
}

// ClearBuffers releases every page buffer once the caller no longer needs it
func (j *Janitor) ClearBuffers(pages []page.File) int {
	cleared := 0
	for i := range pages {
		if !pages[i].Released() {
			pages[i].Release()
			cleared++
		}
	}
	return cleared
}

// FullCleanup clears page buffers, removes temp files in dir and sweeps stale
// entries by age. It runs on both success and failure paths, so every error is
// logged and swallowed.
func (j *Janitor) FullCleanup(pages []page.File, dir string) {
	defer func() {
		if r := recover(); r != nil {
			Logger.Error("Panic recovered during cleanup", "panic", r)
		}
	}()

	if len(pages) > 0 {
		cleared := j.ClearBuffers(pages)
		Logger.Debug("Released page buffers", "count", cleared)
	}

	if dir == "" {
		return
	}
	if _, err := j.CleanupByPattern(dir, ""); err != nil {
		Logger.Warn("Temp file cleanup failed", "dir", dir, "error", err)
	}
	if _, err := j.CleanupByAge(dir, j.MaxAge); err != nil {
		Logger.Warn("Stale temp file sweep failed", "dir", dir, "error", err)
	}
}

func readDir(dir string) ([]os.DirEntry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("unable to read directory %s: %w", dir, err)
	}
	return entries, nil
}
