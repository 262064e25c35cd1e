package janitor

import (
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/drummonds/godocs-raster/engine/page"
)

func touch(t *testing.T, dir, name string, modTime time.Time) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatalf("Failed to create %s: %v", name, err)
	}
	if !modTime.IsZero() {
		if err := os.Chtimes(path, modTime, modTime); err != nil {
			t.Fatalf("Failed to set mtime on %s: %v", name, err)
		}
	}
	return path
}

func remaining(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("Failed to read dir: %v", err)
	}
	var names []string
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names
}

func TestIsTempName(t *testing.T) {
	tests := map[string]bool{
		"1729339200000_page3_poppler_godocsraster.pdf": true,
		"1729339200000-page1.jpg":                      true,
		"scan_godocsraster.jpg":                        true,
		"42_out.jpg":                                   true,
		"invoice.pdf":                                  false,
		"notes2024.txt":                                false,
		"1234":                                         false,
	}
	for name, want := range tests {
		if got := IsTempName(name); got != want {
			t.Errorf("IsTempName(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestCleanupByPattern_HeuristicOnly(t *testing.T) {
	dir := t.TempDir()
	matching := []string{
		"1729339200000_page1_poppler_godocsraster.pdf",
		"1729339200000_page1_poppler_godocsraster.jpg",
		"1729339200123_page2_magick_godocsraster.pdf",
		"1729339200456-page3.jpg",
		"leftover_godocsraster.jpg",
	}
	unrelated := []string{"invoice.pdf", "readme.txt"}
	for _, name := range append(append([]string{}, matching...), unrelated...) {
		touch(t, dir, name, time.Time{})
	}
	if err := os.Mkdir(filepath.Join(dir, "123_subdir"), 0755); err != nil {
		t.Fatalf("Failed to create subdir: %v", err)
	}

	j := New(0)
	removed, err := j.CleanupByPattern(dir, "")
	if err != nil {
		t.Fatalf("CleanupByPattern failed: %v", err)
	}
	if removed != 5 {
		t.Errorf("Expected 5 files removed, got %d", removed)
	}

	got := remaining(t, dir)
	want := []string{"123_subdir", "invoice.pdf", "readme.txt"}
	if len(got) != len(want) {
		t.Fatalf("Expected %v to remain, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Expected %v to remain, got %v", want, got)
			break
		}
	}
}

func TestCleanupByPattern_Idempotent(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "keep.pdf", time.Time{})
	j := New(0)

	for i := 0; i < 2; i++ {
		removed, err := j.CleanupByPattern(dir, "")
		if err != nil {
			t.Fatalf("Run %d: unexpected error: %v", i+1, err)
		}
		if removed != 0 {
			t.Errorf("Run %d: expected no-op, removed %d", i+1, removed)
		}
	}

	removed, err := j.CleanupByPattern(filepath.Join(dir, "missing"), "")
	if err != nil || removed != 0 {
		t.Errorf("Expected missing directory to be a no-op, got %d, %v", removed, err)
	}
}

func TestCleanupByPattern_ExplicitPattern(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a.jpg", time.Time{})
	touch(t, dir, "b.jpg", time.Time{})
	touch(t, dir, "c.pdf", time.Time{})

	j := New(0)
	removed, err := j.CleanupByPattern(dir, `\.jpg$`)
	if err != nil {
		t.Fatalf("CleanupByPattern failed: %v", err)
	}
	if removed != 2 {
		t.Errorf("Expected 2 removed, got %d", removed)
	}

	if _, err := j.CleanupByPattern(dir, "("); err == nil {
		t.Error("Expected error for invalid pattern")
	}
}

func TestCleanupByAge(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	old := now.Add(-3 * time.Hour)

	touch(t, dir, "1000_page1_poppler_godocsraster.pdf", old)
	touch(t, dir, "1000_page1_poppler_godocsraster.jpg", old)
	touch(t, dir, "2000_page1_magick_godocsraster.pdf", now)
	touch(t, dir, "ancient-report.pdf", old)

	staleWorkDir := filepath.Join(dir, page.TempMarker+"-01JAYQ")
	if err := os.Mkdir(staleWorkDir, 0755); err != nil {
		t.Fatalf("Failed to create work dir: %v", err)
	}
	touch(t, staleWorkDir, "1000_page2_magick_godocsraster.pdf", old)
	if err := os.Chtimes(staleWorkDir, old, old); err != nil {
		t.Fatalf("Failed to age work dir: %v", err)
	}

	j := New(0)
	removed, err := j.CleanupByAge(dir, 2*time.Hour)
	if err != nil {
		t.Fatalf("CleanupByAge failed: %v", err)
	}
	if removed != 3 {
		t.Errorf("Expected 3 entries removed, got %d", removed)
	}

	got := remaining(t, dir)
	want := []string{"2000_page1_magick_godocsraster.pdf", "ancient-report.pdf"}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("Expected %v to remain, got %v", want, got)
	}
}

func TestClearBuffers(t *testing.T) {
	pages := []page.File{
		{PageNumber: 1, Buffer: []byte{1, 2, 3}},
		{PageNumber: 2, Buffer: []byte{4}},
		{PageNumber: 3},
	}

	j := New(0)
	if cleared := j.ClearBuffers(pages); cleared != 2 {
		t.Errorf("Expected 2 buffers cleared, got %d", cleared)
	}
	for _, p := range pages {
		if !p.Released() {
			t.Errorf("Expected page %d buffer to be released", p.PageNumber)
		}
	}
}

func TestFullCleanup_SwallowsErrors(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "1000_page1_poppler_godocsraster.jpg", time.Time{})
	pages := []page.File{{PageNumber: 1, Buffer: []byte{1}}}

	j := New(time.Hour)
	j.FullCleanup(pages, dir)
	j.FullCleanup(nil, filepath.Join(dir, "does-not-exist"))
	j.FullCleanup(nil, "")

	if len(remaining(t, dir)) != 0 {
		t.Error("Expected temp file to be removed")
	}
	if !pages[0].Released() {
		t.Error("Expected buffer to be released")
	}
}
