package page

import (
	"fmt"
	"path/filepath"
	"strings"
)

// MimeJPEG is reported for every page file, including degraded placeholders
const MimeJPEG = "image/jpeg"

// Source records which path produced a page image
type Source string

const (
	SourcePoppler             Source = "poppler"
	SourceMagick              Source = "magick"
	SourceMuPDF               Source = "mupdf"
	SourcePlaceholder         Source = "placeholder"
	SourcePlaceholderDegraded Source = "placeholder-degraded"
)

// Geometry is the page size in PDF points as read from the MediaBox
type Geometry struct {
	Width  float64
	Height float64
}

func (g Geometry) String() string {
	return fmt.Sprintf("%.0f x %.0f pt", g.Width, g.Height)
}

// File is one rasterized page handed to the caller
type File struct {
	PageNumber int    `json:"pageNumber"`
	FileName   string `json:"fileName"`
	Buffer     []byte `json:"-"`
	MimeType   string `json:"mimeType"`
	Source     Source `json:"source"`
}

// Release drops the image buffer once the caller is done with it
func (f *File) Release() {
	f.Buffer = nil
}

// Released reports whether the buffer has already been dropped
func (f *File) Released() bool {
	return f.Buffer == nil
}

// FileName derives the page file name from the source document name
func FileName(sourceName string, pageNumber int) string {
	base := filepath.Base(filepath.ToSlash(sourceName))
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if base == "" || base == "." || base == "/" {
		base = "document"
	}
	return fmt.Sprintf("%s_page_%d.jpg", base, pageNumber)
}

// TempMarker tags every temporary file the renderers create so a sweep of a
// shared directory only touches our own files
const TempMarker = "godocsraster"
