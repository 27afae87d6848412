// Package export renders articles to PDF and DOCX.
package export

import (
	"errors"
	"time"
)

// Format represents the export output format
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
)

// Request contains parameters for an export operation
type Request struct {
	ArticleID string
	Format    Format
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

// ArticleInfo holds the article fields the exporter needs.
type ArticleInfo struct {
	ID                string
	TeamID            string
	Title             string
	Content           string // markdown, fallback body
	StructuredContent []byte // Tiptap JSON, preferred when present
	Status            string
	WritingPurpose    []string
	AuthorName        string
	UpdatedAt         time.Time
}

// TeamInfo holds team metadata for the export header.
type TeamInfo struct {
	ID   string
	Name string
}

var (
	// ErrContentUnavailable indicates article content could not be loaded for export.
	ErrContentUnavailable = errors.New("export content unavailable")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrDOCXDependencyMissing indicates DOCX export runtime dependencies are unavailable.
	ErrDOCXDependencyMissing = errors.New("export docx dependency missing")
)
