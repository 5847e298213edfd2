// Package extract turns uploaded knowledge files into plain text for chunking.
package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Normalized content types returned by Extract.
const (
	TypePlain = "text/plain"
	TypePDF   = "application/pdf"
	TypeDOCX  = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	TypeXLSX  = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	TypeODT   = "application/vnd.oasis.opendocument.text"
	TypeRTF   = "application/rtf"
)

var (
	// ErrUnsupported is returned for file types that cannot be ingested.
	ErrUnsupported = errors.New("unsupported file type")
	// ErrEmpty is returned when a supported file yields no text.
	ErrEmpty = errors.New("no extractable text")
)

type format struct {
	contentType  string
	extensions   []string
	contentTypes []string
	extract      func([]byte) (string, error)
}

var formats = []format{
	{TypePlain, []string{".txt", ".md", ".json"}, []string{"text/plain", "text/markdown", "application/json"}, extractPlain},
	{TypePDF, []string{".pdf"}, []string{"application/pdf"}, extractPDF},
	{TypeDOCX, []string{".docx"}, []string{TypeDOCX, "application/msword"}, extractDOCX},
	{TypeXLSX, []string{".xlsx"}, []string{TypeXLSX}, extractExcel},
	{TypeODT, []string{".odt"}, []string{TypeODT}, extractWithCat},
	{TypeRTF, []string{".rtf"}, []string{TypeRTF, "text/rtf"}, extractWithCat},
}

// Extractor extracts plain text from uploaded document bytes.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract picks a format from the declared content type or, failing that, the filename
// extension, and returns the normalized content type with the trimmed text.
func (e *Extractor) Extract(filename, contentType string, raw []byte) (string, string, error) {
	f, ok := detect(filename, contentType)
	if !ok {
		label := contentType
		if label == "" {
			label = filepath.Ext(filename)
		}
		if label == "" {
			label = "(unknown)"
		}
		return "", "", fmt.Errorf("%w: %s; supported: %s", ErrUnsupported, label, strings.Join(SupportedExtensions(), ", "))
	}
	text, err := f.extract(raw)
	if err != nil {
		return "", "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", "", fmt.Errorf("%s: %w", filename, ErrEmpty)
	}
	return f.contentType, text, nil
}

// ExtractFile reads the file at path and extracts it by extension.
func (e *Extractor) ExtractFile(path string) (string, string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("read file: %w", err)
	}
	return e.Extract(filepath.Base(path), "", content)
}

// Supports reports whether filename has an ingestible extension.
func Supports(filename string) bool {
	_, ok := detect(filename, "")
	return ok
}

// SupportedExtensions lists the ingestible extensions.
func SupportedExtensions() []string {
	var out []string
	for _, f := range formats {
		out = append(out, f.extensions...)
	}
	return out
}

func detect(filename, contentType string) (format, bool) {
	ctype := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ctype, ';'); i >= 0 {
		ctype = strings.TrimSpace(ctype[:i])
	}
	ext := strings.ToLower(filepath.Ext(filename))
	for _, f := range formats {
		for _, ct := range f.contentTypes {
			if ctype == ct {
				return f, true
			}
		}
	}
	for _, f := range formats {
		for _, x := range f.extensions {
			if ext == x {
				return f, true
			}
		}
	}
	return format{}, false
}
