package ingestion

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"

	"github.com/aramishf/RAG-PDF-Expert/internal/rag"
)

// File is one uploaded document.
type File struct {
	// Name is the client-supplied filename; only its base name is kept.
	Name string
	// Data is the raw file content.
	Data []byte
}

// textExtensions are accepted as plain text when content sniffing is
// inconclusive.
var textExtensions = map[string]bool{".txt": true, ".md": true, ".markdown": true}

// SourceName reduces a client-supplied filename to the base name used as a
// chunk's source. Both slash styles are treated as separators.
func SourceName(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	base := filepath.Base(strings.TrimSpace(name))
	if base == "." || base == "/" || base == ".." {
		return ""
	}
	return base
}

// Load extracts documents from f: one per PDF page that has text, or a
// single page-0 document for plain text. A file with no extractable text
// fails with rag.ErrExtractionFailure.
func Load(f File) ([]rag.Document, error) {
	source := SourceName(f.Name)
	if source == "" {
		return nil, fmt.Errorf("ingestion: filename %q: %w", f.Name, rag.ErrInvalidArgument)
	}
	if len(f.Data) == 0 {
		return nil, fmt.Errorf("ingestion: %s is empty: %w", source, rag.ErrExtractionFailure)
	}

	mt := mimetype.Detect(f.Data)
	switch {
	case mt.Is("application/pdf"):
		return loadPDF(source, f.Data)
	case strings.HasPrefix(mt.String(), "text/"),
		textExtensions[strings.ToLower(filepath.Ext(source))] && utf8.Valid(f.Data):
		return loadText(source, f.Data)
	default:
		return nil, fmt.Errorf("ingestion: %s: unsupported content type %s: %w", source, mt.String(), rag.ErrExtractionFailure)
	}
}

func loadText(source string, data []byte) ([]rag.Document, error) {
	text := string(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf")))
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("ingestion: %s: %w", source, rag.ErrExtractionFailure)
	}
	return []rag.Document{{Source: source, Page: 0, Text: text}}, nil
}

// loadPDF extracts plain text page by page. The pdf reader panics on some
// malformed inputs, so panics are turned into extraction failures.
func loadPDF(source string, data []byte) (docs []rag.Document, err error) {
	defer func() {
		if r := recover(); r != nil {
			docs = nil
			err = fmt.Errorf("ingestion: %s: malformed pdf (%v): %w", source, r, rag.ErrExtractionFailure)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("ingestion: %s: open pdf: %v: %w", source, err, rag.ErrExtractionFailure)
	}

	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil || strings.TrimSpace(text) == "" {
			continue
		}
		docs = append(docs, rag.Document{Source: source, Page: i - 1, Text: text})
	}

	if len(docs) == 0 {
		return nil, fmt.Errorf("ingestion: %s: %w", source, rag.ErrExtractionFailure)
	}
	return docs, nil
}
