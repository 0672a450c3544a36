// Package chunker splits extracted document text into overlapping, bounded
// passages with source and page provenance. Splitting is recursive: it tries
// paragraph breaks, then line breaks, sentence ends, whitespace and finally
// single characters until every piece fits the configured size. Lengths are
// measured in runes.
//
// Overlap is carried in whole pieces of the separator a cut was made at. A
// chunk that ends on a paragraph or line break longer than the overlap
// shares no text with the next chunk; only pieces split at a finer separator
// repeat trailing context.
package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/aramishf/RAG-PDF-Expert/internal/rag"
)

const (
	// DefaultChunkSize is the maximum chunk length in runes.
	DefaultChunkSize = 900

	// DefaultChunkOverlap is the number of runes shared by neighbouring chunks.
	DefaultChunkOverlap = 150
)

// separators are tried in order, coarsest first.
var separators = []string{"\n\n", "\n", ". ", " ", ""}

// Config holds the chunking parameters.
type Config struct {
	// ChunkSize is the maximum chunk length in runes. Defaults to 900 if zero.
	ChunkSize int

	// ChunkOverlap is the overlap between consecutive chunks in runes.
	// Defaults to 150 if zero. Must be smaller than ChunkSize.
	ChunkOverlap int
}

// Chunker turns document text into rag.Chunk values. It is stateless and
// safe for concurrent use.
type Chunker struct {
	// splitter is the recursive character splitter configured from Config.
	splitter textsplitter.RecursiveCharacter

	// size is the resolved maximum chunk length.
	size int
}

// New constructs a Chunker, applying defaults to zero-valued fields.
func New(cfg Config) (*Chunker, error) {
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.ChunkOverlap == 0 {
		cfg.ChunkOverlap = DefaultChunkOverlap
	}
	if cfg.ChunkSize < 0 {
		return nil, fmt.Errorf("chunker: chunk size must be positive, got %d", cfg.ChunkSize)
	}
	if cfg.ChunkOverlap < 0 {
		return nil, fmt.Errorf("chunker: overlap cannot be negative, got %d", cfg.ChunkOverlap)
	}
	if cfg.ChunkOverlap >= cfg.ChunkSize {
		return nil, fmt.Errorf("chunker: overlap %d must be smaller than chunk size %d", cfg.ChunkOverlap, cfg.ChunkSize)
	}

	return &Chunker{
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(cfg.ChunkSize),
			textsplitter.WithChunkOverlap(cfg.ChunkOverlap),
			textsplitter.WithSeparators(separators),
			textsplitter.WithLenFunc(utf8.RuneCountInString),
		),
		size: cfg.ChunkSize,
	}, nil
}

// Split breaks text into chunks tagged with source and page. Text with no
// non-whitespace content returns rag.ErrExtractionFailure.
func (c *Chunker) Split(text, source string, page int) ([]rag.Chunk, error) {
	text = normalize(text)
	if text == "" {
		return nil, fmt.Errorf("chunker: %s page %d: %w", source, page, rag.ErrExtractionFailure)
	}

	segments, err := c.splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("chunker: split %s page %d: %w", source, page, err)
	}

	chunks := make([]rag.Chunk, 0, len(segments))
	for _, seg := range segments {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		chunks = append(chunks, rag.Chunk{Text: seg, Source: source, Page: page})
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("chunker: %s page %d: %w", source, page, rag.ErrExtractionFailure)
	}
	return chunks, nil
}

// SplitDocument is Split applied to a rag.Document.
func (c *Chunker) SplitDocument(doc rag.Document) ([]rag.Chunk, error) {
	return c.Split(doc.Text, doc.Source, doc.Page)
}

// Size returns the configured maximum chunk length in runes.
func (c *Chunker) Size() int { return c.size }

// normalize unifies line endings, drops NUL bytes left behind by some PDF
// extractors and trims surrounding whitespace.
func normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.ReplaceAll(text, "\x00", "")
	return strings.TrimSpace(text)
}
