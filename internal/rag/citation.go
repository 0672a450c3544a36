package rag

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// excerptLimit caps Citation.Excerpt in runes.
const excerptLimit = 600

// documentExtensions are stripped from a source name before it is matched
// against the answer text.
var documentExtensions = []string{".pdf", ".txt", ".md"}

// PageOffsets maps a source filename to the correction applied to its raw
// page index so citations match the document's printed pagination.
type PageOffsets map[string]int

// Resolver decides which retrieved passages a generated answer referenced.
// The decision is a text-containment heuristic: a passage counts as cited
// when its source name (without extension) or its "p.<printed page>" marker
// appears verbatim in the answer.
type Resolver struct {
	// offsets holds the per-source page corrections. Missing sources use 0.
	offsets PageOffsets
}

// NewResolver constructs a Resolver with the given page offsets.
// A nil map is valid and applies no offsets.
func NewResolver(offsets PageOffsets) *Resolver {
	return &Resolver{offsets: offsets}
}

// PrintedPage returns page+1 adjusted by the offset registered for source.
// The offset is looked up by the exact source name first, then by its base
// name.
func (r *Resolver) PrintedPage(source string, page int) int {
	offset, ok := r.offsets[source]
	if !ok {
		offset = r.offsets[filepath.Base(source)]
	}
	return page + 1 + offset
}

// Resolve returns a Citation for every result the answer references,
// preserving the input order.
func (r *Resolver) Resolve(results []RetrievalResult, answer string) []Citation {
	var citations []Citation
	for _, res := range results {
		printed := r.PrintedPage(res.Chunk.Source, res.Chunk.Page)
		if !referenced(answer, res.Chunk.Source, printed) {
			continue
		}
		citations = append(citations, Citation{
			Source:      res.Chunk.Source,
			Page:        res.Chunk.Page,
			PrintedPage: printed,
			Score:       res.Score,
			Text:        res.Chunk.Text,
			Excerpt:     Excerpt(res.Chunk.Text),
		})
	}
	return citations
}

// referenced applies the containment heuristic for one passage.
func referenced(answer, source string, printedPage int) bool {
	if name := stemName(source); name != "" && strings.Contains(answer, name) {
		return true
	}
	return strings.Contains(answer, pageMarker(printedPage))
}

// stemName returns the base name of source with a known document extension
// removed.
func stemName(source string) string {
	name := filepath.Base(source)
	if name == "." || name == string(filepath.Separator) {
		return ""
	}
	lower := strings.ToLower(name)
	for _, ext := range documentExtensions {
		if strings.HasSuffix(lower, ext) {
			return name[:len(name)-len(ext)]
		}
	}
	return name
}

// pageMarker formats the marker the answer is expected to echo.
func pageMarker(printedPage int) string {
	return fmt.Sprintf("p.%d", printedPage)
}

// Excerpt collapses runs of whitespace in text and truncates the result to
// a fixed number of runes, appending "..." when it was cut.
func Excerpt(text string) string {
	collapsed := strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(collapsed) <= excerptLimit {
		return collapsed
	}
	runes := []rune(collapsed)
	return string(runes[:excerptLimit]) + "..."
}
