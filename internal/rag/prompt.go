package rag

import (
	"fmt"
	"strings"
)

// passageSeparator joins passages in the assembled context block.
const passageSeparator = "\n\n---\n\n"

// promptTemplate is the instruction wrapper around the question and passages.
// The citation format it asks for is the one Resolver recognises.
const promptTemplate = `You are a research assistant answering questions about the user's documents.

Answer the question using only the passages below. First decide whether the
passages are relevant. If they do not contain the answer, say so plainly and stop.

When they are relevant:
1. Give a direct answer.
2. Support it with evidence. Quote or paraphrase passages and cite each one as
   [Source, p.N] using the source name and page shown in the passage header.
3. If passages conflict or leave gaps, say what is missing.

Do not invent citations. If you add general knowledge, label it clearly as not
coming from the documents.

Question: %s

Passages:
%s

Your answer:`

// FormatPassage renders the header and body of one numbered passage.
func FormatPassage(n int, source string, printedPage int, text string) string {
	return fmt.Sprintf("Passage %d [%s, %s]:\n%s", n, source, pageMarker(printedPage), text)
}

// PassageSeparator joins formatted passages in the assembled prompt.
const PassageSeparator = passageSeparator

// FormatPassages renders each result as a numbered passage, in order. Page
// numbers in passage headers come from resolver so that the markers the model
// echoes line up with the citation heuristic.
func FormatPassages(passages []RetrievalResult, resolver *Resolver) []string {
	parts := make([]string, 0, len(passages))
	for i, p := range passages {
		printed := resolver.PrintedPage(p.Chunk.Source, p.Chunk.Page)
		parts = append(parts, FormatPassage(i+1, p.Chunk.Source, printed, p.Chunk.Text))
	}
	return parts
}

// AssemblePrompt wraps already formatted passages and the question in the
// instruction template.
func AssemblePrompt(question string, formatted []string) string {
	return strings.TrimSpace(fmt.Sprintf(promptTemplate, question, strings.Join(formatted, passageSeparator)))
}
