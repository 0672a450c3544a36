package rag

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestResolve_PageMarkerWithoutSourceName(t *testing.T) {
	t.Parallel()

	results := []RetrievalResult{
		{Chunk: Chunk{Text: "first", Source: "Treatise.pdf", Page: 11}, Score: 0.5},
		{Chunk: Chunk{Text: "second", Source: "Treatise.pdf", Page: 40}, Score: 0.7},
	}
	answer := "The author argues this point at length (see p.12)."

	got := NewResolver(nil).Resolve(results, answer)

	if len(got) != 1 {
		t.Fatalf("want 1 citation, got %d: %+v", len(got), got)
	}
	if got[0].PrintedPage != 12 || got[0].Text != "first" {
		t.Errorf("want printed page 12 for the first passage, got %+v", got[0])
	}
}

func TestResolve_SourceNameWithoutExtension(t *testing.T) {
	t.Parallel()

	results := []RetrievalResult{
		{Chunk: Chunk{Text: "a", Source: "History.pdf", Page: 0}, Score: 0.1},
		{Chunk: Chunk{Text: "b", Source: "notes.txt", Page: 0}, Score: 0.2},
		{Chunk: Chunk{Text: "c", Source: "Other.pdf", Page: 99}, Score: 0.3},
	}
	answer := "According to History, and to notes as well."

	got := NewResolver(nil).Resolve(results, answer)

	if len(got) != 2 {
		t.Fatalf("want 2 citations, got %d", len(got))
	}
	if got[0].Source != "History.pdf" || got[1].Source != "notes.txt" {
		t.Errorf("unexpected citations: %+v", got)
	}
}

func TestResolve_AppliesPageOffsets(t *testing.T) {
	t.Parallel()

	offsets := PageOffsets{"Teachings.pdf": -40}
	results := []RetrievalResult{
		{Chunk: Chunk{Text: "x", Source: "Teachings.pdf", Page: 51}, Score: 1},
		{Chunk: Chunk{Text: "y", Source: "Plain.pdf", Page: 11}, Score: 2},
	}
	r := NewResolver(offsets)

	if got := r.PrintedPage("Teachings.pdf", 51); got != 12 {
		t.Errorf("PrintedPage with offset: want 12, got %d", got)
	}
	if got := r.PrintedPage("Plain.pdf", 11); got != 12 {
		t.Errorf("PrintedPage without offset: want 12, got %d", got)
	}

	got := r.Resolve(results, "as stated on p.12")
	if len(got) != 2 {
		t.Fatalf("want both passages cited at printed page 12, got %d", len(got))
	}
}

func TestResolve_Containment(t *testing.T) {
	t.Parallel()

	results := []RetrievalResult{
		{Chunk: Chunk{Text: "one", Source: "a.pdf", Page: 0}, Score: 0.1},
		{Chunk: Chunk{Text: "two", Source: "b.pdf", Page: 1}, Score: 0.2},
		{Chunk: Chunk{Text: "three", Source: "c.pdf", Page: 2}, Score: 0.3},
	}
	answer := "Citing [a, p.1] and [c, p.3]."

	got := NewResolver(nil).Resolve(results, answer)

	inputs := make(map[Chunk]float64, len(results))
	for _, r := range results {
		inputs[r.Chunk] = r.Score
	}
	for _, c := range got {
		score, ok := inputs[Chunk{Text: c.Text, Source: c.Source, Page: c.Page}]
		if !ok {
			t.Errorf("citation %+v does not correspond to any retrieved passage", c)
		}
		if score != c.Score {
			t.Errorf("citation score %v differs from retrieved score %v", c.Score, score)
		}
	}
	for i := 1; i < len(got); i++ {
		if got[i-1].Score > got[i].Score {
			t.Errorf("input order not preserved: %+v", got)
		}
	}
}

func TestResolve_NothingReferenced(t *testing.T) {
	t.Parallel()

	results := []RetrievalResult{{Chunk: Chunk{Text: "t", Source: "doc.pdf", Page: 4}, Score: 1}}
	if got := NewResolver(nil).Resolve(results, "an unrelated answer"); len(got) != 0 {
		t.Errorf("want no citations, got %+v", got)
	}
}

func TestStemName(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in, want string
	}{
		{"Book.pdf", "Book"},
		{"Book.PDF", "Book"},
		{"dir/notes.md", "notes"},
		{"archive.tar", "archive.tar"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := stemName(tc.in); got != tc.want {
			t.Errorf("stemName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestExcerpt(t *testing.T) {
	t.Parallel()

	if got := Excerpt("  a \n\n b\tc "); got != "a b c" {
		t.Errorf("want collapsed whitespace, got %q", got)
	}

	long := strings.Repeat("é", excerptLimit+10)
	got := Excerpt(long)
	if !strings.HasSuffix(got, "...") {
		t.Errorf("want ellipsis on truncated excerpt")
	}
	if n := utf8.RuneCountInString(strings.TrimSuffix(got, "...")); n != excerptLimit {
		t.Errorf("want %d runes before ellipsis, got %d", excerptLimit, n)
	}
}

func TestAssemblePrompt_UsesPrintedPages(t *testing.T) {
	t.Parallel()

	passages := []RetrievalResult{
		{Chunk: Chunk{Text: "alpha", Source: "Book.pdf", Page: 50}, Score: 0.1},
		{Chunk: Chunk{Text: "beta", Source: "Notes.txt", Page: 0}, Score: 0.2},
	}
	prompt := AssemblePrompt("what is alpha?", FormatPassages(passages, NewResolver(PageOffsets{"Book.pdf": -40})))

	for _, want := range []string{
		"Question: what is alpha?",
		"Passage 1 [Book.pdf, p.11]:\nalpha",
		"Passage 2 [Notes.txt, p.1]:\nbeta",
		"\n\n---\n\n",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}
