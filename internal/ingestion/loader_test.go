package ingestion

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aramishf/RAG-PDF-Expert/internal/rag"
)

func TestSourceName(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"report.pdf":              "report.pdf",
		"/tmp/uploads/report.pdf": "report.pdf",
		`C:\Users\me\notes.txt`:   "notes.txt",
		"../../etc/passwd":        "passwd",
		"  spaced.md ":            "spaced.md",
		"":                        "",
		"..":                      "",
		"/":                       "",
	}
	for in, want := range cases {
		if got := SourceName(in); got != want {
			t.Errorf("SourceName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLoad_PlainText(t *testing.T) {
	t.Parallel()

	got, err := Load(File{Name: "dir/notes.txt", Data: []byte("\xef\xbb\xbfFirst line.\nSecond line.")})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("want 1 document, got %d", len(got))
	}
	if got[0].Source != "notes.txt" || got[0].Page != 0 || got[0].Text != "First line.\nSecond line." {
		t.Errorf("unexpected document %+v", got[0])
	}
}

func TestLoad_Markdown(t *testing.T) {
	t.Parallel()

	got, err := Load(File{Name: "README.md", Data: []byte("# Title\n\nBody text.")})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 1 || got[0].Source != "README.md" {
		t.Errorf("unexpected documents %+v", got)
	}
}

func TestLoad_PDFOneDocumentPerPage(t *testing.T) {
	t.Parallel()

	// Three pages; the middle one has no content stream.
	data, err := os.ReadFile(filepath.Join("testdata", "photosynthesis.pdf"))
	if err != nil {
		t.Fatal(err)
	}

	got, err := Load(File{Name: "uploads/photosynthesis.pdf", Data: data})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []struct {
		page int
		text string
	}{
		{0, "Photosynthesis converts light into chemical energy."},
		{2, "The Calvin cycle fixes carbon dioxide."},
	}
	if len(got) != len(want) {
		t.Fatalf("want %d documents (blank page skipped), got %d: %+v", len(want), len(got), got)
	}
	for i, w := range want {
		if got[i].Source != "photosynthesis.pdf" {
			t.Errorf("doc %d: source = %q, want base filename", i, got[i].Source)
		}
		if got[i].Page != w.page {
			t.Errorf("doc %d: page = %d, want %d", i, got[i].Page, w.page)
		}
		if !strings.Contains(got[i].Text, w.text) {
			t.Errorf("doc %d: text %q does not contain %q", i, got[i].Text, w.text)
		}
	}
}

func TestLoad_Failures(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		file File
		want error
	}{
		{"empty file", File{Name: "a.txt"}, rag.ErrExtractionFailure},
		{"whitespace only", File{Name: "a.txt", Data: []byte(" \n\t ")}, rag.ErrExtractionFailure},
		{"binary", File{Name: "img.png", Data: []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")}, rag.ErrExtractionFailure},
		{"broken pdf", File{Name: "broken.pdf", Data: []byte("%PDF-1.4\n%garbage with no xref\n")}, rag.ErrExtractionFailure},
		{"no name", File{Name: "", Data: []byte("text")}, rag.ErrInvalidArgument},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := Load(tc.file); !errors.Is(err, tc.want) {
				t.Errorf("want %v, got %v", tc.want, err)
			}
		})
	}
}
