package tool

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestDocuments(t *testing.T) *Documents {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"notes.md":         "# Q1 notes\nRevenue grew.",
		"sub/contract.txt": "The term is 12 months.",
		"deck.pdf":         "%PDF-1.4",
	}
	for name, body := range files {
		p := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	d, err := NewDocuments(DocumentsConfig{Dir: root, Extensions: []string{"txt", ".MD"}})
	if err != nil {
		t.Fatalf("new documents: %v", err)
	}
	return d
}

func TestDocumentsList(t *testing.T) {
	t.Parallel()

	d := newTestDocuments(t)
	list := toolByName(t, d.Tools(), ToolListDocuments)

	out, err := list.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.Output, "notes.md") || !strings.Contains(out.Output, "sub/contract.txt") {
		t.Fatalf("expected text documents, got:\n%s", out.Output)
	}
	if strings.Contains(out.Output, "deck.pdf") {
		t.Fatalf("unsupported file listed:\n%s", out.Output)
	}

	out, err = list.Run(context.Background(), map[string]any{"query": "CONTRACT"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Output != "- sub/contract.txt" {
		t.Fatalf("unexpected filtered list: %q", out.Output)
	}
}

func TestDocumentsRead(t *testing.T) {
	t.Parallel()

	d := newTestDocuments(t)
	read := toolByName(t, d.Tools(), ToolReadDocument)

	cases := []struct {
		name    string
		args    map[string]any
		success bool
		want    string
	}{
		{"full", map[string]any{"path": "sub/contract.txt"}, true, "The term is 12 months."},
		{"truncated", map[string]any{"path": "notes.md", "max_chars": float64(4)}, true, "# Q1\n\n[...truncated at 4 chars]"},
		{"escape", map[string]any{"path": "../secret.txt"}, false, "outside the documents folder"},
		{"unsupported", map[string]any{"path": "deck.pdf"}, false, "unsupported document type"},
		{"missing", map[string]any{"path": "gone.txt"}, false, "file not found"},
		{"no path", map[string]any{}, false, "path is required"},
	}
	for _, tc := range cases {
		out, err := read.Run(context.Background(), tc.args)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
		if out.Success != tc.success {
			t.Fatalf("%s: success = %v, result %+v", tc.name, out.Success, out)
		}
		got := out.Output
		if !tc.success {
			got = out.Error
		}
		if tc.success && got != tc.want || !tc.success && !strings.Contains(got, tc.want) {
			t.Fatalf("%s: got %q, want %q", tc.name, got, tc.want)
		}
	}
}
