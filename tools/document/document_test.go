package document

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestTool(t *testing.T) (*Tool, string) {
	t.Helper()
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "notes.md"), []byte("# Notes\n\nSome findings."), 0644)
	os.WriteFile(filepath.Join(dir, "data.csv"), []byte("a,b\n1,2"), 0644)
	os.WriteFile(filepath.Join(dir, "binary.bin"), []byte{0x00, 0x01}, 0644)
	sub := filepath.Join(dir, "sub")
	os.MkdirAll(sub, 0755)
	os.WriteFile(filepath.Join(sub, "deep.txt"), []byte("deep content"), 0644)
	return New(dir), dir
}

func TestListDocuments(t *testing.T) {
	tool, _ := newTestTool(t)
	res, err := tool.Execute(context.Background(), "list_documents", nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"notes.md", "data.csv", filepath.Join("sub", "deep.txt")} {
		if !strings.Contains(res.Content, want) {
			t.Errorf("listing missing %q:\n%s", want, res.Content)
		}
	}
	if strings.Contains(res.Content, "binary.bin") {
		t.Errorf("unreadable extension listed:\n%s", res.Content)
	}
}

func TestReadDocument(t *testing.T) {
	tool, _ := newTestTool(t)
	args, _ := json.Marshal(map[string]string{"path": "notes.md"})
	res, err := tool.Execute(context.Background(), "read_document", args)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(res.Content, "Some findings.") {
		t.Errorf("content = %q", res.Content)
	}
}

func TestReadDocumentRejectsEscape(t *testing.T) {
	tool, _ := newTestTool(t)
	args, _ := json.Marshal(map[string]string{"path": "../../etc/passwd"})
	res, err := tool.Execute(context.Background(), "read_document", args)
	if err != nil {
		t.Fatal(err)
	}
	if res.Error == "" {
		t.Errorf("path escape not rejected: %+v", res)
	}
}

func TestReadDocumentMissing(t *testing.T) {
	tool, _ := newTestTool(t)
	args, _ := json.Marshal(map[string]string{"path": "nope.txt"})
	res, _ := tool.Execute(context.Background(), "read_document", args)
	if res.Error == "" {
		t.Error("missing document must surface a tool error")
	}
}

func TestUnknownToolName(t *testing.T) {
	tool, _ := newTestTool(t)
	res, _ := tool.Execute(context.Background(), "bogus", nil)
	if res.Error == "" {
		t.Error("unknown tool name must surface a tool error")
	}
}
