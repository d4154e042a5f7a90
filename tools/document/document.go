// Package document provides a local-document research tool: researchers can
// list and read PDF, markdown, and plain-text files under a configured root
// directory as evidence sources.
package document

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/irfansofyana/depth"
)

// maxDocChars caps the text returned from one document read.
const maxDocChars = 50_000

// readableExtensions are the file types the tool will read.
var readableExtensions = map[string]bool{
	".pdf": true, ".md": true, ".txt": true, ".rst": true, ".csv": true,
}

// Tool reads documents under a root directory. Paths are resolved relative
// to the root and confined to it.
type Tool struct {
	root string
}

// New creates the document tool over the given root directory.
func New(root string) *Tool {
	return &Tool{root: root}
}

func (t *Tool) Definitions() []depth.ToolDefinition {
	return []depth.ToolDefinition{
		{
			Name:        "list_documents",
			Description: "List the research documents available to read (PDF, markdown, text).",
			Parameters:  json.RawMessage(`{"type":"object","properties":{},"required":[]}`),
		},
		{
			Name:        "read_document",
			Description: "Read a research document by its relative path, as returned by list_documents. PDFs are converted to plain text.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"path":{"type":"string","description":"Relative path of the document"}},"required":["path"]}`),
		},
	}
}

func (t *Tool) Execute(ctx context.Context, name string, args json.RawMessage) (depth.ToolResult, error) {
	switch name {
	case "list_documents":
		return t.list()
	case "read_document":
		var params struct {
			Path string `json:"path"`
		}
		if err := json.Unmarshal(args, &params); err != nil {
			return depth.ToolResult{Error: "invalid args: " + err.Error()}, nil
		}
		return t.read(params.Path)
	default:
		return depth.ToolResult{Error: "unknown tool: " + name}, nil
	}
}

func (t *Tool) list() (depth.ToolResult, error) {
	var paths []string
	err := filepath.WalkDir(t.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !readableExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		rel, err := filepath.Rel(t.root, path)
		if err != nil {
			return err
		}
		paths = append(paths, rel)
		return nil
	})
	if err != nil {
		return depth.ToolResult{Error: "listing documents: " + err.Error()}, nil
	}
	if len(paths) == 0 {
		return depth.ToolResult{Content: "No documents available."}, nil
	}
	return depth.ToolResult{Content: strings.Join(paths, "\n")}, nil
}

func (t *Tool) read(rel string) (depth.ToolResult, error) {
	if rel == "" {
		return depth.ToolResult{Error: "path is required"}, nil
	}
	full := filepath.Join(t.root, filepath.Clean("/"+rel))
	if !strings.HasPrefix(full, filepath.Clean(t.root)+string(os.PathSeparator)) {
		return depth.ToolResult{Error: "path escapes document root"}, nil
	}

	content, err := os.ReadFile(full)
	if err != nil {
		return depth.ToolResult{Error: "reading document: " + err.Error()}, nil
	}

	var text string
	if strings.EqualFold(filepath.Ext(full), ".pdf") {
		text, err = extractPDF(content)
		if err != nil {
			return depth.ToolResult{Error: "extracting pdf: " + err.Error()}, nil
		}
	} else {
		text = string(content)
	}

	text = strings.TrimSpace(text)
	if len(text) > maxDocChars {
		text = text[:maxDocChars] + "\n\n[document truncated]"
	}
	return depth.ToolResult{Content: text}, nil
}

// extractPDF converts PDF bytes to plain text, page by page. Unreadable
// pages are skipped.
func extractPDF(content []byte) (string, error) {
	if len(content) == 0 {
		return "", fmt.Errorf("empty PDF content")
	}
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	var text strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		pageText = strings.TrimSpace(pageText)
		if pageText == "" {
			continue
		}
		if text.Len() > 0 {
			text.WriteString("\n\n")
		}
		text.WriteString(pageText)
	}
	return strings.TrimSpace(text.String()), nil
}

var _ depth.Tool = (*Tool)(nil)
