package tool

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/cloudwego/eino/schema"
	contractx "github.com/tanpawarit/Chative-Desktop-Agent/agent/contract"
)

const (
	defaultMaxChars = 8000
	maxListed       = 50
)

type DocumentsConfig struct {
	Dir        string   `envconfig:"DIR" default:"data/documents"`
	Extensions []string `envconfig:"EXTENSIONS" default:".txt,.md"`
}

// Documents exposes plain-text files under one root directory.
type Documents struct {
	root string
	exts map[string]bool
}

func NewDocuments(cfg DocumentsConfig) (*Documents, error) {
	root := strings.TrimSpace(cfg.Dir)
	if root == "" {
		return nil, fmt.Errorf("%w: documents dir is required", contractx.ErrValidation)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create documents dir: %w", err)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	exts := map[string]bool{}
	for _, e := range cfg.Extensions {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts[e] = true
	}
	if len(exts) == 0 {
		exts[".txt"], exts[".md"] = true, true
	}
	return &Documents{root: abs, exts: exts}, nil
}

func (d *Documents) Tools() []contractx.Tool {
	return []contractx.Tool{
		New(&schema.ToolInfo{
			Name: ToolListDocuments,
			Desc: "List readable documents in the user's documents folder.",
			ParamsOneOf: params(map[string]*schema.ParameterInfo{
				"query": {Type: schema.String, Desc: "Optional filename filter."},
			}),
		}, 0, d.list),
		New(&schema.ToolInfo{
			Name: ToolReadDocument,
			Desc: "Read a plain-text document by its path relative to the documents folder.",
			ParamsOneOf: params(map[string]*schema.ParameterInfo{
				"path":      {Type: schema.String, Desc: "Path from list_documents.", Required: true},
				"max_chars": {Type: schema.Integer, Desc: "Truncate after this many characters (default 8000)."},
			}),
		}, 0, d.read),
	}
}

func (d *Documents) list(_ context.Context, args map[string]any) (contractx.ToolResult, error) {
	filter := strings.ToLower(stringArg(args, "query"))
	var found []string
	err := filepath.WalkDir(d.root, func(path string, e fs.DirEntry, err error) error {
		if err != nil || e.IsDir() || len(found) >= maxListed {
			return nil
		}
		if !d.exts[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		rel, err := filepath.Rel(d.root, path)
		if err != nil {
			return nil
		}
		if filter != "" && !strings.Contains(strings.ToLower(rel), filter) {
			return nil
		}
		found = append(found, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return contractx.ToolResult{}, err
	}
	if len(found) == 0 {
		return done(ToolListDocuments, "No documents found."), nil
	}
	return done(ToolListDocuments, "- "+strings.Join(found, "\n- ")), nil
}

func (d *Documents) read(_ context.Context, args map[string]any) (contractx.ToolResult, error) {
	rel, bad := requireString(ToolReadDocument, args, "path")
	if bad != nil {
		return *bad, nil
	}
	path, ok := d.resolve(rel)
	if !ok {
		return failed(ToolReadDocument, fmt.Sprintf("%q is outside the documents folder", rel)), nil
	}
	if !d.exts[strings.ToLower(filepath.Ext(path))] {
		return failed(ToolReadDocument, fmt.Sprintf("unsupported document type %q", filepath.Ext(path))), nil
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return failed(ToolReadDocument, fmt.Sprintf("file not found: %s", rel)), nil
	}
	if err != nil {
		return contractx.ToolResult{}, err
	}

	maxChars := intArg(args, "max_chars", defaultMaxChars)
	if maxChars <= 0 {
		maxChars = defaultMaxChars
	}
	text := []rune(string(raw))
	if len(text) > maxChars {
		return done(ToolReadDocument, string(text[:maxChars])+fmt.Sprintf("\n\n[...truncated at %d chars]", maxChars)), nil
	}
	return done(ToolReadDocument, string(text)), nil
}

func (d *Documents) resolve(rel string) (string, bool) {
	p := rel
	if !filepath.IsAbs(p) {
		p = filepath.Join(d.root, rel)
	}
	p = filepath.Clean(p)
	if p != d.root && !strings.HasPrefix(p, d.root+string(filepath.Separator)) {
		return "", false
	}
	return p, true
}
