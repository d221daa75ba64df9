package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/datamast/essync/internal/config"
	"github.com/datamast/essync/internal/docstore"
)

// fileProvider reads canonical documents from a local JSON or YAML file, or
// from a directory of such files.
type fileProvider struct {
	path string
}

var _ Provider = (*fileProvider)(nil)

// NewFileProvider creates a file-backed document provider. The path is read
// on every Fetch, so a replaced file is picked up without restarting.
func NewFileProvider(cfg *config.FileSourceConfig) (Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("file configuration is required")
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("file path cannot be empty")
	}

	return &fileProvider{path: cfg.Path}, nil
}

// Fetch implements Provider.Fetch.
func (p *fileProvider) Fetch(_ context.Context, sinceID int64) ([]docstore.Document, error) {
	info, err := os.Stat(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("source path not found: %s", p.path)
		}
		return nil, fmt.Errorf("failed to stat source path %s: %w", p.path, err)
	}

	var docs []docstore.Document
	if info.IsDir() {
		docs, err = p.readDirectory()
	} else {
		docs, err = readDocumentFile(p.path)
	}
	if err != nil {
		return nil, err
	}

	return filterSince(docs, sinceID), nil
}

// Source implements Provider.Source.
func (p *fileProvider) Source() string {
	return fmt.Sprintf("file:%s", p.path)
}

// Close implements Provider.Close.
func (*fileProvider) Close() error {
	return nil
}

// readDirectory reads every document file in the directory, in lexical
// filename order so repeated fetches are deterministic.
func (p *fileProvider) readDirectory() ([]docstore.Document, error) {
	entries, err := os.ReadDir(p.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read source directory %s: %w", p.path, err)
	}

	var docs []docstore.Document
	for _, entry := range entries {
		if entry.IsDir() || !isDocumentFile(entry.Name()) {
			continue
		}
		fileDocs, err := readDocumentFile(filepath.Join(p.path, entry.Name()))
		if err != nil {
			return nil, err
		}
		docs = append(docs, fileDocs...)
	}

	return docs, nil
}

func isDocumentFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".yaml", ".yml":
		return true
	default:
		return false
	}
}

// readDocumentFile parses one file into documents. A file may hold a single
// document or a list of documents.
func readDocumentFile(path string) ([]docstore.Document, error) {
	//nolint:gosec // File path comes from user configuration, this is expected behavior
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read source file %s: %w", path, err)
	}

	if strings.EqualFold(filepath.Ext(path), ".json") {
		return parseJSONDocuments(path, data)
	}
	return parseYAMLDocuments(path, data)
}

func parseJSONDocuments(path string, data []byte) ([]docstore.Document, error) {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var list []map[string]any
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		return asDocuments(list), nil
	}

	var single map[string]any
	if err := json.Unmarshal(data, &single); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return []docstore.Document{single}, nil
}

func parseYAMLDocuments(path string, data []byte) ([]docstore.Document, error) {
	var list []map[string]any
	if err := yaml.Unmarshal(data, &list); err == nil {
		return asDocuments(list), nil
	}

	var single map[string]any
	if err := yaml.Unmarshal(data, &single); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return []docstore.Document{single}, nil
}

func asDocuments(list []map[string]any) []docstore.Document {
	docs := make([]docstore.Document, 0, len(list))
	for _, m := range list {
		docs = append(docs, docstore.Document(m))
	}
	return docs
}
