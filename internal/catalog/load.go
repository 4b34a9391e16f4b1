package catalog

import (
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed defaults/items.json
var defaultsFS embed.FS

const maxCatalogSize = 1 * 1024 * 1024 // 1MB

// Load reads a catalog document from path. JSON (.json) and YAML (.yaml,
// .yml) are accepted; the document is a list of item definitions.
func Load(path string) (*Catalog, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	switch ext {
	case ".json", ".yaml", ".yml":
	default:
		return nil, configErrorf("catalog", "file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat catalog file: %w", err)
	}
	if fileInfo.Size() > maxCatalogSize {
		return nil, configErrorf("catalog", "file too large: %d bytes (max %d)", fileInfo.Size(), maxCatalogSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}

	var items []ItemDefinition
	if ext == ".json" {
		err = json.Unmarshal(data, &items)
	} else {
		err = yaml.Unmarshal(data, &items)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse catalog %s: %v", ErrConfig, filepath.Base(cleanPath), err)
	}
	return New(items)
}

// Default returns the built-in resident questionnaire.
func Default() *Catalog {
	data, err := defaultsFS.ReadFile("defaults/items.json")
	if err != nil {
		panic("catalog: embedded defaults missing: " + err.Error())
	}
	var items []ItemDefinition
	if err := json.Unmarshal(data, &items); err != nil {
		panic("catalog: embedded defaults invalid: " + err.Error())
	}
	c, err := New(items)
	if err != nil {
		panic("catalog: embedded defaults invalid: " + err.Error())
	}
	return c
}
