// Package eli reads an editor-layer-index style catalog: one GeoJSON
// Feature per imagery source, nested in region directories.
package eli

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/paulmach/orb/geojson"

	"github.com/MrSnakeDoc/eliwatch/internal/logger"
)

// Document is one parsed catalog file.
type Document struct {
	// Path is relative to the catalog root, slash separated.
	Path       string
	Feature    *geojson.Feature
	Properties Properties
}

// Loader reads every *.geojson file below a root directory.
type Loader struct {
	root string
	log  logger.Logger
}

// NewLoader creates a loader for the catalog rooted at root.
func NewLoader(root string, log logger.Logger) *Loader {
	return &Loader{root: root, log: log}
}

// Load walks the catalog in lexical order. Files that cannot be read or
// parsed are logged and skipped; only an unreadable root is an error.
func (l *Loader) Load() ([]Document, error) {
	info, err := os.Stat(l.root)
	if err != nil {
		return nil, fmt.Errorf("failed to read sources dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("sources dir %s is not a directory", l.root)
	}

	var docs []Document
	err = filepath.WalkDir(l.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			l.log.Warn("skipping unreadable path", logger.String("path", path), logger.Error(err))
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".geojson") {
			return nil
		}

		doc, err := l.loadFile(path)
		if err != nil {
			l.log.Warn("skipping catalog file", logger.String("path", path), logger.Error(err))
			return nil
		}
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk sources dir: %w", err)
	}
	return docs, nil
}

func (l *Loader) loadFile(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("failed to read file: %w", err)
	}

	feature, err := geojson.UnmarshalFeature(data)
	if err != nil {
		return Document{}, fmt.Errorf("failed to parse geojson: %w", err)
	}

	var wrapper struct {
		Properties Properties `json:"properties"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return Document{}, fmt.Errorf("failed to parse properties: %w", err)
	}

	rel, err := filepath.Rel(l.root, path)
	if err != nil {
		rel = filepath.Base(path)
	}
	return Document{
		Path:       filepath.ToSlash(rel),
		Feature:    feature,
		Properties: wrapper.Properties,
	}, nil
}
