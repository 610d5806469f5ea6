package eli

import (
	"fmt"
	"path"
	"strings"

	"github.com/MrSnakeDoc/eliwatch/internal/domain"
	"github.com/MrSnakeDoc/eliwatch/internal/logger"
)

// Mapper converts catalog documents to domain.Source entities
type Mapper struct {
	log logger.Logger
}

// NewMapper creates a new mapper instance
func NewMapper(log logger.Logger) *Mapper {
	return &Mapper{log: log}
}

// MapDocuments converts documents, skipping (and logging) those without an
// id. Everything else is kept so the evaluator can report what is broken.
// Duplicate ids keep the first occurrence.
func (m *Mapper) MapDocuments(docs []Document) []*domain.Source {
	sources := make([]*domain.Source, 0, len(docs))
	seen := make(map[string]string, len(docs))

	for i := range docs {
		src, err := m.MapDocument(&docs[i])
		if err != nil {
			m.log.Warn("skipping invalid source",
				logger.String("path", docs[i].Path),
				logger.Error(err),
			)
			continue
		}
		if first, dup := seen[src.ID]; dup {
			m.log.Warn("duplicate source id",
				logger.String("id", src.ID),
				logger.String("path", docs[i].Path),
				logger.String("first", first),
			)
			continue
		}
		seen[src.ID] = docs[i].Path
		sources = append(sources, src)
	}
	return sources
}

// MapDocument converts a single document. Only the identity is validated.
func (m *Mapper) MapDocument(doc *Document) (*domain.Source, error) {
	p := doc.Properties
	src := &domain.Source{
		ID:                   strings.TrimSpace(p.ID),
		Name:                 p.Name,
		Type:                 domain.ParseServiceType(p.Type),
		URL:                  strings.TrimSpace(p.URL),
		MinZoom:              p.MinZoom,
		MaxZoom:              p.MaxZoom,
		LicenseURL:           strings.TrimSpace(p.LicenseURL),
		PrivacyPolicyURL:     strings.TrimSpace(p.PrivacyPolicyURL),
		Category:             p.Category,
		AvailableProjections: p.AvailableProjections,
		EndDate:              p.EndDate,
	}
	if doc.Feature != nil {
		src.Geometry = doc.Feature.Geometry
	}
	if h := p.CustomHTTPHeaders; h != nil && h.Name != "" {
		src.CustomHeader = &domain.Header{Name: h.Name, Value: h.Value}
	}

	dir, file := path.Split(doc.Path)
	src.Filename = file
	if dir = strings.Trim(dir, "/"); dir != "" {
		src.Directory = strings.Split(dir, "/")
	}

	if err := src.ValidateIdentity(); err != nil {
		return nil, fmt.Errorf("source %q: %w", src.ID, err)
	}
	return src, nil
}
