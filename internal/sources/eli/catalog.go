package eli

import (
	"github.com/MrSnakeDoc/eliwatch/internal/domain"
	"github.com/MrSnakeDoc/eliwatch/internal/logger"
)

// ReadCatalog loads and maps every source below root.
func ReadCatalog(root string, log logger.Logger) ([]*domain.Source, error) {
	docs, err := NewLoader(root, log).Load()
	if err != nil {
		return nil, err
	}
	sources := NewMapper(log).MapDocuments(docs)
	log.Info("catalog loaded",
		logger.String("root", root),
		logger.Int("files", len(docs)),
		logger.Int("sources", len(sources)),
	)
	return sources, nil
}
