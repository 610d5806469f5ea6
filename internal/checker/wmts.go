package checker

import (
	"context"
	"net/http"

	"github.com/MrSnakeDoc/eliwatch/internal/capabilities"
	"github.com/MrSnakeDoc/eliwatch/internal/domain"
	"github.com/MrSnakeDoc/eliwatch/internal/fetch"
)

// WMTS fetches the capabilities document once and validates it.
type WMTS struct {
	fetcher Fetcher
}

func NewWMTS(f Fetcher) *WMTS {
	return &WMTS{fetcher: f}
}

func (c *WMTS) Check(ctx context.Context, src *domain.Source) *domain.Report {
	r := &domain.Report{}

	resp := c.fetcher.Fetch(ctx, src.URL, fetch.Options{Headers: src.Headers()})
	if resp.Failed() {
		r.Errorf("%s", resp.Message)
		return r
	}

	// Some servers answer with an error status and a usable document, so
	// the body decides and the status only annotates.
	caps, err := capabilities.ParseWMTS(resp.Body)
	if err != nil {
		r.Errorf("%v (HTTP Code %d)", err, resp.StatusCode)
		return r
	}
	if resp.StatusCode != http.StatusOK {
		r.Warnf("HTTP Code %d for %s", resp.StatusCode, src.URL)
	}
	r.Infof("WMTS %s capabilities with %d layers", caps.Version, len(caps.Layers))
	return r
}
