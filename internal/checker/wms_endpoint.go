package checker

import (
	"context"
	"net/url"

	"github.com/MrSnakeDoc/eliwatch/internal/domain"
)

// WMSEndpoint checks a source whose URL already is a GetCapabilities
// request. No layer was requested, so nothing is reconciled.
type WMSEndpoint struct {
	fetcher  Fetcher
	versions []string
}

func NewWMSEndpoint(f Fetcher, versions []string) *WMSEndpoint {
	return &WMSEndpoint{fetcher: f, versions: versions}
}

func (c *WMSEndpoint) Check(ctx context.Context, src *domain.Source) *domain.Report {
	r := &domain.Report{}

	u, err := url.Parse(src.URL)
	if err != nil || u.Host == "" {
		r.Errorf("Could not parse URL: %s", src.URL)
		return r
	}

	caps, failures := negotiate(ctx, c.fetcher, endpointAttempts(u, c.versions), src.Headers())
	if caps == nil {
		r.Errorf("Could not access GetCapabilities:")
		for _, f := range failures {
			r.Errorf("%s", f)
		}
		return r
	}

	r.Infof("WMS %s capabilities with %d named layers", caps.Version, len(caps.Layers))
	serviceInfo(caps, r.Infof)
	return r
}
