// Package checker holds the protocol checkers (TMS, WMS, WMS endpoint,
// WMTS) and the plain URL reachability probe they share.
package checker

import (
	"context"
	"net/http"
	"strings"

	"github.com/MrSnakeDoc/eliwatch/internal/domain"
	"github.com/MrSnakeDoc/eliwatch/internal/fetch"
)

// Fetcher is the subset of *fetch.Cache the checkers use.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, opts fetch.Options) *fetch.Response
}

// Checker validates the imagery of one source. Implementations never
// return errors; every finding ends up in the report.
type Checker interface {
	Check(ctx context.Context, src *domain.Source) *domain.Report
}

// TestURL probes a URL and maps the outcome onto a Result. A 404 that
// serves an HTML page passes: license and privacy pages on some servers
// answer that way.
func TestURL(ctx context.Context, f Fetcher, rawURL string, headers map[string]string) domain.Result {
	var r domain.Report
	resp := f.Fetch(ctx, rawURL, fetch.Options{Headers: headers})
	switch {
	case resp.Failed():
		r.Errorf("%s", resp.Message)
	case resp.StatusCode == http.StatusOK:
		r.Infof("HTTP Code %d for %s", resp.StatusCode, rawURL)
	case resp.StatusCode == http.StatusNotFound && looksLikeHTML(resp):
		r.Infof("HTTP Code %d for %s (HTML page served)", resp.StatusCode, rawURL)
	default:
		r.Errorf("HTTP Code %d for %s", resp.StatusCode, rawURL)
	}
	return r.Result()
}

func looksLikeHTML(resp *fetch.Response) bool {
	if strings.Contains(strings.ToLower(resp.ContentType), "html") {
		return true
	}
	if len(resp.Head) == 0 {
		return false
	}
	return strings.HasPrefix(http.DetectContentType(resp.Head), "text/html")
}

// splitList splits a comma separated parameter, keeping empty entries so
// positional lists (styles) stay aligned.
func splitList(v string) []string {
	parts := strings.Split(v, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func containsFold(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(strings.TrimSpace(s), v) {
			return true
		}
	}
	return false
}
