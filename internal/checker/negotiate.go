package checker

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/MrSnakeDoc/eliwatch/internal/capabilities"
	"github.com/MrSnakeDoc/eliwatch/internal/fetch"
)

// DefaultWMSVersions are tried after the unversioned request, in order.
var DefaultWMSVersions = []string{"1.3.0", "1.1.1", "1.1.0", "1.0.0"}

// attempt is one GetCapabilities URL of a negotiation.
type attempt struct {
	label string
	url   string
}

// negotiate fetches the attempts in order and returns the first document
// that parses. When none does, failures holds one line per attempt.
func negotiate(ctx context.Context, f Fetcher, attempts []attempt, headers map[string]string) (*capabilities.WMS, []string) {
	var failures []string
	for _, a := range attempts {
		resp := f.Fetch(ctx, a.url, fetch.Options{Headers: headers})
		if resp.Failed() {
			failures = append(failures, fmt.Sprintf("WMS %s: Connection Error: %s", a.label, resp.Message))
			if ctx.Err() != nil {
				break
			}
			continue
		}
		caps, err := capabilities.ParseWMS(resp.Body)
		if err != nil {
			failures = append(failures, fmt.Sprintf("WMS %s: Error: %v (HTTP Code %d)", a.label, err, resp.StatusCode))
			continue
		}
		return caps, nil
	}
	return nil, failures
}

// capabilitiesAttempts builds GetCapabilities URLs on the base of a GetMap
// template: unversioned first, then one per version. The map parameter is
// kept since MapServer instances need it.
func capabilitiesAttempts(base *url.URL, mapParam string, versions []string) []attempt {
	build := func(version string) string {
		q := url.Values{}
		q.Set("SERVICE", "WMS")
		q.Set("REQUEST", "GetCapabilities")
		if version != "" {
			q.Set("VERSION", version)
		}
		if mapParam != "" {
			q.Set("map", mapParam)
		}
		u := *base
		u.RawQuery = q.Encode()
		u.Fragment = ""
		return u.String()
	}

	out := []attempt{{label: "default", url: build("")}}
	for _, v := range versions {
		out = append(out, attempt{label: v, url: build(v)})
	}
	return out
}

// endpointAttempts uses the URL as given first, then forces each version
// while keeping every other parameter.
func endpointAttempts(base *url.URL, versions []string) []attempt {
	out := []attempt{{label: "default", url: base.String()}}
	for _, v := range versions {
		q := base.Query()
		for k := range q {
			if strings.EqualFold(k, "version") {
				q.Del(k)
			}
		}
		q.Set("VERSION", v)
		u := *base
		u.RawQuery = q.Encode()
		out = append(out, attempt{label: v, url: u.String()})
	}
	return out
}

// serviceInfo surfaces access constraints and fees.
func serviceInfo(caps *capabilities.WMS, infof func(string, ...interface{})) {
	for _, c := range caps.AccessConstraints {
		infof("Access constraints: %s", c)
	}
	for _, f := range caps.Fees {
		infof("Fees: %s", f)
	}
}

// compareVersions compares dotted version strings numerically.
func compareVersions(a, b string) int {
	as := strings.Split(strings.TrimSpace(a), ".")
	bs := strings.Split(strings.TrimSpace(b), ".")
	for i := 0; i < len(as) || i < len(bs); i++ {
		var x, y int
		if i < len(as) {
			fmt.Sscanf(as[i], "%d", &x) //nolint:errcheck // non-numeric parts compare as 0
		}
		if i < len(bs) {
			fmt.Sscanf(bs[i], "%d", &y) //nolint:errcheck
		}
		if x != y {
			if x < y {
				return -1
			}
			return 1
		}
	}
	return 0
}
