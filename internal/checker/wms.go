package checker

import (
	"context"
	"net/url"
	"sort"
	"strings"

	"github.com/paulmach/orb"

	"github.com/MrSnakeDoc/eliwatch/internal/capabilities"
	"github.com/MrSnakeDoc/eliwatch/internal/domain"
	"github.com/MrSnakeDoc/eliwatch/internal/geo"
)

var (
	wmsRequired  = []string{"version", "request", "layers", "bbox", "width", "height", "format"}
	esriRequired = []string{"bbox", "size", "format", "f", "imagesr", "bboxsr"}

	// DefaultExpectedProjections are CRS codes a catalog entry is expected
	// to list whenever the server offers them.
	DefaultExpectedProjections = []string{"EPSG:3857", "EPSG:4326", "CRS:84"}
)

// WMSOptions tune capability reconciliation.
type WMSOptions struct {
	Versions            []string
	ExpectedProjections []string
	// Outside-bbox thresholds in percent of the coverage area.
	OutsideWarnPercent  float64
	OutsideErrorPercent float64
}

// DefaultWMSOptions returns the built-in reconciliation policy.
func DefaultWMSOptions() WMSOptions {
	return WMSOptions{
		Versions:            DefaultWMSVersions,
		ExpectedProjections: DefaultExpectedProjections,
		OutsideWarnPercent:  15,
		OutsideErrorPercent: 100,
	}
}

// WMS checks a GetMap template against the server's capabilities.
type WMS struct {
	fetcher Fetcher
	opts    WMSOptions
}

func NewWMS(f Fetcher, opts WMSOptions) *WMS {
	return &WMS{fetcher: f, opts: opts}
}

func (c *WMS) Check(ctx context.Context, src *domain.Source) *domain.Report {
	r := &domain.Report{}

	u, err := url.Parse(src.URL)
	if err != nil || u.Host == "" {
		r.Errorf("Could not parse URL: %s", src.URL)
		return r
	}
	args := lowerQuery(u.RawQuery)

	if _, ok := args["request"]; !ok {
		checkESRI(args, r)
		return r
	}
	if !checkParams(args, r) {
		return r
	}

	caps, failures := negotiate(ctx, c.fetcher, capabilitiesAttempts(u, args["map"], c.opts.Versions), src.Headers())
	if caps == nil {
		r.Errorf("Could not access GetCapabilities:")
		for _, f := range failures {
			r.Errorf("%s", f)
		}
		return r
	}

	found := c.checkLayers(caps, splitList(args["layers"]), r)
	c.checkStyles(found, splitList(args["layers"]), args["styles"], r)
	c.checkBBox(src.Geometry, found, r)
	c.checkProjections(src.AvailableProjections, found, r)
	c.checkFormat(caps, args["format"], src.Category, r)

	if v := args["version"]; compareVersions(v, caps.Version) < 0 {
		r.Warnf("Query requests WMS version '%s', server supports '%s'", v, caps.Version)
	}
	serviceInfo(caps, r.Infof)
	if len(r.Errors) == 0 && len(r.Warnings) == 0 {
		r.Infof("Found layers: %s", args["layers"])
	}
	return r
}

// lowerQuery parses a raw query with case-insensitive keys. The first value
// of a repeated key wins. Bad escapes are tolerated; templates contain
// placeholders the query parser does not care about.
func lowerQuery(raw string) map[string]string {
	values, _ := url.ParseQuery(raw)
	out := make(map[string]string, len(values))
	for k, v := range values {
		k = strings.ToLower(k)
		if _, seen := out[k]; seen || len(v) == 0 {
			continue
		}
		out[k] = v[0]
	}
	return out
}

func checkESRI(args map[string]string, r *domain.Report) {
	if missing := missingParams(args, esriRequired); len(missing) > 0 {
		r.Errorf("Missing ESRI parameters: %s", strings.Join(missing, ", "))
		return
	}
	r.Infof("ESRI REST endpoint, capabilities not checked")
}

// checkParams reports missing or misplaced GetMap parameters and returns
// whether the template is complete enough to continue.
func checkParams(args map[string]string, r *domain.Report) bool {
	required := append([]string(nil), wmsRequired...)
	want, wrong := "srs", "crs"
	if args["version"] == "1.3.0" {
		want, wrong = "crs", "srs"
	}
	required = append(required, want)

	missing := missingParams(args, required)
	if len(missing) > 0 {
		r.Errorf("Missing parameters: %s", strings.Join(missing, ", "))
	}
	if _, ok := args[wrong]; ok {
		r.Errorf("Parameter '%s' is not valid for WMS version '%s', use '%s'", wrong, args["version"], want)
	}
	return len(r.Errors) == 0
}

func missingParams(args map[string]string, required []string) []string {
	var missing []string
	for _, p := range required {
		if _, ok := args[p]; !ok {
			missing = append(missing, p)
		}
	}
	return missing
}

// checkLayers returns the advertised layers in request order.
func (c *WMS) checkLayers(caps *capabilities.WMS, requested []string, r *domain.Report) []*capabilities.Layer {
	var found []*capabilities.Layer
	var notFound []string
	for _, name := range requested {
		if l, ok := caps.Layers[name]; ok {
			found = append(found, l)
			continue
		}
		notFound = append(notFound, name)
		if actual, ok := caps.FindLayerFold(name); ok {
			r.Warnf("Layer '%s' not found, but '%s' is advertised (check capitalization)", name, actual)
		}
	}
	if len(notFound) > 0 {
		r.Errorf("Layers '%s' not advertised by server", strings.Join(notFound, ","))
	}
	return found
}

func (c *WMS) checkStyles(found []*capabilities.Layer, requested []string, raw string, r *domain.Report) {
	if isDefaultStyle(raw) {
		return
	}
	styles := splitList(raw)
	if len(styles) != len(requested) {
		r.Errorf("Number of styles (%d) does not match number of layers (%d)", len(styles), len(requested))
		return
	}
	byName := make(map[string]*capabilities.Layer, len(found))
	for _, l := range found {
		byName[l.Name] = l
	}
	for i, name := range requested {
		l, ok := byName[name]
		if !ok || isDefaultStyle(styles[i]) {
			continue
		}
		if _, ok := l.Styles[styles[i]]; !ok {
			r.Errorf("Layer '%s' does not support style '%s'", name, styles[i])
		}
	}
}

func isDefaultStyle(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || strings.EqualFold(s, "default")
}

func (c *WMS) checkBBox(g orb.Geometry, found []*capabilities.Layer, r *domain.Report) {
	if g == nil {
		return
	}
	var bounds []orb.Bound
	for _, l := range found {
		if l.BBox == nil {
			continue
		}
		bounds = append(bounds, orb.Bound{
			Min: orb.Point{l.BBox.MinX, l.BBox.MinY},
			Max: orb.Point{l.BBox.MaxX, l.BBox.MaxY},
		})
	}
	if len(bounds) == 0 {
		return
	}
	pct, ok := geo.OutsidePercent(g, bounds)
	if !ok {
		return
	}
	switch {
	case pct >= c.opts.OutsideErrorPercent:
		r.Errorf("%.1f%% of the coverage area is outside the bounding box of the requested layers", pct)
	case pct > c.opts.OutsideWarnPercent:
		r.Warnf("%.1f%% of the coverage area is outside the bounding box of the requested layers", pct)
	}
}

// checkProjections compares available_projections with what each layer
// advertises, in both directions.
func (c *WMS) checkProjections(declared []string, found []*capabilities.Layer, r *domain.Report) {
	if len(declared) == 0 {
		return
	}
	for _, l := range found {
		var unsupported []string
		for _, d := range declared {
			if !l.SupportsCRS(d) {
				unsupported = append(unsupported, d)
			}
		}
		if len(unsupported) > 0 {
			sort.Strings(unsupported)
			r.Warnf("Layer '%s' does not support projections: %s", l.Name, strings.Join(unsupported, ", "))
		}

		var omitted []string
		for _, e := range c.opts.ExpectedProjections {
			if l.SupportsCRS(e) && !containsFold(declared, e) {
				omitted = append(omitted, e)
			}
		}
		if len(omitted) > 0 {
			r.Warnf("Layer '%s' supports projections missing from available_projections: %s", l.Name, strings.Join(omitted, ", "))
		}
	}
}

func (c *WMS) checkFormat(caps *capabilities.WMS, format, category string, r *domain.Report) {
	if len(caps.Formats) == 0 {
		return
	}
	if !caps.SupportsFormat(format) {
		r.Errorf("Format '%s' not advertised by server (supported: %s)", format, strings.Join(caps.Formats, ", "))
		return
	}
	if category == "photo" && !isJPEG(format) {
		for _, f := range caps.Formats {
			if isJPEG(f) {
				r.Warnf("Server supports '%s', better suited for photo imagery than '%s'", f, format)
				return
			}
		}
	}
}

func isJPEG(format string) bool {
	f := strings.ToLower(format)
	return strings.Contains(f, "jpeg") || strings.Contains(f, "jpg")
}
