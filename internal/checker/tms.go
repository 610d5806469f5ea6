package checker

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb/maptile"

	"github.com/MrSnakeDoc/eliwatch/internal/domain"
	"github.com/MrSnakeDoc/eliwatch/internal/fetch"
	"github.com/MrSnakeDoc/eliwatch/internal/geo"
)

const (
	// DefaultTilePace is the pause before every tile probe.
	DefaultTilePace = 500 * time.Millisecond
	// DefaultRetryZooms is how many neighbouring zooms are tried when an
	// edge zoom fails.
	DefaultRetryZooms = 3

	defaultMinZoom = 0
	defaultMaxZoom = 22
)

var (
	switchRe      = regexp.MustCompile(`\{switch:([^}]*)\}`)
	placeholderRe = regexp.MustCompile(`\{[^}]*\}`)
)

// TMS probes tiles at the edges of the declared zoom range.
type TMS struct {
	fetcher Fetcher
	pace    time.Duration
	retries int
}

// NewTMS returns a TMS checker. A negative pace or retry count falls back
// to the defaults; zero pace disables pacing.
func NewTMS(f Fetcher, pace time.Duration, retries int) *TMS {
	if pace < 0 {
		pace = DefaultTilePace
	}
	if retries < 0 {
		retries = DefaultRetryZooms
	}
	return &TMS{fetcher: f, pace: pace, retries: retries}
}

// zoomProbe tracks which zooms were tried and how they went.
type zoomProbe struct {
	tested  map[int]bool
	success []int
	failed  []int
	reasons []string
}

func (p *zoomProbe) list(zooms []int) string {
	sorted := append([]int(nil), zooms...)
	sort.Ints(sorted)
	parts := make([]string, len(sorted))
	for i, z := range sorted {
		parts[i] = strconv.Itoa(z)
	}
	return strings.Join(parts, ",")
}

func (p *zoomProbe) testedList() string {
	zooms := make([]int, 0, len(p.tested))
	for z := range p.tested {
		zooms = append(zooms, z)
	}
	return p.list(zooms)
}

func (c *TMS) Check(ctx context.Context, src *domain.Source) *domain.Report {
	r := &domain.Report{}
	tpl := src.URL

	if strings.Contains(tpl, "{z}") {
		r.Errorf("URL contains '{z}' instead of '{zoom}': %s", tpl)
		return r
	}
	if strings.Contains(tpl, "{apikey}") {
		r.Warnf("Not checked: URL requires apikey")
		return r
	}

	tpl, sw := resolveSwitch(tpl)

	minZoom, maxZoom := defaultMinZoom, defaultMaxZoom
	if src.MinZoom != nil {
		minZoom = *src.MinZoom
	}
	if src.MaxZoom != nil {
		maxZoom = *src.MaxZoom
	}
	if minZoom < 0 || minZoom > maxZoom {
		r.Errorf("Invalid zoom range %d-%d", minZoom, maxZoom)
		return r
	}

	// Fail on template problems before any request goes out.
	point := geo.RepresentativePoint(src.Geometry)
	if _, err := tileURL(tpl, geo.TileAt(point, minZoom), sw); err != nil {
		r.Errorf("%v", err)
		return r
	}

	p := &zoomProbe{tested: make(map[int]bool)}
	probe := func(z int) (bool, error) {
		if p.tested[z] {
			return containsInt(p.success, z), nil
		}
		if err := c.wait(ctx); err != nil {
			return false, err
		}
		p.tested[z] = true
		// Validated above; every zoom uses the same placeholders.
		u, _ := tileURL(tpl, geo.TileAt(point, z), sw)
		resp := c.fetcher.Fetch(ctx, u, fetch.Options{Headers: src.Headers()})
		if !resp.Failed() && resp.StatusCode == http.StatusOK {
			p.success = append(p.success, z)
			return true, nil
		}
		p.failed = append(p.failed, z)
		if resp.Failed() {
			p.reasons = append(p.reasons, fmt.Sprintf("Zoom %d: %s", z, resp.Message))
		} else {
			p.reasons = append(p.reasons, fmt.Sprintf("Zoom %d: HTTP Code %d for %s", z, resp.StatusCode, u))
		}
		return false, nil
	}

	err := c.probeEdge(minZoom, maxZoom, 1, probe)
	if err == nil {
		err = c.probeEdge(maxZoom, minZoom, -1, probe)
	}
	if err != nil {
		r.Errorf("Timeout while probing zoom levels. (Tested: %s)", p.testedList())
		return r
	}

	tested := p.testedList()
	switch {
	case len(p.failed) == 0 && len(p.success) > 0:
		r.Infof("Zoom levels reachable. (Tested: %s)", tested)
	case len(p.failed) > 0 && len(p.success) > 0:
		r.Warnf("Zoom level %s not reachable. (Tested: %s)", p.list(p.failed), tested)
	default:
		r.Errorf("No zoom level reachable. (Tested: %s)", tested)
	}
	for _, reason := range p.reasons {
		r.Infof("%s", reason)
	}
	return r
}

// probeEdge tests zoom start and, if it fails, up to c.retries further
// zooms in direction step without crossing limit.
func (c *TMS) probeEdge(start, limit, step int, probe func(int) (bool, error)) error {
	ok, err := probe(start)
	if err != nil || ok {
		return err
	}
	for i := 1; i <= c.retries; i++ {
		z := start + i*step
		if (step > 0 && z > limit) || (step < 0 && z < limit) {
			return nil
		}
		ok, err := probe(z)
		if err != nil || ok {
			return err
		}
	}
	return nil
}

func (c *TMS) wait(ctx context.Context) error {
	if c.pace <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(c.pace)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// resolveSwitch replaces {switch:a,b,c} with {switch} and returns the
// first alternative.
func resolveSwitch(tpl string) (string, string) {
	m := switchRe.FindStringSubmatch(tpl)
	if m == nil {
		return tpl, ""
	}
	options := splitList(m[1])
	return strings.Replace(tpl, m[0], "{switch}", 1), options[0]
}

// tileURL fills the template for tile t. {-y} flips the row over the full
// grid, {!y} over half of it.
func tileURL(tpl string, t maptile.Tile, sw string) (string, error) {
	z := int(t.Z)
	y := int(t.Y)

	u := tpl
	switch {
	case strings.Contains(u, "{-y}"):
		u = strings.ReplaceAll(u, "{-y}", strconv.Itoa((1<<z)-1-y))
	case strings.Contains(u, "{!y}"):
		u = strings.ReplaceAll(u, "{!y}", strconv.Itoa((1<<z)/2-1-y))
	default:
		u = strings.ReplaceAll(u, "{y}", strconv.Itoa(y))
	}
	u = strings.NewReplacer(
		"{x}", strconv.Itoa(int(t.X)),
		"{zoom}", strconv.Itoa(z),
		"{switch}", sw,
	).Replace(u)

	if left := placeholderRe.FindString(u); left != "" {
		return "", fmt.Errorf("Unsupported placeholder %s in URL: %s", left, tpl) //nolint:staticcheck // user-facing message
	}
	return u, nil
}

func containsInt(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
