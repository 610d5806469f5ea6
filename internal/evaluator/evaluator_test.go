package evaluator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrSnakeDoc/eliwatch/internal/checker"
	"github.com/MrSnakeDoc/eliwatch/internal/config"
	"github.com/MrSnakeDoc/eliwatch/internal/domain"
	"github.com/MrSnakeDoc/eliwatch/internal/fetch"
	"github.com/MrSnakeDoc/eliwatch/internal/logger"
)

type countingFetcher struct {
	inner *fetch.Cache
	mu    sync.Mutex
	urls  []string
}

func (f *countingFetcher) Fetch(ctx context.Context, rawURL string, opts fetch.Options) *fetch.Response {
	f.mu.Lock()
	f.urls = append(f.urls, rawURL)
	f.mu.Unlock()
	return f.inner.Fetch(ctx, rawURL, opts)
}

func newEvaluator(policy *config.Policy) (*Evaluator, *countingFetcher) {
	f := &countingFetcher{inner: fetch.New(fetch.Config{}, nil, logger.NewNop())}
	return New(f, policy, 0, logger.NewNop()), f
}

func hasMessage(res domain.Result, substr string) bool {
	for _, m := range res.Messages {
		if strings.Contains(m, substr) {
			return true
		}
	}
	return false
}

const wmtsDoc = `<Capabilities xmlns="http://www.opengis.net/wmts/1.0" xmlns:ows="http://www.opengis.net/ows/1.1" version="1.0.0">
  <Contents>
    <Layer>
      <ows:Identifier>ortho</ows:Identifier>
      <Format>image/jpeg</Format>
      <TileMatrixSetLink><TileMatrixSet>WebMercator</TileMatrixSet></TileMatrixSetLink>
    </Layer>
    <TileMatrixSet><ows:Identifier>WebMercator</ows:Identifier></TileMatrixSet>
  </Contents>
</Capabilities>`

const capsOnlyB = `<WMS_Capabilities version="1.3.0"><Capability>
  <Request><GetMap><Format>image/png</Format></GetMap></Request>
  <Layer><CRS>EPSG:3857</CRS><Layer><Name>B</Name></Layer></Layer>
</Capability></WMS_Capabilities>`

func TestEvaluateWMSLayerMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/license", "/privacy":
			_, _ = w.Write([]byte("ok"))
		default:
			_, _ = w.Write([]byte(capsOnlyB))
		}
	}))
	defer srv.Close()

	src := &domain.Source{
		ID:               "wms-a",
		Name:             "Layer A",
		Type:             domain.TypeWMS,
		URL:              srv.URL + "/wms?SERVICE=WMS&VERSION=1.3.0&REQUEST=GetMap&LAYERS=A&STYLES=&CRS={proj}&BBOX={bbox}&WIDTH={width}&HEIGHT={height}&FORMAT=image/png",
		LicenseURL:       srv.URL + "/license",
		PrivacyPolicyURL: srv.URL + "/privacy",
		Directory:        []string{"europe", "ch"},
		Filename:         "wms-a.geojson",
	}
	e, _ := newEvaluator(nil)
	res := e.Evaluate(context.Background(), src)

	if res.Imagery.Status != domain.StatusError {
		t.Fatalf("imagery status = %s (%v)", res.Imagery.Status, res.Imagery.Messages)
	}
	if !hasMessage(res.Imagery, "Layers 'A' not advertised") {
		t.Errorf("imagery messages = %v", res.Imagery.Messages)
	}
	if res.LicenseURL.Status != domain.StatusGood || res.PrivacyPolicyURL.Status != domain.StatusGood {
		t.Errorf("license/privacy = %s/%s", res.LicenseURL.Status, res.PrivacyPolicyURL.Status)
	}
	if res.ID != "wms-a" || res.Filename != "wms-a.geojson" || len(res.Directory) != 2 {
		t.Errorf("passthrough fields lost: %+v", res)
	}
}

func TestEvaluateStaleSourceMakesNoImageryRequest(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	src := &domain.Source{
		ID:      "old",
		Type:    domain.TypeTMS,
		URL:     "https://tiles.example.org/{zoom}/{x}/{y}.png",
		EndDate: strconv.Itoa(now.Year()-40) + "-05-01",
	}
	e, f := newEvaluator(nil)
	res := e.WithClock(func() time.Time { return now }).Evaluate(context.Background(), src)

	if res.Imagery.Status != domain.StatusWarning {
		t.Errorf("imagery status = %s", res.Imagery.Status)
	}
	if !hasMessage(res.Imagery, "Not checked due to age: 40 years") {
		t.Errorf("imagery messages = %v", res.Imagery.Messages)
	}
	if len(f.urls) != 0 {
		t.Errorf("requests made: %v", f.urls)
	}
}

func TestEvaluateMissingURLs(t *testing.T) {
	e, _ := newEvaluator(nil)
	src := &domain.Source{ID: "x", Type: domain.TypeOther, URL: "https://example.org"}
	res := e.Evaluate(context.Background(), src)

	if res.LicenseURL.Status != domain.StatusError || !hasMessage(res.LicenseURL, "No license_url set!") {
		t.Errorf("license = %+v", res.LicenseURL)
	}
	if res.PrivacyPolicyURL.Status != domain.StatusError || !hasMessage(res.PrivacyPolicyURL, "No privacy_policy_url set!") {
		t.Errorf("privacy = %+v", res.PrivacyPolicyURL)
	}
}

func TestEvaluateSkipPolicies(t *testing.T) {
	policy := config.DefaultPolicy()
	policy.Ignore = []config.IgnoreEntry{{ID: "flaky", Reason: "blocks crawlers"}}

	tests := []struct {
		name string
		src  *domain.Source
		msg  string
	}{
		{
			name: "ignored",
			src:  &domain.Source{ID: "flaky", Type: domain.TypeTMS, URL: "https://t.example.org/{zoom}/{x}/{y}"},
			msg:  "blocks crawlers",
		},
		{
			name: "user agent placeholder",
			src:  &domain.Source{ID: "ua", Type: domain.TypeTMS, URL: "https://t.example.org/{zoom}/{x}/{y}?ua={useragent}"},
			msg:  "User-Agent",
		},
		{
			name: "unsupported type",
			src:  &domain.Source{ID: "bing", Type: domain.TypeOther, URL: "https://dev.virtualearth.net/"},
			msg:  "not currently checked",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, f := newEvaluator(policy)
			res := e.Evaluate(context.Background(), tt.src)
			if res.Imagery.Status != domain.StatusWarning || !hasMessage(res.Imagery, tt.msg) {
				t.Errorf("imagery = %+v", res.Imagery)
			}
			if len(f.urls) != 0 {
				t.Errorf("requests made: %v", f.urls)
			}
		})
	}
}

func TestEvaluateInvalidSource(t *testing.T) {
	e, _ := newEvaluator(nil)
	res := e.Evaluate(context.Background(), &domain.Source{ID: "broken", Type: domain.TypeTMS})
	if res.Imagery.Status != domain.StatusError || !hasMessage(res.Imagery, "missing url") {
		t.Errorf("imagery = %+v", res.Imagery)
	}
}

func TestEvaluateZoomRangeIsImageryError(t *testing.T) {
	lo, hi := 10, 5
	e, f := newEvaluator(nil)
	src := &domain.Source{ID: "zoom", Type: domain.TypeTMS, URL: "https://tile.example.org/{zoom}/{x}/{y}.png", MinZoom: &lo, MaxZoom: &hi}
	res := e.Evaluate(context.Background(), src)
	if res.Imagery.Status != domain.StatusError || !hasMessage(res.Imagery, "Invalid source") {
		t.Errorf("imagery = %+v", res.Imagery)
	}
	for _, u := range f.urls {
		if strings.Contains(u, "tile.example.org") {
			t.Errorf("invalid source should not be fetched, got %s", u)
		}
	}
}

func TestEvaluateMalformedLicenseURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(wmtsDoc))
	}))
	defer srv.Close()

	e, _ := newEvaluator(nil)
	src := &domain.Source{ID: "lic", Type: domain.TypeWMTS, URL: srv.URL + "/wmts", LicenseURL: "http://bad host/license"}
	res := e.Evaluate(context.Background(), src)

	if res.LicenseURL.Status != domain.StatusError || !hasMessage(res.LicenseURL, "Could not parse URL: http://bad host/license") {
		t.Errorf("license = %+v", res.LicenseURL)
	}
	if res.Imagery.Status != domain.StatusGood {
		t.Errorf("a bad license url must not affect imagery, got %+v", res.Imagery)
	}
}

// panicFetcher panics on one URL and serves the rest from inner.
type panicFetcher struct {
	inner  checker.Fetcher
	poison string
}

func (f panicFetcher) Fetch(ctx context.Context, rawURL string, opts fetch.Options) *fetch.Response {
	if rawURL == f.poison {
		panic("fetch exploded")
	}
	return f.inner.Fetch(ctx, rawURL, opts)
}

func TestEvaluateRecoversURLCheckPanic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(wmtsDoc))
	}))
	defer srv.Close()

	f := panicFetcher{inner: fetch.New(fetch.Config{}, nil, logger.NewNop()), poison: srv.URL + "/license"}
	e := New(f, nil, 0, logger.NewNop())
	src := &domain.Source{
		ID:               "p",
		Type:             domain.TypeWMTS,
		URL:              srv.URL + "/wmts",
		LicenseURL:       srv.URL + "/license",
		PrivacyPolicyURL: srv.URL + "/privacy",
	}
	res := e.Evaluate(context.Background(), src)

	if res.LicenseURL.Status != domain.StatusError || !hasMessage(res.LicenseURL, "Internal error while checking license_url: fetch exploded") {
		t.Errorf("license = %+v", res.LicenseURL)
	}
	if res.PrivacyPolicyURL.Status != domain.StatusGood {
		t.Errorf("privacy = %+v", res.PrivacyPolicyURL)
	}
	if res.Imagery.Status != domain.StatusGood {
		t.Errorf("imagery = %+v", res.Imagery)
	}
}

type panicChecker struct{}

func (panicChecker) Check(context.Context, *domain.Source) *domain.Report {
	panic("boom")
}

func TestEvaluateRecoversCheckerPanic(t *testing.T) {
	e, _ := newEvaluator(nil)
	e.checkers[domain.TypeWMTS] = panicChecker{}

	res := e.Evaluate(context.Background(), &domain.Source{ID: "p", Type: domain.TypeWMTS, URL: "https://example.org/wmts"})
	if res.Imagery.Status != domain.StatusError || !hasMessage(res.Imagery, "boom") {
		t.Errorf("imagery = %+v", res.Imagery)
	}
}

func TestEvaluateDeadlineIsPerAspect(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	e, _ := newEvaluator(nil)
	src := &domain.Source{ID: "slow", Type: domain.TypeWMTS, URL: srv.URL + "/wmts", LicenseURL: srv.URL + "/license"}
	res := e.Evaluate(ctx, src)

	if res.LicenseURL.Status != domain.StatusError || !hasMessage(res.LicenseURL, "Timeout") {
		t.Errorf("license = %+v", res.LicenseURL)
	}
	if res.Imagery.Status != domain.StatusError || !hasMessage(res.Imagery, "Timeout") {
		t.Errorf("imagery = %+v", res.Imagery)
	}
	if res.PrivacyPolicyURL.Status != domain.StatusError || !hasMessage(res.PrivacyPolicyURL, "No privacy_policy_url set!") {
		t.Errorf("privacy = %+v", res.PrivacyPolicyURL)
	}
}
