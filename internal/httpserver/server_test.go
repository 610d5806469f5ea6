package httpserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MrSnakeDoc/eliwatch/internal/domain"
	"github.com/MrSnakeDoc/eliwatch/internal/httpserver/deps"
	"github.com/MrSnakeDoc/eliwatch/internal/index"
	"github.com/MrSnakeDoc/eliwatch/internal/logger"
)

func testDeps(withRun bool) deps.Deps {
	idx := index.NewMemoryIndex()
	if withRun {
		start := time.Date(2026, 10, 1, 3, 0, 0, 0, time.UTC)
		idx.UpdateRun(&domain.Run{
			StartedAt:  start,
			FinishedAt: start.Add(time.Minute),
			Results: []domain.SourceResult{
				{
					ID:               "osm",
					Type:             domain.TypeTMS,
					LicenseURL:       domain.Result{Status: domain.StatusGood},
					PrivacyPolicyURL: domain.Result{Status: domain.StatusGood},
					Imagery:          domain.Result{Status: domain.StatusGood, Messages: []string{"Info: Zoom levels reachable. (Tested: 0,19)"}},
				},
				{
					ID:               "ch-ortho",
					Type:             domain.TypeWMS,
					LicenseURL:       domain.Result{Status: domain.StatusError, Messages: []string{"Error: HTTP Code 500 for https://example.ch/terms"}},
					PrivacyPolicyURL: domain.Result{Status: domain.StatusGood},
					Imagery:          domain.Result{Status: domain.StatusWarning},
				},
			},
		})
	}
	return deps.Deps{
		Logger:      logger.NewNop(),
		StartTime:   time.Now(),
		Version:     "test",
		MemoryIndex: idx,
		RunTrigger:  make(chan struct{}, 1),
	}
}

func do(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	rec := do(t, NewRouter(logger.NewNop(), testDeps(false)), http.MethodGet, "/healthz")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("GET /healthz = %d %s", rec.Code, rec.Body)
	}
}

func TestReadyz(t *testing.T) {
	if rec := do(t, NewRouter(logger.NewNop(), testDeps(false)), http.MethodGet, "/readyz"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("GET /readyz without run = %d", rec.Code)
	}
	if rec := do(t, NewRouter(logger.NewNop(), testDeps(true)), http.MethodGet, "/readyz"); rec.Code != http.StatusOK {
		t.Errorf("GET /readyz with run = %d", rec.Code)
	}
}

func TestResults(t *testing.T) {
	h := NewRouter(logger.NewNop(), testDeps(true))

	tests := []struct {
		name     string
		target   string
		wantCode int
		wantIDs  []string
	}{
		{"all", "/api/results", http.StatusOK, []string{"osm", "ch-ortho"}},
		{"errors", "/api/results?status=error", http.StatusOK, []string{"ch-ortho"}},
		{"imagery warnings", "/api/results?status=warning&aspect=imagery", http.StatusOK, []string{"ch-ortho"}},
		{"license good", "/api/results?status=good&aspect=license_url", http.StatusOK, []string{"osm"}},
		{"by type", "/api/results?type=TMS", http.StatusOK, []string{"osm"}},
		{"bad status", "/api/results?status=broken", http.StatusBadRequest, nil},
		{"bad aspect", "/api/results?status=error&aspect=tiles", http.StatusBadRequest, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodGet, tt.target)
			if rec.Code != tt.wantCode {
				t.Fatalf("GET %s = %d %s", tt.target, rec.Code, rec.Body)
			}
			if tt.wantCode != http.StatusOK {
				return
			}
			var body struct {
				Count   int                   `json:"count"`
				Results []domain.SourceResult `json:"results"`
			}
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Count != len(tt.wantIDs) || len(body.Results) != len(tt.wantIDs) {
				t.Fatalf("got %d results, want %v", body.Count, tt.wantIDs)
			}
			for i, id := range tt.wantIDs {
				if body.Results[i].ID != id {
					t.Errorf("results[%d] = %s, want %s", i, body.Results[i].ID, id)
				}
			}
		})
	}
}

func TestResultsWithoutRun(t *testing.T) {
	rec := do(t, NewRouter(logger.NewNop(), testDeps(false)), http.MethodGet, "/api/results")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("GET /api/results = %d", rec.Code)
	}
}

func TestResultByID(t *testing.T) {
	h := NewRouter(logger.NewNop(), testDeps(true))

	rec := do(t, h, http.MethodGet, "/api/results/ch-ortho")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET result = %d", rec.Code)
	}
	var res domain.SourceResult
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.LicenseURL.Status != domain.StatusError || res.LicenseURL.Messages[0] != "Error: HTTP Code 500 for https://example.ch/terms" {
		t.Errorf("license_url = %+v", res.LicenseURL)
	}

	if rec := do(t, h, http.MethodGet, "/api/results/unknown"); rec.Code != http.StatusNotFound {
		t.Errorf("GET unknown = %d", rec.Code)
	}
}

func TestSummary(t *testing.T) {
	rec := do(t, NewRouter(logger.NewNop(), testDeps(true)), http.MethodGet, "/api/summary")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/summary = %d", rec.Code)
	}
	var body struct {
		Mode       string `json:"mode"`
		Components map[string]struct {
			OK   bool   `json:"ok"`
			Mode string `json:"mode"`
		} `json:"components"`
		Counts map[string]map[string]int `json:"counts"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Mode != "ok" {
		t.Errorf("mode = %s", body.Mode)
	}
	if body.Components["redis"].Mode != "disabled" || !body.Components["runner"].OK {
		t.Errorf("components = %+v", body.Components)
	}
	if body.Counts["license_url"]["error"] != 1 || body.Counts["imagery"]["good"] != 1 {
		t.Errorf("counts = %v", body.Counts)
	}

	rec = do(t, NewRouter(logger.NewNop(), testDeps(false)), http.MethodGet, "/api/summary")
	if !strings.Contains(rec.Body.String(), `"mode":"critical"`) {
		t.Errorf("summary without run = %s", rec.Body)
	}
}

func TestTriggerRun(t *testing.T) {
	d := testDeps(true)
	h := NewRouter(logger.NewNop(), d)

	if rec := do(t, h, http.MethodPost, "/api/run"); rec.Code != http.StatusAccepted {
		t.Fatalf("first POST /api/run = %d", rec.Code)
	}
	select {
	case <-d.RunTrigger:
	default:
		t.Fatal("trigger not queued")
	}

	d.MemoryIndex.SetRunning(true)
	if rec := do(t, h, http.MethodPost, "/api/run"); rec.Code != http.StatusConflict {
		t.Errorf("POST while running = %d", rec.Code)
	}
	d.MemoryIndex.SetRunning(false)

	d.RunTrigger <- struct{}{}
	if rec := do(t, h, http.MethodPost, "/api/run"); rec.Code != http.StatusTooManyRequests {
		t.Errorf("POST while queued = %d", rec.Code)
	}

	if rec := do(t, h, http.MethodGet, "/api/run"); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /api/run = %d", rec.Code)
	}
}

func TestRunRouteCIDRGuard(t *testing.T) {
	d := testDeps(true)
	d.AllowedCIDRS = []string{"10.0.0.0/8"}
	rec := do(t, NewRouter(logger.NewNop(), d), http.MethodPost, "/api/run")
	if rec.Code != http.StatusForbidden {
		t.Errorf("POST from outside allowed CIDRs = %d", rec.Code)
	}
}

func TestMetrics(t *testing.T) {
	rec := do(t, NewRouter(logger.NewNop(), testDeps(false)), http.MethodGet, "/metrics")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Errorf("GET /metrics = %d", rec.Code)
	}
}
