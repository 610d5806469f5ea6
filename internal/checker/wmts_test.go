package checker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrSnakeDoc/eliwatch/internal/domain"
)

const wmtsCaps = `<?xml version="1.0" encoding="UTF-8"?>
<Capabilities xmlns="http://www.opengis.net/wmts/1.0" xmlns:ows="http://www.opengis.net/ows/1.1" version="1.0.0">
  <Contents>
    <Layer>
      <ows:Identifier>ortho</ows:Identifier>
      <Format>image/jpeg</Format>
      <TileMatrixSetLink><TileMatrixSet>WebMercator</TileMatrixSet></TileMatrixSetLink>
    </Layer>
    <TileMatrixSet><ows:Identifier>WebMercator</ows:Identifier></TileMatrixSet>
  </Contents>
</Capabilities>`

func TestWMTS(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(wmtsCaps))
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<Capabilities version="1.0.0"><Contents>`))
	})
	mux.HandleFunc("/wms", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(capsDoc))
	})
	mux.HandleFunc("/down", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	mux.HandleFunc("/soft", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(wmtsCaps))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	tests := []struct {
		path   string
		status domain.Status
		msg    string
	}{
		{"/ok", domain.StatusGood, "WMTS 1.0.0 capabilities with 1 layers"},
		{"/broken", domain.StatusError, "Could not parse XML"},
		{"/wms", domain.StatusError, "No Capabilities Element present"},
		{"/down", domain.StatusError, "(HTTP Code 502)"},
		{"/soft", domain.StatusWarning, "HTTP Code 404 for"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			src := &domain.Source{ID: "w", Type: domain.TypeWMTS, URL: srv.URL + tt.path}
			res := NewWMTS(newCache()).Check(context.Background(), src).Result()
			if res.Status != tt.status || !hasMessage(res, tt.msg) {
				t.Errorf("result = %+v", res)
			}
		})
	}
}

func TestWMSEndpoint(t *testing.T) {
	srv := newWMSServer(t, capsDoc, func(v string) bool { return v == "1.1.1" })
	src := &domain.Source{
		ID:   "e",
		Type: domain.TypeWMSEndpoint,
		URL:  srv.URL + "/wms?SERVICE=WMS&REQUEST=GetCapabilities&VERSION=9.9.9",
	}
	res := NewWMSEndpoint(newCache(), DefaultWMSVersions).Check(context.Background(), src).Result()
	if res.Status != domain.StatusGood {
		t.Fatalf("status = %s (%v)", res.Status, res.Messages)
	}
	if !hasMessage(res, "Access constraints") {
		t.Errorf("messages = %v", res.Messages)
	}
	want := []string{"9.9.9", "1.3.0", "1.1.1"}
	if len(srv.versions) != len(want) {
		t.Fatalf("versions tried = %v, want %v", srv.versions, want)
	}
	for i := range want {
		if srv.versions[i] != want[i] {
			t.Errorf("versions tried = %v, want %v", srv.versions, want)
		}
	}
}

func TestWMSEndpointUnreachable(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	u := dead.URL
	dead.Close()

	src := &domain.Source{ID: "e", Type: domain.TypeWMSEndpoint, URL: u + "/wms?REQUEST=GetCapabilities"}
	res := NewWMSEndpoint(newCache(), DefaultWMSVersions).Check(context.Background(), src).Result()
	if res.Status != domain.StatusError || !hasMessage(res, "Connection Error") {
		t.Errorf("result = %+v", res)
	}
}
