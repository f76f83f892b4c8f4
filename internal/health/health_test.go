package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"xslhost/internal/config"
	"xslhost/internal/host"
	"xslhost/pkg/engine"
)

type nopEngine struct{}

func (nopEngine) Command(*engine.Command) engine.EngineState        { return engine.Ok }
func (nopEngine) Transform(*engine.Command) engine.EngineState      { return engine.Ok }
func (nopEngine) AfterTransform(*engine.Command) engine.EngineState { return engine.Ok }
func (nopEngine) Shutdown()                                         {}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	registry := host.NewRegistry()
	registry.RegisterBuiltin("builtin", func() (engine.Engine, error) { return nopEngine{}, nil })
	return New(0, registry)
}

func TestHealthHandlerReadiness(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name       string
		ready      bool
		wantStatus int
		wantBody   string
	}{
		{name: "not ready", ready: false, wantStatus: http.StatusProcessing, wantBody: "starting"},
		{name: "ready", ready: true, wantStatus: http.StatusOK, wantBody: "ok"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.ready {
				s.MarkReady()
			} else {
				s.MarkNotReady()
			}

			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			rec := httptest.NewRecorder()
			s.healthHandler(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status: got %d, want %d", rec.Code, tt.wantStatus)
			}
			if rec.Body.String() != tt.wantBody {
				t.Errorf("body: got %q, want %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestHealthHandlerRejectsNonGet(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/health", nil)
	rec := httptest.NewRecorder()
	s.healthHandler(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}

func TestEnginesHandler(t *testing.T) {
	registry := host.NewRegistry()
	registry.RegisterBuiltin("builtin", func() (engine.Engine, error) { return nopEngine{}, nil })
	cfg := &config.Config{Engines: []config.EngineConfig{{Name: "builtin"}}}
	if err := registry.LoadEngines(cfg); err != nil {
		t.Fatal(err)
	}

	s := New(0, registry)

	req := httptest.NewRequest(http.MethodGet, "/engines", nil)
	rec := httptest.NewRecorder()
	s.enginesHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type: got %q", ct)
	}
	var infos []host.EngineInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &infos); err != nil {
		t.Fatalf("invalid JSON inventory: %v", err)
	}
	if len(infos) != 1 || infos[0].Name != "builtin" || infos[0].State != "ready" {
		t.Errorf("unexpected inventory: %+v", infos)
	}
}
