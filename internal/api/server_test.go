package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cardlink/pixel-tracker/internal/config"
	"github.com/cardlink/pixel-tracker/internal/domain"
	"github.com/cardlink/pixel-tracker/internal/geo"
	"github.com/cardlink/pixel-tracker/internal/handler"
	"github.com/cardlink/pixel-tracker/internal/logger"
	"github.com/cardlink/pixel-tracker/internal/secrets"
	"github.com/cardlink/pixel-tracker/internal/storage"
)

type memStore struct {
	pixels map[string]*domain.TrackingPixel
	events []*domain.TrackingEvent
}

func (s *memStore) GetPixel(_ context.Context, id string) (*domain.TrackingPixel, error) {
	pixel, ok := s.pixels[id]
	if !ok {
		return nil, storage.ErrPixelNotFound
	}
	return pixel, nil
}

func (s *memStore) InsertEvent(_ context.Context, event *domain.TrackingEvent) (int64, error) {
	s.events = append(s.events, event)
	return int64(len(s.events)), nil
}

func (s *memStore) CreatePixel(_ context.Context, pixel *domain.TrackingPixel) error {
	s.pixels[pixel.ID] = pixel
	return nil
}

func (s *memStore) SetPixelActive(_ context.Context, id string, active bool) error {
	pixel, ok := s.pixels[id]
	if !ok {
		return storage.ErrPixelNotFound
	}
	pixel.Active = active
	return nil
}

func (s *memStore) GetPixelStats(_ context.Context, _ string) (*storage.PixelStats, error) {
	return &storage.PixelStats{Total: int64(len(s.events))}, nil
}

type staticGeo struct{}

func (staticGeo) Resolve(_ context.Context, ip string) geo.Location {
	return geo.Location{IP: ip}
}

func newTestServer(t *testing.T) (*Server, *memStore) {
	t.Helper()

	cfg := &config.Config{}
	cfg.Service.Name = "pixel-tracker"
	cfg.Service.Version = "test"
	cfg.Service.Port = 0
	cfg.RateLimit.MaxRequestsPerMinute = 1000
	cfg.RateLimit.WindowSeconds = 60

	store := &memStore{pixels: map[string]*domain.TrackingPixel{
		"px_1": {ID: "px_1", VCardID: "vc_1", Active: true},
	}}

	log := logger.NewNop()
	box := secrets.NewBox("test-secret")

	srv := NewServer(Deps{
		Config: cfg,
		Track:  handler.NewTrackHandler(store, staticGeo{}, nil, box, false, log),
		Admin:  handler.NewPixelAdminHandler(store, box, log),
		Health: handler.NewHealthHandler(cfg.Service.Name, cfg.Service.Version),
		Log:    log,
	})
	return srv, store
}

func TestServer_Health(t *testing.T) {
	srv, _ := newTestServer(t)

	w := httptest.NewRecorder()
	srv.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status: got %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "healthy") {
		t.Errorf("body: got %q", w.Body.String())
	}
}

func TestServer_Metrics(t *testing.T) {
	srv, _ := newTestServer(t)

	w := httptest.NewRecorder()
	srv.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status: got %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "pixeltracker_pixels_served_total") {
		t.Error("expected service counters in the scrape output")
	}
}

func TestServer_TrackThroughFullChain(t *testing.T) {
	srv, store := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/t/px_1?eventType=click", nil)
	req.RemoteAddr = "203.0.113.7:4321"
	srv.Engine().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", w.Code)
	}
	if got := w.Header().Get("Content-Type"); got != "image/gif" {
		t.Errorf("content type: got %q", got)
	}
	if len(store.events) != 1 || store.events[0].EventType != "click" {
		t.Errorf("expected one click event, got %+v", store.events)
	}
}

func TestServer_CORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t)

	w := httptest.NewRecorder()
	srv.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/t/px_1", nil))

	if w.Code != http.StatusNoContent {
		t.Errorf("status: got %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("cors origin: got %q", got)
	}
}
