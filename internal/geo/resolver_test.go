package geo

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/cardlink/pixel-tracker/internal/config"
	"github.com/cardlink/pixel-tracker/internal/logger"
)

const testTimeout = 2 * time.Second

func newTestResolver(t *testing.T, publicIPURL, lookupURL string, cache *Cache) *Resolver {
	t.Helper()

	return NewResolver(config.GeoConfig{
		PublicIPURL:     publicIPURL,
		LookupURL:       lookupURL,
		PublicIPTimeout: testTimeout,
		LookupTimeout:   testTimeout,
		CacheTTL:        time.Minute,
	}, cache, logger.NewNop())
}

func geoSuccessServer(t *testing.T) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := strings.TrimPrefix(r.URL.Path, "/")
		fmt.Fprintf(w, `{"status":"success","country":"US","regionName":"California","city":"San Francisco","query":%q}`, ip)
	}))
}

func TestResolve_Success(t *testing.T) {
	srv := geoSuccessServer(t)
	defer srv.Close()

	r := newTestResolver(t, "http://127.0.0.1:1", srv.URL, nil)
	loc := r.Resolve(context.Background(), "203.0.113.7")

	if loc.Country != "US" {
		t.Errorf("country: got %q, want %q", loc.Country, "US")
	}
	if loc.Region != "California" {
		t.Errorf("region: got %q, want %q", loc.Region, "California")
	}
	if loc.City != "San Francisco" {
		t.Errorf("city: got %q, want %q", loc.City, "San Francisco")
	}
	if loc.IP != "203.0.113.7" {
		t.Errorf("ip: got %q, want %q", loc.IP, "203.0.113.7")
	}
}

func TestResolve_UpstreamFailureIsIdempotent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	r := newTestResolver(t, "http://127.0.0.1:1", srv.URL, nil)

	first := r.Resolve(context.Background(), "203.0.113.7")
	second := r.Resolve(context.Background(), "203.0.113.7")

	want := Location{IP: "203.0.113.7"}
	if first != want {
		t.Errorf("first call: got %+v, want %+v", first, want)
	}
	if second != first {
		t.Errorf("second call diverged: got %+v, want %+v", second, first)
	}
}

func TestResolve_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"fail","message":"private range"}`)
	}))
	defer srv.Close()

	r := newTestResolver(t, "http://127.0.0.1:1", srv.URL, nil)
	loc := r.Resolve(context.Background(), "10.0.0.1")

	if loc.Country != "" || loc.Region != "" || loc.City != "" {
		t.Errorf("expected empty geo fields, got %+v", loc)
	}
	if loc.IP != "10.0.0.1" {
		t.Errorf("ip: got %q, want %q", loc.IP, "10.0.0.1")
	}
}

func TestResolve_LoopbackUsesPublicIPDiscovery(t *testing.T) {
	public := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ip":"198.51.100.42"}`)
	}))
	defer public.Close()

	srv := geoSuccessServer(t)
	defer srv.Close()

	r := newTestResolver(t, public.URL, srv.URL, nil)
	loc := r.Resolve(context.Background(), "127.0.0.1")

	if loc.IP != "198.51.100.42" {
		t.Errorf("expected discovered public IP, got %q", loc.IP)
	}
}

func TestResolve_LoopbackDiscoveryFailureKeepsInput(t *testing.T) {
	srv := geoSuccessServer(t)
	defer srv.Close()

	// Discovery endpoint unreachable; the original loopback input is kept.
	r := newTestResolver(t, "http://127.0.0.1:1", srv.URL, nil)
	loc := r.Resolve(context.Background(), "127.0.0.1")

	if loc.IP != "127.0.0.1" {
		t.Errorf("expected original loopback IP, got %q", loc.IP)
	}
}

func TestResolve_EmptyInput(t *testing.T) {
	r := newTestResolver(t, "http://127.0.0.1:1", "http://127.0.0.1:1", nil)
	loc := r.Resolve(context.Background(), "")

	if loc != (Location{}) {
		t.Errorf("expected zero location for empty input, got %+v", loc)
	}
}

func TestResolve_CacheHitSkipsLookup(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewCache(client, time.Minute, logger.NewNop())

	var lookups int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lookups++
		fmt.Fprint(w, `{"status":"success","country":"DE","regionName":"Berlin","city":"Berlin","query":"203.0.113.9"}`)
	}))
	defer srv.Close()

	r := newTestResolver(t, "http://127.0.0.1:1", srv.URL, cache)

	first := r.Resolve(context.Background(), "203.0.113.9")
	second := r.Resolve(context.Background(), "203.0.113.9")

	if lookups != 1 {
		t.Errorf("expected exactly 1 upstream lookup, got %d", lookups)
	}
	if first != second {
		t.Errorf("cached result diverged: %+v vs %+v", first, second)
	}
	if first.Country != "DE" {
		t.Errorf("country: got %q, want %q", first.Country, "DE")
	}
}

func TestTruncate(t *testing.T) {
	long := strings.Repeat("x", maxFieldLength+10)
	if got := truncate(long); len(got) != maxFieldLength {
		t.Errorf("truncate length: got %d, want %d", len(got), maxFieldLength)
	}
	if got := truncate("short"); got != "short" {
		t.Errorf("truncate should not alter short strings, got %q", got)
	}
}

func TestTruncate_KeepsRuneBoundary(t *testing.T) {
	// 3-byte runes force the cap to land mid-rune.
	long := strings.Repeat("世", maxFieldLength)

	got := truncate(long)
	if len(got) > maxFieldLength {
		t.Errorf("truncate length: got %d, want at most %d", len(got), maxFieldLength)
	}
	if !utf8.ValidString(got) {
		t.Errorf("truncate produced invalid UTF-8: %q", got)
	}
}
