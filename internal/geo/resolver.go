// Package geo resolves client IP addresses to coarse geolocation using an
// external lookup service, with a public-IP discovery fallback for loopback
// callers (local development behind NAT).
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/cardlink/pixel-tracker/internal/config"
	"github.com/cardlink/pixel-tracker/internal/logger"
	"github.com/cardlink/pixel-tracker/internal/metrics"
)

// loopbackIP is the canonical loopback literal after IP normalization.
const loopbackIP = "127.0.0.1"

// maxFieldLength caps country/region/city strings from the upstream service.
const maxFieldLength = 64

// Location holds resolved geolocation attributes.
// Empty fields mean the attribute could not be determined.
type Location struct {
	Country string `json:"country,omitempty"`
	Region  string `json:"region,omitempty"`
	City    string `json:"city,omitempty"`
	IP      string `json:"ip,omitempty"`
}

// Resolver maps normalized IPs to locations. It never returns an error:
// any upstream failure yields a Location with empty geo fields and the
// best-known IP, so callers can embed the result unconditionally.
type Resolver struct {
	client          *http.Client
	publicIPURL     string
	lookupURL       string
	publicIPTimeout time.Duration
	lookupTimeout   time.Duration
	cache           *Cache
	log             logger.Logger
}

// NewResolver creates a Resolver. cache may be nil to disable caching.
func NewResolver(cfg config.GeoConfig, cache *Cache, log logger.Logger) *Resolver {
	return &Resolver{
		client:          &http.Client{},
		publicIPURL:     cfg.PublicIPURL,
		lookupURL:       cfg.LookupURL,
		publicIPTimeout: cfg.PublicIPTimeout,
		lookupTimeout:   cfg.LookupTimeout,
		cache:           cache,
		log:             log,
	}
}

// Resolve looks up the location for a normalized IP.
// A loopback input is first replaced by the caller's public IP when the
// discovery service answers in time; otherwise the original input is kept.
func (r *Resolver) Resolve(ctx context.Context, ip string) Location {
	if ip == loopbackIP {
		if public := r.discoverPublicIP(ctx); public != "" {
			ip = public
		}
	}

	if ip == "" {
		return Location{}
	}

	if r.cache != nil {
		if loc, ok := r.cache.Get(ctx, ip); ok {
			return loc
		}
	}

	loc, err := r.lookup(ctx, ip)
	if err != nil {
		metrics.GeoLookupFailuresTotal.Inc()
		r.log.Warn("Geolocation lookup failed",
			logger.String("ip", ip),
			logger.Error(err),
		)
		return Location{IP: ip}
	}

	if r.cache != nil {
		r.cache.Set(ctx, ip, loc)
	}
	return loc
}

// discoverPublicIP asks the configured "what is my IP" service for the
// caller's public address. Returns "" on any failure.
func (r *Resolver) discoverPublicIP(ctx context.Context) string {
	ctx, cancel := context.WithTimeout(ctx, r.publicIPTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.publicIPURL, http.NoBody)
	if err != nil {
		return ""
	}

	resp, err := r.client.Do(req)
	if err != nil {
		r.log.Debug("Public IP discovery failed", logger.Error(err))
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ""
	}

	var body struct {
		IP string `json:"ip"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		r.log.Debug("Public IP response malformed", logger.Error(err))
		return ""
	}
	return body.IP
}

// lookup queries the geolocation service for an IP.
func (r *Resolver) lookup(ctx context.Context, ip string) (Location, error) {
	ctx, cancel := context.WithTimeout(ctx, r.lookupTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/%s", r.lookupURL, ip)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return Location{}, fmt.Errorf("build lookup request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return Location{}, fmt.Errorf("geolocation request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Location{}, fmt.Errorf("read geolocation response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return Location{}, fmt.Errorf("geolocation status %d", resp.StatusCode)
	}

	var body struct {
		Status  string `json:"status"`
		Country string `json:"country"`
		Region  string `json:"regionName"`
		City    string `json:"city"`
		Query   string `json:"query"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return Location{}, fmt.Errorf("parse geolocation response: %w", err)
	}

	if body.Status != "success" {
		return Location{}, fmt.Errorf("geolocation non-success status %q", body.Status)
	}

	// The service reports the IP it actually resolved, which can differ
	// from the input on shared or proxied networks.
	resolvedIP := body.Query
	if resolvedIP == "" {
		resolvedIP = ip
	}

	return Location{
		Country: truncate(body.Country),
		Region:  truncate(body.Region),
		City:    truncate(body.City),
		IP:      resolvedIP,
	}, nil
}

// truncate caps upstream strings to a defensive length, cutting on a rune
// boundary so the result stays valid UTF-8.
func truncate(s string) string {
	if len(s) <= maxFieldLength {
		return s
	}

	cut := maxFieldLength
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
