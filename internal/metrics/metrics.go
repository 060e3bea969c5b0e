// Package metrics exposes Prometheus counters for the tracking pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PixelsServedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pixeltracker_pixels_served_total",
		Help: "Total number of pixel responses emitted",
	})
	EventsRecordedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pixeltracker_events_recorded_total",
		Help: "Total tracking events persisted, by event type",
	}, []string{"event_type"})
	EventRecordFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pixeltracker_event_record_failures_total",
		Help: "Total tracking events lost to persistence failures",
	})
	BotRequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pixeltracker_bot_requests_total",
		Help: "Total tracking requests skipped as bot traffic",
	})
	GeoLookupFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pixeltracker_geo_lookup_failures_total",
		Help: "Total geolocation lookups that degraded to defaults",
	})
	GeoCacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pixeltracker_geo_cache_hits_total",
		Help: "Total geolocation cache hits",
	})
	GeoCacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pixeltracker_geo_cache_misses_total",
		Help: "Total geolocation cache misses",
	})
	ConversionForwardedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pixeltracker_conversion_forwarded_total",
		Help: "Total events forwarded to the conversion API",
	})
	ConversionFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pixeltracker_conversion_failures_total",
		Help: "Total conversion forwards that failed and were discarded",
	})
	ConversionDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pixeltracker_conversion_dropped_total",
		Help: "Total conversion forwards dropped due to a full queue",
	})
)

func init() {
	prometheus.MustRegister(PixelsServedTotal)
	prometheus.MustRegister(EventsRecordedTotal)
	prometheus.MustRegister(EventRecordFailuresTotal)
	prometheus.MustRegister(BotRequestsTotal)
	prometheus.MustRegister(GeoLookupFailuresTotal)
	prometheus.MustRegister(GeoCacheHitsTotal)
	prometheus.MustRegister(GeoCacheMissesTotal)
	prometheus.MustRegister(ConversionForwardedTotal)
	prometheus.MustRegister(ConversionFailuresTotal)
	prometheus.MustRegister(ConversionDroppedTotal)
}

// Handler returns the Prometheus scrape handler for mounting at /metrics.
func Handler() http.Handler { return promhttp.Handler() }
