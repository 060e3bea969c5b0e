package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cardlink/pixel-tracker/internal/acceptlang"
	"github.com/cardlink/pixel-tracker/internal/clientip"
	"github.com/cardlink/pixel-tracker/internal/conversion"
	"github.com/cardlink/pixel-tracker/internal/domain"
	"github.com/cardlink/pixel-tracker/internal/geo"
	"github.com/cardlink/pixel-tracker/internal/logger"
	"github.com/cardlink/pixel-tracker/internal/metrics"
	"github.com/cardlink/pixel-tracker/internal/middleware"
	"github.com/cardlink/pixel-tracker/internal/secrets"
	"github.com/cardlink/pixel-tracker/internal/storage"
	"github.com/cardlink/pixel-tracker/internal/useragent"
)

// PixelStore is the storage surface the tracking handler needs.
type PixelStore interface {
	GetPixel(ctx context.Context, id string) (*domain.TrackingPixel, error)
	InsertEvent(ctx context.Context, event *domain.TrackingEvent) (int64, error)
}

// GeoResolver resolves a normalized IP to a location, never failing.
type GeoResolver interface {
	Resolve(ctx context.Context, ip string) geo.Location
}

// ConversionQueue accepts forward requests without blocking.
type ConversionQueue interface {
	Enqueue(req conversion.Request) bool
}

// TrackHandler serves the tracking endpoint. Its contract is absolute:
// every request receives HTTP 200 with the pixel image, no matter what
// fails while recording the event.
type TrackHandler struct {
	store             PixelStore
	geo               GeoResolver
	forwarder         ConversionQueue
	box               *secrets.Box
	conversionEnabled bool
	log               logger.Logger
}

// NewTrackHandler creates a TrackHandler. forwarder may be nil when
// conversion forwarding is disabled.
func NewTrackHandler(
	store PixelStore,
	resolver GeoResolver,
	forwarder ConversionQueue,
	box *secrets.Box,
	conversionEnabled bool,
	log logger.Logger,
) *TrackHandler {
	return &TrackHandler{
		store:             store,
		geo:               resolver,
		forwarder:         forwarder,
		box:               box,
		conversionEnabled: conversionEnabled,
		log:               log,
	}
}

// Handle records the tracking event and serves the pixel.
func (h *TrackHandler) Handle(c *gin.Context) {
	h.recordEvent(c)
	WritePixel(c)
}

// recordEvent runs the tracking pipeline. It never writes to the response
// and never lets a failure escape; the caller serves the pixel afterwards
// unconditionally.
func (h *TrackHandler) recordEvent(c *gin.Context) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("Panic while recording tracking event",
				logger.String("panic", fmt.Sprint(r)),
			)
		}
	}()

	pixelID := c.Param("pixelID")
	if pixelID == "" {
		return
	}

	if c.GetBool(middleware.IsBotKey) {
		metrics.BotRequestsTotal.Inc()
		h.log.Debug("Skipping bot request", logger.String("pixel_id", pixelID))
		return
	}

	// An accepted tracking request is always completed: beacons fire as
	// the page navigates away, so the client context is usually canceled
	// mid-pipeline and must not abort the lookup or the insert.
	ctx := context.WithoutCancel(c.Request.Context())

	pixel, err := h.store.GetPixel(ctx, pixelID)
	if err != nil {
		if errors.Is(err, storage.ErrPixelNotFound) {
			h.log.Debug("Unknown pixel", logger.String("pixel_id", pixelID))
		} else {
			h.log.Warn("Pixel lookup failed",
				logger.String("pixel_id", pixelID),
				logger.Error(err),
			)
		}
		return
	}
	if !pixel.Active {
		h.log.Debug("Inactive pixel", logger.String("pixel_id", pixelID))
		return
	}

	params := parseTrackRequest(c)

	ip := clientip.FromRequest(c.Request)
	location := h.geo.Resolve(ctx, ip)
	ua := c.Request.UserAgent()
	device := useragent.Classify(ua)
	language := acceptlang.Primary(c.GetHeader("Accept-Language"))

	meta, err := domain.ParseMetadata(params.metadata)
	if err != nil {
		h.log.Warn("Invalid event metadata, recording empty object",
			logger.String("pixel_id", pixelID),
			logger.Error(err),
		)
	}
	if params.duration != 0 {
		meta["duration"] = params.duration
	}

	event := &domain.TrackingEvent{
		PixelID:    pixel.ID,
		EventType:  params.eventType,
		BlockID:    params.blockID,
		Country:    location.Country,
		Region:     location.Region,
		City:       location.City,
		DeviceType: device.DeviceType,
		OS:         device.OS,
		Browser:    device.Browser,
		IP:         location.IP,
		UserAgent:  ua,
		Language:   language,
		Metadata:   meta,
		Value:      params.value,
		Currency:   params.currency,
		Source:     domain.SourceTag,
	}

	eventID, err := h.store.InsertEvent(ctx, event)
	if err != nil {
		metrics.EventRecordFailuresTotal.Inc()
		h.log.Error("Failed to record tracking event",
			logger.String("pixel_id", pixelID),
			logger.String("event_type", event.EventType),
			logger.Error(err),
		)
		return
	}

	metrics.EventsRecordedTotal.WithLabelValues(event.EventType).Inc()
	h.log.Info("Tracking event recorded",
		logger.Int64("event_id", eventID),
		logger.String("pixel_id", pixelID),
		logger.String("event_type", event.EventType),
		logger.String("country", event.Country),
	)

	h.forward(pixel, event, eventID)
}

// forward hands the recorded event to the conversion queue when the pixel
// is bound to an ad account. Failures are logged and dropped.
func (h *TrackHandler) forward(pixel *domain.TrackingPixel, event *domain.TrackingEvent, eventID int64) {
	if !h.conversionEnabled || h.forwarder == nil || !pixel.HasConversionAccount() {
		return
	}

	token, err := h.box.Decrypt(pixel.ConversionTokenEnc)
	if err != nil {
		h.log.Error("Failed to decrypt conversion credential",
			logger.String("pixel_id", pixel.ID),
			logger.Error(err),
		)
		return
	}

	ok := h.forwarder.Enqueue(conversion.Request{
		AccountID:   pixel.ConversionAccountID,
		AccessToken: token,
		EventType:   event.EventType,
		EventID:     eventID,
		VCardID:     pixel.VCardID,
		IP:          event.IP,
		UserAgent:   event.UserAgent,
		Metadata:    event.Metadata,
		Value:       event.Value,
		Currency:    event.Currency,
		EventTime:   time.Now().Unix(),
	})
	if !ok {
		metrics.ConversionDroppedTotal.Inc()
		h.log.Warn("Conversion queue full, dropping forward",
			logger.Int64("event_id", eventID),
			logger.String("pixel_id", pixel.ID),
		)
	}
}

// trackParams are the client-supplied event fields, from the query string
// or a JSON body.
type trackParams struct {
	eventType string
	blockID   string
	duration  float64
	metadata  string
	value     float64
	currency  string
}

// trackBody is the JSON body shape for POST beacons. Metadata may be a JSON
// object or a string containing JSON.
type trackBody struct {
	EventType string          `json:"eventType"`
	BlockID   string          `json:"blockId"`
	Duration  float64         `json:"duration"`
	Metadata  json.RawMessage `json:"metadata"`
	Value     float64         `json:"value"`
	Currency  string          `json:"currency"`
}

// parseTrackRequest merges query-string fields with an optional JSON body.
// Body fields win over query fields; anything malformed is simply ignored.
func parseTrackRequest(c *gin.Context) trackParams {
	params := trackParams{
		eventType: c.Query("eventType"),
		blockID:   c.Query("blockId"),
		metadata:  c.Query("metadata"),
		currency:  c.Query("currency"),
	}
	if v, err := parseFloat(c.Query("value")); err == nil {
		params.value = v
	}
	if d, err := parseFloat(c.Query("duration")); err == nil {
		params.duration = d
	}

	if c.Request.Method == http.MethodPost && strings.Contains(c.ContentType(), "json") {
		var body trackBody
		if err := c.ShouldBindJSON(&body); err == nil {
			if body.EventType != "" {
				params.eventType = body.EventType
			}
			if body.BlockID != "" {
				params.blockID = body.BlockID
			}
			if body.Duration != 0 {
				params.duration = body.Duration
			}
			if body.Value != 0 {
				params.value = body.Value
			}
			if body.Currency != "" {
				params.currency = body.Currency
			}
			if raw := rawMetadataString(body.Metadata); raw != "" {
				params.metadata = raw
			}
		}
	}

	if params.eventType == "" {
		params.eventType = domain.DefaultEventType
	}
	return params
}

// rawMetadataString normalizes a JSON metadata field to the string form
// domain.ParseMetadata expects: an object passes through as its JSON text,
// a JSON string is unquoted first.
func rawMetadataString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return string(raw)
		}
		return s
	}
	return string(raw)
}

func parseFloat(s string) (float64, error) {
	if s == "" {
		return 0, errors.New("empty")
	}
	return strconv.ParseFloat(s, 64)
}
