package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// SourceTag marks every event recorded by this service.
const SourceTag = "pixel"

// DefaultEventType is used when a tracking request carries no event type.
const DefaultEventType = "view"

// TrackingEvent is an immutable record of one observed interaction against
// a pixel. Events are append-only: created once per tracking request, never
// updated or deleted by this service.
type TrackingEvent struct {
	ID         int64          `json:"id"`
	PixelID    string         `json:"pixel_id"`
	EventType  string         `json:"event_type"`
	BlockID    string         `json:"block_id,omitempty"`
	Country    string         `json:"country,omitempty"`
	Region     string         `json:"region,omitempty"`
	City       string         `json:"city,omitempty"`
	DeviceType string         `json:"device_type"`
	OS         string         `json:"os"`
	Browser    string         `json:"browser"`
	IP         string         `json:"ip,omitempty"`
	UserAgent  string         `json:"user_agent"`
	Language   string         `json:"language,omitempty"`
	Metadata   map[string]any `json:"metadata"`
	Value      float64        `json:"value,omitempty"`
	Currency   string         `json:"currency,omitempty"`
	Source     string         `json:"source"`
	CreatedAt  time.Time      `json:"created_at"`
}

// ParseMetadata decodes a raw metadata string into a JSON object.
// An empty string yields an empty object. Invalid JSON also yields an empty
// object, together with an error the caller can log; it is never fatal to
// event recording.
func ParseMetadata(raw string) (map[string]any, error) {
	if raw == "" {
		return map[string]any{}, nil
	}

	var meta map[string]any
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return map[string]any{}, fmt.Errorf("parse metadata: %w", err)
	}
	if meta == nil {
		return map[string]any{}, nil
	}
	return meta, nil
}
