// Package storage persists tracking pixels and their append-only events
// in PostgreSQL.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cardlink/pixel-tracker/internal/domain"
	"github.com/cardlink/pixel-tracker/internal/logger"
)

// ErrPixelNotFound is returned when a pixel identifier does not resolve.
var ErrPixelNotFound = errors.New("pixel not found")

// Store manages pixel lookups and event inserts.
type Store struct {
	db  *sql.DB
	log logger.Logger
}

// NewStore creates a Store backed by the given database handle.
func NewStore(db *sql.DB, log logger.Logger) *Store {
	return &Store{db: db, log: log}
}

const getPixelQuery = `
	SELECT id, vcard_id, active, conversion_account_id, conversion_token_enc, created_at
	FROM tracking_pixels
	WHERE id = $1`

// GetPixel loads a pixel by its identifier.
func (s *Store) GetPixel(ctx context.Context, id string) (*domain.TrackingPixel, error) {
	var (
		pixel     domain.TrackingPixel
		accountID sql.NullString
		tokenEnc  sql.NullString
	)

	err := s.db.QueryRowContext(ctx, getPixelQuery, id).Scan(
		&pixel.ID, &pixel.VCardID, &pixel.Active,
		&accountID, &tokenEnc, &pixel.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPixelNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get pixel: %w", err)
	}

	pixel.ConversionAccountID = accountID.String
	pixel.ConversionTokenEnc = tokenEnc.String
	return &pixel, nil
}

const insertEventQuery = `
	INSERT INTO tracking_events (
		pixel_id, event_type, block_id, country, region, city,
		device_type, os, browser, ip, user_agent, language,
		metadata, value, currency, source
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	RETURNING id`

// InsertEvent appends one tracking event and returns its identifier,
// which downstream forwarding uses as the correlation key.
func (s *Store) InsertEvent(ctx context.Context, event *domain.TrackingEvent) (int64, error) {
	metadata, err := json.Marshal(event.Metadata)
	if err != nil {
		// Metadata is always a plain map by this point; treat a marshal
		// failure like any other lost attribute rather than losing the event.
		s.log.Warn("Failed to marshal event metadata", logger.Error(err))
		metadata = []byte("{}")
	}

	var id int64
	err = s.db.QueryRowContext(ctx, insertEventQuery,
		event.PixelID, event.EventType, nullString(event.BlockID),
		nullString(event.Country), nullString(event.Region), nullString(event.City),
		event.DeviceType, event.OS, event.Browser,
		nullString(event.IP), event.UserAgent, nullString(event.Language),
		metadata, nullFloat(event.Value), nullString(event.Currency),
		event.Source,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert event: %w", err)
	}

	return id, nil
}

const createPixelQuery = `
	INSERT INTO tracking_pixels (id, vcard_id, active, conversion_account_id, conversion_token_enc)
	VALUES ($1, $2, $3, $4, $5)`

// CreatePixel stores a new tracking pixel.
func (s *Store) CreatePixel(ctx context.Context, pixel *domain.TrackingPixel) error {
	_, err := s.db.ExecContext(ctx, createPixelQuery,
		pixel.ID, pixel.VCardID, pixel.Active,
		nullString(pixel.ConversionAccountID), nullString(pixel.ConversionTokenEnc),
	)
	if err != nil {
		return fmt.Errorf("create pixel: %w", err)
	}
	return nil
}

const setPixelActiveQuery = `UPDATE tracking_pixels SET active = $2 WHERE id = $1`

// SetPixelActive toggles a pixel's active flag.
// Returns ErrPixelNotFound when no row matches.
func (s *Store) SetPixelActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx, setPixelActiveQuery, id, active)
	if err != nil {
		return fmt.Errorf("set pixel active: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set pixel active: %w", err)
	}
	if rows == 0 {
		return ErrPixelNotFound
	}
	return nil
}

// PixelStats summarizes recorded events for one pixel.
type PixelStats struct {
	Total     int64            `json:"total"`
	ByType    map[string]int64 `json:"by_type"`
	ByCountry map[string]int64 `json:"by_country"`
	ByDevice  map[string]int64 `json:"by_device"`
}

const statsByTypeQuery = `
	SELECT event_type, COUNT(*)
	FROM tracking_events
	WHERE pixel_id = $1
	GROUP BY event_type`

const statsByCountryQuery = `
	SELECT COALESCE(country, ''), COUNT(*)
	FROM tracking_events
	WHERE pixel_id = $1
	GROUP BY country`

const statsByDeviceQuery = `
	SELECT device_type, COUNT(*)
	FROM tracking_events
	WHERE pixel_id = $1
	GROUP BY device_type`

// GetPixelStats aggregates event counts for a pixel by type, country, and
// device.
func (s *Store) GetPixelStats(ctx context.Context, pixelID string) (*PixelStats, error) {
	stats := &PixelStats{
		ByType:    make(map[string]int64),
		ByCountry: make(map[string]int64),
		ByDevice:  make(map[string]int64),
	}

	byType, err := s.countGroup(ctx, statsByTypeQuery, pixelID)
	if err != nil {
		return nil, fmt.Errorf("stats by type: %w", err)
	}
	stats.ByType = byType
	for _, n := range byType {
		stats.Total += n
	}

	byCountry, err := s.countGroup(ctx, statsByCountryQuery, pixelID)
	if err != nil {
		return nil, fmt.Errorf("stats by country: %w", err)
	}
	stats.ByCountry = byCountry

	byDevice, err := s.countGroup(ctx, statsByDeviceQuery, pixelID)
	if err != nil {
		return nil, fmt.Errorf("stats by device: %w", err)
	}
	stats.ByDevice = byDevice

	return stats, nil
}

// countGroup runs a two-column (key, count) aggregation query.
func (s *Store) countGroup(ctx context.Context, query, pixelID string) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, query, pixelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var (
			key   string
			count int64
		)
		if err := rows.Scan(&key, &count); err != nil {
			return nil, err
		}
		counts[key] = count
	}

	return counts, rows.Err()
}

// nullString converts "" to SQL NULL.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// nullFloat converts 0 to SQL NULL.
func nullFloat(f float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: f, Valid: f != 0}
}
