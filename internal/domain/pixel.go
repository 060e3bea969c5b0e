// Package domain defines the core tracking types shared across the service.
package domain

import "time"

// TrackingPixel identifies a tracking endpoint bound to one vCard profile.
// Pixels are created once by the profile owner and referenced read-only by
// every tracking request.
type TrackingPixel struct {
	ID                  string    `json:"id"`
	VCardID             string    `json:"vcard_id"`
	Active              bool      `json:"active"`
	ConversionAccountID string    `json:"conversion_account_id,omitempty"`
	ConversionTokenEnc  string    `json:"-"`
	CreatedAt           time.Time `json:"created_at"`
}

// HasConversionAccount reports whether the pixel is bound to an external
// ad-conversion account with a stored credential.
func (p *TrackingPixel) HasConversionAccount() bool {
	return p.ConversionAccountID != "" && p.ConversionTokenEnc != ""
}
