// Package acceptlang extracts the primary language tag from an
// Accept-Language header.
package acceptlang

import "strings"

// Primary returns the first language tag before any comma or quality-value
// separator, trimmed. Returns "" when the header is absent.
func Primary(header string) string {
	if header == "" {
		return ""
	}

	if idx := strings.Index(header, ","); idx >= 0 {
		header = header[:idx]
	}
	if idx := strings.Index(header, ";"); idx >= 0 {
		header = header[:idx]
	}

	return strings.TrimSpace(header)
}
