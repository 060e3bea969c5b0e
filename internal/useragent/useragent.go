// Package useragent classifies raw User-Agent strings into device type,
// operating system, and browser family using token matching.
package useragent

import "strings"

// Unknown is the default for every field when classification fails.
const Unknown = "Unknown"

// Classification holds the parsed device attributes of a User-Agent string.
type Classification struct {
	DeviceType string
	OS         string
	Browser    string
}

// Classify parses a raw User-Agent header. An empty header yields Unknown
// for every field; otherwise device type defaults to "desktop" when no
// mobile or tablet token is present.
func Classify(userAgent string) Classification {
	if userAgent == "" {
		return Classification{
			DeviceType: Unknown,
			OS:         Unknown,
			Browser:    Unknown,
		}
	}

	ua := strings.ToLower(userAgent)

	return Classification{
		DeviceType: deviceType(ua),
		OS:         operatingSystem(ua),
		Browser:    browser(ua),
	}
}

func deviceType(ua string) string {
	switch {
	case strings.Contains(ua, "tablet") || strings.Contains(ua, "ipad"):
		return "tablet"
	case strings.Contains(ua, "mobile"):
		return "mobile"
	default:
		return "desktop"
	}
}

func operatingSystem(ua string) string {
	switch {
	case strings.Contains(ua, "windows"):
		return "Windows"
	case strings.Contains(ua, "android"):
		return "Android"
	case strings.Contains(ua, "iphone") || strings.Contains(ua, "ipad"):
		return "iOS"
	case strings.Contains(ua, "mac os"):
		return "macOS"
	case strings.Contains(ua, "linux"):
		return "Linux"
	default:
		return Unknown
	}
}

func browser(ua string) string {
	switch {
	case strings.Contains(ua, "edg"):
		return "Edge"
	case strings.Contains(ua, "opr") || strings.Contains(ua, "opera"):
		return "Opera"
	case strings.Contains(ua, "chrome"):
		return "Chrome"
	case strings.Contains(ua, "firefox"):
		return "Firefox"
	case strings.Contains(ua, "safari"):
		return "Safari"
	default:
		return Unknown
	}
}
