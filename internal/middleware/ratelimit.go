package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

type ipEntry struct {
	count     int
	expiresAt time.Time
}

// RateLimiter limits requests per IP address within a fixed time window.
// onLimit is invoked (and the chain aborted) when the limit is exceeded;
// when nil, a 429 JSON response is sent. The tracking route passes its own
// onLimit so over-limit beacons still receive the pixel image.
func RateLimiter(maxRequests int, window time.Duration, onLimit gin.HandlerFunc) gin.HandlerFunc {
	var mu sync.Mutex
	entries := make(map[string]*ipEntry)

	if onLimit == nil {
		onLimit = func(c *gin.Context) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
		}
	}

	// Background cleanup every window duration
	go func() {
		ticker := time.NewTicker(window)
		defer ticker.Stop()
		for range ticker.C {
			mu.Lock()
			now := time.Now()
			for ip, entry := range entries {
				if now.After(entry.expiresAt) {
					delete(entries, ip)
				}
			}
			mu.Unlock()
		}
	}()

	return func(c *gin.Context) {
		ip, _, _ := net.SplitHostPort(c.Request.RemoteAddr)
		if ip == "" {
			ip = c.Request.RemoteAddr
		}

		mu.Lock()
		entry, exists := entries[ip]
		now := time.Now()

		if !exists || now.After(entry.expiresAt) {
			entries[ip] = &ipEntry{count: 1, expiresAt: now.Add(window)}
			mu.Unlock()
			c.Next()
			return
		}

		entry.count++
		if entry.count > maxRequests {
			mu.Unlock()
			c.Abort()
			onLimit(c)
			return
		}
		mu.Unlock()
		c.Next()
	}
}
