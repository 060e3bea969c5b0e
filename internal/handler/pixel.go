// Package handler implements the HTTP handlers for pixel tracking and
// pixel management.
package handler

import (
	"encoding/base64"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cardlink/pixel-tracker/internal/metrics"
)

// pixelGIFBase64 is a 1x1 transparent GIF, served on every tracking request.
const pixelGIFBase64 = "R0lGODlhAQABAIAAAAAAAP///yH5BAEAAAAALAAAAAABAAEAAAIBRAA7"

var pixelGIF = mustDecodePixel()

func mustDecodePixel() []byte {
	gif, err := base64.StdEncoding.DecodeString(pixelGIFBase64)
	if err != nil {
		panic("handler: invalid pixel image constant: " + err.Error())
	}
	return gif
}

// WritePixel emits the transparent GIF with cache-defeating and CORS headers.
// Every tracking code path ends here, whatever happened upstream.
func WritePixel(c *gin.Context) {
	c.Header("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	c.Header("Pragma", "no-cache")
	c.Header("Expires", "0")
	c.Header("Access-Control-Allow-Origin", "*")

	metrics.PixelsServedTotal.Inc()
	c.Data(http.StatusOK, "image/gif", pixelGIF)
}
