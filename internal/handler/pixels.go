package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cardlink/pixel-tracker/internal/domain"
	"github.com/cardlink/pixel-tracker/internal/logger"
	"github.com/cardlink/pixel-tracker/internal/secrets"
	"github.com/cardlink/pixel-tracker/internal/storage"
)

// PixelAdminStore is the storage surface the management API needs.
type PixelAdminStore interface {
	CreatePixel(ctx context.Context, pixel *domain.TrackingPixel) error
	SetPixelActive(ctx context.Context, id string, active bool) error
	GetPixelStats(ctx context.Context, pixelID string) (*storage.PixelStats, error)
}

// PixelAdminHandler serves the pixel management API.
type PixelAdminHandler struct {
	store PixelAdminStore
	box   *secrets.Box
	log   logger.Logger
}

// NewPixelAdminHandler creates a PixelAdminHandler.
func NewPixelAdminHandler(store PixelAdminStore, box *secrets.Box, log logger.Logger) *PixelAdminHandler {
	return &PixelAdminHandler{store: store, box: box, log: log}
}

type createPixelRequest struct {
	VCardID             string `binding:"required" json:"vcard_id"`
	ConversionAccountID string `json:"conversion_account_id"`
	ConversionToken     string `json:"conversion_token"`
}

// Create registers a new tracking pixel. A conversion credential, when
// supplied, is encrypted before it is stored.
func (h *PixelAdminHandler) Create(c *gin.Context) {
	var req createPixelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if (req.ConversionAccountID == "") != (req.ConversionToken == "") {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "conversion_account_id and conversion_token must be set together",
		})
		return
	}

	pixel := &domain.TrackingPixel{
		ID:                  uuid.NewString(),
		VCardID:             req.VCardID,
		Active:              true,
		ConversionAccountID: req.ConversionAccountID,
	}

	if req.ConversionToken != "" {
		enc, err := h.box.Encrypt(req.ConversionToken)
		if err != nil {
			h.log.Error("Failed to encrypt conversion credential", logger.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store credential"})
			return
		}
		pixel.ConversionTokenEnc = enc
	}

	if err := h.store.CreatePixel(c.Request.Context(), pixel); err != nil {
		h.log.Error("Failed to create pixel",
			logger.String("vcard_id", req.VCardID),
			logger.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create pixel"})
		return
	}

	h.log.Info("Pixel created",
		logger.String("pixel_id", pixel.ID),
		logger.String("vcard_id", pixel.VCardID),
	)
	c.JSON(http.StatusCreated, pixel)
}

type setActiveRequest struct {
	Active *bool `binding:"required" json:"active"`
}

// SetActive toggles a pixel's active flag.
func (h *PixelAdminHandler) SetActive(c *gin.Context) {
	var req setActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id := c.Param("pixelID")
	err := h.store.SetPixelActive(c.Request.Context(), id, *req.Active)
	if errors.Is(err, storage.ErrPixelNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "pixel not found"})
		return
	}
	if err != nil {
		h.log.Error("Failed to update pixel",
			logger.String("pixel_id", id),
			logger.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update pixel"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": id, "active": *req.Active})
}

// Stats returns aggregated event counts for a pixel.
func (h *PixelAdminHandler) Stats(c *gin.Context) {
	id := c.Param("pixelID")

	stats, err := h.store.GetPixelStats(c.Request.Context(), id)
	if err != nil {
		h.log.Error("Failed to load pixel stats",
			logger.String("pixel_id", id),
			logger.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load stats"})
		return
	}

	c.JSON(http.StatusOK, stats)
}
