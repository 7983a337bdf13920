package qr

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mpalmer/snipr/pkg/snipr/cache"
	"github.com/mpalmer/snipr/pkg/snipr/logger"
	"github.com/mpalmer/snipr/pkg/snipr/models"
	"github.com/skip2/go-qrcode"
	"gorm.io/gorm"
)

const imageSize = 400

type Handler struct {
	db      *gorm.DB
	cache   cache.Cache
	baseURL string
	ttl     time.Duration
}

func NewHandler(db *gorm.DB, c cache.Cache, baseURL string, ttl time.Duration) *Handler {
	return &Handler{db: db, cache: c, baseURL: baseURL, ttl: ttl}
}

// Response carries the rendered QR image as an inline data URL
type Response struct {
	DataURL  string `json:"data_url"`
	ShortURL string `json:"short_url"`
}

// Generate renders a QR code for a short link as a base64 PNG data URL
// @Summary QR code for a short link
// @Description Returns a PNG QR code, base64-encoded, for the given slug
// @Tags qr
// @Produce json
// @Param slug path string true "Link slug"
// @Success 200 {object} Response
// @Failure 404 {object} map[string]string
// @Router /api/qr/{slug} [get]
func (h *Handler) Generate(c *gin.Context) {
	slug := c.Param("slug")

	if cached, ok := h.cache.Get(cache.QRKey(slug)); ok {
		if resp, ok := cached.(Response); ok {
			c.JSON(http.StatusOK, resp)
			return
		}
	}

	var link models.Link
	err := h.db.Where("slug = ?", slug).First(&link).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Link not found"})
		return
	}
	if err != nil {
		logger.Get().Error("qr link lookup failed", "slug", slug, "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service unavailable"})
		return
	}
	if !link.IsActive || link.IsExpired(time.Now()) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Link not found"})
		return
	}

	shortURL := h.shortURL(slug)
	png, err := qrcode.Encode(shortURL, qrcode.Medium, imageSize)
	if err != nil {
		logger.Get().Error("qr encoding failed", "slug", slug, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate QR code"})
		return
	}

	resp := Response{
		DataURL:  "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
		ShortURL: shortURL,
	}
	h.cache.Set(cache.QRKey(slug), resp, h.ttl)

	c.JSON(http.StatusOK, resp)
}

func (h *Handler) shortURL(slug string) string {
	base := strings.TrimRight(h.baseURL, "/")
	if base == "" {
		return "/" + slug
	}
	return base + "/" + slug
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/qr/:slug", h.Generate)
}
