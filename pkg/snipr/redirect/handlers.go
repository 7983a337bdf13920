package redirect

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mpalmer/snipr/pkg/snipr/links"
	"github.com/mpalmer/snipr/pkg/snipr/logger"
	"github.com/mpalmer/snipr/pkg/snipr/middleware"
	"github.com/mpalmer/snipr/pkg/snipr/models"
	"gorm.io/gorm"
)

const maxReferrerLength = 1024

// countryHeaders are checked in order for a best-effort geo signal:
// a structured hint first, then the common proxy headers.
var countryHeaders = []string{"X-Geo-Country", "X-Vercel-IP-Country", "CF-IPCountry"}

// Handler handles redirect requests
type Handler struct {
	db *gorm.DB
}

// NewHandler creates a new redirect handler
func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

// Redirect resolves a slug and issues a 307 to the stored destination.
// The click record is written in a detached goroutine so a slow or failing
// analytics insert never delays the visitor.
func (h *Handler) Redirect(c *gin.Context) {
	slug := c.Param("slug")

	var link models.Link
	if err := h.db.Where("slug = ?", slug).First(&link).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Link not found"})
			return
		}
		// A storage failure is not the same condition as slug absence
		logger.Get().Error("redirect lookup failed", "slug", slug, "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Temporarily unavailable"})
		return
	}

	now := time.Now()
	if !link.IsActive || link.IsExpired(now) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Link not found"})
		return
	}

	// Re-validate the stored destination in case a row was inserted through
	// a path that bypassed input validation
	if err := links.ValidateURL(link.URL); err != nil {
		logger.Get().Warn("stored destination failed re-validation", "slug", slug, "error", err)
		c.JSON(http.StatusNotFound, gin.H{"error": "Link not found"})
		return
	}

	country := countryFromRequest(c)
	referrer := normalizeReferrer(c.GetHeader("Referer"))

	go h.recordClick(link.ID, country, referrer, now.UTC())
	middleware.RecordRedirect()

	c.Redirect(http.StatusTemporaryRedirect, link.URL)
}

// recordClick appends one analytics event. Failures are logged and
// swallowed: analytics are best-effort, never part of the redirect.
func (h *Handler) recordClick(linkID string, country, referrer *string, clickedAt time.Time) {
	click := models.Click{
		LinkID:    linkID,
		Country:   country,
		Referrer:  referrer,
		ClickedAt: clickedAt,
	}
	if err := h.db.Create(&click).Error; err != nil {
		logger.Get().Error("click insert failed", "link_id", linkID, "error", err)
	}
}

// countryFromRequest extracts a two-letter country code from the geo hint
// or proxy headers, or nil when no usable signal exists.
func countryFromRequest(c *gin.Context) *string {
	for _, header := range countryHeaders {
		value := strings.ToUpper(strings.TrimSpace(c.GetHeader(header)))
		if len(value) == 2 {
			return &value
		}
	}
	return nil
}

// normalizeReferrer reduces the inbound Referer to origin+path, dropping
// query and fragment. Unparseable or oversized values are discarded.
func normalizeReferrer(raw string) *string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}

	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil
	}

	normalized := parsed.Scheme + "://" + parsed.Host + parsed.Path
	if len(normalized) > maxReferrerLength {
		return nil
	}
	return &normalized
}

// RegisterRoutes registers redirect routes on the root router
// This should be called AFTER all other routes to avoid conflicts
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/:slug", h.Redirect)
}
