package analytics

import (
	"errors"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mpalmer/snipr/pkg/snipr/cache"
	"github.com/mpalmer/snipr/pkg/snipr/logger"
	"github.com/mpalmer/snipr/pkg/snipr/models"
	"gorm.io/gorm"
)

const topBuckets = 10

// Handler handles analytics requests
type Handler struct {
	db       *gorm.DB
	cache    cache.Cache
	statsTTL time.Duration
}

// NewHandler creates a new analytics handler
func NewHandler(db *gorm.DB, c cache.Cache, statsTTL time.Duration) *Handler {
	return &Handler{db: db, cache: c, statsTTL: statsTTL}
}

// TopLink is the most-clicked link on the dashboard
type TopLink struct {
	Slug   string `json:"slug"`
	URL    string `json:"url"`
	Clicks int64  `json:"clicks"`
}

// DashboardStats aggregates across all links
type DashboardStats struct {
	TotalLinks  int64    `json:"total_links"`
	ActiveLinks int64    `json:"active_links"`
	TotalClicks int64    `json:"total_clicks"`
	TopLink     *TopLink `json:"top_link"`
}

// DateBucket is a click count for one calendar day (UTC)
type DateBucket struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

// CountryBucket is a click count for one country, "unknown" for null
type CountryBucket struct {
	Country string `json:"country"`
	Count   int64  `json:"count"`
}

// ReferrerBucket is a click count for one referrer hostname, "direct" for null
type ReferrerBucket struct {
	Referrer string `json:"referrer"`
	Count    int64  `json:"count"`
}

// LinkAnalytics is the per-link analytics view
type LinkAnalytics struct {
	TotalClicks     int64            `json:"total_clicks"`
	ClicksByDate    []DateBucket     `json:"clicks_by_date"`
	ClicksByCountry []CountryBucket  `json:"clicks_by_country"`
	TopReferrers    []ReferrerBucket `json:"top_referrers"`
}

// Stats returns dashboard-level aggregates, memoized briefly through the cache
// @Summary Dashboard stats
// @Description Totals across all links plus the most-clicked link
// @Tags analytics
// @Produce json
// @Success 200 {object} DashboardStats
// @Security BearerAuth
// @Router /stats [get]
func (h *Handler) Stats(c *gin.Context) {
	if cached, ok := h.cache.Get(cache.StatsKey()); ok {
		if stats, ok := cached.(DashboardStats); ok {
			c.JSON(http.StatusOK, stats)
			return
		}
	}

	stats, err := h.computeStats()
	if err != nil {
		logger.Get().Error("dashboard stats query failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch stats"})
		return
	}

	h.cache.Set(cache.StatsKey(), stats, h.statsTTL)
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) computeStats() (DashboardStats, error) {
	var stats DashboardStats
	now := time.Now()

	if err := h.db.Model(&models.Link{}).Count(&stats.TotalLinks).Error; err != nil {
		return stats, err
	}

	err := h.db.Model(&models.Link{}).
		Where("is_active = ? AND (expires_at IS NULL OR expires_at > ?)", true, now).
		Count(&stats.ActiveLinks).Error
	if err != nil {
		return stats, err
	}

	if err := h.db.Model(&models.Click{}).Count(&stats.TotalClicks).Error; err != nil {
		return stats, err
	}

	var top TopLink
	err = h.db.Model(&models.Link{}).
		Select("links.slug, links.url, (SELECT COUNT(*) FROM clicks WHERE clicks.link_id = links.id) AS clicks").
		Order("clicks DESC").
		Limit(1).
		Scan(&top).Error
	if err != nil {
		return stats, err
	}
	if top.Slug != "" {
		stats.TopLink = &top
	}

	return stats, nil
}

// LinkAnalytics returns per-link grouped click views
// @Summary Per-link analytics
// @Description Click totals grouped by day, country and referrer for one link
// @Tags analytics
// @Produce json
// @Param id path string true "Link ID"
// @Param range query string false "Time window: 7d, 30d, 90d, all (default 30d)"
// @Success 200 {object} LinkAnalytics
// @Failure 404 {object} map[string]string "Link not found"
// @Security BearerAuth
// @Router /links/{id}/analytics [get]
func (h *Handler) LinkAnalytics(c *gin.Context) {
	id := c.Param("id")

	var link models.Link
	if err := h.db.Where("id = ?", id).First(&link).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Link not found"})
			return
		}
		logger.Get().Error("analytics link lookup failed", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch analytics"})
		return
	}

	since := sinceForRange(c.DefaultQuery("range", "30d"))

	result, err := h.computeLinkAnalytics(link.ID, since)
	if err != nil {
		logger.Get().Error("analytics queries failed", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch analytics"})
		return
	}

	c.JSON(http.StatusOK, result)
}

// sinceForRange maps a window choice to its lower time bound; nil means
// unbounded.
func sinceForRange(value string) *time.Time {
	var days int
	switch value {
	case "7d":
		days = 7
	case "90d":
		days = 90
	case "all":
		return nil
	default:
		days = 30
	}

	since := time.Now().UTC().AddDate(0, 0, -days)
	return &since
}

func (h *Handler) clicksInWindow(linkID string, since *time.Time) *gorm.DB {
	query := h.db.Model(&models.Click{}).Where("link_id = ?", linkID)
	if since != nil {
		query = query.Where("clicked_at >= ?", *since)
	}
	return query
}

func (h *Handler) computeLinkAnalytics(linkID string, since *time.Time) (LinkAnalytics, error) {
	result := LinkAnalytics{
		ClicksByDate:    []DateBucket{},
		ClicksByCountry: []CountryBucket{},
		TopReferrers:    []ReferrerBucket{},
	}

	if err := h.clicksInWindow(linkID, since).Count(&result.TotalClicks).Error; err != nil {
		return result, err
	}

	// Clicks are stored with UTC timestamps, so DATE() buckets by UTC day
	if err := h.clicksInWindow(linkID, since).
		Select("DATE(clicked_at) AS date, COUNT(*) AS count").
		Group("DATE(clicked_at)").
		Order("date ASC").
		Scan(&result.ClicksByDate).Error; err != nil {
		return result, err
	}

	var countryRows []struct {
		Country *string
		Count   int64
	}
	if err := h.clicksInWindow(linkID, since).
		Select("country, COUNT(*) AS count").
		Group("country").
		Order("count DESC").
		Limit(topBuckets).
		Scan(&countryRows).Error; err != nil {
		return result, err
	}
	for _, row := range countryRows {
		bucket := CountryBucket{Country: "unknown", Count: row.Count}
		if row.Country != nil && *row.Country != "" {
			bucket.Country = *row.Country
		}
		result.ClicksByCountry = append(result.ClicksByCountry, bucket)
	}

	var referrerRows []struct {
		Referrer *string
		Count    int64
	}
	if err := h.clicksInWindow(linkID, since).
		Select("referrer, COUNT(*) AS count").
		Group("referrer").
		Scan(&referrerRows).Error; err != nil {
		return result, err
	}
	result.TopReferrers = foldReferrers(referrerRows)

	return result, nil
}

// foldReferrers merges raw referrer groups by hostname so one site never
// splits across buckets, then keeps the top entries by count.
func foldReferrers(rows []struct {
	Referrer *string
	Count    int64
}) []ReferrerBucket {
	counts := make(map[string]int64)
	for _, row := range rows {
		host := "direct"
		if row.Referrer != nil {
			if parsed := referrerHostname(*row.Referrer); parsed != "" {
				host = parsed
			}
		}
		counts[host] += row.Count
	}

	buckets := make([]ReferrerBucket, 0, len(counts))
	for host, count := range counts {
		buckets = append(buckets, ReferrerBucket{Referrer: host, Count: count})
	}
	sort.Slice(buckets, func(i, j int) bool {
		if buckets[i].Count != buckets[j].Count {
			return buckets[i].Count > buckets[j].Count
		}
		return buckets[i].Referrer < buckets[j].Referrer
	})

	if len(buckets) > topBuckets {
		buckets = buckets[:topBuckets]
	}
	return buckets
}

// referrerHostname strips a stored referrer down to its hostname, or ""
// when it cannot be parsed.
func referrerHostname(value string) string {
	raw := value
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "https://" + raw
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return parsed.Hostname()
}

// RegisterRoutes registers analytics routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/stats", h.Stats)
	rg.GET("/links/:id/analytics", h.LinkAnalytics)
}
