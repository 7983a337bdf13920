package analytics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mpalmer/snipr/pkg/snipr/cache"
	"github.com/mpalmer/snipr/pkg/snipr/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	models.AutoMigrate(db)
	return db
}

func setupTestRouter(db *gorm.DB) (*gin.Engine, *cache.Memory) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	c := cache.NewMemory(100)
	handler := NewHandler(db, c, time.Minute)
	handler.RegisterRoutes(r.Group("/api"))
	return r, c
}

func createTestLink(t *testing.T, db *gorm.DB, slug string) models.Link {
	link := models.Link{Slug: slug, URL: "https://example.com/" + slug, IsActive: true}
	if err := db.Create(&link).Error; err != nil {
		t.Fatalf("Failed to create test link: %v", err)
	}
	return link
}

func createClick(t *testing.T, db *gorm.DB, linkID string, clickedAt time.Time, country, referrer *string) {
	click := models.Click{
		LinkID:    linkID,
		Country:   country,
		Referrer:  referrer,
		ClickedAt: clickedAt,
	}
	if err := db.Create(&click).Error; err != nil {
		t.Fatalf("Failed to create test click: %v", err)
	}
}

func strPtr(s string) *string { return &s }

func getJSON(t *testing.T, router *gin.Engine, path string, out interface{}) int {
	req, _ := http.NewRequest("GET", path, nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if out != nil && resp.Code == http.StatusOK {
		if err := json.Unmarshal(resp.Body.Bytes(), out); err != nil {
			t.Fatalf("Failed to parse response: %v", err)
		}
	}
	return resp.Code
}

func TestDashboardStats(t *testing.T) {
	db := setupTestDB(t)
	router, _ := setupTestRouter(db)

	popular := createTestLink(t, db, "popular")
	quiet := createTestLink(t, db, "quiet")

	inactive := createTestLink(t, db, "paused")
	db.Model(&inactive).Update("is_active", false)

	// Active flag still set, but past expiry: not an active link
	expired := createTestLink(t, db, "stale")
	past := time.Now().Add(-time.Hour)
	db.Model(&expired).Update("expires_at", past)

	now := time.Now().UTC()
	for i := 0; i < 4; i++ {
		createClick(t, db, popular.ID, now, nil, nil)
	}
	createClick(t, db, quiet.ID, now, nil, nil)

	var stats DashboardStats
	if code := getJSON(t, router, "/api/stats", &stats); code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", code)
	}

	if stats.TotalLinks != 4 {
		t.Errorf("Expected 4 total links, got %d", stats.TotalLinks)
	}
	if stats.ActiveLinks != 2 {
		t.Errorf("Expected 2 active links, got %d", stats.ActiveLinks)
	}
	if stats.TotalClicks != 5 {
		t.Errorf("Expected 5 total clicks, got %d", stats.TotalClicks)
	}
	if stats.TopLink == nil || stats.TopLink.Slug != "popular" {
		t.Errorf("Expected top link 'popular', got %+v", stats.TopLink)
	}
	if stats.TopLink != nil && stats.TopLink.Clicks != 4 {
		t.Errorf("Expected top link clicks 4, got %d", stats.TopLink.Clicks)
	}
}

func TestDashboardStatsEmpty(t *testing.T) {
	db := setupTestDB(t)
	router, _ := setupTestRouter(db)

	var stats DashboardStats
	if code := getJSON(t, router, "/api/stats", &stats); code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", code)
	}
	if stats.TopLink != nil {
		t.Errorf("Expected no top link with no data, got %+v", stats.TopLink)
	}
}

func TestDashboardStatsServedFromCache(t *testing.T) {
	db := setupTestDB(t)
	router, c := setupTestRouter(db)
	createTestLink(t, db, "cached")

	var first DashboardStats
	getJSON(t, router, "/api/stats", &first)
	if first.TotalLinks != 1 {
		t.Fatalf("Expected 1 link, got %d", first.TotalLinks)
	}

	// New writes are invisible until the TTL lapses
	createTestLink(t, db, "fresh")
	var second DashboardStats
	getJSON(t, router, "/api/stats", &second)
	if second.TotalLinks != 1 {
		t.Errorf("Expected cached total 1, got %d", second.TotalLinks)
	}

	c.Delete(cache.StatsKey())
	var third DashboardStats
	getJSON(t, router, "/api/stats", &third)
	if third.TotalLinks != 2 {
		t.Errorf("Expected fresh total 2 after cache invalidation, got %d", third.TotalLinks)
	}
}

func TestLinkAnalyticsGroupings(t *testing.T) {
	db := setupTestDB(t)
	router, _ := setupTestRouter(db)
	link := createTestLink(t, db, "analyzed")

	day1 := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 8, 29, 23, 30, 0, 0, time.UTC)

	createClick(t, db, link.ID, day1, strPtr("DE"), strPtr("https://news.example.com/a"))
	createClick(t, db, link.ID, day1, strPtr("DE"), strPtr("https://news.example.com/b"))
	createClick(t, db, link.ID, day2, strPtr("US"), strPtr("https://blog.example.org/post"))
	createClick(t, db, link.ID, day2, nil, nil)

	var got LinkAnalytics
	if code := getJSON(t, router, "/api/links/"+link.ID+"/analytics?range=all", &got); code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", code)
	}

	if got.TotalClicks != 4 {
		t.Errorf("Expected 4 total clicks, got %d", got.TotalClicks)
	}

	if len(got.ClicksByDate) != 2 {
		t.Fatalf("Expected 2 day buckets, got %d", len(got.ClicksByDate))
	}
	// Ascending by day
	if got.ClicksByDate[0].Date != "2026-08-28" || got.ClicksByDate[0].Count != 2 {
		t.Errorf("Unexpected first day bucket: %+v", got.ClicksByDate[0])
	}
	if got.ClicksByDate[1].Date != "2026-08-29" || got.ClicksByDate[1].Count != 2 {
		t.Errorf("Unexpected second day bucket: %+v", got.ClicksByDate[1])
	}

	countryCounts := map[string]int64{}
	for _, b := range got.ClicksByCountry {
		countryCounts[b.Country] = b.Count
	}
	if countryCounts["DE"] != 2 || countryCounts["US"] != 1 || countryCounts["unknown"] != 1 {
		t.Errorf("Unexpected country buckets: %+v", got.ClicksByCountry)
	}

	// Distinct paths on one host fold into a single hostname bucket
	referrerCounts := map[string]int64{}
	for _, b := range got.TopReferrers {
		referrerCounts[b.Referrer] = b.Count
	}
	if referrerCounts["news.example.com"] != 2 {
		t.Errorf("Expected news.example.com count 2, got %+v", got.TopReferrers)
	}
	if referrerCounts["blog.example.org"] != 1 {
		t.Errorf("Expected blog.example.org count 1, got %+v", got.TopReferrers)
	}
	if referrerCounts["direct"] != 1 {
		t.Errorf("Expected direct count 1, got %+v", got.TopReferrers)
	}
}

func TestLinkAnalyticsTimeWindow(t *testing.T) {
	db := setupTestDB(t)
	router, _ := setupTestRouter(db)
	link := createTestLink(t, db, "windowed")

	now := time.Now().UTC()
	createClick(t, db, link.ID, now.AddDate(0, 0, -1), nil, nil)
	createClick(t, db, link.ID, now.AddDate(0, 0, -20), nil, nil)
	createClick(t, db, link.ID, now.AddDate(0, 0, -60), nil, nil)

	var got LinkAnalytics
	getJSON(t, router, "/api/links/"+link.ID+"/analytics?range=7d", &got)
	if got.TotalClicks != 1 {
		t.Errorf("range=7d: expected 1 click, got %d", got.TotalClicks)
	}

	getJSON(t, router, "/api/links/"+link.ID+"/analytics?range=30d", &got)
	if got.TotalClicks != 2 {
		t.Errorf("range=30d: expected 2 clicks, got %d", got.TotalClicks)
	}

	getJSON(t, router, "/api/links/"+link.ID+"/analytics?range=90d", &got)
	if got.TotalClicks != 3 {
		t.Errorf("range=90d: expected 3 clicks, got %d", got.TotalClicks)
	}

	getJSON(t, router, "/api/links/"+link.ID+"/analytics?range=all", &got)
	if got.TotalClicks != 3 {
		t.Errorf("range=all: expected 3 clicks, got %d", got.TotalClicks)
	}
}

func TestLinkAnalyticsUnknownLink(t *testing.T) {
	db := setupTestDB(t)
	router, _ := setupTestRouter(db)

	if code := getJSON(t, router, "/api/links/no-such-id/analytics", nil); code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", code)
	}
}

func TestFoldReferrersCapsBuckets(t *testing.T) {
	rows := make([]struct {
		Referrer *string
		Count    int64
	}, 0, 15)
	for i := 0; i < 15; i++ {
		host := "https://host" + string(rune('a'+i)) + ".example.com/x"
		rows = append(rows, struct {
			Referrer *string
			Count    int64
		}{Referrer: &host, Count: int64(i + 1)})
	}

	buckets := foldReferrers(rows)
	if len(buckets) != 10 {
		t.Fatalf("Expected 10 buckets, got %d", len(buckets))
	}
	// Descending by count
	for i := 1; i < len(buckets); i++ {
		if buckets[i].Count > buckets[i-1].Count {
			t.Errorf("Buckets not sorted descending at %d: %+v", i, buckets)
		}
	}
}
