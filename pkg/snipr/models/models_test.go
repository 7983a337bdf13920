package models

import (
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	return db
}

func TestAutoMigrate(t *testing.T) {
	db := setupTestDB(t)

	err := AutoMigrate(db)
	if err != nil {
		t.Fatalf("AutoMigrate failed: %v", err)
	}

	// Verify tables exist by checking if we can query them
	tables := []string{"users", "links", "clicks"}
	for _, table := range tables {
		if !db.Migrator().HasTable(table) {
			t.Errorf("Expected table %s to exist", table)
		}
	}
}

func TestLinkModel(t *testing.T) {
	db := setupTestDB(t)
	AutoMigrate(db)

	link := Link{
		Slug: "my-page",
		URL:  "https://example.com/x",
	}

	result := db.Create(&link)
	if result.Error != nil {
		t.Fatalf("Failed to create link: %v", result.Error)
	}

	if link.ID == "" {
		t.Error("Expected link ID to be assigned on create")
	}

	// Test unique slug constraint
	link2 := Link{
		Slug: "my-page",
		URL:  "https://example.com/y",
	}
	result = db.Create(&link2)
	if result.Error == nil {
		t.Error("Expected error when creating link with duplicate slug")
	}

	// The existing row must be untouched by the failed insert
	var stored Link
	if err := db.Where("slug = ?", "my-page").First(&stored).Error; err != nil {
		t.Fatalf("Failed to reload link: %v", err)
	}
	if stored.URL != "https://example.com/x" {
		t.Errorf("Expected original URL to survive conflict, got %s", stored.URL)
	}
}

func TestLinkIsExpired(t *testing.T) {
	now := time.Now()

	link := Link{Slug: "abc", URL: "https://example.com"}
	if link.IsExpired(now) {
		t.Error("Link without expiry should never be expired")
	}

	past := now.Add(-time.Minute)
	link.ExpiresAt = &past
	if !link.IsExpired(now) {
		t.Error("Link with past expiry should be expired")
	}

	// Expiry exactly at "now" counts as expired
	exact := now
	link.ExpiresAt = &exact
	if !link.IsExpired(now) {
		t.Error("Link expiring exactly now should be expired")
	}

	future := now.Add(time.Minute)
	link.ExpiresAt = &future
	if link.IsExpired(now) {
		t.Error("Link with future expiry should not be expired")
	}
}

func TestClickModel(t *testing.T) {
	db := setupTestDB(t)
	AutoMigrate(db)

	link := Link{Slug: "clicked", URL: "https://example.com"}
	if err := db.Create(&link).Error; err != nil {
		t.Fatalf("Failed to create link: %v", err)
	}

	country := "GB"
	referrer := "https://news.ycombinator.com/item"
	click := Click{
		LinkID:    link.ID,
		Country:   &country,
		Referrer:  &referrer,
		ClickedAt: time.Now().UTC(),
	}
	if err := db.Create(&click).Error; err != nil {
		t.Fatalf("Failed to create click: %v", err)
	}
	if click.ID == "" {
		t.Error("Expected click ID to be assigned on create")
	}

	// Clicks with no geo/referrer signal store nulls
	bare := Click{LinkID: link.ID, ClickedAt: time.Now().UTC()}
	if err := db.Create(&bare).Error; err != nil {
		t.Fatalf("Failed to create bare click: %v", err)
	}

	var count int64
	db.Model(&Click{}).Where("link_id = ?", link.ID).Count(&count)
	if count != 2 {
		t.Errorf("Expected 2 clicks, got %d", count)
	}
}
