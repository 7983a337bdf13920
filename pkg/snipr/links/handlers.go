package links

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mpalmer/snipr/pkg/snipr/logger"
	"github.com/mpalmer/snipr/pkg/snipr/middleware"
	"github.com/mpalmer/snipr/pkg/snipr/models"
	"github.com/mpalmer/snipr/pkg/snipr/slugs"
	"gorm.io/gorm"
)

const defaultPageSize = 20

// pageSizes is the closed set of allowed page sizes
var pageSizes = map[int]bool{10: true, 20: true, 50: true}

var errSlugAllocation = errors.New("could not allocate a unique slug")

// Handler handles link management requests
type Handler struct {
	db              *gorm.DB
	slugLength      int
	maxSlugAttempts int
}

// Options tunes generated-slug allocation. Zero values fall back to defaults.
type Options struct {
	SlugLength      int
	MaxSlugAttempts int
}

// NewHandler creates a new links handler with default slug allocation
func NewHandler(db *gorm.DB) *Handler {
	return NewHandlerWithOptions(db, Options{})
}

// NewHandlerWithOptions creates a new links handler with tuned slug allocation
func NewHandlerWithOptions(db *gorm.DB, opts Options) *Handler {
	if opts.SlugLength <= 0 {
		opts.SlugLength = slugs.DefaultLength
	}
	if opts.MaxSlugAttempts <= 0 {
		opts.MaxSlugAttempts = 3
	}
	return &Handler{db: db, slugLength: opts.SlugLength, maxSlugAttempts: opts.MaxSlugAttempts}
}

// CreateLinkRequest represents the request to create a link
type CreateLinkRequest struct {
	URL       string `json:"url" binding:"required"`
	Slug      string `json:"slug"`
	ExpiresAt string `json:"expires_at"`
}

// UpdateLinkRequest represents the request to update a link.
// Only explicitly supplied fields are changed. An empty expires_at string
// clears the expiry.
type UpdateLinkRequest struct {
	URL       *string `json:"url"`
	Slug      *string `json:"slug"`
	IsActive  *bool   `json:"is_active"`
	ExpiresAt *string `json:"expires_at"`
}

// BulkIDsRequest represents a bulk operation over a set of link ids
type BulkIDsRequest struct {
	IDs []string `json:"ids" binding:"required,min=1"`
}

// ToggleRequest represents a bulk active-state toggle
type ToggleRequest struct {
	IDs      []string `json:"ids" binding:"required,min=1"`
	IsActive *bool    `json:"is_active" binding:"required"`
}

// LinkResponse represents a link in API responses
type LinkResponse struct {
	ID         string  `json:"id"`
	Slug       string  `json:"slug"`
	URL        string  `json:"url"`
	IsActive   bool    `json:"is_active"`
	ExpiresAt  *string `json:"expires_at"`
	ClickCount int64   `json:"click_count"`
	CreatedAt  string  `json:"created_at"`
	UpdatedAt  string  `json:"updated_at"`
}

// ListResponse represents a paginated link listing
type ListResponse struct {
	Links    []LinkResponse `json:"links"`
	Total    int64          `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
}

// linkWithCount is the scan target for listing queries that attach a
// click-count subquery column.
type linkWithCount struct {
	models.Link
	ClickCount int64
}

const clickCountColumn = "(SELECT COUNT(*) FROM clicks WHERE clicks.link_id = links.id) AS click_count"

func linkToResponse(link models.Link, clickCount int64) LinkResponse {
	resp := LinkResponse{
		ID:         link.ID,
		Slug:       link.Slug,
		URL:        link.URL,
		IsActive:   link.IsActive,
		ClickCount: clickCount,
		CreatedAt:  link.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:  link.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if link.ExpiresAt != nil {
		expires := link.ExpiresAt.UTC().Format(time.RFC3339)
		resp.ExpiresAt = &expires
	}
	return resp
}

// checkSlug runs format, reservation, and uniqueness checks for an explicit
// slug. excludeID skips the record's own row on updates.
func (h *Handler) checkSlug(slug string, excludeID string) (int, string) {
	if err := slugs.Validate(slug); err != nil {
		return http.StatusBadRequest, err.Error()
	}

	if slugs.IsReserved(slug) {
		return http.StatusBadRequest, "This slug is reserved"
	}

	taken, err := h.slugExists(slug, excludeID)
	if err != nil {
		logger.Get().Error("slug uniqueness check failed", "slug", slug, "error", err)
		return http.StatusInternalServerError, "Failed to check slug availability"
	}
	if taken {
		return http.StatusConflict, "Slug already exists"
	}

	return 0, ""
}

func (h *Handler) slugExists(slug string, excludeID string) (bool, error) {
	query := h.db.Model(&models.Link{}).Where("slug = ?", slug)
	if excludeID != "" {
		query = query.Where("id <> ?", excludeID)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// allocateSlug draws random candidates until one is neither reserved nor
// taken, giving up after a bounded number of attempts. The unique index is
// still the final authority for races between concurrent creates.
func (h *Handler) allocateSlug() (string, error) {
	for attempt := 0; attempt < h.maxSlugAttempts; attempt++ {
		candidate, err := slugs.GenerateWithLength(h.slugLength)
		if err != nil {
			return "", err
		}

		if slugs.IsReserved(candidate) {
			continue
		}

		taken, err := h.slugExists(candidate, "")
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}

	return "", errSlugAllocation
}

// Create creates a new link
// @Summary Create a link
// @Description Create a new shortened link, allocating a slug when none is supplied
// @Tags links
// @Accept json
// @Produce json
// @Param request body CreateLinkRequest true "Link details"
// @Success 201 {object} LinkResponse
// @Failure 400 {object} map[string]string "Validation error"
// @Failure 409 {object} map[string]string "Slug already exists"
// @Security BearerAuth
// @Router /links [post]
func (h *Handler) Create(c *gin.Context) {
	var req CreateLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	destination := strings.TrimSpace(req.URL)
	if err := ValidateURL(destination); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var expiresAt *time.Time
	if req.ExpiresAt != "" {
		parsed, err := ParseExpiry(req.ExpiresAt, time.Now())
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		expiresAt = &parsed
	}

	slug := strings.TrimSpace(req.Slug)
	if slug == "" {
		allocated, err := h.allocateSlug()
		if err != nil {
			if errors.Is(err, errSlugAllocation) {
				c.JSON(http.StatusConflict, gin.H{"error": "Could not allocate a unique slug, please try again"})
				return
			}
			logger.Get().Error("slug allocation failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create link"})
			return
		}
		slug = allocated
	} else {
		if status, msg := h.checkSlug(slug, ""); status != 0 {
			c.JSON(status, gin.H{"error": msg})
			return
		}
	}

	link := models.Link{
		Slug:      slug,
		URL:       destination,
		IsActive:  true,
		ExpiresAt: expiresAt,
	}

	if err := h.db.Create(&link).Error; err != nil {
		// A concurrent create may win the race after our pre-check; the
		// unique index rejects the second insert and it surfaces as a
		// normal conflict.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			c.JSON(http.StatusConflict, gin.H{"error": "Slug already exists"})
			return
		}
		logger.Get().Error("link create failed", "slug", slug, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create link"})
		return
	}

	middleware.RecordLinkCreated()
	c.JSON(http.StatusCreated, linkToResponse(link, 0))
}

// Get returns a single link by id
// @Summary Get a link
// @Description Get link details and click count by id
// @Tags links
// @Produce json
// @Param id path string true "Link ID"
// @Success 200 {object} LinkResponse
// @Failure 404 {object} map[string]string "Link not found"
// @Security BearerAuth
// @Router /links/{id} [get]
func (h *Handler) Get(c *gin.Context) {
	id := c.Param("id")

	var row linkWithCount
	err := h.db.Model(&models.Link{}).
		Select("links.*, " + clickCountColumn).
		Where("links.id = ?", id).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Link not found"})
			return
		}
		logger.Get().Error("link lookup failed", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch link"})
		return
	}

	c.JSON(http.StatusOK, linkToResponse(row.Link, row.ClickCount))
}

// Update updates a link's explicitly supplied fields
// @Summary Update a link
// @Description Update an existing link by id; only supplied fields change
// @Tags links
// @Accept json
// @Produce json
// @Param id path string true "Link ID"
// @Param request body UpdateLinkRequest true "Updated link fields"
// @Success 200 {object} LinkResponse
// @Failure 400 {object} map[string]string "Validation error"
// @Failure 404 {object} map[string]string "Link not found"
// @Failure 409 {object} map[string]string "Slug already exists"
// @Security BearerAuth
// @Router /links/{id} [put]
func (h *Handler) Update(c *gin.Context) {
	id := c.Param("id")

	var link models.Link
	if err := h.db.Where("id = ?", id).First(&link).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Link not found"})
			return
		}
		logger.Get().Error("link lookup failed", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch link"})
		return
	}

	var req UpdateLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.URL != nil {
		destination := strings.TrimSpace(*req.URL)
		if err := ValidateURL(destination); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		link.URL = destination
	}

	if req.Slug != nil {
		slug := strings.TrimSpace(*req.Slug)
		if slug != link.Slug {
			if status, msg := h.checkSlug(slug, link.ID); status != 0 {
				c.JSON(status, gin.H{"error": msg})
				return
			}
			link.Slug = slug
		}
	}

	if req.ExpiresAt != nil {
		if *req.ExpiresAt == "" {
			link.ExpiresAt = nil
		} else {
			parsed, err := ParseExpiry(*req.ExpiresAt, time.Now())
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			link.ExpiresAt = &parsed
		}
	}

	if req.IsActive != nil {
		link.IsActive = *req.IsActive
	}

	if err := h.db.Save(&link).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			c.JSON(http.StatusConflict, gin.H{"error": "Slug already exists"})
			return
		}
		logger.Get().Error("link update failed", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update link"})
		return
	}

	var clickCount int64
	h.db.Model(&models.Click{}).Where("link_id = ?", link.ID).Count(&clickCount)

	c.JSON(http.StatusOK, linkToResponse(link, clickCount))
}

// Delete deletes a link and its click history
// @Summary Delete a link
// @Description Delete a link by id; its click records are removed with it
// @Tags links
// @Produce json
// @Param id path string true "Link ID"
// @Success 200 {object} map[string]string "Link deleted"
// @Failure 404 {object} map[string]string "Link not found"
// @Security BearerAuth
// @Router /links/{id} [delete]
func (h *Handler) Delete(c *gin.Context) {
	id := c.Param("id")

	var link models.Link
	if err := h.db.Where("id = ?", id).First(&link).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Link not found"})
			return
		}
		logger.Get().Error("link lookup failed", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch link"})
		return
	}

	if err := h.deleteLinks([]string{link.ID}); err != nil {
		logger.Get().Error("link delete failed", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete link"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Link deleted"})
}

// BulkDelete deletes a set of links and their click histories
// @Summary Delete links
// @Description Delete multiple links by id
// @Tags links
// @Accept json
// @Produce json
// @Param request body BulkIDsRequest true "Link ids"
// @Success 200 {object} map[string]int "Deleted count"
// @Failure 400 {object} map[string]string "Invalid selection"
// @Security BearerAuth
// @Router /links [delete]
func (h *Handler) BulkDelete(c *gin.Context) {
	var req BulkIDsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid link selection"})
		return
	}

	var count int64
	if err := h.db.Model(&models.Link{}).Where("id IN ?", req.IDs).Count(&count).Error; err != nil {
		logger.Get().Error("bulk delete count failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete links"})
		return
	}

	if err := h.deleteLinks(req.IDs); err != nil {
		logger.Get().Error("bulk delete failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete links"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"count": count})
}

// deleteLinks removes links and their clicks in one transaction. Clicks are
// deleted explicitly so the cascade does not depend on the sqlite
// foreign-keys pragma.
func (h *Handler) deleteLinks(ids []string) error {
	return h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("link_id IN ?", ids).Delete(&models.Click{}).Error; err != nil {
			return err
		}
		return tx.Where("id IN ?", ids).Delete(&models.Link{}).Error
	})
}

// Toggle sets the active flag on a set of links
// @Summary Toggle links
// @Description Set the active state for multiple links
// @Tags links
// @Accept json
// @Produce json
// @Param request body ToggleRequest true "Link ids and target state"
// @Success 200 {object} map[string]int "Updated count"
// @Failure 400 {object} map[string]string "Invalid toggle request"
// @Security BearerAuth
// @Router /links/toggle [post]
func (h *Handler) Toggle(c *gin.Context) {
	var req ToggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid toggle request"})
		return
	}

	result := h.db.Model(&models.Link{}).
		Where("id IN ?", req.IDs).
		Update("is_active", *req.IsActive)
	if result.Error != nil {
		logger.Get().Error("bulk toggle failed", "error", result.Error)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update links"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"count": result.RowsAffected})
}

// List returns a paginated, filtered, sorted link listing
// @Summary List links
// @Description List links with status filtering, free-text search and sorting
// @Tags links
// @Produce json
// @Param page query int false "Page number (default 1)"
// @Param page_size query int false "Page size, one of 10, 20, 50 (default 20)"
// @Param search query string false "Case-insensitive substring match over slug and URL"
// @Param status query string false "Filter: all, active, inactive, expired"
// @Param sort_by query string false "Sort key: created_at, clicks, slug"
// @Param sort_order query string false "Sort direction: asc, desc"
// @Success 200 {object} ListResponse
// @Security BearerAuth
// @Router /links [get]
func (h *Handler) List(c *gin.Context) {
	page := 1
	if p := c.Query("page"); p != "" {
		if parsed, err := strconv.Atoi(p); err == nil && parsed > 0 {
			page = parsed
		}
	}

	pageSize := defaultPageSize
	if s := c.Query("page_size"); s != "" {
		if parsed, err := strconv.Atoi(s); err == nil && pageSizes[parsed] {
			pageSize = parsed
		}
	}

	// Fresh query per use: sharing one chain between Count and Find leaks
	// statement state across calls.
	filtered := func() *gorm.DB {
		query := h.db.Model(&models.Link{})

		if search := strings.TrimSpace(c.Query("search")); search != "" {
			pattern := "%" + strings.ToLower(search) + "%"
			query = query.Where("LOWER(slug) LIKE ? OR LOWER(url) LIKE ?", pattern, pattern)
		}

		now := time.Now()
		switch c.DefaultQuery("status", "all") {
		case "active":
			query = query.Where("is_active = ? AND (expires_at IS NULL OR expires_at > ?)", true, now)
		case "inactive":
			query = query.Where("is_active = ? AND (expires_at IS NULL OR expires_at > ?)", false, now)
		case "expired":
			query = query.Where("expires_at IS NOT NULL AND expires_at <= ?", now)
		}

		return query
	}

	var total int64
	if err := filtered().Count(&total).Error; err != nil {
		logger.Get().Error("link count failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list links"})
		return
	}

	sortColumn := "created_at"
	switch c.Query("sort_by") {
	case "clicks":
		sortColumn = "click_count"
	case "slug":
		sortColumn = "slug"
	}

	direction := "DESC"
	if c.Query("sort_order") == "asc" {
		direction = "ASC"
	}

	var rows []linkWithCount
	err := filtered().
		Select("links.*, " + clickCountColumn).
		Order(fmt.Sprintf("%s %s", sortColumn, direction)).
		Limit(pageSize).
		Offset((page - 1) * pageSize).
		Find(&rows).Error
	if err != nil {
		logger.Get().Error("link listing failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list links"})
		return
	}

	responses := make([]LinkResponse, len(rows))
	for i, row := range rows {
		responses[i] = linkToResponse(row.Link, row.ClickCount)
	}

	c.JSON(http.StatusOK, ListResponse{
		Links:    responses,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	})
}

// RegisterRoutes registers link management routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/links", h.List)
	rg.POST("/links", h.Create)
	rg.DELETE("/links", h.BulkDelete)
	rg.POST("/links/toggle", h.Toggle)
	rg.GET("/links/:id", h.Get)
	rg.PUT("/links/:id", h.Update)
	rg.DELETE("/links/:id", h.Delete)
}
