package main

import (
	"fmt"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mpalmer/snipr/pkg/snipr/analytics"
	"github.com/mpalmer/snipr/pkg/snipr/auth"
	"github.com/mpalmer/snipr/pkg/snipr/cache"
	"github.com/mpalmer/snipr/pkg/snipr/config"
	"github.com/mpalmer/snipr/pkg/snipr/database"
	"github.com/mpalmer/snipr/pkg/snipr/links"
	"github.com/mpalmer/snipr/pkg/snipr/logger"
	"github.com/mpalmer/snipr/pkg/snipr/middleware"
	"github.com/mpalmer/snipr/pkg/snipr/models"
	"github.com/mpalmer/snipr/pkg/snipr/qr"
	"github.com/mpalmer/snipr/pkg/snipr/redirect"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// @title Snipr API
// @version 1.0
// @description A personal URL shortener with click analytics and QR codes.

// @contact.name Snipr
// @contact.url https://github.com/mpalmer/snipr

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /api

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT token. Format: "Bearer {token}"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := logger.Initialize(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		OutputPath: cfg.Log.OutputPath,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	appLog := logger.Get()

	auth.Configure(cfg.Auth.JWTSecret, time.Duration(cfg.Auth.TokenTTL)*time.Hour)

	// Connect to database
	if err := database.Connect(cfg.Database.Path); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Run auto-migrations
	if err := models.AutoMigrate(database.GetDB()); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	appLog.Info("database migrations completed", "path", cfg.Database.Path)

	memCache := cache.NewMemory(cfg.Cache.MaxEntries)
	statsTTL := time.Duration(cfg.Cache.StatsTTLSeconds) * time.Second
	qrTTL := time.Duration(cfg.Cache.QRTTLSeconds) * time.Second

	// Set up Gin router
	r := gin.Default()
	r.Use(middleware.PrometheusMetrics())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
		})
	})

	// Prometheus scrape endpoint
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API routes
	api := r.Group("/api")
	{
		api.GET("/health", func(c *gin.Context) {
			c.JSON(200, gin.H{
				"status":  "ok",
				"service": "snipr",
			})
		})

		// Auth routes (public)
		authHandler := auth.NewHandler(database.GetDB())
		authHandler.RegisterRoutes(api.Group("/auth"))

		// Everything else requires a valid token from an allow-listed account
		protected := api.Group("", auth.AuthMiddleware(), auth.AuthorizedOnly(cfg.Auth.AllowedEmails))

		linksHandler := links.NewHandlerWithOptions(database.GetDB(), links.Options{
			SlugLength:      cfg.App.SlugLength,
			MaxSlugAttempts: cfg.App.MaxSlugAttempts,
		})
		linksHandler.RegisterRoutes(protected)

		analyticsHandler := analytics.NewHandler(database.GetDB(), memCache, statsTTL)
		analyticsHandler.RegisterRoutes(protected)

		qrHandler := qr.NewHandler(database.GetDB(), memCache, cfg.App.BaseURL, qrTTL)
		qrHandler.RegisterRoutes(protected)
	}

	// Redirect routes (public, must be registered LAST to avoid conflicts)
	redirectHandler := redirect.NewHandler(database.GetDB())
	redirectHandler.RegisterRoutes(r)

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	appLog.Info("starting snipr server", "addr", addr, "base_url", cfg.App.BaseURL)
	if err := r.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
