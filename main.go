package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"orbix-worker/collab"
	"orbix-worker/config"
	"orbix-worker/models"
	"orbix-worker/platforms"
	"orbix-worker/platforms/rumble"
	"orbix-worker/platforms/youtube"
	"orbix-worker/providers"
	"orbix-worker/providers/html"
	"orbix-worker/providers/rss"
	"orbix-worker/renderer"
	"orbix-worker/services"
	"orbix-worker/settings"
	"orbix-worker/storage"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

var (
	newItemsCounter          prometheus.Counter
	qualifiedStoriesCounter  prometheus.Counter
	generatedScriptsCounter  prometheus.Counter
	autoApprovedCounter      prometheus.Counter
	completedRendersCounter  prometheus.Counter
	failedRendersCounter     prometheus.Counter
	publishedVideosCounter   prometheus.Counter
	deferredPublishesCounter prometheus.Counter
)

func init() {
	newItemsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "raw_items_ingested_total",
		Help: "Total number of new raw items added to the database.",
	})
	qualifiedStoriesCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stories_qualified_total",
		Help: "Total number of stories that passed the shock score threshold.",
	})
	generatedScriptsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scripts_generated_total",
		Help: "Total number of scripts generated for qualified stories.",
	})
	autoApprovedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reviews_auto_approved_total",
		Help: "Total number of review entries approved by the timeout sweep.",
	})
	completedRendersCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "renders_completed_total",
		Help: "Total number of successfully rendered videos.",
	})
	failedRendersCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "renders_failed_total",
		Help: "Total number of failed render attempts.",
	})
	publishedVideosCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "videos_published_total",
		Help: "Total number of videos published across all platforms.",
	})
	deferredPublishesCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "publishes_deferred_total",
		Help: "Total number of renders deferred because the daily cap was reached.",
	})
	prometheus.MustRegister(newItemsCounter, qualifiedStoriesCounter, generatedScriptsCounter,
		autoApprovedCounter, completedRendersCounter, failedRendersCounter,
		publishedVideosCounter, deferredPublishesCounter)
}

func apiKeyAuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.APISecretKey == "" {
			c.Next()
			return
		}
		apiKey := c.GetHeader("X-API-KEY")
		if apiKey != cfg.APISecretKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid API Key"})
			return
		}
		c.Next()
	}
}

func main() {
	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Config load error", zap.Error(err))
	}

	// Setup Database Connection
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		logging.Fatal("Failed to connect to database", zap.Error(err))
	}
	logging.Info("Successfully connected to database.")

	// Auto-Migration
	logging.Info("Running database auto-migration...")
	db.AutoMigrate(&models.Source{}, &models.RawItem{}, &models.Story{}, &models.Script{},
		&models.ReviewQueueEntry{}, &models.Render{}, &models.Publish{},
		&models.PublishCounter{}, &models.DailyAnalytics{}, &models.Setting{})

	// Seeding
	settingsStore := settings.NewStore(db, logging)
	if err := settingsStore.Seed(); err != nil {
		logging.Fatal("Failed to seed settings", zap.Error(err))
	}
	seedDefaultSources(db, logging)

	// Setup Collaborators
	s3Client, err := storage.NewS3Client(cfg)
	if err != nil {
		logging.Fatal("S3 client creation failed", zap.Error(err))
	}
	cohereModel := collab.NewCohereModel(cfg, logging)
	ffmpegRenderer := renderer.NewFFmpegRenderer(cfg, s3Client, logging)

	fetchers := map[string]providers.Fetcher{
		models.SourceTypeRSS:  rss.NewFetcher(logging),
		models.SourceTypeHTML: html.NewFetcher(logging),
	}

	var publishTargets []platforms.Platform
	youtubeClient, err := youtube.NewClient(context.Background(), cfg, logging)
	if err != nil {
		logging.Warn("YouTube publishing disabled", zap.Error(err))
	} else {
		publishTargets = append(publishTargets, youtubeClient)
	}
	publishTargets = append(publishTargets, rumble.NewClient(logging))

	metricsTargets := map[string]platforms.Platform{}
	for _, target := range publishTargets {
		metricsTargets[target.Name()] = target
	}

	// Setup Services
	ingestService := services.NewIngestService(cfg, db, logging, fetchers)
	scorerService := services.NewScorerService(cfg, db, logging, settingsStore, cohereModel)
	generatorService := services.NewGeneratorService(cfg, db, logging, settingsStore, cohereModel)
	reviewService := services.NewReviewService(db, logging, settingsStore)
	renderService := services.NewRenderService(cfg, db, logging, settingsStore, ffmpegRenderer)
	publishService := services.NewPublishService(cfg, db, logging, settingsStore, publishTargets)
	analyticsService := services.NewAnalyticsService(db, logging, metricsTargets)

	// Setup Router
	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(apiKeyAuthMiddleware(cfg))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Setup Routes
	setupSourceRoutes(router, db, logging)
	setupSettingRoutes(router, db, settingsStore, logging)
	setupStoryRoutes(router, db, logging)
	setupReviewRoutes(router, db, reviewService, logging)
	setupRenderRoutes(router, db, logging)
	setupPublishRoutes(router, db, logging)
	setupAnalyticsRoutes(router, db, logging)

	// Setup Cron
	cronScheduler := cron.New()
	cronScheduler.AddFunc(cfg.IngestSchedule, func() {
		count, err := ingestService.Run(context.Background())
		if err != nil {
			logging.Error("Ingest job failed", zap.Error(err))
			return
		}
		newItemsCounter.Add(float64(count))
	})
	cronScheduler.AddFunc(cfg.ScoreSchedule, func() {
		count, err := scorerService.Run(context.Background())
		if err != nil {
			logging.Error("Scoring job failed", zap.Error(err))
			return
		}
		qualifiedStoriesCounter.Add(float64(count))
	})
	cronScheduler.AddFunc(cfg.GenerateSchedule, func() {
		count, err := generatorService.Run(context.Background())
		if err != nil {
			logging.Error("Generation job failed", zap.Error(err))
			return
		}
		generatedScriptsCounter.Add(float64(count))
	})
	cronScheduler.AddFunc(cfg.ReviewSweepSchedule, func() {
		count, err := reviewService.SweepAutoApprovals(context.Background())
		if err != nil {
			logging.Error("Auto-approve sweep failed", zap.Error(err))
			return
		}
		autoApprovedCounter.Add(float64(count))
	})
	cronScheduler.AddFunc(cfg.RenderCreateSchedule, func() {
		if _, err := renderService.CreateQueued(context.Background()); err != nil {
			logging.Error("Render creation job failed", zap.Error(err))
		}
	})
	cronScheduler.AddFunc(cfg.RenderSchedule, func() {
		completed, failed, err := renderService.ProcessQueued(context.Background())
		if err != nil {
			logging.Error("Render job failed", zap.Error(err))
			return
		}
		completedRendersCounter.Add(float64(completed))
		failedRendersCounter.Add(float64(failed))
	})
	cronScheduler.AddFunc(cfg.PublishSchedule, func() {
		published, deferred, err := publishService.Run(context.Background())
		if err != nil {
			logging.Error("Publish job failed", zap.Error(err))
			return
		}
		publishedVideosCounter.Add(float64(published))
		deferredPublishesCounter.Add(float64(deferred))
	})
	cronScheduler.AddFunc(cfg.AnalyticsSchedule, func() {
		if _, err := analyticsService.Run(context.Background()); err != nil {
			logging.Error("Analytics job failed", zap.Error(err))
		}
	})
	cronScheduler.Start()

	logging.Info("Starting server", zap.String("port", cfg.HTTPPort))
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		logging.Fatal("Failed to run server", zap.Error(err))
	}
}

func setupSourceRoutes(router *gin.Engine, db *gorm.DB, log *zap.Logger) {
	rg := router.Group("/sources")

	rg.GET("/", func(c *gin.Context) {
		var sources []models.Source
		if err := db.Find(&sources).Error; err != nil {
			log.Error("Database query for sources failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, sources)
	})

	rg.POST("/", func(c *gin.Context) {
		var source models.Source
		if err := c.ShouldBindJSON(&source); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if source.Type != models.SourceTypeRSS && source.Type != models.SourceTypeHTML {
			c.JSON(http.StatusBadRequest, gin.H{"error": "type must be RSS or HTML"})
			return
		}
		if err := db.Create(&source).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create source"})
			return
		}
		c.JSON(http.StatusCreated, source)
	})

	rg.PUT("/:id", func(c *gin.Context) {
		id := c.Param("id")
		var source models.Source
		if err := db.First(&source, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "source not found"})
				return
			}
			log.Error("DB error checking for source on PUT", zap.String("id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}

		var updateData map[string]interface{}
		if err := c.ShouldBindJSON(&updateData); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := db.Model(&source).Updates(updateData).Error; err != nil {
			log.Error("DB error updating source", zap.String("id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update source"})
			return
		}
		c.JSON(http.StatusOK, source)
	})
}

func setupSettingRoutes(router *gin.Engine, db *gorm.DB, store *settings.Store, log *zap.Logger) {
	rg := router.Group("/settings")

	rg.GET("/", func(c *gin.Context) {
		var all []models.Setting
		if err := db.Find(&all).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, all)
	})

	rg.PUT("/:key", func(c *gin.Context) {
		var value map[string]interface{}
		if err := c.ShouldBindJSON(&value); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "value must be a JSON object"})
			return
		}
		raw, err := json.Marshal(value)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid value"})
			return
		}
		key := c.Param("key")
		if err := store.Put(key, raw); err != nil {
			log.Error("Failed to store setting", zap.String("key", key), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store setting"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"key": key, "value": value})
	})
}

func setupStoryRoutes(router *gin.Engine, db *gorm.DB, log *zap.Logger) {
	rg := router.Group("/stories")

	rg.GET("/", func(c *gin.Context) {
		query := db.Model(&models.Story{})
		if status := c.Query("status"); status != "" {
			query = query.Where("status = ?", status)
		}
		if category := c.Query("category"); category != "" {
			query = query.Where("category = ?", category)
		}
		var stories []models.Story
		if err := query.Order("created_at desc").Limit(200).Find(&stories).Error; err != nil {
			log.Error("Database query for stories failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, stories)
	})

	rg.GET("/:id", func(c *gin.Context) {
		var story models.Story
		if err := db.First(&story, c.Param("id")).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "story not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		var script models.Script
		if err := db.Where("story_id = ?", story.ID).First(&script).Error; err == nil {
			c.JSON(http.StatusOK, gin.H{"story": story, "script": script})
			return
		}
		c.JSON(http.StatusOK, gin.H{"story": story})
	})
}

func setupReviewRoutes(router *gin.Engine, db *gorm.DB, reviewService *services.ReviewService, log *zap.Logger) {
	rg := router.Group("/reviews")

	rg.GET("/", func(c *gin.Context) {
		var entries []models.ReviewQueueEntry
		if err := db.Where("status = ?", models.ReviewStatusPending).
			Order("enqueued_at asc").Find(&entries).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, entries)
	})

	resolve := func(c *gin.Context, action func(uint) (bool, error)) {
		id, err := parseID(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
			return
		}
		won, err := action(id)
		if err != nil {
			if errors.Is(err, services.ErrReviewNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "review entry not found"})
				return
			}
			log.Error("Review resolution failed", zap.Uint("entry_id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		if !won {
			c.JSON(http.StatusConflict, gin.H{"error": "review entry already resolved"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"resolved": true})
	}

	rg.POST("/:id/approve", func(c *gin.Context) { resolve(c, reviewService.Approve) })
	rg.POST("/:id/reject", func(c *gin.Context) { resolve(c, reviewService.Reject) })

	rg.PUT("/:id/hook", func(c *gin.Context) {
		id, err := parseID(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
			return
		}
		var req struct {
			Hook string `json:"hook" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := reviewService.EditHook(id, req.Hook); err != nil {
			switch {
			case errors.Is(err, services.ErrReviewNotFound):
				c.JSON(http.StatusNotFound, gin.H{"error": "review entry not found"})
			case errors.Is(err, services.ErrReviewClosed):
				c.JSON(http.StatusConflict, gin.H{"error": "review entry already resolved"})
			default:
				log.Error("Hook edit failed", zap.Uint("entry_id", id), zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			}
			return
		}
		c.JSON(http.StatusOK, gin.H{"updated": true})
	})
}

func setupRenderRoutes(router *gin.Engine, db *gorm.DB, log *zap.Logger) {
	rg := router.Group("/renders")
	rg.GET("/", func(c *gin.Context) {
		query := db.Model(&models.Render{})
		if status := c.Query("status"); status != "" {
			query = query.Where("status = ?", status)
		}
		var renders []models.Render
		if err := query.Order("created_at desc").Limit(200).Find(&renders).Error; err != nil {
			log.Error("Database query for renders failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, renders)
	})
}

func setupPublishRoutes(router *gin.Engine, db *gorm.DB, log *zap.Logger) {
	rg := router.Group("/publishes")
	rg.GET("/", func(c *gin.Context) {
		query := db.Model(&models.Publish{})
		if status := c.Query("status"); status != "" {
			query = query.Where("status = ?", status)
		}
		if platform := c.Query("platform"); platform != "" {
			query = query.Where("platform = ?", platform)
		}
		var publishes []models.Publish
		if err := query.Order("created_at desc").Limit(200).Find(&publishes).Error; err != nil {
			log.Error("Database query for publishes failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, publishes)
	})
}

func setupAnalyticsRoutes(router *gin.Engine, db *gorm.DB, log *zap.Logger) {
	rg := router.Group("/analytics")
	rg.GET("/", func(c *gin.Context) {
		query := db.Model(&models.DailyAnalytics{})
		if videoID := c.Query("platform_video_id"); videoID != "" {
			query = query.Where("platform_video_id = ?", videoID)
		}
		if date := c.Query("date"); date != "" {
			query = query.Where("date = ?", date)
		}
		var rows []models.DailyAnalytics
		if err := query.Order("date desc").Limit(500).Find(&rows).Error; err != nil {
			log.Error("Database query for analytics failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, rows)
	})
}

func seedDefaultSources(db *gorm.DB, logger *zap.Logger) {
	defaults := []models.Source{
		{Name: "The Verge", Type: models.SourceTypeRSS, URL: "https://www.theverge.com/rss/index.xml", IntervalMinutes: 30, Enabled: true},
		{Name: "Ars Technica", Type: models.SourceTypeRSS, URL: "https://feeds.arstechnica.com/arstechnica/index", IntervalMinutes: 30, Enabled: true},
		{Name: "TechCrunch", Type: models.SourceTypeRSS, URL: "https://techcrunch.com/feed/", IntervalMinutes: 30, Enabled: true},
	}
	for _, source := range defaults {
		if err := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoNothing: true,
		}).Create(&source).Error; err != nil {
			logger.Error("Failed to seed default source", zap.String("name", source.Name), zap.Error(err))
		}
	}
}

func parseID(s string) (uint, error) {
	id, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}
