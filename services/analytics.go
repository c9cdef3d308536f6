package services

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"orbix-worker/models"
	"orbix-worker/platforms"
)

// AnalyticsService holt täglich die Kennzahlen aller veröffentlichten
// Videos und schreibt sie als Tages-Rollup. Der Upsert auf
// (platform_video_id, date) macht wiederholte Läufe idempotent.
type AnalyticsService struct {
	DB        *gorm.DB
	Logger    *zap.Logger
	Platforms map[string]platforms.Platform
}

// NewAnalyticsService erstellt den Analytics-Service.
func NewAnalyticsService(db *gorm.DB, logger *zap.Logger, targets map[string]platforms.Platform) *AnalyticsService {
	return &AnalyticsService{DB: db, Logger: logger, Platforms: targets}
}

// Run aktualisiert den Rollup des Vortags für alle veröffentlichten
// Videos und gibt die Zahl der geschriebenen Zeilen zurück. Ein Fehler
// bei einem Video blockiert die anderen nicht.
func (a *AnalyticsService) Run(ctx context.Context) (int, error) {
	date := time.Now().UTC().AddDate(0, 0, -1).Format("2006-01-02")

	var publishes []models.Publish
	if err := a.DB.Where("status = ? AND platform_video_id <> ''", models.PublishStatusPublished).
		Find(&publishes).Error; err != nil {
		return 0, err
	}

	updated := 0
	for i := range publishes {
		publish := &publishes[i]
		platform, ok := a.Platforms[publish.Platform]
		if !ok {
			continue
		}

		metrics, err := platform.FetchMetrics(ctx, publish.PlatformVideoID)
		if err != nil {
			a.Logger.Error("Failed to fetch metrics",
				zap.String("platform", publish.Platform),
				zap.String("platform_video_id", publish.PlatformVideoID),
				zap.Error(err))
			continue
		}

		row := models.DailyAnalytics{
			PlatformVideoID:     publish.PlatformVideoID,
			Date:                date,
			Views:               metrics.Views,
			Likes:               metrics.Likes,
			Comments:            metrics.Comments,
			AvgWatchTimeSeconds: metrics.AvgWatchTimeSeconds,
		}
		err = a.DB.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "platform_video_id"}, {Name: "date"}},
			DoUpdates: clause.AssignmentColumns([]string{"views", "likes", "comments", "avg_watch_time_seconds", "updated_at"}),
		}).Create(&row).Error
		if err != nil {
			a.Logger.Error("Failed to upsert analytics row",
				zap.String("platform_video_id", publish.PlatformVideoID),
				zap.Error(err))
			continue
		}
		updated++
	}

	if updated > 0 {
		a.Logger.Info("Analytics rollup complete", zap.String("date", date), zap.Int("videos", updated))
	}
	return updated, nil
}
