package models

import "time"

// DailyAnalytics ist der tägliche Metrik-Rollup eines veröffentlichten
// Videos, eindeutig pro (platform_video_id, date). Wiederholte Läufe am
// selben Tag überschreiben die Werte statt neue Zeilen anzulegen.
type DailyAnalytics struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	PlatformVideoID string `json:"platform_video_id" gorm:"index:idx_analytics_video_date,unique;not null"`
	Date            string `json:"date" gorm:"index:idx_analytics_video_date,unique;size:10;not null"` // YYYY-MM-DD

	Views    int64 `json:"views"`
	Likes    int64 `json:"likes"`
	Comments int64 `json:"comments"`

	AvgWatchTimeSeconds float64 `json:"avg_watch_time_seconds"`
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (DailyAnalytics) TableName() string {
	return "analytics_daily"
}
