package models

import "time"

// PublishCounter reserviert Tages-Slots pro Plattform. Die Reservierung
// geschieht als einzelnes bedingtes Update (published_count + 1 WHERE
// published_count < cap); RowsAffected == 0 bedeutet Cap erreicht. Damit
// können zwei gleichzeitige Dispatch-Zyklen das Tageslimit nicht gemeinsam
// überschreiten.
type PublishCounter struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Platform string `json:"platform" gorm:"index:idx_publish_counters_platform_day,unique;size:32;not null"`
	Day      string `json:"day" gorm:"index:idx_publish_counters_platform_day,unique;size:10;not null"` // YYYY-MM-DD

	PublishedCount int `json:"published_count" gorm:"default:0"`
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (PublishCounter) TableName() string {
	return "publish_counters"
}
