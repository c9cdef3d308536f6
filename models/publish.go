package models

import "time"

// Publish-Status.
const (
	PublishStatusQueued     = "QUEUED"
	PublishStatusPublishing = "PUBLISHING"
	PublishStatusPublished  = "PUBLISHED"
	PublishStatusFailed     = "FAILED"
)

// Plattformen.
const (
	PlatformYouTube = "YOUTUBE"
	PlatformRumble  = "RUMBLE"
)

// Publish verfolgt die Veröffentlichung eines Renders auf genau einer
// Plattform; der Unique-Index auf (render_id, platform) erzwingt die
// Eins-zu-eins-Beziehung pro Paar.
type Publish struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	RenderID uint   `json:"render_id" gorm:"index:idx_publishes_render_platform,unique;not null"`
	Platform string `json:"platform" gorm:"index:idx_publishes_render_platform,unique;size:32;not null"`

	Status          string `json:"status" gorm:"index;default:'QUEUED'"`
	PlatformVideoID string `json:"platform_video_id,omitempty" gorm:"index"`

	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty" gorm:"type:text"`

	Attempts      int        `json:"attempts" gorm:"default:0"`
	NextAttemptAt *time.Time `json:"next_attempt_at,omitempty"`
	LastError     string     `json:"last_error,omitempty" gorm:"type:text"`

	PostedAt *time.Time `json:"posted_at,omitempty"`
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (Publish) TableName() string {
	return "publishes"
}
