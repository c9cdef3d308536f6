package models

import "time"

// Render-Status.
const (
	RenderStatusQueued     = "QUEUED"
	RenderStatusProcessing = "PROCESSING"
	RenderStatusCompleted  = "COMPLETED"
	RenderStatusFailed     = "FAILED"
)

// Hintergrundtypen.
const (
	BackgroundStill  = "STILL"
	BackgroundMotion = "MOTION"
)

// Render verfolgt einen Render-Vorgang für eine Story. Pro Story darf es
// höchstens eine nicht-FAILED Zeile geben: Active ist true für QUEUED/
// PROCESSING/COMPLETED und NULL für FAILED, der Unique-Index auf
// (story_id, active) macht den Einfüge-Wettlauf zwischen überlappenden
// Ticks harmlos. Fehlgeschlagene Zeilen bleiben als Audit-Spur erhalten;
// ein Retry legt eine neue Zeile an.
type Render struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	StoryID  uint  `json:"story_id" gorm:"index:idx_renders_story_active,unique;not null"`
	ScriptID uint  `json:"script_id" gorm:"index;not null"`
	Active   *bool `json:"-" gorm:"index:idx_renders_story_active,unique"`

	Template       string `json:"template"`        // A, B oder C
	BackgroundType string `json:"background_type"` // STILL oder MOTION
	BackgroundID   string `json:"background_id"`

	Status    string `json:"status" gorm:"index;default:'QUEUED'"`
	OutputURL string `json:"output_url,omitempty"`
	FfmpegLog string `json:"ffmpeg_log,omitempty" gorm:"type:text"`

	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (Render) TableName() string {
	return "renders"
}
