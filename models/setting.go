package models

import (
	"time"

	"gorm.io/datatypes"
)

// Setting ist ein prozessweiter Konfigurationseintrag (Key → JSON-Wert),
// vom Operator editierbar und von der Pipeline pro Entscheidungspunkt
// frisch gelesen.
type Setting struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Key   string         `json:"key" gorm:"uniqueIndex;not null"`
	Value datatypes.JSON `json:"value" gorm:"type:jsonb"`
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (Setting) TableName() string {
	return "settings"
}
