package models

import "time"

// Status eines RawItem im Eingangskorb.
const (
	RawItemStatusNew       = "NEW"
	RawItemStatusProcessed = "PROCESSED"
	RawItemStatusDiscarded = "DISCARDED"
)

// RawItem repräsentiert einen einzelnen, von einer Quelle geholten Beitrag.
// Der Hash (sha256 über URL+Titel) ist pro Quelle eindeutig und dient der
// De-Duplizierung über überlappende Ingest-Ticks hinweg.
type RawItem struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	SourceID uint   `json:"source_id" gorm:"index:idx_raw_items_source_hash,unique;not null"`
	Hash     string `json:"hash" gorm:"index:idx_raw_items_source_hash,unique;size:64;not null"`

	URL         string    `json:"url" gorm:"not null"`
	Title       string    `json:"title" gorm:"not null"`
	Snippet     string    `json:"snippet,omitempty" gorm:"type:text"`
	PublishedAt time.Time `json:"published_at"`

	Status        string `json:"status" gorm:"index;default:'NEW'"`
	DiscardReason string `json:"discard_reason,omitempty"`
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (RawItem) TableName() string {
	return "raw_items"
}
