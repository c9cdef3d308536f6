package models

import "time"

// Quelltypen, die der Ingester versteht.
const (
	SourceTypeRSS  = "RSS"
	SourceTypeHTML = "HTML"
)

// Source repräsentiert eine Nachrichtenquelle, die periodisch abgefragt wird.
type Source struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name            string `json:"name" gorm:"uniqueIndex;not null"`
	Type            string `json:"type" gorm:"not null;default:'RSS'"` // RSS oder HTML
	URL             string `json:"url" gorm:"not null"`
	IntervalMinutes int    `json:"interval_minutes" gorm:"default:30"`
	Enabled         bool   `json:"enabled" gorm:"default:true;index"`

	LastFetchedAt *time.Time `json:"last_fetched_at,omitempty"`
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (Source) TableName() string {
	return "sources"
}

// Due meldet, ob die Quelle gemäß ihrem Intervall wieder abgefragt werden muss.
func (s *Source) Due(now time.Time) bool {
	if s.LastFetchedAt == nil {
		return true
	}
	return now.Sub(*s.LastFetchedAt) >= time.Duration(s.IntervalMinutes)*time.Minute
}
