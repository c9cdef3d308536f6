package models

import (
	"time"

	"gorm.io/datatypes"
)

// Story-Status. Übergänge laufen strikt vorwärts, REJECTED ist terminal.
const (
	StoryStatusNew           = "NEW"
	StoryStatusQualified     = "QUALIFIED"
	StoryStatusPendingReview = "PENDING_REVIEW"
	StoryStatusApproved      = "APPROVED"
	StoryStatusRejected      = "REJECTED"
)

// storyTransitions ist die geschlossene Übergangstabelle; alles andere ist
// eine Vertragsverletzung.
var storyTransitions = map[string][]string{
	StoryStatusNew:           {},
	StoryStatusQualified:     {StoryStatusPendingReview, StoryStatusApproved, StoryStatusRejected},
	StoryStatusPendingReview: {StoryStatusApproved, StoryStatusRejected},
	StoryStatusApproved:      {},
	StoryStatusRejected:      {},
}

// StoryCanTransition prüft einen Statusübergang gegen die Übergangstabelle.
func StoryCanTransition(from, to string) bool {
	for _, next := range storyTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Story ist ein bewerteter Rohbeitrag, der die Pipeline durchläuft.
type Story struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	RawItemID uint `json:"raw_item_id" gorm:"uniqueIndex;not null"`

	Category    string         `json:"category" gorm:"index"`
	ShockScore  int            `json:"shock_score"`
	FactorsJSON datatypes.JSON `json:"factors_json,omitempty" gorm:"type:jsonb"`

	Status         string `json:"status" gorm:"index;default:'NEW'"`
	DecisionReason string `json:"decision_reason,omitempty" gorm:"type:text"`

	GenerationAttempts int `json:"generation_attempts" gorm:"default:0"`
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (Story) TableName() string {
	return "stories"
}
